package config

const (
	EnvPrefix = "SAFFRON"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultTimeZone = "Asia/Kolkata"

	EnvAppEnv     = "SAFFRON_APP_ENV"
	EnvPort       = "SAFFRON_APP_PORT"
	EnvDBDSN      = "SAFFRON_DB_DSN"
	EnvDBDriver   = "SAFFRON_DB_DRIVER"
	EnvDBHost     = "SAFFRON_DB_HOST"
	EnvDBUser     = "SAFFRON_DB_USER"
	EnvDBPassword = "SAFFRON_DB_PASSWORD"
	EnvDBName     = "SAFFRON_DB_NAME"
	EnvRedisURL   = "SAFFRON_REDIS_URL"
	EnvJWTSecret  = "SAFFRON_JWT_SECRET"
	EnvJWTIssuer  = "SAFFRON_JWT_ISSUER"

	EnvPhonePeMerchantID = "SAFFRON_PHONEPE_MERCHANT_ID"
	EnvPhonePeSaltKey    = "SAFFRON_PHONEPE_SALT_KEY"
	EnvKitchenPhones     = "SAFFRON_KITCHEN_STAFF_PHONES"
	EnvBusinessTimeZone  = "SAFFRON_BUSINESS_TIMEZONE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
