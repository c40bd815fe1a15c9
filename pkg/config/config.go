package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	PhonePe      PhonePeConfig
	WhatsApp     WhatsAppConfig
	SMTP         SMTPConfig
	Business     BusinessConfig
	Realtime     RealtimeConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Business.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SAFFRON_APP_ENV" required:"true"`
	Port         string `envconfig:"SAFFRON_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SAFFRON_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SAFFRON_LOG_WARN_STACK" default:"false"`
	LogFile      string `envconfig:"SAFFRON_LOG_FILE"`
	LogFormat    string `envconfig:"SAFFRON_LOG_FORMAT" default:"json"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `envconfig:"SAFFRON_CORS_ORIGINS" default:"http://localhost:3000"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `envconfig:"SAFFRON_TRUST_PROXY_HEADERS" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SAFFRON_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SAFFRON_DB_DSN"`
	Driver string `envconfig:"SAFFRON_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SAFFRON_DB_HOST"`
	LegacyPort     int    `envconfig:"SAFFRON_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SAFFRON_DB_USER"`
	LegacyPassword string `envconfig:"SAFFRON_DB_PASSWORD"`
	LegacyName     string `envconfig:"SAFFRON_DB_NAME"`
	LegacySSLMode  string `envconfig:"SAFFRON_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SAFFRON_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SAFFRON_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SAFFRON_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SAFFRON_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery is the latency above which a statement is logged at warn.
	SlowQuery time.Duration `envconfig:"SAFFRON_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SAFFRON_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SAFFRON_REDIS_ADDR"`
	Password     string        `envconfig:"SAFFRON_REDIS_PASSWORD"`
	DB           int           `envconfig:"SAFFRON_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SAFFRON_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SAFFRON_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SAFFRON_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SAFFRON_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SAFFRON_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig validates admin bearer tokens. Tokens are issued elsewhere.
type JWTConfig struct {
	Secret string `envconfig:"SAFFRON_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"SAFFRON_JWT_ISSUER" required:"true"`
	// Leeway absorbs clock skew between the issuer and this service.
	Leeway time.Duration `envconfig:"SAFFRON_JWT_LEEWAY" default:"30s"`
}

type PhonePeConfig struct {
	MerchantID string `envconfig:"SAFFRON_PHONEPE_MERCHANT_ID"`
	SaltKey    string `envconfig:"SAFFRON_PHONEPE_SALT_KEY"`
	SaltIndex  string `envconfig:"SAFFRON_PHONEPE_SALT_INDEX" default:"1"`
	// Env selects the provider host: UAT or PROD.
	Env         string        `envconfig:"SAFFRON_PHONEPE_ENV" default:"UAT"`
	BaseURL     string        `envconfig:"SAFFRON_PHONEPE_BASE_URL"`
	BackendURL  string        `envconfig:"SAFFRON_BACKEND_URL" default:"http://localhost:8080"`
	FrontendURL string        `envconfig:"SAFFRON_FRONTEND_URL" default:"http://localhost:3000"`
	Timeout     time.Duration `envconfig:"SAFFRON_PHONEPE_TIMEOUT" default:"30s"`
	WebhookTTL  time.Duration `envconfig:"SAFFRON_PHONEPE_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// Enabled reports whether credentials for the payment provider are present.
func (p PhonePeConfig) Enabled() bool {
	return p.MerchantID != "" && p.SaltKey != ""
}

type WhatsAppConfig struct {
	APIURL        string        `envconfig:"SAFFRON_WHATSAPP_API_URL" default:"https://graph.facebook.com/v18.0"`
	PhoneNumberID string        `envconfig:"SAFFRON_WHATSAPP_PHONE_NUMBER_ID"`
	AccessToken   string        `envconfig:"SAFFRON_WHATSAPP_ACCESS_TOKEN"`
	CountryCode   string        `envconfig:"SAFFRON_WHATSAPP_COUNTRY_CODE" default:"91"`
	KitchenPhones []string      `envconfig:"SAFFRON_KITCHEN_STAFF_PHONES"`
	TemplatesFile string        `envconfig:"SAFFRON_WHATSAPP_TEMPLATES_FILE"`
	Timeout       time.Duration `envconfig:"SAFFRON_WHATSAPP_TIMEOUT" default:"30s"`
}

type SMTPConfig struct {
	Host     string `envconfig:"SAFFRON_SMTP_HOST"`
	Port     int    `envconfig:"SAFFRON_SMTP_PORT" default:"587"`
	Username string `envconfig:"SAFFRON_SMTP_USERNAME"`
	Password string `envconfig:"SAFFRON_SMTP_PASSWORD"`
	From     string `envconfig:"SAFFRON_SMTP_FROM" default:"orders@saffronhouse.in"`
}

func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

type BusinessConfig struct {
	TimeZone string `envconfig:"SAFFRON_BUSINESS_TIMEZONE" default:"Asia/Kolkata"`
}

// Location resolves the business time zone used for analytics day buckets.
func (b BusinessConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(b.TimeZone)
	if name == "" {
		name = DefaultTimeZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading business timezone %q: %w", name, err)
	}
	return loc, nil
}

type RealtimeConfig struct {
	RedisBridge bool   `envconfig:"SAFFRON_REALTIME_REDIS_BRIDGE" default:"false"`
	Channel     string `envconfig:"SAFFRON_REALTIME_CHANNEL" default:"saffron:realtime"`
	BufferSize  int    `envconfig:"SAFFRON_REALTIME_BUFFER_SIZE" default:"32"`
}

type RateLimitConfig struct {
	OrderCreateWindow time.Duration `envconfig:"SAFFRON_RATE_LIMIT_ORDER_WINDOW" default:"1m"`
	OrderCreateLimit  int           `envconfig:"SAFFRON_RATE_LIMIT_ORDER_LIMIT" default:"10"`
	// OrderPhoneLimit caps orders per customer phone within the same window.
	OrderPhoneLimit int `envconfig:"SAFFRON_RATE_LIMIT_ORDER_PHONE_LIMIT" default:"5"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"SAFFRON_CRON_INTERVAL" default:"1m"`
	StaleAfter time.Duration `envconfig:"SAFFRON_PAYMENT_STALE_AFTER" default:"10m"`
	BatchSize  int           `envconfig:"SAFFRON_PAYMENT_SWEEP_BATCH_SIZE" default:"50"`
	JobTimeout time.Duration `envconfig:"SAFFRON_CRON_JOB_TIMEOUT" default:"45s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SAFFRON_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
