package enums

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	PaymentMethodPhonePe PaymentMethod = "PHONEPE"
	PaymentMethodCOD     PaymentMethod = "COD"
)

var paymentMethods = []PaymentMethod{PaymentMethodPhonePe, PaymentMethodCOD}

func (v PaymentMethod) String() string { return string(v) }
func (v PaymentMethod) IsValid() bool  { return oneOf(paymentMethods, v) }

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse(paymentMethods, value, "payment method")
}

// PaymentStatus tracks the outcome of the order's payment. COD orders stay
// PENDING until delivery.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

var paymentStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed}

func (v PaymentStatus) String() string { return string(v) }
func (v PaymentStatus) IsValid() bool  { return oneOf(paymentStatuses, v) }

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse(paymentStatuses, value, "payment status")
}

// Currency is always INR today; the column exists so receipts and the
// gateway payload never assume it.
type Currency string

const CurrencyINR Currency = "INR"

func (c Currency) String() string { return string(c) }
func (c Currency) IsValid() bool  { return c == CurrencyINR }
