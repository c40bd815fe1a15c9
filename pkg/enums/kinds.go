package enums

// DeliveryType distinguishes delivered orders from dine-in orders.
type DeliveryType string

const (
	DeliveryTypeDelivery DeliveryType = "DELIVERY"
	DeliveryTypeDineIn   DeliveryType = "DINE_IN"
)

var deliveryTypes = []DeliveryType{DeliveryTypeDelivery, DeliveryTypeDineIn}

func (v DeliveryType) String() string { return string(v) }
func (v DeliveryType) IsValid() bool  { return oneOf(deliveryTypes, v) }

func ParseDeliveryType(value string) (DeliveryType, error) {
	return parse(deliveryTypes, value, "delivery type")
}

// AnalyticsBucketKind names a keyed sub-aggregate of the daily rollup.
type AnalyticsBucketKind string

const (
	AnalyticsBucketPaymentMethod AnalyticsBucketKind = "payment_method"
	AnalyticsBucketOrderType     AnalyticsBucketKind = "order_type"
	AnalyticsBucketHour          AnalyticsBucketKind = "hour"
	AnalyticsBucketDish          AnalyticsBucketKind = "dish"
)

var analyticsBucketKinds = []AnalyticsBucketKind{
	AnalyticsBucketPaymentMethod,
	AnalyticsBucketOrderType,
	AnalyticsBucketHour,
	AnalyticsBucketDish,
}

func (v AnalyticsBucketKind) String() string { return string(v) }
func (v AnalyticsBucketKind) IsValid() bool  { return oneOf(analyticsBucketKinds, v) }

// StaffRole is the role claim carried by staff access tokens.
type StaffRole string

const (
	StaffRoleAdmin    StaffRole = "admin"
	StaffRoleKitchen  StaffRole = "kitchen"
	StaffRoleDelivery StaffRole = "delivery"
)

var staffRoles = []StaffRole{StaffRoleAdmin, StaffRoleKitchen, StaffRoleDelivery}

func (v StaffRole) String() string { return string(v) }
func (v StaffRole) IsValid() bool  { return oneOf(staffRoles, v) }
