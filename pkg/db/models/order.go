package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/saffronhouse/orders-backend/pkg/enums"
)

// Order is the aggregate root for a customer order. Payment and notification
// state are value objects stored on the same row.
type Order struct {
	ID                  uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber         string             `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerName        string             `gorm:"column:customer_name;not null"`
	CustomerPhone       string             `gorm:"column:customer_phone;not null"`
	CustomerEmail       *string            `gorm:"column:customer_email"`
	DeliveryType        enums.DeliveryType `gorm:"column:delivery_type;not null;default:'DELIVERY'"`
	DeliveryAddress     string             `gorm:"column:delivery_address;not null;default:''"`
	DeliveryStaffID     *string            `gorm:"column:delivery_staff_id"`
	Subtotal            decimal.Decimal    `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax                 decimal.Decimal    `gorm:"column:tax;type:numeric(12,2);not null;default:0"`
	DeliveryCharge      decimal.Decimal    `gorm:"column:delivery_charge;type:numeric(12,2);not null;default:0"`
	Discount            decimal.Decimal    `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	TotalAmount         decimal.Decimal    `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status              enums.OrderStatus  `gorm:"column:status;not null;default:'PENDING'"`
	Payment             Payment            `gorm:"embedded;embeddedPrefix:payment_"`
	Notifications       NotificationFlags  `gorm:"embedded;embeddedPrefix:notify_"`
	AnalyticsRecorded   bool               `gorm:"column:analytics_recorded;not null;default:false"`
	SpecialNotes        *string            `gorm:"column:special_notes"`
	EstimatedDeliveryAt *time.Time         `gorm:"column:estimated_delivery_at"`
	DeliveredAt         *time.Time         `gorm:"column:delivered_at"`
	Items               []OrderItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	History             []OrderStatusEntry `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Payment is the payment sub-record of an order. RequestID correlates provider
// callbacks and webhooks back to the order.
type Payment struct {
	Method        enums.PaymentMethod `gorm:"column:method;not null;default:'COD'"`
	Status        enums.PaymentStatus `gorm:"column:status;not null;default:'PENDING'"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency      enums.Currency      `gorm:"column:currency;not null;default:'INR'"`
	TransactionID *string             `gorm:"column:transaction_id"`
	RequestID     *string             `gorm:"column:request_id;uniqueIndex"`
	MerchantID    *string             `gorm:"column:merchant_id"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
}

// NotificationFlags records which outbound messages were already sent so
// retries never message the same role twice.
type NotificationFlags struct {
	CustomerSent bool       `gorm:"column:customer_sent;not null;default:false"`
	KitchenSent  bool       `gorm:"column:kitchen_sent;not null;default:false"`
	DeliverySent bool       `gorm:"column:delivery_sent;not null;default:false"`
	ReceiptSent  bool       `gorm:"column:receipt_sent;not null;default:false"`
	LastSentAt   *time.Time `gorm:"column:last_sent_at"`
}
