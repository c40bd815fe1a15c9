package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
)

// ItemInput is one requested line item. Name and price are snapshots taken
// from the menu at order time.
type ItemInput struct {
	DishID              *string         `json:"dishId"`
	DishName            string          `json:"dishName" validate:"required"`
	Price               decimal.Decimal `json:"price"`
	Quantity            int             `json:"quantity" validate:"min=1"`
	SpecialInstructions *string         `json:"specialInstructions"`
}

// CreateOrderInput is the order placed by a customer.
type CreateOrderInput struct {
	CustomerName    string          `json:"customerName" validate:"required"`
	CustomerPhone   string          `json:"customerPhone" validate:"required"`
	CustomerEmail   *string         `json:"customerEmail" validate:"omitempty,email"`
	Items           []ItemInput     `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress string          `json:"deliveryAddress"`
	DeliveryType    string          `json:"deliveryType"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	DeliveryCharge  decimal.Decimal `json:"deliveryCharge"`
	Discount        decimal.Decimal `json:"discount"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	SpecialNotes    *string         `json:"specialNotes"`
	PaymentMethod   string          `json:"paymentMethod"`
}

// CreateOrderResult is returned once the order is persisted.
type CreateOrderResult struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	PaymentURL  string `json:"paymentUrl,omitempty"`
}

// ReconcileInput is an external payment outcome to apply.
type ReconcileInput struct {
	RequestID     string
	State         string
	TransactionID string
	// Source names the path that observed the outcome, for logs and history.
	Source string
}

// ReconcileResult reports the order after reconciliation and whether this
// call performed the transition.
type ReconcileResult struct {
	Order   *models.Order
	Outcome string
	Applied bool
}

// ListFilter narrows the admin order listing.
type ListFilter struct {
	Status string
	Limit  int
	Skip   int
}

type ListResult struct {
	Orders []OrderDTO `json:"orders"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Skip   int        `json:"skip"`
}

// StatusBreakdownDTO is one entry of the dashboard per-status breakdown.
type StatusBreakdownDTO struct {
	Status      string          `json:"status"`
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type DashboardStats struct {
	TotalOrders     int64                `json:"totalOrders"`
	TotalRevenue    decimal.Decimal      `json:"totalRevenue"`
	StatusBreakdown []StatusBreakdownDTO `json:"statusBreakdown"`
}

// OrderItemDTO is the API shape of a line item.
type OrderItemDTO struct {
	DishID              *string         `json:"dishId,omitempty"`
	DishName            string          `json:"dishName"`
	Price               decimal.Decimal `json:"price"`
	Quantity            int             `json:"quantity"`
	SpecialInstructions *string         `json:"specialInstructions,omitempty"`
}

type PaymentDTO struct {
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	TransactionID *string         `json:"transactionId,omitempty"`
	RequestID     *string         `json:"requestId,omitempty"`
	PaidAt        *time.Time      `json:"timestamp,omitempty"`
}

type StatusHistoryDTO struct {
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type NotificationsDTO struct {
	CustomerSent bool       `json:"whatsappSentToCustomer"`
	KitchenSent  bool       `json:"whatsappSentToKitchen"`
	DeliverySent bool       `json:"whatsappSentToDelivery"`
	LastSentAt   *time.Time `json:"lastNotificationTime,omitempty"`
}

// OrderDTO is the API shape of an order. OrderID is the public order number.
type OrderDTO struct {
	ID                  string             `json:"id"`
	OrderID             string             `json:"orderId"`
	CustomerName        string             `json:"customerName"`
	CustomerPhone       string             `json:"customerPhone"`
	CustomerEmail       *string            `json:"customerEmail,omitempty"`
	Items               []OrderItemDTO     `json:"items"`
	DeliveryAddress     string             `json:"deliveryAddress,omitempty"`
	DeliveryType        string             `json:"deliveryType"`
	DeliveryStaffID     *string            `json:"deliveryStaffId,omitempty"`
	Subtotal            decimal.Decimal    `json:"subtotal"`
	Tax                 decimal.Decimal    `json:"tax"`
	DeliveryCharge      decimal.Decimal    `json:"deliveryCharge"`
	Discount            decimal.Decimal    `json:"discount"`
	TotalAmount         decimal.Decimal    `json:"totalAmount"`
	Status              string             `json:"status"`
	Payment             PaymentDTO         `json:"payment"`
	StatusHistory       []StatusHistoryDTO `json:"statusHistory"`
	Notifications       NotificationsDTO   `json:"notifications"`
	SpecialNotes        *string            `json:"specialNotes,omitempty"`
	EstimatedDeliveryAt *time.Time         `json:"estimatedDeliveryTime,omitempty"`
	DeliveredAt         *time.Time         `json:"actualDeliveryTime,omitempty"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

// ToDTO maps a stored order to its API shape.
func ToDTO(order *models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			DishID:              item.DishID,
			DishName:            item.DishName,
			Price:               item.UnitPrice,
			Quantity:            item.Quantity,
			SpecialInstructions: item.SpecialInstructions,
		})
	}
	history := make([]StatusHistoryDTO, 0, len(order.History))
	for _, entry := range order.History {
		history = append(history, StatusHistoryDTO{
			Status:    entry.Status.String(),
			Notes:     entry.Notes,
			Timestamp: entry.CreatedAt,
		})
	}
	return OrderDTO{
		ID:              order.ID.String(),
		OrderID:         order.OrderNumber,
		CustomerName:    order.CustomerName,
		CustomerPhone:   order.CustomerPhone,
		CustomerEmail:   order.CustomerEmail,
		Items:           items,
		DeliveryAddress: order.DeliveryAddress,
		DeliveryType:    order.DeliveryType.String(),
		DeliveryStaffID: order.DeliveryStaffID,
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		DeliveryCharge:  order.DeliveryCharge,
		Discount:        order.Discount,
		TotalAmount:     order.TotalAmount,
		Status:          order.Status.String(),
		Payment: PaymentDTO{
			Method:        order.Payment.Method.String(),
			Status:        order.Payment.Status.String(),
			Amount:        order.Payment.Amount,
			Currency:      order.Payment.Currency.String(),
			TransactionID: order.Payment.TransactionID,
			RequestID:     order.Payment.RequestID,
			PaidAt:        order.Payment.PaidAt,
		},
		StatusHistory: history,
		Notifications: NotificationsDTO{
			CustomerSent: order.Notifications.CustomerSent,
			KitchenSent:  order.Notifications.KitchenSent,
			DeliverySent: order.Notifications.DeliverySent,
			LastSentAt:   order.Notifications.LastSentAt,
		},
		SpecialNotes:        order.SpecialNotes,
		EstimatedDeliveryAt: order.EstimatedDeliveryAt,
		DeliveredAt:         order.DeliveredAt,
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
	}
}

// eventPayload is the real-time frame body describing an order.
type eventPayload struct {
	OrderID         string           `json:"orderId"`
	CustomerName    string           `json:"customerName,omitempty"`
	Items           []OrderItemDTO   `json:"items,omitempty"`
	DeliveryType    string           `json:"deliveryType,omitempty"`
	DeliveryAddress string           `json:"deliveryAddress,omitempty"`
	SpecialNotes    *string          `json:"specialNotes,omitempty"`
	TotalAmount     *decimal.Decimal `json:"totalAmount,omitempty"`
	Status          string           `json:"status"`
	DeliveryStaffID *string          `json:"deliveryStaffId,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

func newOrderEvent(order *models.Order, at time.Time) eventPayload {
	dto := ToDTO(order)
	total := order.TotalAmount
	return eventPayload{
		OrderID:         order.OrderNumber,
		CustomerName:    order.CustomerName,
		Items:           dto.Items,
		DeliveryType:    order.DeliveryType.String(),
		DeliveryAddress: order.DeliveryAddress,
		SpecialNotes:    order.SpecialNotes,
		TotalAmount:     &total,
		Status:          order.Status.String(),
		Timestamp:       at,
	}
}

func statusEvent(order *models.Order, status enums.OrderStatus, at time.Time) eventPayload {
	return eventPayload{
		OrderID:         order.OrderNumber,
		Status:          status.String(),
		DeliveryStaffID: order.DeliveryStaffID,
		Timestamp:       at,
	}
}
