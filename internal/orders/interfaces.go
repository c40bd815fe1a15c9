package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/saffronhouse/orders-backend/internal/notifications"
	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	"github.com/saffronhouse/orders-backend/pkg/pagination"
	"github.com/saffronhouse/orders-backend/pkg/phonepe"
	"github.com/saffronhouse/orders-backend/pkg/whatsapp"
)

// Repository defines persistence operations for orders and their history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	AppendHistory(ctx context.Context, entry *models.OrderStatusEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	FindByRequestID(ctx context.Context, requestID string) (*models.Order, error)
	SetPaymentInitiated(ctx context.Context, id uuid.UUID, initiated PaymentInitiation) error
	TransitionPayment(ctx context.Context, id uuid.UUID, transition PaymentTransition) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, now time.Time) (bool, error)
	AssignDeliveryStaff(ctx context.Context, id uuid.UUID, staffID string) error
	ClaimNotification(ctx context.Context, id uuid.UUID, flag NotificationFlag, now time.Time) (bool, error)
	ReleaseNotification(ctx context.Context, id uuid.UUID, flag NotificationFlag) error
	List(ctx context.Context, status *enums.OrderStatus, params pagination.Params) ([]models.Order, int64, error)
	StatusBreakdown(ctx context.Context) ([]StatusAggregate, error)
	FindStalePayments(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PaymentGateway starts and verifies online payments.
type PaymentGateway interface {
	Initiate(ctx context.Context, req phonepe.InitiateRequest) (*phonepe.InitiateResult, error)
	Verify(ctx context.Context, requestID string) (*phonepe.StatusResponse, error)
}

// Notifier sends best-effort messages to customers and staff.
type Notifier interface {
	NotifyCustomerConfirmation(ctx context.Context, order *models.Order) whatsapp.SendResult
	NotifyKitchen(ctx context.Context, order *models.Order, phones []string) []notifications.PhoneResult
	NotifyDeliveryAssignment(ctx context.Context, order *models.Order, staffPhone string) whatsapp.SendResult
	NotifyDeliveryCompleted(ctx context.Context, order *models.Order) whatsapp.SendResult
	NotifyStatusChange(ctx context.Context, order *models.Order, status enums.OrderStatus) whatsapp.SendResult
	SendReceipt(ctx context.Context, order *models.Order) bool
}

type analyticsRecorder interface {
	RecordConfirmedOrder(ctx context.Context, orderID uuid.UUID) error
}

type metricsRecorder interface {
	IncCreated(method string)
	IncReconciliation(outcome string, applied bool)
}
