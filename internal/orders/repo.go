package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	"github.com/saffronhouse/orders-backend/pkg/pagination"
)

// NotificationFlag names one of the "already sent" columns.
type NotificationFlag string

const (
	FlagCustomer NotificationFlag = "notify_customer_sent"
	FlagKitchen  NotificationFlag = "notify_kitchen_sent"
	FlagDelivery NotificationFlag = "notify_delivery_sent"
	FlagReceipt  NotificationFlag = "notify_receipt_sent"
)

// PaymentInitiation is stored once the provider accepted a payment request.
type PaymentInitiation struct {
	RequestID     string
	TransactionID string
	MerchantID    string
}

// PaymentTransition is the compare-and-set applied when a payment settles.
type PaymentTransition struct {
	PaymentStatus enums.PaymentStatus
	TransactionID string
	PaidAt        *time.Time
}

// StatusAggregate is one row of the per-status dashboard breakdown.
type StatusAggregate struct {
	Status      enums.OrderStatus `gorm:"column:status"`
	Count       int64             `gorm:"column:count"`
	TotalAmount decimal.Decimal   `gorm:"column:total_amount"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order with its items and history in one statement batch.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.OrderStatusEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.preloaded(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	if err := r.preloaded(ctx).Where("order_number = ?", orderNumber).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByRequestID(ctx context.Context, requestID string) (*models.Order, error) {
	var order models.Order
	if err := r.preloaded(ctx).Where("payment_request_id = ?", requestID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) SetPaymentInitiated(ctx context.Context, id uuid.UUID, initiated PaymentInitiation) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_request_id IS NULL", id).
		Updates(map[string]any{
			"payment_request_id":     initiated.RequestID,
			"payment_transaction_id": initiated.TransactionID,
			"payment_merchant_id":    initiated.MerchantID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionPayment settles a pending payment. It reports false when the
// payment already settled, in which case nothing was written. The order status
// is left alone; staff may have moved it while the payment was outstanding.
func (r *repository) TransitionPayment(ctx context.Context, id uuid.UUID, transition PaymentTransition) (bool, error) {
	updates := map[string]any{"payment_status": transition.PaymentStatus}
	if transition.TransactionID != "" {
		updates["payment_transaction_id"] = transition.TransactionID
	}
	if transition.PaidAt != nil {
		updates["payment_paid_at"] = *transition.PaidAt
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, enums.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateStatus moves the order from one status to another. It reports false
// when the order was no longer in from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, now time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	if to == enums.OrderStatusDelivered {
		updates["delivered_at"] = now
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AssignDeliveryStaff sets the rider. Changing rider re-arms the delivery
// notification.
func (r *repository) AssignDeliveryStaff(ctx context.Context, id uuid.UUID, staffID string) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"delivery_staff_id":  staffID,
			string(FlagDelivery): gorm.Expr("CASE WHEN delivery_staff_id = ? THEN "+string(FlagDelivery)+" ELSE ? END", staffID, false),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClaimNotification flips a notification flag from false to true and reports
// whether this caller won the claim.
func (r *repository) ClaimNotification(ctx context.Context, id uuid.UUID, flag NotificationFlag, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND "+string(flag)+" = ?", id, false).
		Updates(map[string]any{
			string(flag):          true,
			"notify_last_sent_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReleaseNotification(ctx context.Context, id uuid.UUID, flag NotificationFlag) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Update(string(flag), false).Error
}

func (r *repository) List(ctx context.Context, status *enums.OrderStatus, params pagination.Params) ([]models.Order, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.Order{})
	if status != nil {
		base = base.Where("status = ?", *status)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	err := base.Session(&gorm.Session{}).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC").
		Order("id DESC").
		Limit(params.Limit).
		Offset(params.Skip).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *repository) StatusBreakdown(ctx context.Context) ([]StatusAggregate, error) {
	var rows []StatusAggregate
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total_amount").
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindStalePayments returns online payments that were started before cutoff
// and never settled, whatever status staff gave the order meanwhile.
func (r *repository) FindStalePayments(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("payment_method = ? AND payment_status = ? AND payment_request_id IS NOT NULL AND created_at < ?",
			enums.PaymentMethodPhonePe, enums.PaymentStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
