package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/saffronhouse/orders-backend/internal/realtime"
	"github.com/saffronhouse/orders-backend/pkg/db"
	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
	"github.com/saffronhouse/orders-backend/pkg/logger"
	"github.com/saffronhouse/orders-backend/pkg/pagination"
)

const (
	defaultSideEffectTimeout = 30 * time.Second
	maxOrderNumberAttempts   = 3
	orderNumberConstraint    = "orders_order_number_key"
)

// Service drives orders through creation, payment and fulfilment.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	ReconcilePayment(ctx context.Context, input ReconcileInput) (*ReconcileResult, error)
	VerifyPayment(ctx context.Context, requestID string) (*ReconcileResult, error)
	UpdateOrderStatus(ctx context.Context, orderRef, status, notes string) (*models.Order, error)
	AssignDelivery(ctx context.Context, input AssignDeliveryInput) (*models.Order, error)
	RetryPayment(ctx context.Context, orderRef string) (*CreateOrderResult, error)
	GetOrder(ctx context.Context, orderRef string) (*models.Order, error)
	ListOrders(ctx context.Context, filter ListFilter) (*ListResult, error)
	DashboardStats(ctx context.Context) (*DashboardStats, error)
	StalePayments(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// Params wires the order service. Payments may be nil when online payment is
// not configured; Metrics is optional.
type Params struct {
	Repo              Repository
	Tx                txRunner
	Payments          PaymentGateway
	Notifier          Notifier
	Analytics         analyticsRecorder
	Events            realtime.Emitter
	Metrics           metricsRecorder
	Logger            *logger.Logger
	KitchenPhones     []string
	SideEffectTimeout time.Duration
	Clock             func() time.Time
}

type service struct {
	repo              Repository
	tx                txRunner
	payments          PaymentGateway
	notifier          Notifier
	analytics         analyticsRecorder
	events            realtime.Emitter
	metrics           metricsRecorder
	logg              *logger.Logger
	kitchenPhones     []string
	sideEffectTimeout time.Duration
	now               func() time.Time
	numbers           *NumberGenerator
}

// NewService builds the order service with the required dependencies.
func NewService(params Params) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Analytics == nil {
		return nil, fmt.Errorf("analytics recorder required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	timeout := params.SideEffectTimeout
	if timeout <= 0 {
		timeout = defaultSideEffectTimeout
	}
	phones := make([]string, 0, len(params.KitchenPhones))
	for _, phone := range params.KitchenPhones {
		if phone = strings.TrimSpace(phone); phone != "" {
			phones = append(phones, phone)
		}
	}
	return &service{
		repo:              params.Repo,
		tx:                params.Tx,
		payments:          params.Payments,
		notifier:          params.Notifier,
		analytics:         params.Analytics,
		events:            params.Events,
		metrics:           params.Metrics,
		logg:              params.Logger,
		kitchenPhones:     phones,
		sideEffectTimeout: timeout,
		now:               now,
		numbers:           NewNumberGenerator(now),
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	order, err := buildOrder(input)
	if err != nil {
		return nil, err
	}
	if order.Payment.Method == enums.PaymentMethodPhonePe && s.payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "online payment is not available, choose cash on delivery")
	}

	now := s.now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	order.History = []models.OrderStatusEntry{{Status: enums.OrderStatusPending, Notes: "Order created", CreatedAt: now}}

	for attempt := 1; ; attempt++ {
		order.ID = uuid.New()
		order.OrderNumber = s.numbers.Next()
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.repo.WithTx(tx).Create(ctx, order)
		})
		if err == nil {
			break
		}
		if attempt < maxOrderNumberAttempts && isOrderNumberCollision(err) {
			continue
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save order")
	}

	if s.metrics != nil {
		s.metrics.IncCreated(order.Payment.Method.String())
	}
	ctx = s.logg.WithOrderNumber(ctx, order.OrderNumber)
	s.logg.Info(s.logg.WithField(ctx, "payment_method", order.Payment.Method.String()), "order created")

	result := &CreateOrderResult{OrderID: order.ID.String(), OrderNumber: order.OrderNumber}
	if order.Payment.Method == enums.PaymentMethodPhonePe {
		url, err := s.startPayment(ctx, order)
		if err != nil {
			return nil, err
		}
		result.PaymentURL = url
		return result, nil
	}

	s.events.Publish(ctx, realtime.RoomDashboard, realtime.EventNewOrder, newOrderEvent(order, now))
	return result, nil
}

func (s *service) GetOrder(ctx context.Context, orderRef string) (*models.Order, error) {
	return s.findByRef(ctx, s.repo, orderRef)
}

// findByRef accepts either the public order number or the storage id.
func (s *service) findByRef(ctx context.Context, repo Repository, orderRef string) (*models.Order, error) {
	ref := strings.TrimSpace(orderRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var (
		order *models.Order
		err   error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		order, err = repo.FindByID(ctx, id)
	} else {
		order, err = repo.FindByNumber(ctx, ref)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, filter ListFilter) (*ListResult, error) {
	var status *enums.OrderStatus
	if raw := strings.TrimSpace(filter.Status); raw != "" {
		parsed, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		status = &parsed
	}
	params, err := pagination.Params{Limit: filter.Limit, Skip: filter.Skip}.Normalize()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pagination")
	}

	rows, total, err := s.repo.List(ctx, status, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list orders")
	}
	orders := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		orders = append(orders, ToDTO(&rows[i]))
	}
	return &ListResult{Orders: orders, Total: total, Limit: params.Limit, Skip: params.Skip}, nil
}

func (s *service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	rows, err := s.repo.StatusBreakdown(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "aggregate order stats")
	}
	stats := &DashboardStats{TotalRevenue: decimal.Zero, StatusBreakdown: make([]StatusBreakdownDTO, 0, len(rows))}
	for _, row := range rows {
		stats.TotalOrders += row.Count
		stats.TotalRevenue = stats.TotalRevenue.Add(row.TotalAmount)
		stats.StatusBreakdown = append(stats.StatusBreakdown, StatusBreakdownDTO{
			Status:      row.Status.String(),
			Count:       row.Count,
			TotalAmount: row.TotalAmount,
		})
	}
	return stats, nil
}

func (s *service) StalePayments(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := s.repo.FindStalePayments(ctx, cutoff.UTC(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "find stale payments")
	}
	return rows, nil
}

// detached returns a context that survives request cancellation, bounded by
// the side effect timeout.
func (s *service) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.sideEffectTimeout)
}

func isOrderNumberCollision(err error) bool {
	return db.IsUniqueViolation(err, orderNumberConstraint) || db.IsUniqueViolation(err, "orders.order_number")
}
