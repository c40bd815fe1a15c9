package orders

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saffronhouse/orders-backend/internal/analytics"
	"github.com/saffronhouse/orders-backend/internal/notifications"
	"github.com/saffronhouse/orders-backend/pkg/db"
	"github.com/saffronhouse/orders-backend/pkg/db/dbtest"
	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
	"github.com/saffronhouse/orders-backend/pkg/logger"
	"github.com/saffronhouse/orders-backend/pkg/phonepe"
	"github.com/saffronhouse/orders-backend/pkg/whatsapp"
)

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type stubGateway struct {
	mu         sync.Mutex
	initErr    error
	status     *phonepe.StatusResponse
	verifyErr  error
	initiated  []phonepe.InitiateRequest
	verifyRefs []string
}

func (g *stubGateway) Initiate(_ context.Context, req phonepe.InitiateRequest) (*phonepe.InitiateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initiated = append(g.initiated, req)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &phonepe.InitiateResult{
		RequestID:     req.OrderNumber + "_1",
		TransactionID: "T-" + req.OrderNumber,
		RedirectURL:   "https://pay.test/" + req.OrderNumber,
		MerchantID:    "MERCHANTUAT",
	}, nil
}

func (g *stubGateway) Verify(_ context.Context, requestID string) (*phonepe.StatusResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyRefs = append(g.verifyRefs, requestID)
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.status, nil
}

type stubNotifier struct {
	mu            sync.Mutex
	failKitchen   bool
	failCustomer  bool
	confirmations int
	kitchen       int
	assignments   []string
	completed     int
	statusChanges []enums.OrderStatus
	receipts      int
}

func (n *stubNotifier) result(ok bool) whatsapp.SendResult {
	if ok {
		return whatsapp.SendResult{Success: true, MessageID: "wamid.1"}
	}
	return whatsapp.SendResult{Message: "provider down"}
}

func (n *stubNotifier) NotifyCustomerConfirmation(context.Context, *models.Order) whatsapp.SendResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations++
	return n.result(!n.failCustomer)
}

func (n *stubNotifier) NotifyKitchen(_ context.Context, _ *models.Order, phones []string) []notifications.PhoneResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kitchen++
	out := make([]notifications.PhoneResult, 0, len(phones))
	for _, phone := range phones {
		out = append(out, notifications.PhoneResult{Phone: phone, Result: n.result(!n.failKitchen)})
	}
	return out
}

func (n *stubNotifier) NotifyDeliveryAssignment(_ context.Context, _ *models.Order, staffPhone string) whatsapp.SendResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.assignments = append(n.assignments, staffPhone)
	return n.result(true)
}

func (n *stubNotifier) NotifyDeliveryCompleted(context.Context, *models.Order) whatsapp.SendResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed++
	return n.result(true)
}

func (n *stubNotifier) NotifyStatusChange(_ context.Context, _ *models.Order, status enums.OrderStatus) whatsapp.SendResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusChanges = append(n.statusChanges, status)
	return n.result(true)
}

func (n *stubNotifier) SendReceipt(context.Context, *models.Order) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts++
	return true
}

type countingAnalytics struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (a *countingAnalytics) RecordConfirmedOrder(_ context.Context, orderID uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, orderID)
	return a.err
}

type published struct {
	Room  string
	Event string
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []published
}

func (e *recordingEmitter) Publish(_ context.Context, room, event string, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, published{Room: room, Event: event})
}

func (e *recordingEmitter) snapshot() []published {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]published(nil), e.events...)
}

type harness struct {
	client    *db.Client
	svc       Service
	gateway   *stubGateway
	notifier  *stubNotifier
	analytics *countingAnalytics
	events    *recordingEmitter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t)
	h := &harness{
		client:    client,
		gateway:   &stubGateway{},
		notifier:  &stubNotifier{},
		analytics: &countingAnalytics{},
		events:    &recordingEmitter{},
	}
	clock := &tickingClock{now: time.Date(2026, 10, 18, 6, 30, 0, 0, time.UTC)}
	svc, err := NewService(Params{
		Repo:          NewRepository(client.DB()),
		Tx:            client,
		Payments:      h.gateway,
		Notifier:      h.notifier,
		Analytics:     h.analytics,
		Events:        h.events,
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		KitchenPhones: []string{"9000000001", " ", "9000000002"},
		Clock:         clock.Now,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func strPtr(v string) *string { return &v }

func twoItemInput(method string) CreateOrderInput {
	return CreateOrderInput{
		CustomerName:    "Asha",
		CustomerPhone:   "9876543210",
		CustomerEmail:   strPtr("asha@example.com"),
		DeliveryAddress: "12 MG Road",
		PaymentMethod:   method,
		Items: []ItemInput{
			{DishName: "Juice", Price: decimal.NewFromInt(100), Quantity: 2},
			{DishName: "Shake", Price: decimal.NewFromInt(150), Quantity: 1, SpecialInstructions: strPtr("less sugar")},
		},
		TotalAmount: decimal.NewFromInt(350),
	}
}

func errCode(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	return typed.Code()
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(Params{})
	require.Error(t, err)
}

func TestCreateOrderCashOnDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.svc.CreateOrder(ctx, twoItemInput(""))
	require.NoError(t, err)
	assert.Regexp(t, `^ORD_[0-9]+_[0-9a-f]{8}$`, result.OrderNumber)
	assert.Empty(t, result.PaymentURL)

	order, err := h.svc.GetOrder(ctx, result.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, result.OrderID, order.ID.String())
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentMethodCOD, order.Payment.Method)
	assert.Equal(t, enums.PaymentStatusPending, order.Payment.Status)
	assert.True(t, decimal.NewFromInt(350).Equal(order.TotalAmount))
	assert.True(t, decimal.NewFromInt(350).Equal(order.Subtotal))
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Juice", order.Items[0].DishName)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, "Shake", order.Items[1].DishName)
	require.Len(t, order.History, 1)
	assert.Equal(t, enums.OrderStatusPending, order.History[0].Status)
	assert.Equal(t, "Order created", order.History[0].Notes)
	assert.Nil(t, order.Payment.RequestID)

	byID, err := h.svc.GetOrder(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, result.OrderNumber, byID.OrderNumber)

	assert.Equal(t, []published{{Room: "admin_dashboard", Event: "new_order"}}, h.events.snapshot())
	assert.Empty(t, h.gateway.initiated)
	assert.Zero(t, h.notifier.kitchen)
}

func TestCreateOrderValidation(t *testing.T) {
	h := newHarness(t)

	input := CreateOrderInput{
		DeliveryType: "DELIVERY",
		Items:        []ItemInput{{DishName: "", Quantity: 0, Price: decimal.NewFromInt(-1)}},
	}
	_, err := h.svc.CreateOrder(context.Background(), input)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	for _, field := range []string{"customerName", "customerPhone", "deliveryAddress", "items[0].dishName", "items[0].quantity", "items[0].price", "totalAmount"} {
		assert.Contains(t, details, field)
	}

	list, err := h.svc.ListOrders(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestCreateOrderDineInNeedsNoAddress(t *testing.T) {
	h := newHarness(t)
	input := twoItemInput("COD")
	input.DeliveryType = "DINE_IN"
	input.DeliveryAddress = ""

	result, err := h.svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)

	order, err := h.svc.GetOrder(context.Background(), result.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryTypeDineIn, order.DeliveryType)
}

func TestCreateOrderPhonePeStoresCorrelation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.svc.CreateOrder(ctx, twoItemInput("PHONEPE"))
	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/"+result.OrderNumber, result.PaymentURL)

	require.Len(t, h.gateway.initiated, 1)
	assert.True(t, decimal.NewFromInt(350).Equal(h.gateway.initiated[0].Amount))
	assert.Equal(t, "9876543210", h.gateway.initiated[0].Phone)

	order, err := h.svc.GetOrder(ctx, result.OrderNumber)
	require.NoError(t, err)
	require.NotNil(t, order.Payment.RequestID)
	assert.Equal(t, result.OrderNumber+"_1", *order.Payment.RequestID)
	require.NotNil(t, order.Payment.MerchantID)
	assert.Equal(t, "MERCHANTUAT", *order.Payment.MerchantID)
	assert.Empty(t, h.events.snapshot())
}

func TestCreateOrderPhonePeWithoutGateway(t *testing.T) {
	client := dbtest.Open(t)
	svc, err := NewService(Params{
		Repo:      NewRepository(client.DB()),
		Tx:        client,
		Notifier:  &stubNotifier{},
		Analytics: &countingAnalytics{},
		Events:    &recordingEmitter{},
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)

	_, err = svc.CreateOrder(context.Background(), twoItemInput("PHONEPE"))
	assert.Equal(t, pkgerrors.CodeDependency, errCode(t, err))
}

func TestCreateOrderInitiationFailureKeepsOrderForRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gateway.initErr = pkgerrors.New(pkgerrors.CodeUpstream, "phonepe rejected payment")

	_, err := h.svc.CreateOrder(ctx, twoItemInput("PHONEPE"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUpstream, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	orderNumber := details["orderNumber"]
	require.NotEmpty(t, orderNumber)
	assert.Contains(t, typed.Message(), orderNumber)

	order, err := h.svc.GetOrder(ctx, orderNumber)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusPending, order.Payment.Status)
	assert.Nil(t, order.Payment.RequestID)

	h.gateway.initErr = nil
	retried, err := h.svc.RetryPayment(ctx, orderNumber)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/"+orderNumber, retried.PaymentURL)

	_, err = h.svc.RetryPayment(ctx, orderNumber)
	assert.Equal(t, pkgerrors.CodeStateConflict, errCode(t, err))
}

func TestRetryPaymentRejectsCashOrders(t *testing.T) {
	h := newHarness(t)
	result, err := h.svc.CreateOrder(context.Background(), twoItemInput("COD"))
	require.NoError(t, err)

	_, err = h.svc.RetryPayment(context.Background(), result.OrderNumber)
	assert.Equal(t, pkgerrors.CodeStateConflict, errCode(t, err))
}

func createPhonePeOrder(t *testing.T, h *harness) (*CreateOrderResult, string) {
	t.Helper()
	result, err := h.svc.CreateOrder(context.Background(), twoItemInput("PHONEPE"))
	require.NoError(t, err)
	return result, result.OrderNumber + "_1"
}

func TestReconcilePaymentSuccessIsAppliedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, requestID := createPhonePeOrder(t, h)

	first, err := h.svc.ReconcilePayment(ctx, ReconcileInput{RequestID: requestID, State: "COMPLETED", TransactionID: "T123", Source: "webhook"})
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, "SUCCESS", first.Outcome)
	assert.Equal(t, enums.OrderStatusConfirmed, first.Order.Status)
	assert.Equal(t, enums.PaymentStatusSuccess, first.Order.Payment.Status)
	require.NotNil(t, first.Order.Payment.PaidAt)
	require.NotNil(t, first.Order.Payment.TransactionID)
	assert.Equal(t, "T123", *first.Order.Payment.TransactionID)
	require.Len(t, first.Order.History, 2)
	assert.Equal(t, "Payment confirmed via PhonePe", first.Order.History[1].Notes)

	assert.Equal(t, 1, h.notifier.kitchen)
	assert.Equal(t, 1, h.notifier.confirmations)
	assert.Equal(t, 1, h.notifier.receipts)
	assert.Len(t, h.analytics.calls, 1)
	assert.ElementsMatch(t, []published{
		{Room: "kitchen_staff", Event: "new_order"},
		{Room: "admin_dashboard", Event: "new_order"},
	}, h.events.snapshot())

	for _, state := range []string{"SUCCESS", "PAYMENT_ERROR"} {
		again, err := h.svc.ReconcilePayment(ctx, ReconcileInput{RequestID: requestID, State: state, Source: "callback"})
		require.NoError(t, err)
		assert.False(t, again.Applied)
		assert.Equal(t, enums.OrderStatusConfirmed, again.Order.Status)
	}

	order, err := h.svc.GetOrder(ctx, created.OrderNumber)
	require.NoError(t, err)
	assert.Len(t, order.History, 2)
	assert.True(t, order.Notifications.KitchenSent)
	assert.True(t, order.Notifications.CustomerSent)
	assert.Equal(t, 1, h.notifier.kitchen)
	assert.Equal(t, 1, h.notifier.confirmations)
	assert.Len(t, h.analytics.calls, 1)
	assert.Len(t, h.events.snapshot(), 2)
}

func TestReconcilePaymentConcurrentDeliveries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, requestID := createPhonePeOrder(t, h)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.svc.ReconcilePayment(ctx, ReconcileInput{RequestID: requestID, State: "PAYMENT_SUCCESS"})
			if err != nil {
				t.Errorf("reconcile: %v", err)
				return
			}
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	order, err := h.svc.GetOrder(ctx, created.OrderNumber)
	require.NoError(t, err)
	assert.Len(t, order.History, 2)
	assert.Len(t, h.analytics.calls, 1)
}

func TestReconcilePaymentFailure(t *testing.T) {
	h := newHarness(t)
	_, requestID := createPhonePeOrder(t, h)

	res, err := h.svc.ReconcilePayment(context.Background(), ReconcileInput{RequestID: requestID, State: "PAYMENT_DECLINED"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, enums.OrderStatusCancelled, res.Order.Status)
	assert.Equal(t, enums.PaymentStatusFailed, res.Order.Payment.Status)
	assert.Nil(t, res.Order.Payment.PaidAt)
	require.Len(t, res.Order.History, 2)
	assert.Equal(t, "Payment failed", res.Order.History[1].Notes)

	assert.Zero(t, h.notifier.kitchen)
	assert.Zero(t, h.notifier.confirmations)
	assert.Empty(t, h.analytics.calls)
	assert.Equal(t, []published{{Room: "admin_dashboard", Event: "order_status_updated"}}, h.events.snapshot())
}

func TestReconcilePaymentPendingIsNoop(t *testing.T) {
	h := newHarness(t)
	_, requestID := createPhonePeOrder(t, h)

	res, err := h.svc.ReconcilePayment(context.Background(), ReconcileInput{RequestID: requestID, State: "PAYMENT_PENDING"})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "PENDING", res.Outcome)
	assert.Equal(t, enums.OrderStatusPending, res.Order.Status)
	assert.Len(t, res.Order.History, 1)
}

func TestReconcilePaymentUnknownRequest(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ReconcilePayment(context.Background(), ReconcileInput{RequestID: "ORD_1_deadbeef_1", State: "SUCCESS"})
	assert.Equal(t, pkgerrors.CodeNotFound, errCode(t, err))

	_, err = h.svc.ReconcilePayment(context.Background(), ReconcileInput{State: "SUCCESS"})
	assert.Equal(t, pkgerrors.CodeValidation, errCode(t, err))
}

func TestReconcileReleasesKitchenFlagWhenEveryPhoneFails(t *testing.T) {
	h := newHarness(t)
	h.notifier.failKitchen = true
	h.notifier.failCustomer = true
	created, requestID := createPhonePeOrder(t, h)

	res, err := h.svc.ReconcilePayment(context.Background(), ReconcileInput{RequestID: requestID, State: "SUCCESS"})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	order, err := h.svc.GetOrder(context.Background(), created.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, order.Status)
	assert.False(t, order.Notifications.KitchenSent)
	assert.False(t, order.Notifications.CustomerSent)
	assert.Len(t, h.analytics.calls, 1)
}

func TestReconcileToleratesAnalyticsFailure(t *testing.T) {
	h := newHarness(t)
	h.analytics.err = errors.New("disk full")
	_, requestID := createPhonePeOrder(t, h)

	res, err := h.svc.ReconcilePayment(context.Background(), ReconcileInput{RequestID: requestID, State: "SUCCESS"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 1, h.notifier.kitchen)
}

func TestVerifyPaymentReconcilesTerminalState(t *testing.T) {
	h := newHarness(t)
	_, requestID := createPhonePeOrder(t, h)

	h.gateway.status = &phonepe.StatusResponse{Success: true, Code: "PAYMENT_PENDING", Data: phonepe.StatusData{State: "PENDING"}}
	pending, err := h.svc.VerifyPayment(context.Background(), requestID)
	require.NoError(t, err)
	assert.False(t, pending.Applied)
	assert.Equal(t, enums.OrderStatusPending, pending.Order.Status)

	h.gateway.status = &phonepe.StatusResponse{Success: true, Code: "PAYMENT_SUCCESS", Data: phonepe.StatusData{State: "COMPLETED", TransactionID: "T9"}}
	done, err := h.svc.VerifyPayment(context.Background(), requestID)
	require.NoError(t, err)
	assert.True(t, done.Applied)
	assert.Equal(t, enums.OrderStatusConfirmed, done.Order.Status)
	assert.Equal(t, []string{requestID, requestID}, h.gateway.verifyRefs)
}

func TestVerifyPaymentPropagatesProviderError(t *testing.T) {
	h := newHarness(t)
	h.gateway.verifyErr = pkgerrors.New(pkgerrors.CodeUpstream, "phonepe status request failed")

	_, err := h.svc.VerifyPayment(context.Background(), "ORD_1_abc_1")
	assert.Equal(t, pkgerrors.CodeUpstream, errCode(t, err))
}

func TestUpdateOrderStatusRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)
	created, err := h.svc.CreateOrder(context.Background(), twoItemInput("COD"))
	require.NoError(t, err)

	_, err = h.svc.UpdateOrderStatus(context.Background(), created.OrderNumber, "BOGUS", "")
	assert.Equal(t, pkgerrors.CodeValidation, errCode(t, err))

	order, err := h.svc.GetOrder(context.Background(), created.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Len(t, order.History, 1)
	assert.Empty(t, h.notifier.statusChanges)
}

func TestUpdateOrderStatusUnknownOrder(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.UpdateOrderStatus(context.Background(), "ORD_0_00000000", "READY", "")
	assert.Equal(t, pkgerrors.CodeNotFound, errCode(t, err))
}

func TestUpdateOrderStatusCashLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.svc.CreateOrder(ctx, twoItemInput("COD"))
	require.NoError(t, err)

	confirmed, err := h.svc.UpdateOrderStatus(ctx, created.OrderNumber, "confirmed", "called customer")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, confirmed.Status)
	require.Len(t, confirmed.History, 2)
	assert.Equal(t, "called customer", confirmed.History[1].Notes)
	assert.Len(t, h.analytics.calls, 1)
	assert.Equal(t, 1, h.notifier.kitchen)
	assert.Equal(t, []enums.OrderStatus{enums.OrderStatusConfirmed}, h.notifier.statusChanges)
	assert.Contains(t, h.events.snapshot(), published{Room: "kitchen_staff", Event: "new_order"})
	assert.Contains(t, h.events.snapshot(), published{Room: "admin_dashboard", Event: "order_status_updated"})

	_, err = h.svc.UpdateOrderStatus(ctx, created.OrderNumber, "PREPARING", "")
	require.NoError(t, err)
	assert.Len(t, h.analytics.calls, 1)

	delivered, err := h.svc.UpdateOrderStatus(ctx, created.OrderID, "DELIVERED", "")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)
	assert.Len(t, delivered.History, 4)
	assert.Equal(t, 1, h.notifier.completed)
	assert.Equal(t, 1, h.notifier.kitchen)
}

func TestAssignDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.svc.CreateOrder(ctx, twoItemInput("COD"))
	require.NoError(t, err)

	order, err := h.svc.AssignDelivery(ctx, AssignDeliveryInput{OrderRef: created.OrderNumber, StaffID: "rider-7", StaffPhone: "9111111111"})
	require.NoError(t, err)
	require.NotNil(t, order.DeliveryStaffID)
	assert.Equal(t, "rider-7", *order.DeliveryStaffID)
	assert.Contains(t, h.events.snapshot(), published{Room: "delivery_rider-7", Event: "order_assigned"})

	_, err = h.svc.AssignDelivery(ctx, AssignDeliveryInput{OrderRef: created.OrderNumber, StaffID: "rider-7", StaffPhone: "9111111111"})
	require.NoError(t, err)
	assert.Equal(t, []string{"9111111111"}, h.notifier.assignments)

	_, err = h.svc.AssignDelivery(ctx, AssignDeliveryInput{OrderRef: created.OrderNumber, StaffID: "rider-9", StaffPhone: "9222222222"})
	require.NoError(t, err)
	assert.Equal(t, []string{"9111111111", "9222222222"}, h.notifier.assignments)

	_, err = h.svc.UpdateOrderStatus(ctx, created.OrderNumber, "OUT_FOR_DELIVERY", "")
	require.NoError(t, err)
	assert.Contains(t, h.events.snapshot(), published{Room: "delivery_rider-9", Event: "order_status_updated"})

	_, err = h.svc.AssignDelivery(ctx, AssignDeliveryInput{OrderRef: created.OrderNumber})
	assert.Equal(t, pkgerrors.CodeValidation, errCode(t, err))

	_, err = h.svc.UpdateOrderStatus(ctx, created.OrderNumber, "CANCELLED", "")
	require.NoError(t, err)
	_, err = h.svc.AssignDelivery(ctx, AssignDeliveryInput{OrderRef: created.OrderNumber, StaffID: "rider-1", StaffPhone: "9333333333"})
	assert.Equal(t, pkgerrors.CodeStateConflict, errCode(t, err))
}

func TestListOrdersAndDashboardStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var numbers []string
	for i := 0; i < 3; i++ {
		created, err := h.svc.CreateOrder(ctx, twoItemInput("COD"))
		require.NoError(t, err)
		numbers = append(numbers, created.OrderNumber)
	}
	_, err := h.svc.UpdateOrderStatus(ctx, numbers[0], "CONFIRMED", "")
	require.NoError(t, err)

	page, err := h.svc.ListOrders(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.Limit)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, numbers[2], page.Orders[0].OrderID)
	assert.Equal(t, numbers[1], page.Orders[1].OrderID)

	rest, err := h.svc.ListOrders(ctx, ListFilter{Limit: 2, Skip: 2})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	assert.Equal(t, numbers[0], rest.Orders[0].OrderID)

	pending, err := h.svc.ListOrders(ctx, ListFilter{Status: "PENDING"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending.Total)
	assert.Equal(t, 50, pending.Limit)

	_, err = h.svc.ListOrders(ctx, ListFilter{Status: "LOST"})
	assert.Equal(t, pkgerrors.CodeValidation, errCode(t, err))
	_, err = h.svc.ListOrders(ctx, ListFilter{Skip: -1})
	assert.Equal(t, pkgerrors.CodeValidation, errCode(t, err))

	stats, err := h.svc.DashboardStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalOrders)
	assert.True(t, decimal.NewFromInt(1050).Equal(stats.TotalRevenue), stats.TotalRevenue.String())
	byStatus := map[string]int64{}
	for _, row := range stats.StatusBreakdown {
		byStatus[row.Status] = row.Count
	}
	assert.Equal(t, map[string]int64{"PENDING": 2, "CONFIRMED": 1}, byStatus)
}

func TestStalePayments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, requestID := createPhonePeOrder(t, h)
	_, err := h.svc.CreateOrder(ctx, twoItemInput("COD"))
	require.NoError(t, err)

	none, err := h.svc.StalePayments(ctx, time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	stale, err := h.svc.StalePayments(ctx, time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.NotNil(t, stale[0].Payment.RequestID)
	assert.Equal(t, requestID, *stale[0].Payment.RequestID)
}

func newAnalyticsBackedService(t *testing.T) (Service, analytics.Service) {
	t.Helper()
	client := dbtest.Open(t)
	clock := &tickingClock{now: time.Date(2026, 10, 18, 6, 30, 0, 0, time.UTC)}
	agg, err := analytics.NewService(client, time.UTC, analytics.WithClock(clock.Now))
	require.NoError(t, err)
	svc, err := NewService(Params{
		Repo:          NewRepository(client.DB()),
		Tx:            client,
		Payments:      &stubGateway{},
		Notifier:      &stubNotifier{},
		Analytics:     agg,
		Events:        &recordingEmitter{},
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		KitchenPhones: []string{"9000000001"},
		Clock:         clock.Now,
	})
	require.NoError(t, err)
	return svc, agg
}

func TestConfirmedOrderFeedsDailyAnalytics(t *testing.T) {
	svc, agg := newAnalyticsBackedService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, twoItemInput("PHONEPE"))
	require.NoError(t, err)
	_, err = svc.ReconcilePayment(ctx, ReconcileInput{RequestID: created.OrderNumber + "_1", State: "COMPLETED"})
	require.NoError(t, err)
	_, err = svc.ReconcilePayment(ctx, ReconcileInput{RequestID: created.OrderNumber + "_1", State: "COMPLETED"})
	require.NoError(t, err)

	report, err := agg.Daily(ctx, "2026-10-18")
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.TotalOrders)
	assert.True(t, decimal.NewFromInt(350).Equal(report.TotalRevenue), report.TotalRevenue.String())
	assert.EqualValues(t, 1, report.PaymentMethods["PHONEPE"].Count)
	assert.Len(t, report.TopDishes, 2)
}

func TestCashOrderReconfirmedIsCountedOnce(t *testing.T) {
	svc, agg := newAnalyticsBackedService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, twoItemInput("COD"))
	require.NoError(t, err)
	for _, status := range []string{"CONFIRMED", "PENDING", "CONFIRMED"} {
		_, err := svc.UpdateOrderStatus(ctx, created.OrderNumber, status, "")
		require.NoError(t, err)
	}

	report, err := agg.Daily(ctx, "2026-10-18")
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.TotalOrders)
	assert.True(t, decimal.NewFromInt(350).Equal(report.TotalRevenue), report.TotalRevenue.String())
	assert.EqualValues(t, 1, report.PaymentMethods["COD"].Count)
}

func TestReconcilePaymentAfterStaffMovedOrderOn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, requestID := createPhonePeOrder(t, h)

	_, err := h.svc.UpdateOrderStatus(ctx, created.OrderNumber, "PREPARING", "walk-in rush")
	require.NoError(t, err)

	stale, err := h.svc.StalePayments(ctx, time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1, "an unsettled payment stays visible to the sweeper")

	res, err := h.svc.ReconcilePayment(ctx, ReconcileInput{RequestID: requestID, State: "COMPLETED", TransactionID: "T77", Source: "webhook"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, enums.OrderStatusPreparing, res.Order.Status)
	assert.Equal(t, enums.PaymentStatusSuccess, res.Order.Payment.Status)
	require.NotNil(t, res.Order.Payment.PaidAt)
	assert.Len(t, res.Order.History, 2)

	assert.Len(t, h.analytics.calls, 1)
	assert.Equal(t, 1, h.notifier.confirmations)
	assert.Equal(t, 1, h.notifier.receipts)
	assert.Zero(t, h.notifier.kitchen)
	assert.Contains(t, h.events.snapshot(), published{Room: "admin_dashboard", Event: "order_status_updated"})
	assert.NotContains(t, h.events.snapshot(), published{Room: "kitchen_staff", Event: "new_order"})

	stale, err = h.svc.StalePayments(ctx, time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	again, err := h.svc.ReconcilePayment(ctx, ReconcileInput{RequestID: requestID, State: "COMPLETED"})
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Len(t, h.analytics.calls, 1)
}

func TestReconcilePaymentForCancelledOrderKeepsStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, requestID := createPhonePeOrder(t, h)

	_, err := h.svc.UpdateOrderStatus(ctx, created.OrderNumber, "CANCELLED", "customer called")
	require.NoError(t, err)

	res, err := h.svc.ReconcilePayment(ctx, ReconcileInput{RequestID: requestID, State: "COMPLETED"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, enums.OrderStatusCancelled, res.Order.Status)
	assert.Equal(t, enums.PaymentStatusSuccess, res.Order.Payment.Status)
	assert.Empty(t, h.analytics.calls)
	assert.Zero(t, h.notifier.confirmations)
	assert.Len(t, res.Order.History, 2)
}

func TestReceiptIsNotTiedToWhatsAppConfirmation(t *testing.T) {
	h := newHarness(t)
	h.notifier.failCustomer = true
	created, requestID := createPhonePeOrder(t, h)

	_, err := h.svc.ReconcilePayment(context.Background(), ReconcileInput{RequestID: requestID, State: "SUCCESS"})
	require.NoError(t, err)

	order, err := h.svc.GetOrder(context.Background(), created.OrderNumber)
	require.NoError(t, err)
	assert.False(t, order.Notifications.CustomerSent)
	assert.True(t, order.Notifications.ReceiptSent)
	assert.Equal(t, 1, h.notifier.receipts)
}
