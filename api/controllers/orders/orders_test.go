package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalorders "github.com/saffronhouse/orders-backend/internal/orders"
	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
)

type stubService struct {
	statusRef   string
	statusValue string
	statusNotes string
	assigned    internalorders.AssignDeliveryInput
	retried     string
	err         error
}

func (s *stubService) CreateOrder(context.Context, internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.CreateOrderResult{OrderID: "ORD_1_abcd1234", OrderNumber: "ORD_1_abcd1234"}, nil
}

func (s *stubService) GetOrder(_ context.Context, ref string) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	return sampleOrder(ref, enums.OrderStatusPending), nil
}

func (s *stubService) ListOrders(context.Context, internalorders.ListFilter) (*internalorders.ListResult, error) {
	return &internalorders.ListResult{}, s.err
}

func (s *stubService) UpdateOrderStatus(_ context.Context, ref, status, notes string) (*models.Order, error) {
	s.statusRef, s.statusValue, s.statusNotes = ref, status, notes
	if s.err != nil {
		return nil, s.err
	}
	return sampleOrder(ref, enums.OrderStatus(strings.ToUpper(status))), nil
}

func (s *stubService) AssignDelivery(_ context.Context, input internalorders.AssignDeliveryInput) (*models.Order, error) {
	s.assigned = input
	if s.err != nil {
		return nil, s.err
	}
	order := sampleOrder(input.OrderRef, enums.OrderStatusOutForDelivery)
	order.DeliveryStaffID = &input.StaffID
	return order, nil
}

func (s *stubService) RetryPayment(_ context.Context, ref string) (*internalorders.CreateOrderResult, error) {
	s.retried = ref
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.CreateOrderResult{OrderID: ref, OrderNumber: ref, PaymentURL: "https://pay.test/" + ref}, nil
}

func (s *stubService) DashboardStats(context.Context) (*internalorders.DashboardStats, error) {
	return &internalorders.DashboardStats{}, s.err
}

func sampleOrder(ref string, status enums.OrderStatus) *models.Order {
	total := decimal.NewFromInt(350)
	return &models.Order{
		ID:           uuid.New(),
		OrderNumber:  ref,
		CustomerName: "Asha",
		Status:       status,
		Subtotal:     total,
		TotalAmount:  total,
		Payment: models.Payment{
			Method:   enums.PaymentMethodCOD,
			Status:   enums.PaymentStatusPending,
			Amount:   total,
			Currency: enums.CurrencyINR,
		},
	}
}

func serve(t *testing.T, method, pattern, target, body string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Method(method, pattern, handler)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload
}

func TestUpdateStatusTruncatesNotes(t *testing.T) {
	svc := &stubService{}
	notes := strings.Repeat("é", maxNotesLength+20)
	body := `{"status":"preparing","notes":"  ` + notes + `  "}`

	resp := serve(t, http.MethodPatch, "/orders/{orderId}/status", "/orders/ORD_9/status", body, UpdateStatus(svc, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ORD_9", svc.statusRef)
	assert.Equal(t, "preparing", svc.statusValue)
	assert.Equal(t, maxNotesLength, len([]rune(svc.statusNotes)))

	payload := decode(t, resp)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "Order status updated", payload["message"])
}

func TestUpdateStatusRequiresStatus(t *testing.T) {
	svc := &stubService{}
	resp := serve(t, http.MethodPatch, "/orders/{orderId}/status", "/orders/ORD_9/status", `{"notes":"x"}`, UpdateStatus(svc, nil))

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, svc.statusRef, "service must not be called")
}

func TestAssignTakesOrderFromPath(t *testing.T) {
	svc := &stubService{}
	body := `{"staffId":"rider-7","staffPhone":"+919800000001","orderRef":"spoofed"}`

	resp := serve(t, http.MethodPost, "/orders/{orderId}/assign", "/orders/ORD_5/assign", body, Assign(svc, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ORD_5", svc.assigned.OrderRef)
	assert.Equal(t, "rider-7", svc.assigned.StaffID)
	order := decode(t, resp)["order"].(map[string]any)
	assert.Equal(t, "OUT_FOR_DELIVERY", order["status"])
}

func TestRetryPaymentReturnsRedirect(t *testing.T) {
	svc := &stubService{}
	resp := serve(t, http.MethodPost, "/orders/{orderId}/payment/retry", "/orders/ORD_3/payment/retry", "", RetryPayment(svc, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	payload := decode(t, resp)
	assert.Equal(t, "https://pay.test/ORD_3", payload["paymentUrl"])
	assert.Equal(t, "ORD_3", svc.retried)
}

func TestHandlersMapServiceErrors(t *testing.T) {
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order is already delivered")}
	resp := serve(t, http.MethodPost, "/orders/{orderId}/payment/retry", "/orders/ORD_3/payment/retry", "", RetryPayment(svc, nil))

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	payload := decode(t, resp)
	assert.Equal(t, false, payload["success"])
	errBody := payload["error"].(map[string]any)
	assert.Equal(t, "STATE_CONFLICT", errBody["code"])
	assert.Equal(t, "order is already delivered", errBody["message"])
}

func TestNilServiceIsInternalError(t *testing.T) {
	resp := serve(t, http.MethodGet, "/orders/{orderId}", "/orders/ORD_1", "", Get(nil, nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}
