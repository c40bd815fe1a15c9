package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/saffronhouse/orders-backend/api/responses"
	"github.com/saffronhouse/orders-backend/api/validators"
	internalorders "github.com/saffronhouse/orders-backend/internal/orders"
	"github.com/saffronhouse/orders-backend/pkg/db/models"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
	"github.com/saffronhouse/orders-backend/pkg/logger"
	"github.com/saffronhouse/orders-backend/pkg/pagination"
)

const maxNotesLength = 500

// orderService is the slice of the order service the HTTP layer drives.
type orderService interface {
	CreateOrder(ctx context.Context, input internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error)
	GetOrder(ctx context.Context, orderRef string) (*models.Order, error)
	ListOrders(ctx context.Context, filter internalorders.ListFilter) (*internalorders.ListResult, error)
	UpdateOrderStatus(ctx context.Context, orderRef, status, notes string) (*models.Order, error)
	AssignDelivery(ctx context.Context, input internalorders.AssignDeliveryInput) (*models.Order, error)
	RetryPayment(ctx context.Context, orderRef string) (*internalorders.CreateOrderResult, error)
	DashboardStats(ctx context.Context) (*internalorders.DashboardStats, error)
}

type createResponse struct {
	responses.Envelope
	*internalorders.CreateOrderResult
}

type orderResponse struct {
	responses.Envelope
	Order internalorders.OrderDTO `json:"order"`
}

type listResponse struct {
	responses.Envelope
	*internalorders.ListResult
}

type statsResponse struct {
	responses.Envelope
	*internalorders.DashboardStats
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes"`
}

// Create places a customer order. PhonePe orders answer with the pay page URL.
func Create(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var input internalorders.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.CreateOrder(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		message := "Order created successfully"
		if result.PaymentURL != "" {
			message = "Proceed to payment"
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createResponse{
			Envelope:          responses.Envelope{Success: true, Message: message},
			CreateOrderResult: result,
		})
	}
}

// Get returns one order by its public order number.
func Get(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		ref, err := orderRef(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.GetOrder(ctx, ref)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderResponse{Envelope: responses.OK(), Order: internalorders.ToDTO(order)})
	}
}

// List returns a page of orders, newest first, optionally filtered by status.
func List(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		skip, err := validators.ParseQueryInt(r, "skip", 0, 0, pagination.MaxSkip)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ListOrders(ctx, internalorders.ListFilter{
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:  limit,
			Skip:   skip,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, listResponse{Envelope: responses.OK(), ListResult: result})
	}
}

// UpdateStatus moves an order to the requested status.
func UpdateStatus(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		ref, err := orderRef(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.UpdateOrderStatus(ctx, ref, req.Status, validators.SanitizeString(req.Notes, maxNotesLength))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderResponse{
			Envelope: responses.Envelope{Success: true, Message: "Order status updated"},
			Order:    internalorders.ToDTO(order),
		})
	}
}

// Assign hands an order to a delivery rider and notifies them.
func Assign(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		ref, err := orderRef(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var input internalorders.AssignDeliveryInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		input.OrderRef = ref

		order, err := svc.AssignDelivery(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderResponse{
			Envelope: responses.Envelope{Success: true, Message: "Delivery staff assigned"},
			Order:    internalorders.ToDTO(order),
		})
	}
}

// RetryPayment starts a new PhonePe payment for an order whose first
// initiation failed.
func RetryPayment(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		ref, err := orderRef(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.RetryPayment(ctx, ref)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, createResponse{
			Envelope:          responses.Envelope{Success: true, Message: "Proceed to payment"},
			CreateOrderResult: result,
		})
	}
}

func DashboardStats(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		stats, err := svc.DashboardStats(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, statsResponse{Envelope: responses.OK(), DashboardStats: stats})
	}
}

func orderRef(r *http.Request) (string, error) {
	ref := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if ref == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return ref, nil
}
