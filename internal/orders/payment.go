package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/saffronhouse/orders-backend/internal/realtime"
	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
	"github.com/saffronhouse/orders-backend/pkg/phonepe"
)

const (
	noteConfirmedOnline = "Payment confirmed via PhonePe"
	notePaymentFailed   = "Payment failed"
)

// startPayment asks the provider for a pay page and records the correlation
// ids. The order stays saved when the provider refuses.
func (s *service) startPayment(ctx context.Context, order *models.Order) (string, error) {
	result, err := s.payments.Initiate(ctx, phonepe.InitiateRequest{
		OrderNumber: order.OrderNumber,
		Amount:      order.TotalAmount,
		Phone:       order.CustomerPhone,
	})
	if err != nil {
		s.logg.Error(ctx, "payment initiation failed", err)
		return "", pkgerrors.Wrap(pkgerrors.CodeUpstream, err,
			fmt.Sprintf("payment could not be started, your order %s is saved, contact support", order.OrderNumber)).
			WithDetails(map[string]string{"orderId": order.ID.String(), "orderNumber": order.OrderNumber})
	}

	err = s.repo.SetPaymentInitiated(ctx, order.ID, PaymentInitiation{
		RequestID:     result.RequestID,
		TransactionID: result.TransactionID,
		MerchantID:    result.MerchantID,
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "payment already initiated for this order")
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodePersistence, err, "record payment initiation")
	}
	order.Payment.RequestID = &result.RequestID
	order.Payment.MerchantID = &result.MerchantID
	if result.TransactionID != "" {
		order.Payment.TransactionID = &result.TransactionID
	}

	s.logg.Info(s.logg.WithPaymentRequestID(ctx, result.RequestID), "payment initiated")
	return result.RedirectURL, nil
}

// RetryPayment starts a fresh payment for a PhonePe order whose first
// initiation never reached the provider.
func (s *service) RetryPayment(ctx context.Context, orderRef string) (*CreateOrderResult, error) {
	if s.payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "online payment is not available")
	}
	order, err := s.findByRef(ctx, s.repo, orderRef)
	if err != nil {
		return nil, err
	}
	if order.Payment.Method != enums.PaymentMethodPhonePe ||
		order.Status != enums.OrderStatusPending ||
		order.Payment.Status != enums.PaymentStatusPending ||
		order.Payment.RequestID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting a payment retry")
	}

	ctx = s.logg.WithOrderNumber(ctx, order.OrderNumber)
	url, err := s.startPayment(ctx, order)
	if err != nil {
		return nil, err
	}
	return &CreateOrderResult{OrderID: order.ID.String(), OrderNumber: order.OrderNumber, PaymentURL: url}, nil
}

// VerifyPayment polls the provider and applies a settled outcome.
func (s *service) VerifyPayment(ctx context.Context, requestID string) (*ReconcileResult, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}
	if s.payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "online payment is not available")
	}

	status, err := s.payments.Verify(ctx, requestID)
	if err != nil {
		return nil, err
	}
	state := status.Data.State
	if state == "" {
		state = status.Code
	}
	return s.ReconcilePayment(ctx, ReconcileInput{
		RequestID:     requestID,
		State:         state,
		TransactionID: status.Data.TransactionID,
		Source:        "status_check",
	})
}

// ReconcilePayment applies a provider outcome to the order it belongs to. Only
// the first terminal outcome changes anything; replays report Applied=false.
// The payment always settles, while the order status follows only when the
// order is still PENDING.
func (s *service) ReconcilePayment(ctx context.Context, input ReconcileInput) (*ReconcileResult, error) {
	requestID := strings.TrimSpace(input.RequestID)
	if requestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}
	outcome := phonepe.ParseOutcome(input.State)
	ctx = s.logg.WithPaymentRequestID(ctx, requestID)

	var (
		order         *models.Order
		applied       bool
		statusChanged bool
	)
	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByRequestID(ctx, requestID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found for transaction")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
		}
		order = found

		if !outcome.Terminal() {
			return nil
		}

		transition := PaymentTransition{TransactionID: strings.TrimSpace(input.TransactionID)}
		target := enums.OrderStatusCancelled
		note := notePaymentFailed
		if outcome == phonepe.OutcomeSuccess {
			transition.PaymentStatus = enums.PaymentStatusSuccess
			transition.PaidAt = &now
			target = enums.OrderStatusConfirmed
			note = noteConfirmedOnline
		} else {
			transition.PaymentStatus = enums.PaymentStatusFailed
		}

		ok, err := repo.TransitionPayment(ctx, order.ID, transition)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "apply payment outcome")
		}
		if !ok {
			return nil
		}
		applied = true

		// Only an order still waiting on its payment follows the outcome.
		statusChanged, err = repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, target, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "apply order status")
		}
		if !statusChanged {
			return nil
		}
		if err := repo.AppendHistory(ctx, &models.OrderStatusEntry{
			OrderID:   order.ID,
			Status:    target,
			Notes:     note,
			CreatedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "append status history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderNumber(ctx, order.OrderNumber)
	if s.metrics != nil {
		s.metrics.IncReconciliation(string(outcome), applied)
	}

	if applied {
		reloaded, err := s.repo.FindByID(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "reload order")
		}
		order = reloaded
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"outcome":      string(outcome),
			"source":       input.Source,
			"order_status": order.Status.String(),
		})
		s.logg.Info(logCtx, "payment reconciled")

		switch {
		case outcome == phonepe.OutcomeSuccess && statusChanged:
			s.afterConfirmed(ctx, order)
		case outcome == phonepe.OutcomeSuccess && order.Status != enums.OrderStatusCancelled:
			s.afterLatePayment(ctx, order)
		default:
			if !statusChanged {
				s.logg.Warn(logCtx, "payment settled after order left PENDING")
			}
			s.events.Publish(ctx, realtime.RoomDashboard, realtime.EventOrderStatusUpdated, statusEvent(order, order.Status, now))
		}
	} else if outcome.Terminal() && !settledAs(order, outcome) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"outcome":        string(outcome),
			"payment_status": order.Payment.Status.String(),
			"source":         input.Source,
		}), "conflicting payment outcome ignored")
	}

	return &ReconcileResult{Order: order, Outcome: string(outcome), Applied: applied}, nil
}

func settledAs(order *models.Order, outcome phonepe.Outcome) bool {
	switch outcome {
	case phonepe.OutcomeSuccess:
		return order.Payment.Status == enums.PaymentStatusSuccess
	case phonepe.OutcomeFailed:
		return order.Payment.Status == enums.PaymentStatusFailed
	}
	return false
}
