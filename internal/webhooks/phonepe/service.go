// Package phonepewebhook applies PhonePe server-to-server notifications to
// orders.
package phonepewebhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/saffronhouse/orders-backend/internal/orders"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
	"github.com/saffronhouse/orders-backend/pkg/phonepe"
)

type reconciler interface {
	ReconcilePayment(ctx context.Context, input orders.ReconcileInput) (*orders.ReconcileResult, error)
}

type Service struct {
	orders reconciler
}

func NewService(reconciler reconciler) (*Service, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("order reconciler required")
	}
	return &Service{orders: reconciler}, nil
}

// HandleEvent reconciles the order the event refers to.
func (s *Service) HandleEvent(ctx context.Context, event *phonepe.WebhookEvent) (*orders.ReconcileResult, error) {
	if event == nil || strings.TrimSpace(event.MerchantTransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant transaction id missing")
	}
	state := event.State
	if state == "" {
		state = event.Code
	}
	return s.orders.ReconcilePayment(ctx, orders.ReconcileInput{
		RequestID:     event.MerchantTransactionID,
		State:         state,
		TransactionID: event.TransactionID,
		Source:        "webhook",
	})
}
