package payments

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/saffronhouse/orders-backend/api/responses"
	internalorders "github.com/saffronhouse/orders-backend/internal/orders"
	phonepewebhook "github.com/saffronhouse/orders-backend/internal/webhooks/phonepe"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
	"github.com/saffronhouse/orders-backend/pkg/logger"
	"github.com/saffronhouse/orders-backend/pkg/phonepe"
)

const (
	signatureHeader     = "X-VERIFY"
	maxWebhookBodyBytes = 64 << 10
)

type paymentVerifier interface {
	VerifyPayment(ctx context.Context, requestID string) (*internalorders.ReconcileResult, error)
}

type WebhookService interface {
	HandleEvent(ctx context.Context, event *phonepe.WebhookEvent) (*internalorders.ReconcileResult, error)
}

type WebhookGuard interface {
	CheckAndMark(ctx context.Context, deliveryKey string) (bool, error)
	Delete(ctx context.Context, deliveryKey string) error
}

type signatureValidator interface {
	ValidateWebhookSignature(body []byte, provided string) bool
}

// PhonePeCallback is where the customer's browser lands after the pay page.
// The query parameters are not trusted: the outcome comes from a status check
// against the provider, and the browser is redirected to the storefront.
func PhonePeCallback(svc paymentVerifier, frontendURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := strings.TrimSpace(r.URL.Query().Get("merchantTransactionId"))
		if requestID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "missing transaction id"))
			return
		}
		if logg != nil {
			ctx = logg.WithPaymentRequestID(ctx, requestID)
		}
		if svc == nil {
			http.Redirect(w, r, checkoutURL(frontendURL, "error", ""), http.StatusFound)
			return
		}

		result, err := svc.VerifyPayment(ctx, requestID)
		if err != nil || result == nil || result.Order == nil {
			if logg != nil && err != nil {
				logg.Error(ctx, "phonepe.callback.verify_failed", err)
			}
			http.Redirect(w, r, checkoutURL(frontendURL, "error", ""), http.StatusFound)
			return
		}

		order := result.Order
		if logg != nil {
			ctx = logg.WithFields(logg.WithOrderNumber(ctx, order.OrderNumber), map[string]any{
				"outcome": result.Outcome,
				"applied": result.Applied,
			})
			logg.Info(ctx, "phonepe.callback.handled")
		}
		http.Redirect(w, r, checkoutURL(frontendURL, redirectStatus(order.Payment.Status), order.OrderNumber), http.StatusFound)
	}
}

// PhonePeWebhook applies a server-to-server payment notification. The
// signature is checked before anything else so forged requests never reach
// the order store.
func PhonePeWebhook(svc WebhookService, validator signatureValidator, guard WebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if validator == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if !validator.ValidateWebhookSignature(payload, r.Header.Get(signatureHeader)) {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "body_bytes", len(payload)), "phonepe.webhook.invalid_signature")
			}
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "invalid signature"))
			return
		}

		event, err := phonepe.ParseWebhook(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithPaymentRequestID(ctx, event.MerchantTransactionID)
		}

		deliveryKey := phonepewebhook.DeliveryKey(event)
		alreadyProcessed, err := guard.CheckAndMark(ctx, deliveryKey)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			if logg != nil {
				logg.Info(ctx, "phonepe.webhook.duplicate")
			}
			responses.WriteSuccess(w, responses.Envelope{Success: true, Message: "Webhook already processed"})
			return
		}

		if _, err := svc.HandleEvent(ctx, event); err != nil {
			if delErr := guard.Delete(ctx, deliveryKey); delErr != nil && logg != nil {
				logg.Error(ctx, "phonepe.webhook.guard_release_failed", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, responses.Envelope{Success: true, Message: "Webhook processed"})
	}
}

func redirectStatus(status enums.PaymentStatus) string {
	switch status {
	case enums.PaymentStatusSuccess:
		return "success"
	case enums.PaymentStatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

func checkoutURL(frontendURL, status, orderNumber string) string {
	query := url.Values{}
	query.Set("status", status)
	if orderNumber != "" {
		query.Set("orderId", orderNumber)
	}
	return strings.TrimRight(frontendURL, "/") + "/checkout?" + query.Encode()
}
