package phonepewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saffronhouse/orders-backend/pkg/phonepe"
	"github.com/saffronhouse/orders-backend/pkg/redis"
)

const (
	DefaultScope = "phonepe-webhook"
	DefaultTTL   = 24 * time.Hour
)

// IdempotencyGuard remembers which webhook deliveries were already handled.
// A delivery is identified by transaction and outcome, so a later state change
// for the same transaction still goes through.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if strings.TrimSpace(scope) == "" {
		scope = DefaultScope
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// DeliveryKey identifies one webhook delivery.
func DeliveryKey(event *phonepe.WebhookEvent) string {
	if event == nil || event.MerchantTransactionID == "" {
		return ""
	}
	return event.MerchantTransactionID + ":" + string(event.Outcome())
}

// CheckAndMark reports whether the delivery was seen before, marking it when
// it was not.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, deliveryKey string) (bool, error) {
	if deliveryKey == "" {
		return false, errors.New("delivery key is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, deliveryKey), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete forgets a delivery so the provider's retry is processed again.
func (g *IdempotencyGuard) Delete(ctx context.Context, deliveryKey string) error {
	if deliveryKey == "" {
		return errors.New("delivery key is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, deliveryKey))
}
