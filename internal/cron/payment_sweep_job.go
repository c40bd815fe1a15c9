package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/saffronhouse/orders-backend/internal/orders"
	"github.com/saffronhouse/orders-backend/pkg/db/models"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
	"github.com/saffronhouse/orders-backend/pkg/logger"
)

const (
	paymentSweepJobName      = "payment_status_sweep"
	defaultPaymentStaleAfter = 10 * time.Minute
	defaultPaymentBatchSize  = 50
)

type paymentSweeper interface {
	StalePayments(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	VerifyPayment(ctx context.Context, requestID string) (*orders.ReconcileResult, error)
}

type PaymentSweepJobParams struct {
	Logger     *logger.Logger
	Orders     paymentSweeper
	StaleAfter time.Duration
	BatchSize  int
	Clock      func() time.Time
}

// paymentSweepJob asks the provider about online payments whose webhook never
// arrived and settles the ones that finished.
type paymentSweepJob struct {
	logg       *logger.Logger
	orders     paymentSweeper
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

func NewPaymentSweepJob(params PaymentSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultPaymentStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPaymentBatchSize
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &paymentSweepJob{
		logg:       params.Logger,
		orders:     params.Orders,
		staleAfter: staleAfter,
		batchSize:  batch,
		now:        now,
	}, nil
}

func (j *paymentSweepJob) Name() string { return paymentSweepJobName }

func (j *paymentSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	stale, err := j.orders.StalePayments(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list stale payments: %w", err)
	}

	var (
		errs     error
		settled  int
		inFlight int
		skipped  int
	)
	for _, order := range stale {
		if order.Payment.RequestID == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		result, err := j.orders.VerifyPayment(ctx, *order.Payment.RequestID)
		if err != nil {
			if !pkgerrors.Retryable(err) {
				// The next cycle would fail the same way.
				skipped++
				j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
					"order_number": order.OrderNumber,
					"error":        err.Error(),
				}), "payment sweep skipped order")
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("verify %s: %w", order.OrderNumber, err))
			continue
		}
		if result.Applied {
			settled++
		} else {
			inFlight++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"checked": len(stale),
		"settled": settled,
		"pending": inFlight,
		"skipped": skipped,
		"failed":  len(multierr.Errors(errs)),
	}), "payment sweep finished")
	return errs
}
