package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saffronhouse/orders-backend/internal/orders"
	"github.com/saffronhouse/orders-backend/pkg/db/models"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
)

type fakeSweeper struct {
	stale     []models.Order
	listErr   error
	cutoff    time.Time
	limit     int
	verified  []string
	applied   map[string]bool
	verifyErr map[string]error
}

func (f *fakeSweeper) StalePayments(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.stale, f.listErr
}

func (f *fakeSweeper) VerifyPayment(_ context.Context, requestID string) (*orders.ReconcileResult, error) {
	f.verified = append(f.verified, requestID)
	if err := f.verifyErr[requestID]; err != nil {
		return nil, err
	}
	return &orders.ReconcileResult{Applied: f.applied[requestID]}, nil
}

func pendingOnline(number, requestID string) models.Order {
	order := models.Order{OrderNumber: number}
	if requestID != "" {
		order.Payment.RequestID = &requestID
	}
	return order
}

func TestPaymentSweepVerifiesStaleOrders(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	sweeper := &fakeSweeper{
		stale: []models.Order{
			pendingOnline("ORD_1_aaaaaaaa", "ORD_1_aaaaaaaa_1"),
			pendingOnline("ORD_2_bbbbbbbb", ""),
			pendingOnline("ORD_3_cccccccc", "ORD_3_cccccccc_1"),
		},
		applied: map[string]bool{"ORD_1_aaaaaaaa_1": true},
	}
	job, err := NewPaymentSweepJob(PaymentSweepJobParams{
		Logger:     testLogger(),
		Orders:     sweeper,
		StaleAfter: 15 * time.Minute,
		BatchSize:  20,
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Name() != "payment_status_sweep" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sweeper.cutoff.Equal(now.Add(-15 * time.Minute)) {
		t.Fatalf("unexpected cutoff %s", sweeper.cutoff)
	}
	if sweeper.limit != 20 {
		t.Fatalf("unexpected limit %d", sweeper.limit)
	}
	if len(sweeper.verified) != 2 || sweeper.verified[0] != "ORD_1_aaaaaaaa_1" || sweeper.verified[1] != "ORD_3_cccccccc_1" {
		t.Fatalf("unexpected verifications %v", sweeper.verified)
	}
}

func TestPaymentSweepContinuesAfterProviderError(t *testing.T) {
	sweeper := &fakeSweeper{
		stale: []models.Order{
			pendingOnline("ORD_1_aaaaaaaa", "R1"),
			pendingOnline("ORD_2_bbbbbbbb", "R2"),
		},
		verifyErr: map[string]error{"R1": errors.New("timeout")},
	}
	job, err := NewPaymentSweepJob(PaymentSweepJobParams{Logger: testLogger(), Orders: sweeper})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected aggregated error")
	}
	if len(sweeper.verified) != 2 {
		t.Fatalf("expected both orders verified, got %v", sweeper.verified)
	}
	if sweeper.limit != defaultPaymentBatchSize {
		t.Fatalf("expected default batch size, got %d", sweeper.limit)
	}
}

func TestPaymentSweepSkipsFinalErrors(t *testing.T) {
	sweeper := &fakeSweeper{
		stale:     []models.Order{pendingOnline("ORD_1_aaaaaaaa", "R1")},
		verifyErr: map[string]error{"R1": pkgerrors.New(pkgerrors.CodeNotFound, "order not found")},
	}
	job, err := NewPaymentSweepJob(PaymentSweepJobParams{Logger: testLogger(), Orders: sweeper})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("final errors should not fail the cycle: %v", err)
	}
}

func TestPaymentSweepPropagatesListError(t *testing.T) {
	job, err := NewPaymentSweepJob(PaymentSweepJobParams{
		Logger: testLogger(),
		Orders: &fakeSweeper{listErr: errors.New("db down")},
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected list error")
	}
}

func TestNewPaymentSweepJobValidation(t *testing.T) {
	if _, err := NewPaymentSweepJob(PaymentSweepJobParams{Orders: &fakeSweeper{}}); err == nil {
		t.Fatalf("expected missing logger error")
	}
	if _, err := NewPaymentSweepJob(PaymentSweepJobParams{Logger: testLogger()}); err == nil {
		t.Fatalf("expected missing orders error")
	}
}
