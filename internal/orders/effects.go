package orders

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/saffronhouse/orders-backend/internal/notifications"
	"github.com/saffronhouse/orders-backend/internal/realtime"
	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
	"github.com/saffronhouse/orders-backend/pkg/whatsapp"
)

// sideEffects collects branch failures. Branches never abort each other.
type sideEffects struct {
	mu  sync.Mutex
	err error
}

func (e *sideEffects) add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	e.err = multierr.Append(e.err, err)
	e.mu.Unlock()
}

// afterConfirmed runs the fan-out for an order that just became CONFIRMED.
// It waits for every branch and logs the combined failures.
func (s *service) afterConfirmed(ctx context.Context, order *models.Order) {
	ctx, cancel := s.detached(ctx)
	defer cancel()

	var failures sideEffects
	var g errgroup.Group
	g.Go(func() error {
		failures.add(s.notifyKitchen(ctx, order))
		return nil
	})
	s.goCustomerEffects(ctx, &g, order, &failures)
	g.Go(func() error {
		payload := newOrderEvent(order, s.now().UTC())
		s.events.Publish(ctx, realtime.RoomKitchen, realtime.EventNewOrder, payload)
		s.events.Publish(ctx, realtime.RoomDashboard, realtime.EventNewOrder, payload)
		return nil
	})
	_ = g.Wait()

	s.logFailures(ctx, "order confirmation side effects incomplete", failures.err)
}

// afterLatePayment handles a payment that settled after staff had already
// moved the order on. The kitchen already has the order and is skipped.
func (s *service) afterLatePayment(ctx context.Context, order *models.Order) {
	ctx, cancel := s.detached(ctx)
	defer cancel()

	var failures sideEffects
	var g errgroup.Group
	s.goCustomerEffects(ctx, &g, order, &failures)
	g.Go(func() error {
		s.events.Publish(ctx, realtime.RoomDashboard, realtime.EventOrderStatusUpdated, statusEvent(order, order.Status, s.now().UTC()))
		return nil
	})
	_ = g.Wait()

	s.logFailures(ctx, "late payment side effects incomplete", failures.err)
}

func (s *service) goCustomerEffects(ctx context.Context, g *errgroup.Group, order *models.Order, failures *sideEffects) {
	g.Go(func() error {
		failures.add(s.notifyCustomer(ctx, order))
		return nil
	})
	g.Go(func() error {
		failures.add(s.sendReceipt(ctx, order))
		return nil
	})
	g.Go(func() error {
		if err := s.analytics.RecordConfirmedOrder(ctx, order.ID); err != nil {
			failures.add(pkgerrors.Wrap(pkgerrors.CodePersistence, err, "record analytics"))
		}
		return nil
	})
}

// afterStatusChange notifies the customer and the dashboards about an admin
// status change.
func (s *service) afterStatusChange(ctx context.Context, order *models.Order, previous, target enums.OrderStatus, now time.Time) {
	ctx, cancel := s.detached(ctx)
	defer cancel()

	var failures sideEffects
	var g errgroup.Group
	g.Go(func() error {
		var result whatsapp.SendResult
		if target == enums.OrderStatusDelivered {
			result = s.notifier.NotifyDeliveryCompleted(ctx, order)
		} else {
			result = s.notifier.NotifyStatusChange(ctx, order, target)
		}
		if !result.Success {
			failures.add(pkgerrors.New(pkgerrors.CodeUpstream, "customer status notification: "+result.Message))
		}
		return nil
	})
	g.Go(func() error {
		payload := statusEvent(order, target, now)
		s.events.Publish(ctx, realtime.RoomDashboard, realtime.EventOrderStatusUpdated, payload)
		if order.DeliveryStaffID != nil && *order.DeliveryStaffID != "" {
			s.events.Publish(ctx, realtime.DeliveryRoom(*order.DeliveryStaffID), realtime.EventOrderStatusUpdated, payload)
		}
		return nil
	})

	if isCashConfirmation(order, previous, target) {
		g.Go(func() error {
			if err := s.analytics.RecordConfirmedOrder(ctx, order.ID); err != nil {
				failures.add(pkgerrors.Wrap(pkgerrors.CodePersistence, err, "record analytics"))
			}
			return nil
		})
		g.Go(func() error {
			failures.add(s.notifyKitchen(ctx, order))
			s.events.Publish(ctx, realtime.RoomKitchen, realtime.EventNewOrder, newOrderEvent(order, now))
			return nil
		})
	}
	_ = g.Wait()

	s.logFailures(ctx, "status change side effects incomplete", failures.err)
}

func (s *service) afterAssignment(ctx context.Context, order *models.Order, staffPhone string) {
	ctx, cancel := s.detached(ctx)
	defer cancel()

	var failures sideEffects
	claimed, err := s.repo.ClaimNotification(ctx, order.ID, FlagDelivery, s.now().UTC())
	switch {
	case err != nil:
		failures.add(pkgerrors.Wrap(pkgerrors.CodePersistence, err, "claim delivery notification"))
	case claimed:
		result := s.notifier.NotifyDeliveryAssignment(ctx, order, staffPhone)
		if !result.Success {
			failures.add(pkgerrors.New(pkgerrors.CodeUpstream, "delivery notification: "+result.Message))
			s.release(ctx, order, FlagDelivery)
		}
	}

	now := s.now().UTC()
	staffID := *order.DeliveryStaffID
	s.events.Publish(ctx, realtime.DeliveryRoom(staffID), realtime.EventOrderAssigned, newOrderEvent(order, now))
	s.events.Publish(ctx, realtime.RoomDashboard, realtime.EventOrderStatusUpdated, statusEvent(order, order.Status, now))

	s.logFailures(ctx, "assignment side effects incomplete", failures.err)
}

// notifyKitchen messages every kitchen phone once per order. The flag is
// released when no phone received the message so a later attempt can retry.
func (s *service) notifyKitchen(ctx context.Context, order *models.Order) error {
	if len(s.kitchenPhones) == 0 {
		return nil
	}
	claimed, err := s.repo.ClaimNotification(ctx, order.ID, FlagKitchen, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "claim kitchen notification")
	}
	if !claimed {
		return nil
	}

	results := s.notifier.NotifyKitchen(ctx, order, s.kitchenPhones)
	if notifications.AllSucceeded(results) {
		return nil
	}
	var errs error
	delivered := 0
	for _, result := range results {
		if result.Result.Success {
			delivered++
			continue
		}
		errs = multierr.Append(errs, pkgerrors.New(pkgerrors.CodeUpstream, "kitchen "+result.Phone+": "+result.Result.Message))
	}
	if delivered == 0 {
		s.release(ctx, order, FlagKitchen)
	}
	return errs
}

func (s *service) notifyCustomer(ctx context.Context, order *models.Order) error {
	claimed, err := s.repo.ClaimNotification(ctx, order.ID, FlagCustomer, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "claim customer notification")
	}
	if !claimed {
		return nil
	}

	result := s.notifier.NotifyCustomerConfirmation(ctx, order)
	if !result.Success {
		s.release(ctx, order, FlagCustomer)
		return pkgerrors.New(pkgerrors.CodeUpstream, "customer confirmation: "+result.Message)
	}
	return nil
}

// sendReceipt e-mails the receipt once per order, independent of WhatsApp.
func (s *service) sendReceipt(ctx context.Context, order *models.Order) error {
	if order.CustomerEmail == nil || strings.TrimSpace(*order.CustomerEmail) == "" {
		return nil
	}
	claimed, err := s.repo.ClaimNotification(ctx, order.ID, FlagReceipt, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "claim receipt")
	}
	if !claimed {
		return nil
	}
	// The dispatcher logs send failures itself.
	if !s.notifier.SendReceipt(ctx, order) {
		s.release(ctx, order, FlagReceipt)
	}
	return nil
}

func (s *service) release(ctx context.Context, order *models.Order, flag NotificationFlag) {
	if err := s.repo.ReleaseNotification(ctx, order.ID, flag); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "flag", string(flag)), "release notification flag", err)
	}
}

func (s *service) logFailures(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"failures": len(multierr.Errors(err)),
		"error":    err.Error(),
	}), msg)
}

func isCashConfirmation(order *models.Order, previous, target enums.OrderStatus) bool {
	return order.Payment.Method == enums.PaymentMethodCOD &&
		previous == enums.OrderStatusPending &&
		target == enums.OrderStatusConfirmed
}
