package orders

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
)

// AssignDeliveryInput names the rider taking an order.
type AssignDeliveryInput struct {
	OrderRef   string `json:"-"`
	StaffID    string `json:"staffId" validate:"required"`
	StaffPhone string `json:"staffPhone" validate:"required"`
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderRef, status, notes string) (*models.Order, error) {
	target, err := enums.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(status)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
			WithDetails(map[string]string{"status": "unknown order status"})
	}

	var previous enums.OrderStatus
	now := s.now().UTC()
	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := s.findByRef(ctx, repo, orderRef)
		if err != nil {
			return err
		}
		order = found
		previous = found.Status

		ok, err := repo.UpdateStatus(ctx, found.ID, previous, target, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently, retry")
		}
		return repo.AppendHistory(ctx, &models.OrderStatusEntry{
			OrderID:   found.ID,
			Status:    target,
			Notes:     strings.TrimSpace(notes),
			CreatedAt: now,
		})
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update order status")
		}
		return nil, err
	}

	order, err = s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "reload order")
	}
	ctx = s.logg.WithOrderNumber(ctx, order.OrderNumber)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"from": previous.String(),
		"to":   target.String(),
	}), "order status updated")

	s.afterStatusChange(ctx, order, previous, target, now)
	return order, nil
}

func (s *service) AssignDelivery(ctx context.Context, input AssignDeliveryInput) (*models.Order, error) {
	staffID := strings.TrimSpace(input.StaffID)
	staffPhone := strings.TrimSpace(input.StaffPhone)
	details := map[string]string{}
	if staffID == "" {
		details["staffId"] = "is required"
	}
	if staffPhone == "" {
		details["staffPhone"] = "is required"
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery assignment").WithDetails(details)
	}

	order, err := s.findByRef(ctx, s.repo, input.OrderRef)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already "+strings.ToLower(order.Status.String()))
	}
	if err := s.repo.AssignDeliveryStaff(ctx, order.ID, staffID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "assign delivery staff")
	}
	order, err = s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "reload order")
	}
	ctx = s.logg.WithOrderNumber(ctx, order.OrderNumber)
	s.logg.Info(s.logg.WithField(ctx, "staff_id", staffID), "delivery staff assigned")

	s.afterAssignment(ctx, order, staffPhone)
	return order, nil
}
