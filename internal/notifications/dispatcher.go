// Package notifications formats order events into WhatsApp template messages
// and e-mail receipts. Every send is best effort: failures are reported in the
// result and logged, never returned as errors.
package notifications

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	"github.com/saffronhouse/orders-backend/pkg/logger"
	"github.com/saffronhouse/orders-backend/pkg/mailer"
	"github.com/saffronhouse/orders-backend/pkg/whatsapp"
)

const maxConcurrentKitchenSends = 8

type messenger interface {
	Send(ctx context.Context, phone string, tpl whatsapp.Template, params []string) whatsapp.SendResult
}

type receiptSender interface {
	Enabled() bool
	SendReceipt(ctx context.Context, receipt mailer.Receipt) error
}

type metricsRecorder interface {
	IncNotification(template string, success bool)
}

// Params wires the dispatcher. Mailer and Metrics are optional.
type Params struct {
	Messenger messenger
	Catalog   *whatsapp.Catalog
	Mailer    receiptSender
	Metrics   metricsRecorder
	Logger    *logger.Logger
}

type Dispatcher struct {
	messenger messenger
	catalog   *whatsapp.Catalog
	mailer    receiptSender
	metrics   metricsRecorder
	logg      *logger.Logger
}

// PhoneResult pairs a recipient with the outcome of its send.
type PhoneResult struct {
	Phone  string
	Result whatsapp.SendResult
}

func NewDispatcher(params Params) (*Dispatcher, error) {
	if params.Messenger == nil {
		return nil, fmt.Errorf("messenger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	catalog := params.Catalog
	if catalog == nil {
		var err error
		catalog, err = whatsapp.DefaultCatalog()
		if err != nil {
			return nil, err
		}
	}
	return &Dispatcher{
		messenger: params.Messenger,
		catalog:   catalog,
		mailer:    params.Mailer,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// NotifyCustomerConfirmation tells the customer their order is confirmed.
func (d *Dispatcher) NotifyCustomerConfirmation(ctx context.Context, order *models.Order) whatsapp.SendResult {
	return d.send(ctx, order.CustomerPhone, whatsapp.TemplateOrderConfirmation, []string{
		order.OrderNumber,
		customerItemSummary(order.Items),
		order.TotalAmount.String(),
		order.DeliveryType.String(),
	})
}

// NotifyKitchen sends the new order to every kitchen phone concurrently. One
// failed phone does not stop the others.
func (d *Dispatcher) NotifyKitchen(ctx context.Context, order *models.Order, phones []string) []PhoneResult {
	params := []string{
		order.OrderNumber,
		kitchenItemSummary(order.Items),
		order.DeliveryType.String(),
	}

	results := make([]PhoneResult, len(phones))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentKitchenSends)
	for i, phone := range phones {
		g.Go(func() error {
			res := d.send(gctx, phone, whatsapp.TemplateNewOrderKitchen, params)
			mu.Lock()
			results[i] = PhoneResult{Phone: phone, Result: res}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// NotifyDeliveryAssignment hands the order details to the assigned rider.
func (d *Dispatcher) NotifyDeliveryAssignment(ctx context.Context, order *models.Order, staffPhone string) whatsapp.SendResult {
	return d.send(ctx, staffPhone, whatsapp.TemplateDeliveryAssignment, []string{
		order.OrderNumber,
		order.CustomerName,
		order.CustomerPhone,
		order.DeliveryAddress,
	})
}

// NotifyDeliveryCompleted thanks the customer once the order is delivered.
func (d *Dispatcher) NotifyDeliveryCompleted(ctx context.Context, order *models.Order) whatsapp.SendResult {
	return d.send(ctx, order.CustomerPhone, whatsapp.TemplateDeliveryCompleted, []string{
		order.OrderNumber,
		order.TotalAmount.String(),
	})
}

func (d *Dispatcher) NotifyStatusChange(ctx context.Context, order *models.Order, status enums.OrderStatus) whatsapp.SendResult {
	return d.send(ctx, order.CustomerPhone, whatsapp.TemplateOrderStatusUpdate, []string{
		order.OrderNumber,
		d.catalog.StatusMessage(status.String()),
	})
}

// SendReceipt e-mails a receipt when the customer left an address and SMTP is
// configured. It reports whether a receipt was sent.
func (d *Dispatcher) SendReceipt(ctx context.Context, order *models.Order) bool {
	if d.mailer == nil || !d.mailer.Enabled() || order.CustomerEmail == nil || strings.TrimSpace(*order.CustomerEmail) == "" {
		return false
	}

	lines := make([]mailer.ReceiptLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, mailer.ReceiptLine{
			Name:      item.DishName,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal().StringFixed(2),
		})
	}
	err := d.mailer.SendReceipt(ctx, mailer.Receipt{
		To:           strings.TrimSpace(*order.CustomerEmail),
		OrderNumber:  order.OrderNumber,
		CustomerName: order.CustomerName,
		DeliveryType: order.DeliveryType.String(),
		Lines:        lines,
		Total:        order.TotalAmount.StringFixed(2),
		Currency:     order.Payment.Currency.String(),
	})
	d.record("email_receipt", err == nil)
	if err != nil {
		d.logg.Warn(d.logg.WithFields(ctx, map[string]any{
			"order_number": order.OrderNumber,
			"error":        err.Error(),
		}), "email receipt failed")
		return false
	}
	return true
}

func (d *Dispatcher) send(ctx context.Context, phone, key string, params []string) whatsapp.SendResult {
	tpl := d.catalog.Template(key)
	res := d.messenger.Send(ctx, phone, tpl, params)
	d.record(key, res.Success)
	if !res.Success {
		d.logg.Warn(d.logg.WithFields(ctx, map[string]any{
			"template": tpl.Name,
			"reason":   res.Message,
		}), "whatsapp notification failed")
	}
	return res
}

func (d *Dispatcher) record(template string, success bool) {
	if d.metrics != nil {
		d.metrics.IncNotification(template, success)
	}
}

func customerItemSummary(items []models.OrderItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s x%d", item.DishName, item.Quantity))
	}
	return strings.Join(parts, ", ")
}

func kitchenItemSummary(items []models.OrderItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		line := fmt.Sprintf("%s (x%d)", item.DishName, item.Quantity)
		if item.SpecialInstructions != nil && strings.TrimSpace(*item.SpecialInstructions) != "" {
			line += " - " + strings.TrimSpace(*item.SpecialInstructions)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// AllSucceeded reports whether every kitchen phone received the message.
func AllSucceeded(results []PhoneResult) bool {
	for _, r := range results {
		if !r.Result.Success {
			return false
		}
	}
	return len(results) > 0
}
