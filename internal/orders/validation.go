package orders

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
)

// buildOrder validates the input and maps it onto a new pending order.
// Validation failures carry one detail per offending field.
func buildOrder(input CreateOrderInput) (*models.Order, error) {
	details := map[string]string{}

	name := strings.TrimSpace(input.CustomerName)
	if name == "" {
		details["customerName"] = "is required"
	}
	phone := strings.TrimSpace(input.CustomerPhone)
	if phone == "" {
		details["customerPhone"] = "is required"
	}

	deliveryType := enums.DeliveryTypeDelivery
	if raw := strings.TrimSpace(input.DeliveryType); raw != "" {
		parsed, err := enums.ParseDeliveryType(raw)
		if err != nil {
			details["deliveryType"] = "must be DELIVERY or DINE_IN"
		} else {
			deliveryType = parsed
		}
	}
	address := strings.TrimSpace(input.DeliveryAddress)
	if deliveryType == enums.DeliveryTypeDelivery && address == "" {
		details["deliveryAddress"] = "is required for delivery orders"
	}

	method := enums.PaymentMethodCOD
	if raw := strings.TrimSpace(input.PaymentMethod); raw != "" {
		parsed, err := enums.ParsePaymentMethod(strings.ToUpper(raw))
		if err != nil {
			details["paymentMethod"] = "must be PHONEPE or COD"
		} else {
			method = parsed
		}
	}

	if len(input.Items) == 0 {
		details["items"] = "at least one item is required"
	}
	items := make([]models.OrderItem, 0, len(input.Items))
	lineSum := decimal.Zero
	for i, item := range input.Items {
		field := fmt.Sprintf("items[%d]", i)
		dishName := strings.TrimSpace(item.DishName)
		if dishName == "" {
			details[field+".dishName"] = "is required"
		}
		if item.Quantity < 1 {
			details[field+".quantity"] = "must be at least 1"
		}
		if item.Price.IsNegative() {
			details[field+".price"] = "must not be negative"
		}
		line := models.OrderItem{
			Position:            i,
			DishID:              trimmedOrNil(item.DishID),
			DishName:            dishName,
			UnitPrice:           item.Price.Round(2),
			Quantity:            item.Quantity,
			SpecialInstructions: trimmedOrNil(item.SpecialInstructions),
		}
		lineSum = lineSum.Add(line.LineTotal())
		items = append(items, line)
	}

	if !input.TotalAmount.IsPositive() {
		details["totalAmount"] = "must be greater than 0"
	}
	for field, value := range map[string]decimal.Decimal{
		"subtotal":       input.Subtotal,
		"tax":            input.Tax,
		"deliveryCharge": input.DeliveryCharge,
		"discount":       input.Discount,
	} {
		if value.IsNegative() {
			details[field] = "must not be negative"
		}
	}

	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order").WithDetails(details)
	}

	subtotal := input.Subtotal
	if subtotal.IsZero() {
		subtotal = lineSum
	}
	total := input.TotalAmount.Round(2)

	return &models.Order{
		CustomerName:    name,
		CustomerPhone:   phone,
		CustomerEmail:   trimmedOrNil(input.CustomerEmail),
		DeliveryType:    deliveryType,
		DeliveryAddress: address,
		Subtotal:        subtotal.Round(2),
		Tax:             input.Tax.Round(2),
		DeliveryCharge:  input.DeliveryCharge.Round(2),
		Discount:        input.Discount.Round(2),
		TotalAmount:     total,
		Status:          enums.OrderStatusPending,
		Payment: models.Payment{
			Method:   method,
			Status:   enums.PaymentStatusPending,
			Amount:   total,
			Currency: enums.CurrencyINR,
		},
		SpecialNotes: trimmedOrNil(input.SpecialNotes),
		Items:        items,
	}, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
