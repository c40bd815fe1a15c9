package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
)

// orderDelta is the set of increments one confirmed order contributes.
type orderDelta struct {
	Row     models.DailyAnalytics
	Buckets []models.AnalyticsBucket
}

func deltaFor(order *models.Order, day, hour string) orderDelta {
	total := order.TotalAmount
	row := models.DailyAnalytics{
		Day:               day,
		TotalOrders:       1,
		TotalRevenue:      decimal.Zero,
		AverageOrderValue: decimal.Zero,
	}
	if countsAsRevenue(order) {
		row.SuccessfulOrders = 1
		row.TotalRevenue = total
	}
	if order.Status == enums.OrderStatusCancelled {
		row.CancelledOrders = 1
	}

	methodAmount := decimal.Zero
	switch order.Payment.Method {
	case enums.PaymentMethodPhonePe:
		if order.Payment.Status == enums.PaymentStatusSuccess {
			methodAmount = total
		}
	default:
		if order.Payment.Status != enums.PaymentStatusFailed {
			methodAmount = total
		}
	}

	method := order.Payment.Method
	if method == "" {
		method = enums.PaymentMethodCOD
	}
	buckets := []models.AnalyticsBucket{
		{Day: day, Kind: enums.AnalyticsBucketPaymentMethod, Key: method.String(), OrdersCount: 1, Amount: methodAmount},
		{Day: day, Kind: enums.AnalyticsBucketOrderType, Key: order.DeliveryType.String(), OrdersCount: 1, Amount: total},
		{Day: day, Kind: enums.AnalyticsBucketHour, Key: hour, OrdersCount: 1, Amount: total},
	}

	// Repeated dish names in one order collapse into one bucket row; a single
	// upsert statement may not touch the same key twice.
	dishes := map[string]*models.AnalyticsBucket{}
	for _, item := range order.Items {
		b, ok := dishes[item.DishName]
		if !ok {
			b = &models.AnalyticsBucket{Day: day, Kind: enums.AnalyticsBucketDish, Key: item.DishName, Amount: decimal.Zero}
			dishes[item.DishName] = b
		}
		b.OrdersCount += int64(item.Quantity)
		b.Amount = b.Amount.Add(item.LineTotal())
	}
	names := make([]string, 0, len(dishes))
	for name := range dishes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		buckets = append(buckets, *dishes[name])
	}

	return orderDelta{Row: row, Buckets: buckets}
}

// countsAsRevenue is true for paid online orders and for COD orders an admin
// has confirmed.
func countsAsRevenue(order *models.Order) bool {
	if order.Payment.Status == enums.PaymentStatusSuccess {
		return true
	}
	return order.Payment.Method == enums.PaymentMethodCOD &&
		order.Payment.Status != enums.PaymentStatusFailed &&
		order.Status == enums.OrderStatusConfirmed
}
