// Package analytics maintains the per-day order rollups. Every write is an
// atomic upsert increment so concurrent confirmations never lose counts.
package analytics

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/saffronhouse/orders-backend/pkg/db"
	"github.com/saffronhouse/orders-backend/pkg/db/models"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
)

// Service records confirmed orders and reads daily reports.
type Service interface {
	RecordConfirmedOrder(ctx context.Context, orderID uuid.UUID) error
	Daily(ctx context.Context, day string) (*DailyReport, error)
}

type Option func(*service)

// WithClock overrides the time source used when an order has no paid_at.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

type service struct {
	db  *db.Client
	loc *time.Location
	now func() time.Time
}

func NewService(client *db.Client, loc *time.Location, opts ...Option) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database client required")
	}
	if loc == nil {
		loc = time.UTC
	}
	svc := &service{db: client, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *service) RecordConfirmedOrder(ctx context.Context, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var order models.Order
		err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).First(&order, "id = ?", orderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order for analytics")
		}

		// An order is counted once, however many times it reaches CONFIRMED.
		claimed, err := claimOrder(tx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "claim order for analytics")
		}
		if !claimed {
			return nil
		}

		now := s.now()
		at := RevenueTimestamp(order.Payment.PaidAt, now)
		delta := deltaFor(&order, DayKey(at, s.loc), HourKey(at, s.loc))
		delta.Row.UpdatedAt = now.UTC()

		if err := upsertDay(tx, delta.Row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "upsert daily analytics")
		}
		if err := upsertBuckets(tx, delta.Buckets); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "upsert analytics buckets")
		}
		if err := recomputeAverage(tx, delta.Row.Day); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "recompute average order value")
		}
		return nil
	})
}

func claimOrder(tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	res := tx.Model(&models.Order{}).
		Where("id = ? AND analytics_recorded = ?", orderID, false).
		Update("analytics_recorded", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func upsertDay(tx *gorm.DB, row models.DailyAnalytics) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}},
		DoUpdates: clause.Assignments(map[string]any{
			"total_orders":      gorm.Expr("daily_analytics.total_orders + excluded.total_orders"),
			"successful_orders": gorm.Expr("daily_analytics.successful_orders + excluded.successful_orders"),
			"cancelled_orders":  gorm.Expr("daily_analytics.cancelled_orders + excluded.cancelled_orders"),
			"total_revenue":     gorm.Expr("daily_analytics.total_revenue + excluded.total_revenue"),
			"updated_at":        gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&row).Error
}

func upsertBuckets(tx *gorm.DB, buckets []models.AnalyticsBucket) error {
	if len(buckets) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}, {Name: "kind"}, {Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"orders_count": gorm.Expr("daily_analytics_buckets.orders_count + excluded.orders_count"),
			"amount":       gorm.Expr("daily_analytics_buckets.amount + excluded.amount"),
		}),
	}).Create(&buckets).Error
}

func recomputeAverage(tx *gorm.DB, day string) error {
	return tx.Exec(`UPDATE daily_analytics
SET average_order_value = ROUND(total_revenue * 1.0 / (CASE WHEN successful_orders > 0 THEN successful_orders ELSE 1 END), 2)
WHERE day = ?`, day).Error
}

func (s *service) Daily(ctx context.Context, day string) (*DailyReport, error) {
	key, err := ParseDay(day)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "date must be YYYY-MM-DD")
	}

	conn := s.db.DB().WithContext(ctx)
	report := &DailyReport{
		Day:               key,
		TotalRevenue:      decimal.Zero,
		AverageOrderValue: decimal.Zero,
		PaymentMethods:    map[string]Breakdown{},
		OrderTypes:        map[string]Breakdown{},
		PeakHours:         []HourBreakdown{},
		TopDishes:         []DishBreakdown{},
	}

	var row models.DailyAnalytics
	err = conn.Where("day = ?", key).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return report, nil
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load daily analytics")
	}
	report.TotalOrders = row.TotalOrders
	report.SuccessfulOrders = row.SuccessfulOrders
	report.CancelledOrders = row.CancelledOrders
	report.TotalRevenue = row.TotalRevenue
	report.AverageOrderValue = row.AverageOrderValue

	var buckets []models.AnalyticsBucket
	if err := conn.Where("day = ?", key).Find(&buckets).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load analytics buckets")
	}
	report.apply(buckets)
	return report, nil
}

// Breakdown is a count and amount pair for one keyed sub-aggregate.
type Breakdown struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type HourBreakdown struct {
	Hour    string          `json:"hour"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type DishBreakdown struct {
	DishName string          `json:"dishName"`
	Count    int64           `json:"count"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// DailyReport is the read model of one analytics day.
type DailyReport struct {
	Day               string               `json:"date"`
	TotalOrders       int64                `json:"totalOrders"`
	SuccessfulOrders  int64                `json:"successfulOrders"`
	CancelledOrders   int64                `json:"cancelledOrders"`
	TotalRevenue      decimal.Decimal      `json:"totalRevenue"`
	AverageOrderValue decimal.Decimal      `json:"averageOrderValue"`
	PaymentMethods    map[string]Breakdown `json:"paymentMethods"`
	OrderTypes        map[string]Breakdown `json:"orderTypes"`
	PeakHours         []HourBreakdown      `json:"peakHours"`
	TopDishes         []DishBreakdown      `json:"topDishes"`
}

func (r *DailyReport) apply(buckets []models.AnalyticsBucket) {
	for _, b := range buckets {
		switch b.Kind {
		case enums.AnalyticsBucketPaymentMethod:
			r.PaymentMethods[b.Key] = Breakdown{Count: b.OrdersCount, Amount: b.Amount}
		case enums.AnalyticsBucketOrderType:
			r.OrderTypes[b.Key] = Breakdown{Count: b.OrdersCount, Amount: b.Amount}
		case enums.AnalyticsBucketHour:
			r.PeakHours = append(r.PeakHours, HourBreakdown{Hour: b.Key, Orders: b.OrdersCount, Revenue: b.Amount})
		case enums.AnalyticsBucketDish:
			r.TopDishes = append(r.TopDishes, DishBreakdown{DishName: b.Key, Count: b.OrdersCount, Revenue: b.Amount})
		}
	}
	sort.Slice(r.PeakHours, func(i, j int) bool { return r.PeakHours[i].Hour < r.PeakHours[j].Hour })
	sort.Slice(r.TopDishes, func(i, j int) bool {
		if r.TopDishes[i].Count != r.TopDishes[j].Count {
			return r.TopDishes[i].Count > r.TopDishes[j].Count
		}
		return r.TopDishes[i].DishName < r.TopDishes[j].DishName
	})
}
