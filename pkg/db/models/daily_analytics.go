package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/saffronhouse/orders-backend/pkg/enums"
)

// DailyAnalytics is the per-day rollup. Day is a YYYY-MM-DD calendar date in
// the business time zone.
type DailyAnalytics struct {
	Day               string          `gorm:"column:day;primaryKey"`
	TotalOrders       int64           `gorm:"column:total_orders;not null;default:0"`
	SuccessfulOrders  int64           `gorm:"column:successful_orders;not null;default:0"`
	CancelledOrders   int64           `gorm:"column:cancelled_orders;not null;default:0"`
	TotalRevenue      decimal.Decimal `gorm:"column:total_revenue;type:numeric(14,2);not null;default:0"`
	AverageOrderValue decimal.Decimal `gorm:"column:average_order_value;type:numeric(14,2);not null;default:0"`
	UpdatedAt         time.Time       `gorm:"column:updated_at"`
}

func (DailyAnalytics) TableName() string { return "daily_analytics" }

// AnalyticsBucket is one keyed entry of a daily sub-aggregate such as a peak
// hour or a top dish.
type AnalyticsBucket struct {
	Day         string                    `gorm:"column:day;primaryKey"`
	Kind        enums.AnalyticsBucketKind `gorm:"column:kind;primaryKey"`
	Key         string                    `gorm:"column:key;primaryKey"`
	OrdersCount int64                     `gorm:"column:orders_count;not null;default:0"`
	Amount      decimal.Decimal           `gorm:"column:amount;type:numeric(14,2);not null;default:0"`
}

func (AnalyticsBucket) TableName() string { return "daily_analytics_buckets" }
