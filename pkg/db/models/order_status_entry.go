package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/saffronhouse/orders-backend/pkg/enums"
)

// OrderStatusEntry is one row of the append-only status history.
type OrderStatusEntry struct {
	ID        int64             `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	Status    enums.OrderStatus `gorm:"column:status;not null"`
	Notes     string            `gorm:"column:notes;not null;default:''"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusEntry) TableName() string { return "order_status_history" }
