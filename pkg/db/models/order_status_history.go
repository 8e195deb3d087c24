package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/pkg/enums"
)

// OrderStatusHistory is an append-only record of order status changes.
type OrderStatusHistory struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus *enums.OrderStatus `gorm:"column:from_status;type:text"`
	ToStatus   enums.OrderStatus  `gorm:"column:to_status;type:text;not null"`
	ChangedBy  *uuid.UUID         `gorm:"column:changed_by;type:uuid"`
	Note       *string            `gorm:"column:note"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}
