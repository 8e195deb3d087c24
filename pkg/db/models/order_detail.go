package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderDetail is one line of an order with the price captured at checkout.
type OrderDetail struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName string    `gorm:"column:product_name;not null"`
	UnitPrice   int64     `gorm:"column:unit_price;not null"`
	Quantity    int       `gorm:"column:quantity;not null"`
	LineTotal   int64     `gorm:"column:line_total;not null"`

	// Delivery schedule captured from the cart line at checkout.
	DeliveryDate time.Time `gorm:"column:delivery_date;not null"`
	DeliverySlot string    `gorm:"column:delivery_slot;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
