package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/pkg/enums"
)

// Order is a customer purchase. Amounts are VND.
type Order struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	Status          enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	RecipientName   string               `gorm:"column:recipient_name;not null"`
	RecipientPhone  string               `gorm:"column:recipient_phone;not null"`
	ShippingAddress string               `gorm:"column:shipping_address;not null"`
	Note            *string              `gorm:"column:note"`
	SubtotalAmount  int64                `gorm:"column:subtotal_amount;not null"`
	ShippingFee     int64                `gorm:"column:shipping_fee;not null;default:0"`
	TotalAmount     int64                `gorm:"column:total_amount;not null"`
	PaymentMethod   enums.PaymentMethod  `gorm:"column:payment_method;type:text;not null"`
	Details         []OrderDetail        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment         *Payment             `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	History         []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CancelledAt     *time.Time           `gorm:"column:cancelled_at"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
