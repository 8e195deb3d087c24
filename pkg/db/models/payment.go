package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/pkg/enums"
)

// Payment records how an order was (or will be) settled. One row per order.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Method        enums.PaymentMethod `gorm:"column:method;type:text;not null"`
	Status        enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Amount        int64               `gorm:"column:amount;not null"`
	GatewayTxnRef *string             `gorm:"column:gateway_txn_ref;index"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	FailureReason *string             `gorm:"column:failure_reason"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
