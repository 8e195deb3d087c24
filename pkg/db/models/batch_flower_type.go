package models

import (
	"time"

	"github.com/google/uuid"
)

// BatchFlowerType is a lot: the quantity of one flower type inside one batch.
// CurrentQuantity never exceeds ImportedQuantity and never goes below zero.
type BatchFlowerType struct {
	ID               uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	BatchID          uuid.UUID   `gorm:"column:batch_id;type:uuid;not null;index"`
	FlowerTypeID     uuid.UUID   `gorm:"column:flower_type_id;type:uuid;not null;index"`
	ImportedQuantity int         `gorm:"column:imported_quantity;not null"`
	CurrentQuantity  int         `gorm:"column:current_quantity;not null"`
	UnitCost         int64       `gorm:"column:unit_cost;not null;default:0"`
	Batch            *Batch      `gorm:"foreignKey:BatchID"`
	FlowerType       *FlowerType `gorm:"foreignKey:FlowerTypeID"`
	CreatedAt        time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}
