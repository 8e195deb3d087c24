package models

import (
	"time"

	"github.com/google/uuid"
)

// FlowerTypeProduct is one recipe line: how many stems of a flower type
// go into a single unit of a product.
type FlowerTypeProduct struct {
	ID              uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	ProductID       uuid.UUID   `gorm:"column:product_id;type:uuid;not null;index:idx_recipe_product_flower,unique"`
	FlowerTypeID    uuid.UUID   `gorm:"column:flower_type_id;type:uuid;not null;index:idx_recipe_product_flower,unique"`
	QuantityPerUnit int         `gorm:"column:quantity_per_unit;not null"`
	FlowerType      *FlowerType `gorm:"foreignKey:FlowerTypeID"`
	CreatedAt       time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}
