package models

import (
	"time"

	"github.com/google/uuid"
)

// Product represents a sellable storefront arrangement. Price is VND.
type Product struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CategoryID    *uuid.UUID          `gorm:"column:category_id;type:uuid"`
	Name          string              `gorm:"column:name;type:text;not null"`
	Description   *string             `gorm:"column:description"`
	Price         int64               `gorm:"column:price;not null"`
	StockQuantity int                 `gorm:"column:stock_quantity;not null;default:0"`
	QuantitySold  int                 `gorm:"column:quantity_sold;not null;default:0"`
	ImageURL      *string             `gorm:"column:image_url"`
	IsActive      bool                `gorm:"column:is_active;not null;default:true"`

	// Aggregates computed by the catalog read queries, not stored columns.
	RatingAverage float64 `gorm:"column:rating_average;->;-:migration"`
	RatingCount   int64   `gorm:"column:rating_count;->;-:migration"`

	Category      *Category           `gorm:"foreignKey:CategoryID"`
	Recipe        []FlowerTypeProduct `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
