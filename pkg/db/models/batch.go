package models

import (
	"time"

	"github.com/google/uuid"
)

// Batch is a single supplier delivery of stems sharing one expiry date.
type Batch struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	SupplierName *string           `gorm:"column:supplier_name"`
	ImportDate   time.Time         `gorm:"column:import_date;not null"`
	ExpiryDate   time.Time         `gorm:"column:expiry_date;not null;index"`
	Lots         []BatchFlowerType `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
