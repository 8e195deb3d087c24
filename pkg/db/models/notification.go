package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification stores in-app notification payloads for back-office users.
// A nil UserID addresses every staff member.
type Notification struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    *uuid.UUID `gorm:"column:user_id;type:uuid;index"`
	OrderID   *uuid.UUID `gorm:"column:order_id;type:uuid"`
	Title     string     `gorm:"column:title;type:text;not null"`
	Message   string     `gorm:"column:message;type:text;not null"`
	Link      *string    `gorm:"column:link"`
	ReadAt    *time.Time `gorm:"column:read_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime;index"`
}
