package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderNote is one append-only administrative annotation on an order.
// Notes are never updated or deleted.
type OrderNote struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Author    string    `gorm:"column:author;not null"`
	Body      string    `gorm:"column:body;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
