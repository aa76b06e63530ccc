package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a denormalized contact profile keyed by normalized email.
// Upserted on every checkout and manual order so contact info stays current.
// Lifetime spend is derived from orders at query time, never stored here.
type Customer struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string    `gorm:"column:email;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;not null"`
	Phone     *string   `gorm:"column:phone"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
