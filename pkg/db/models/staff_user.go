package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/satoshishop/backend/pkg/enums"
)

// StaffUser identifies an operator of the admin surface.
type StaffUser struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string          `gorm:"column:email;not null;uniqueIndex"`
	Name      string          `gorm:"column:name;not null"`
	Role      enums.StaffRole `gorm:"column:role;type:text;not null"`
	IsActive  bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
