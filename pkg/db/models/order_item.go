package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem captures the snapshot of one line within an order.
type OrderItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	SKU       string    `gorm:"column:sku;not null"`
	Qty       int       `gorm:"column:qty;not null"`
	UnitPrice int       `gorm:"column:unit_price;not null"`
	Total     int       `gorm:"column:total;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
