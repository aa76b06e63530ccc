package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/satoshishop/backend/pkg/enums"
)

// InventoryMovement records one immutable stock change. Replaying the
// movements for a SKU in creation order must reduce to the stored quantity.
type InventoryMovement struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU          string             `gorm:"column:sku;not null;index:idx_inventory_movements_sku_created,priority:1"`
	Type         enums.MovementType `gorm:"column:type;type:text;not null"`
	Delta        int                `gorm:"column:delta;not null"`
	PrevQuantity int                `gorm:"column:prev_quantity;not null"`
	NewQuantity  int                `gorm:"column:new_quantity;not null"`
	Reason       string             `gorm:"column:reason;not null"`
	Actor        string             `gorm:"column:actor;not null"`
	OrderID      *uuid.UUID         `gorm:"column:order_id;type:uuid;index"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime;index:idx_inventory_movements_sku_created,priority:2"`
}
