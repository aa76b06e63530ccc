package models

import "time"

// InventoryItem is the single mutable stock counter per SKU. The quantity
// column is only ever written through the conditional update in the inventory
// repository; every successful write appends one InventoryMovement.
type InventoryItem struct {
	SKU       string    `gorm:"column:sku;primaryKey"`
	Quantity  int       `gorm:"column:quantity;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
