package inventory

import (
	"context"

	"gorm.io/gorm"

	"github.com/satoshishop/backend/pkg/db/models"
)

// Repository defines persistence operations for the stock ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindItem(ctx context.Context, sku string) (*models.InventoryItem, error)
	// CompareAndSetQuantity writes the new quantity only when the stored value
	// still equals the expected one. Returns false without error when another
	// writer got there first.
	CompareAndSetQuantity(ctx context.Context, sku string, expected, next int) (bool, error)
	AppendMovement(ctx context.Context, movement *models.InventoryMovement) error
	ListMovements(ctx context.Context, sku string, limit int) ([]models.InventoryMovement, error)
	EnsureItem(ctx context.Context, sku string, initialQuantity int) error
}
