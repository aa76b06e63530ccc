package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/enums"
	"github.com/satoshishop/backend/pkg/pagination"
)

// Repository defines persistence operations for the order aggregate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByReference(ctx context.Context, reference uuid.UUID) (*models.Order, error)
	OrderNumberExists(ctx context.Context, orderNumber string) (bool, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	// TransitionStatus writes the new status plus any extra columns only when
	// the stored status still equals the expected one. Returns false when a
	// concurrent writer moved the order first.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	AppendNote(ctx context.Context, note *models.OrderNote) error
	ListOrders(ctx context.Context, params pagination.Params, filters Filters) (*OrderList, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	FindShippedWithTracking(ctx context.Context) ([]models.Order, error)
	CountByStatus(ctx context.Context, status enums.OrderStatus) (int64, error)
}
