package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
)

// errStaleRead signals that another writer changed the quantity between our
// read and the conditional write. It never leaves the service.
var errStaleRead = errors.New("stale quantity read")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LowStockNotifier is pinged after an adjustment lands below the threshold.
type LowStockNotifier interface {
	LowStock(ctx context.Context, sku string, quantity int)
}

// AdjustInput describes one requested ledger change.
type AdjustInput struct {
	SKU     string
	Type    enums.MovementType
	Amount  int
	Reason  string
	Actor   string
	OrderID *uuid.UUID
}

// AdjustResult reports the quantities around a successful adjustment.
type AdjustResult struct {
	SKU          string `json:"sku"`
	PrevQuantity int    `json:"prev_quantity"`
	NewQuantity  int    `json:"new_quantity"`
	Delta        int    `json:"delta"`
}

// Service is the only write path to stock quantities. Every change goes
// through a compare-and-swap on the previously observed quantity plus one
// movement append inside the same transaction.
type Service interface {
	Adjust(ctx context.Context, input AdjustInput) (*AdjustResult, error)
	Quantity(ctx context.Context, sku string) (int, error)
	Movements(ctx context.Context, sku string, limit int) ([]models.InventoryMovement, error)
}

type service struct {
	repo        Repository
	tx          txRunner
	logger      *logger.Logger
	notifier    LowStockNotifier
	maxAttempts int
	lowStockAt  int
}

// NewService builds the ledger service with the required dependencies.
func NewService(repo Repository, tx txRunner, cfg config.InventoryConfig, logg *logger.Logger, notifier LowStockNotifier) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	attempts := cfg.AdjustMaxAttempts
	if attempts < 3 {
		attempts = 3
	}
	return &service{
		repo:        repo,
		tx:          tx,
		logger:      logg,
		notifier:    notifier,
		maxAttempts: attempts,
		lowStockAt:  cfg.LowStockThreshold,
	}, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*AdjustResult, error) {
	if err := validateAdjustInput(input); err != nil {
		return nil, err
	}

	var result *AdjustResult
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			item, err := repo.FindItem(ctx, input.SKU)
			if err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
				}
				// A missing row can only be bootstrapped by a stock-in kind.
				if input.Type != enums.MovementTypeAdd && input.Type != enums.MovementTypeEdit {
					return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no inventory record for sku %s", input.SKU))
				}
				if err := repo.EnsureItem(ctx, input.SKU, 0); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory item")
				}
				item = &models.InventoryItem{SKU: input.SKU, Quantity: 0}
			}

			next, err := candidateQuantity(item.Quantity, input)
			if err != nil {
				return err
			}
			delta := next - item.Quantity
			if delta == 0 {
				result = &AdjustResult{
					SKU:          input.SKU,
					PrevQuantity: item.Quantity,
					NewQuantity:  item.Quantity,
				}
				return nil
			}

			ok, err := repo.CompareAndSetQuantity(ctx, input.SKU, item.Quantity, next)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write inventory quantity")
			}
			if !ok {
				return errStaleRead
			}

			movement := &models.InventoryMovement{
				SKU:          input.SKU,
				Type:         input.Type,
				Delta:        delta,
				PrevQuantity: item.Quantity,
				NewQuantity:  next,
				Reason:       input.Reason,
				Actor:        input.Actor,
				OrderID:      input.OrderID,
			}
			if err := repo.AppendMovement(ctx, movement); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append inventory movement")
			}

			result = &AdjustResult{
				SKU:          input.SKU,
				PrevQuantity: item.Quantity,
				NewQuantity:  next,
				Delta:        delta,
			}
			return nil
		})
		if err == nil {
			s.maybeNotifyLowStock(ctx, result)
			return result, nil
		}
		if errors.Is(err, errStaleRead) {
			continue
		}
		return nil, err
	}

	ctx = s.logger.WithSKU(ctx, input.SKU)
	s.logger.Warn(ctx, fmt.Sprintf("inventory adjustment lost the race %d times", s.maxAttempts))
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "inventory is busy, please retry")
}

func (s *service) Quantity(ctx context.Context, sku string) (int, error) {
	item, err := s.repo.FindItem(ctx, sku)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no inventory record for sku %s", sku))
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
	}
	return item.Quantity, nil
}

func (s *service) Movements(ctx context.Context, sku string, limit int) ([]models.InventoryMovement, error) {
	rows, err := s.repo.ListMovements(ctx, sku, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory movements")
	}
	return rows, nil
}

func (s *service) maybeNotifyLowStock(ctx context.Context, result *AdjustResult) {
	if s.notifier == nil || result == nil {
		return
	}
	if result.Delta >= 0 || result.NewQuantity >= s.lowStockAt {
		return
	}
	s.notifier.LowStock(ctx, result.SKU, result.NewQuantity)
}

func validateAdjustInput(input AdjustInput) error {
	if strings.TrimSpace(input.SKU) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown movement type %q", input.Type))
	}
	if strings.TrimSpace(input.Actor) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor required")
	}
	if input.Type == enums.MovementTypeEdit {
		if input.Amount < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "edit amount must not be negative")
		}
		return nil
	}
	if input.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return nil
}

// candidateQuantity computes the target quantity for the request. Decrements
// clip at zero; a decrement that cannot move at all is a stock rejection, not
// a silent no-op.
func candidateQuantity(current int, input AdjustInput) (int, error) {
	switch input.Type {
	case enums.MovementTypeAdd, enums.MovementTypeRefund:
		return current + input.Amount, nil
	case enums.MovementTypeRemove, enums.MovementTypeSale:
		if current == 0 {
			return 0, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("sku %s is out of stock", input.SKU))
		}
		next := current - input.Amount
		if next < 0 {
			next = 0
		}
		return next, nil
	case enums.MovementTypeEdit:
		return input.Amount, nil
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown movement type %q", input.Type))
	}
}
