package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
)

// stubInventoryRepo keeps quantities in memory and honors the CAS contract,
// which lets the tests race real goroutines against the retry loop.
type stubInventoryRepo struct {
	mu        sync.Mutex
	items     map[string]int
	movements []models.InventoryMovement
	// casFailures forces the next N conditional writes to report a lost race.
	casFailures int
}

func (s *stubInventoryRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubInventoryRepo) FindItem(ctx context.Context, sku string) (*models.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qty, ok := s.items[sku]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.InventoryItem{SKU: sku, Quantity: qty}, nil
}

func (s *stubInventoryRepo) CompareAndSetQuantity(ctx context.Context, sku string, expected, next int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.casFailures > 0 {
		s.casFailures--
		return false, nil
	}
	current, ok := s.items[sku]
	if !ok || current != expected {
		return false, nil
	}
	s.items[sku] = next
	return true, nil
}

func (s *stubInventoryRepo) AppendMovement(ctx context.Context, movement *models.InventoryMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements = append(s.movements, *movement)
	return nil
}

func (s *stubInventoryRepo) ListMovements(ctx context.Context, sku string, limit int) ([]models.InventoryMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.InventoryMovement, 0, len(s.movements))
	for _, m := range s.movements {
		if m.SKU == sku {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubInventoryRepo) EnsureItem(ctx context.Context, sku string, initialQuantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[sku]; !ok {
		s.items[sku] = initialQuantity
	}
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubLowStockNotifier struct {
	mu    sync.Mutex
	calls []int
}

func (s *stubLowStockNotifier) LowStock(ctx context.Context, sku string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, quantity)
}

func newTestService(t *testing.T, repo *stubInventoryRepo, notifier LowStockNotifier) Service {
	t.Helper()
	cfg := config.InventoryConfig{LowStockThreshold: 5, AdjustMaxAttempts: 3}
	logg := logger.New(logger.Options{Level: zerolog.ErrorLevel})
	svc, err := NewService(repo, stubTxRunner{}, cfg, logg, notifier)
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	return svc
}

func TestAdjustSale(t *testing.T) {
	repo := &stubInventoryRepo{items: map[string]int{"SATSHOP-1": 10}}
	svc := newTestService(t, repo, nil)
	orderID := uuid.New()

	result, err := svc.Adjust(context.Background(), AdjustInput{
		SKU:     "SATSHOP-1",
		Type:    enums.MovementTypeSale,
		Amount:  2,
		Reason:  "payment settled",
		Actor:   "system/webhook",
		OrderID: &orderID,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if result.PrevQuantity != 10 || result.NewQuantity != 8 || result.Delta != -2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(repo.movements) != 1 {
		t.Fatalf("expected one movement, got %d", len(repo.movements))
	}
	m := repo.movements[0]
	if m.Type != enums.MovementTypeSale || m.Delta != -2 || m.PrevQuantity != 10 || m.NewQuantity != 8 {
		t.Fatalf("unexpected movement %+v", m)
	}
	if m.OrderID == nil || *m.OrderID != orderID {
		t.Fatal("movement missing order link")
	}
}

func TestAdjustSaleClipsAtZero(t *testing.T) {
	repo := &stubInventoryRepo{items: map[string]int{"SATSHOP-1": 1}}
	svc := newTestService(t, repo, nil)

	result, err := svc.Adjust(context.Background(), AdjustInput{
		SKU:    "SATSHOP-1",
		Type:   enums.MovementTypeSale,
		Amount: 3,
		Reason: "payment settled",
		Actor:  "system/webhook",
	})
	if err != nil {
		t.Fatalf("expected clipped decrement, got %v", err)
	}
	if result.NewQuantity != 0 || result.Delta != -1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAdjustSaleOutOfStock(t *testing.T) {
	repo := &stubInventoryRepo{items: map[string]int{"SATSHOP-1": 0}}
	svc := newTestService(t, repo, nil)

	_, err := svc.Adjust(context.Background(), AdjustInput{
		SKU:    "SATSHOP-1",
		Type:   enums.MovementTypeSale,
		Amount: 1,
		Reason: "payment settled",
		Actor:  "system/webhook",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(repo.movements) != 0 {
		t.Fatalf("no movement should be logged, got %d", len(repo.movements))
	}
}

func TestAdjustEdit(t *testing.T) {
	repo := &stubInventoryRepo{items: map[string]int{"SATSHOP-1": 10}}
	svc := newTestService(t, repo, nil)

	result, err := svc.Adjust(context.Background(), AdjustInput{
		SKU:    "SATSHOP-1",
		Type:   enums.MovementTypeEdit,
		Amount: 25,
		Reason: "stocktake correction",
		Actor:  "staff:ops",
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if result.NewQuantity != 25 || result.Delta != 15 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAdjustRetriesOnLostRace(t *testing.T) {
	repo := &stubInventoryRepo{items: map[string]int{"SATSHOP-1": 10}, casFailures: 2}
	svc := newTestService(t, repo, nil)

	result, err := svc.Adjust(context.Background(), AdjustInput{
		SKU:    "SATSHOP-1",
		Type:   enums.MovementTypeRemove,
		Amount: 1,
		Reason: "damaged unit",
		Actor:  "staff:ops",
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if result.NewQuantity != 9 {
		t.Fatalf("unexpected quantity %d", result.NewQuantity)
	}
}

func TestAdjustConflictAfterExhaustedRetries(t *testing.T) {
	repo := &stubInventoryRepo{items: map[string]int{"SATSHOP-1": 10}, casFailures: 10}
	svc := newTestService(t, repo, nil)

	_, err := svc.Adjust(context.Background(), AdjustInput{
		SKU:    "SATSHOP-1",
		Type:   enums.MovementTypeSale,
		Amount: 1,
		Reason: "payment settled",
		Actor:  "system/webhook",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict after retries, got %v", err)
	}
}

func TestAdjustUnknownSKU(t *testing.T) {
	repo := &stubInventoryRepo{items: map[string]int{}}
	svc := newTestService(t, repo, nil)

	_, err := svc.Adjust(context.Background(), AdjustInput{
		SKU:    "GHOST",
		Type:   enums.MovementTypeSale,
		Amount: 1,
		Reason: "payment settled",
		Actor:  "system/webhook",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAdjustAddBootstrapsMissingSKU(t *testing.T) {
	repo := &stubInventoryRepo{items: map[string]int{}}
	svc := newTestService(t, repo, nil)

	result, err := svc.Adjust(context.Background(), AdjustInput{
		SKU:    "SATSHOP-1",
		Type:   enums.MovementTypeAdd,
		Amount: 25,
		Reason: "initial stock",
		Actor:  "staff:ops",
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if result.PrevQuantity != 0 || result.NewQuantity != 25 || result.Delta != 25 {
		t.Fatalf("unexpected result %+v", result)
	}
	if repo.items["SATSHOP-1"] != 25 {
		t.Fatalf("expected 25 in stock got %d", repo.items["SATSHOP-1"])
	}
	if len(repo.movements) != 1 || repo.movements[0].PrevQuantity != 0 {
		t.Fatalf("expected one movement from zero, got %+v", repo.movements)
	}
}

func TestAdjustLowStockNotification(t *testing.T) {
	repo := &stubInventoryRepo{items: map[string]int{"SATSHOP-1": 6}}
	notifier := &stubLowStockNotifier{}
	svc := newTestService(t, repo, notifier)

	_, err := svc.Adjust(context.Background(), AdjustInput{
		SKU:    "SATSHOP-1",
		Type:   enums.MovementTypeSale,
		Amount: 3,
		Reason: "payment settled",
		Actor:  "system/webhook",
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != 3 {
		t.Fatalf("expected one low stock ping at 3, got %v", notifier.calls)
	}

	// restocks never trigger the alert even while below threshold
	_, err = svc.Adjust(context.Background(), AdjustInput{
		SKU:    "SATSHOP-1",
		Type:   enums.MovementTypeAdd,
		Amount: 1,
		Reason: "restock",
		Actor:  "staff:ops",
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("restock should not alert, got %v", notifier.calls)
	}
}

func TestConcurrentSalesNeverGoNegative(t *testing.T) {
	const stock = 3
	const attempts = 10
	repo := &stubInventoryRepo{items: map[string]int{"SATSHOP-1": stock}}
	svc := newTestService(t, repo, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Adjust(context.Background(), AdjustInput{
				SKU:    "SATSHOP-1",
				Type:   enums.MovementTypeSale,
				Amount: 1,
				Reason: "payment settled",
				Actor:  "system/webhook",
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if repo.items["SATSHOP-1"] < 0 {
		t.Fatalf("quantity went negative: %d", repo.items["SATSHOP-1"])
	}
	if successes > stock {
		t.Fatalf("more successes (%d) than stock (%d)", successes, stock)
	}
	if len(repo.movements) != successes {
		t.Fatalf("movement count %d does not match successes %d", len(repo.movements), successes)
	}

	// replaying the movements reduces to the stored quantity
	replayed := stock
	for _, m := range repo.movements {
		replayed += m.Delta
	}
	if replayed != repo.items["SATSHOP-1"] {
		t.Fatalf("replayed %d != stored %d", replayed, repo.items["SATSHOP-1"])
	}
}
