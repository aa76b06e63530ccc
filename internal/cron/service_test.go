package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/satoshishop/backend/internal/orders"
	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
	"github.com/satoshishop/backend/pkg/pagination"
	"github.com/satoshishop/backend/pkg/tracking"
)

type stubOrdersRepo struct {
	byID    map[uuid.UUID]*models.Order
	pending []models.Order
	shipped []models.Order
	updates map[uuid.UUID]map[string]any
}

func newStubOrdersRepo(all ...*models.Order) *stubOrdersRepo {
	repo := &stubOrdersRepo{
		byID:    map[uuid.UUID]*models.Order{},
		updates: map[uuid.UUID]map[string]any{},
	}
	for _, order := range all {
		repo.byID[order.ID] = order
	}
	return repo
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrdersRepo) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) FindByReference(ctx context.Context, reference uuid.UUID) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) OrderNumberExists(ctx context.Context, orderNumber string) (bool, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.updates[id] = updates
	return nil
}

func (s *stubOrdersRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	order, ok := s.byID[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}

func (s *stubOrdersRepo) AppendNote(ctx context.Context, note *models.OrderNote) error {
	panic("not implemented")
}

func (s *stubOrdersRepo) ListOrders(ctx context.Context, params pagination.Params, filters orders.Filters) (*orders.OrderList, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	return s.pending, nil
}

func (s *stubOrdersRepo) FindShippedWithTracking(ctx context.Context) ([]models.Order, error) {
	return s.shipped, nil
}

func (s *stubOrdersRepo) CountByStatus(ctx context.Context, status enums.OrderStatus) (int64, error) {
	var count int64
	for _, order := range s.byID {
		if order.Status == status {
			count++
		}
	}
	return count, nil
}

type stubTracking struct {
	shipments map[string]*tracking.Shipment
	failures  map[string]error
}

func (s *stubTracking) Lookup(ctx context.Context, carrier, trackingNumber string) (*tracking.Shipment, error) {
	if err, ok := s.failures[trackingNumber]; ok {
		return nil, err
	}
	if shipment, ok := s.shipments[trackingNumber]; ok {
		return shipment, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
}

func testOrder(status enums.OrderStatus) *models.Order {
	return &models.Order{
		ID:        uuid.New(),
		Reference: uuid.New(),
		Status:    status,
	}
}

func shippedOrder(trackingNumber string) *models.Order {
	order := testOrder(enums.OrderStatusShipped)
	carrier := "dhl"
	order.Carrier = &carrier
	order.TrackingNumber = &trackingNumber
	order.TrackingStatus = enums.TrackingStatusInTransit
	return order
}

func newCronService(t *testing.T, repo *stubOrdersRepo, lookup trackingLookup, cfg config.CronConfig) Service {
	t.Helper()
	if cfg.PendingTTL == 0 {
		cfg.PendingTTL = 24 * time.Hour
	}
	logg := logger.New(logger.Options{Level: zerolog.Disabled})
	svc, err := NewService(repo, lookup, cfg, nil, logg)
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	return svc
}

func TestAuthorize(t *testing.T) {
	repo := newStubOrdersRepo()

	svc := newCronService(t, repo, nil, config.CronConfig{Secret: "sweep-secret"})
	if err := svc.Authorize("sweep-secret"); err != nil {
		t.Fatalf("valid secret rejected: %v", err)
	}
	if err := svc.Authorize("wrong"); err == nil {
		t.Fatal("wrong secret accepted")
	}

	// unconfigured secret fails closed
	open := newCronService(t, repo, nil, config.CronConfig{})
	if err := open.Authorize(""); err == nil {
		t.Fatal("unconfigured secret must reject everything")
	}
	if err := open.Authorize("anything"); err == nil {
		t.Fatal("unconfigured secret must reject everything")
	}
}

func TestExpirePending(t *testing.T) {
	stale1 := testOrder(enums.OrderStatusPending)
	stale2 := testOrder(enums.OrderStatusPending)
	repo := newStubOrdersRepo(stale1, stale2)
	repo.pending = []models.Order{*stale1, *stale2}

	svc := newCronService(t, repo, nil, config.CronConfig{})
	result, err := svc.ExpirePending(context.Background())
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if result.Scanned != 2 || result.Updated != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if stale1.Status != enums.OrderStatusExpired || stale2.Status != enums.OrderStatusExpired {
		t.Fatal("orders not expired")
	}
}

func TestExpirePendingSkipsRacedOrders(t *testing.T) {
	stale := testOrder(enums.OrderStatusPending)
	raced := testOrder(enums.OrderStatusPending)
	repo := newStubOrdersRepo(stale, raced)
	repo.pending = []models.Order{*stale, *raced}

	// the webhook settled this order between the scan and the sweep write
	raced.Status = enums.OrderStatusPaid

	svc := newCronService(t, repo, nil, config.CronConfig{})
	result, err := svc.ExpirePending(context.Background())
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if result.Scanned != 2 || result.Updated != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if raced.Status != enums.OrderStatusPaid {
		t.Fatal("paid order must not be expired")
	}
}

func TestPollDeliveriesMarksDelivered(t *testing.T) {
	delivered := shippedOrder("JD0001")
	moving := shippedOrder("JD0002")
	repo := newStubOrdersRepo(delivered, moving)
	repo.shipped = []models.Order{*delivered, *moving}

	lookup := &stubTracking{shipments: map[string]*tracking.Shipment{
		"JD0001": {
			Carrier:        "dhl",
			TrackingNumber: "JD0001",
			Status:         enums.TrackingStatusDelivered,
			Events: []tracking.Event{
				{Status: enums.TrackingStatusDelivered, Message: "left at door", OccurredAt: time.Now().UTC()},
			},
		},
		"JD0002": {
			Carrier:        "dhl",
			TrackingNumber: "JD0002",
			Status:         enums.TrackingStatusInTransit,
			Events: []tracking.Event{
				{Status: enums.TrackingStatusInTransit, OccurredAt: time.Now().UTC()},
			},
		},
	}}

	svc := newCronService(t, repo, lookup, config.CronConfig{})
	result, err := svc.PollDeliveries(context.Background())
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if result.Scanned != 2 || result.Updated != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if delivered.Status != enums.OrderStatusDelivered {
		t.Fatalf("expected delivered, got %s", delivered.Status)
	}
	if moving.Status != enums.OrderStatusShipped {
		t.Fatal("in-transit order must stay shipped")
	}
	if _, ok := repo.updates[moving.ID]; !ok {
		t.Fatal("in-transit order should get a tracking refresh")
	}
}

func TestPollDeliveriesIsolatesFailures(t *testing.T) {
	broken := shippedOrder("JD0001")
	healthy := shippedOrder("JD0002")
	repo := newStubOrdersRepo(broken, healthy)
	repo.shipped = []models.Order{*broken, *healthy}

	lookup := &stubTracking{
		failures: map[string]error{"JD0001": errors.New("aggregator timeout")},
		shipments: map[string]*tracking.Shipment{
			"JD0002": {
				Carrier:        "dhl",
				TrackingNumber: "JD0002",
				Status:         enums.TrackingStatusDelivered,
			},
		},
	}

	svc := newCronService(t, repo, lookup, config.CronConfig{})
	result, err := svc.PollDeliveries(context.Background())
	if err == nil {
		t.Fatal("expected the lookup failure to be reported")
	}
	if result.Updated != 1 {
		t.Fatalf("healthy order should still update, got %+v", result)
	}
	if healthy.Status != enums.OrderStatusDelivered {
		t.Fatal("one failed lookup must not abort the sweep")
	}
}

func TestPollDeliveriesWithoutTrackingClient(t *testing.T) {
	repo := newStubOrdersRepo()
	svc := newCronService(t, repo, nil, config.CronConfig{})

	result, err := svc.PollDeliveries(context.Background())
	if err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if result.Scanned != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

type stubLocker struct {
	values map[string]string
}

func (s *stubLocker) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.values == nil {
		s.values = map[string]string{}
	}
	if _, held := s.values[key]; held {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *stubLocker) Get(ctx context.Context, key string) (string, error) {
	value, ok := s.values[key]
	if !ok {
		return "", errors.New("redis: nil")
	}
	return value, nil
}

func (s *stubLocker) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func (s *stubLocker) LockKey(name string) string {
	return "ss:lock:" + name
}

func TestLockMutualExclusion(t *testing.T) {
	client := &stubLocker{}
	first := NewLock(client, "sweep", time.Minute)
	second := NewLock(client, "sweep", time.Minute)

	ok, err := first.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("first acquire failed: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil || ok {
		t.Fatalf("second acquire should be blocked: ok=%v err=%v", ok, err)
	}

	// release by a non-holder leaves the lock in place
	if err := second.Release(context.Background()); err != nil {
		t.Fatalf("non-holder release errored: %v", err)
	}
	if ok, _ := second.Acquire(context.Background()); ok {
		t.Fatal("lock should still be held")
	}

	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("holder release errored: %v", err)
	}
	if ok, _ := second.Acquire(context.Background()); !ok {
		t.Fatal("lock should be free after release")
	}
}
