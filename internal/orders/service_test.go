package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/satoshishop/backend/internal/customers"
	"github.com/satoshishop/backend/internal/inventory"
	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
	"github.com/satoshishop/backend/pkg/pagination"
)

type stubOrdersRepo struct {
	order   *models.Order
	notes   []models.OrderNote
	numbers map[string]bool
	created []*models.Order
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrdersRepo) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	s.created = append(s.created, order)
	return order, nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.order
	return &copied, nil
}

func (s *stubOrdersRepo) FindByReference(ctx context.Context, reference uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.Reference != reference {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.order
	return &copied, nil
}

func (s *stubOrdersRepo) OrderNumberExists(ctx context.Context, orderNumber string) (bool, error) {
	return s.numbers[orderNumber], nil
}

func (s *stubOrdersRepo) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return nil
}

func (s *stubOrdersRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	if s.order == nil || s.order.ID != id || s.order.Status != from {
		return false, nil
	}
	s.order.Status = to
	return true, nil
}

func (s *stubOrdersRepo) AppendNote(ctx context.Context, note *models.OrderNote) error {
	s.notes = append(s.notes, *note)
	return nil
}

func (s *stubOrdersRepo) ListOrders(ctx context.Context, params pagination.Params, filters Filters) (*OrderList, error) {
	return &OrderList{}, nil
}

func (s *stubOrdersRepo) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersRepo) FindShippedWithTracking(ctx context.Context) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersRepo) CountByStatus(ctx context.Context, status enums.OrderStatus) (int64, error) {
	return 0, nil
}

type stubCustomersRepo struct {
	upserts []models.Customer
}

func (s *stubCustomersRepo) WithTx(tx *gorm.DB) customers.Repository { return s }

func (s *stubCustomersRepo) Upsert(ctx context.Context, customer *models.Customer) (*models.Customer, error) {
	s.upserts = append(s.upserts, *customer)
	return customer, nil
}

func (s *stubCustomersRepo) FindByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return nil, gorm.ErrRecordNotFound
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type adjustCall struct {
	input inventory.AdjustInput
}

type stubInventoryService struct {
	calls []adjustCall
	err   error
}

func (s *stubInventoryService) Adjust(ctx context.Context, input inventory.AdjustInput) (*inventory.AdjustResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.calls = append(s.calls, adjustCall{input: input})
	return &inventory.AdjustResult{SKU: input.SKU}, nil
}

func (s *stubInventoryService) Quantity(ctx context.Context, sku string) (int, error) {
	return 100, nil
}

func (s *stubInventoryService) Movements(ctx context.Context, sku string, limit int) ([]models.InventoryMovement, error) {
	return nil, nil
}

type stubNotifier struct {
	shipped   int
	refunded  int
	cancelled int
	manual    int
}

func (s *stubNotifier) OrderShipped(ctx context.Context, order *models.Order)              { s.shipped++ }
func (s *stubNotifier) OrderRefunded(ctx context.Context, order *models.Order, amount int) { s.refunded++ }
func (s *stubNotifier) OrderCancelled(ctx context.Context, order *models.Order)            { s.cancelled++ }
func (s *stubNotifier) ManualOrderPlaced(ctx context.Context, order *models.Order)         { s.manual++ }

type stubRegistrar struct {
	registered []string
	err        error
}

func (s *stubRegistrar) Register(ctx context.Context, carrier, trackingNumber string) error {
	if s.err != nil {
		return s.err
	}
	s.registered = append(s.registered, carrier+":"+trackingNumber)
	return nil
}

type stubQuoter struct{}

func (stubQuoter) Quote(qty int) (int, int, error) {
	return 12, 12 * qty, nil
}

func paidOrder() *models.Order {
	return &models.Order{
		ID:           uuid.New(),
		Reference:    uuid.New(),
		OrderNumber:  "7K2ND",
		Status:       enums.OrderStatusPaid,
		FiatAmount:   24,
		FiatCurrency: "USD",
		Email:        "buyer@example.com",
		Items:        []models.OrderItem{{SKU: "SATSHOP-1", Qty: 2, UnitPrice: 12, Total: 24}},
	}
}

type testDeps struct {
	repo      *stubOrdersRepo
	customers *stubCustomersRepo
	inventory *stubInventoryService
	notifier  *stubNotifier
	registrar *stubRegistrar
}

func newTestService(t *testing.T, order *models.Order) (Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		repo:      &stubOrdersRepo{order: order},
		customers: &stubCustomersRepo{},
		inventory: &stubInventoryService{},
		notifier:  &stubNotifier{},
		registrar: &stubRegistrar{},
	}
	logg := logger.New(logger.Options{Level: zerolog.Disabled})
	svc, err := NewService(deps.repo, deps.customers, stubTxRunner{}, deps.inventory, deps.notifier, deps.registrar, stubQuoter{}, logg)
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	return svc, deps
}

func TestShip(t *testing.T) {
	order := paidOrder()
	svc, deps := newTestService(t, order)

	shipped, err := svc.Ship(context.Background(), ShipInput{
		OrderID:        order.ID,
		Carrier:        "dhl",
		TrackingNumber: "JD0123",
		ActorName:      "ops",
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if shipped.Status != enums.OrderStatusShipped {
		t.Fatalf("expected shipped, got %s", shipped.Status)
	}
	if deps.repo.order.Status != enums.OrderStatusShipped {
		t.Fatalf("store not updated, got %s", deps.repo.order.Status)
	}
	if len(deps.registrar.registered) != 1 || deps.registrar.registered[0] != "dhl:JD0123" {
		t.Fatalf("tracking not registered: %v", deps.registrar.registered)
	}
	if deps.notifier.shipped != 1 {
		t.Fatalf("expected one shipment notification, got %d", deps.notifier.shipped)
	}
	if len(deps.inventory.calls) != 0 {
		t.Fatal("shipping must not touch inventory")
	}
}

func TestShipMissingCarrier(t *testing.T) {
	order := paidOrder()
	svc, _ := newTestService(t, order)

	_, err := svc.Ship(context.Background(), ShipInput{
		OrderID:        order.ID,
		TrackingNumber: "JD0123",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestShipFromPendingRejected(t *testing.T) {
	order := paidOrder()
	order.Status = enums.OrderStatusPending
	svc, deps := newTestService(t, order)

	_, err := svc.Ship(context.Background(), ShipInput{
		OrderID:        order.ID,
		Carrier:        "dhl",
		TrackingNumber: "JD0123",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if deps.notifier.shipped != 0 {
		t.Fatal("no notification on rejected ship")
	}
}

func TestRefundFull(t *testing.T) {
	order := paidOrder()
	svc, deps := newTestService(t, order)

	refunded, err := svc.Refund(context.Background(), RefundInput{
		OrderID:   order.ID,
		Reason:    "customer request",
		ActorName: "ops",
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if refunded.Status != enums.OrderStatusRefunded {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}
	if len(deps.repo.notes) != 1 {
		t.Fatalf("expected one audit note, got %d", len(deps.repo.notes))
	}
	if len(deps.inventory.calls) != 1 {
		t.Fatalf("expected one inventory restore, got %d", len(deps.inventory.calls))
	}
	call := deps.inventory.calls[0].input
	if call.Type != enums.MovementTypeRefund || call.Amount != 2 {
		t.Fatalf("unexpected restore %+v", call)
	}
	if deps.notifier.refunded != 1 {
		t.Fatalf("expected refund notification, got %d", deps.notifier.refunded)
	}
}

func TestRefundPartial(t *testing.T) {
	order := paidOrder()
	svc, _ := newTestService(t, order)

	amount := 10
	refunded, err := svc.Refund(context.Background(), RefundInput{
		OrderID: order.ID,
		Amount:  &amount,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if refunded.Status != enums.OrderStatusPartiallyRefunded {
		t.Fatalf("expected partially refunded, got %s", refunded.Status)
	}
	if refunded.RefundedAmount == nil || *refunded.RefundedAmount != 10 {
		t.Fatal("refunded amount not recorded")
	}
}

func TestRefundInvalidAmount(t *testing.T) {
	order := paidOrder()
	svc, deps := newTestService(t, order)

	for _, amount := range []int{0, -5, 25} {
		a := amount
		_, err := svc.Refund(context.Background(), RefundInput{OrderID: order.ID, Amount: &a})
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("amount %d: expected validation error, got %v", amount, err)
		}
	}
	if len(deps.inventory.calls) != 0 {
		t.Fatal("rejected refunds must not touch inventory")
	}
}

func TestRefundFromShipped(t *testing.T) {
	order := paidOrder()
	order.Status = enums.OrderStatusShipped
	svc, _ := newTestService(t, order)

	refunded, err := svc.Refund(context.Background(), RefundInput{OrderID: order.ID})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if refunded.Status != enums.OrderStatusRefunded {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}
}

func TestCancelPendingSkipsRestock(t *testing.T) {
	order := paidOrder()
	order.Status = enums.OrderStatusPending
	svc, deps := newTestService(t, order)

	cancelled, err := svc.Cancel(context.Background(), CancelInput{OrderID: order.ID})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if cancelled.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if len(deps.inventory.calls) != 0 {
		t.Fatal("pending cancel must not restock")
	}
}

func TestCancelPaidRestocks(t *testing.T) {
	order := paidOrder()
	svc, deps := newTestService(t, order)

	_, err := svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, ActorName: "ops"})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(deps.inventory.calls) != 1 {
		t.Fatalf("expected one restock, got %d", len(deps.inventory.calls))
	}
	call := deps.inventory.calls[0].input
	if call.Type != enums.MovementTypeAdd || call.Amount != 2 {
		t.Fatalf("unexpected restock %+v", call)
	}
	if call.OrderID == nil || *call.OrderID != order.ID {
		t.Fatal("restock missing order link")
	}
}

func TestCancelShippedRejected(t *testing.T) {
	order := paidOrder()
	order.Status = enums.OrderStatusShipped
	svc, _ := newTestService(t, order)

	_, err := svc.Cancel(context.Background(), CancelInput{OrderID: order.ID})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestUpdateStatusProcessing(t *testing.T) {
	order := paidOrder()
	svc, _ := newTestService(t, order)

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusProcessing,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if updated.Status != enums.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", updated.Status)
	}
}

func TestUpdateStatusRefundRedirected(t *testing.T) {
	order := paidOrder()
	svc, _ := newTestService(t, order)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusRefunded,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateStatusArbitraryTargetRejected(t *testing.T) {
	order := paidOrder()
	svc, _ := newTestService(t, order)

	for _, target := range []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPaid, enums.OrderStatusExpired} {
		_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
			OrderID: order.ID,
			Target:  target,
		})
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("target %s: expected validation error, got %v", target, err)
		}
	}
}

func TestCreateManualOrder(t *testing.T) {
	svc, deps := newTestService(t, nil)

	staffID := uuid.New()
	order, err := svc.CreateManualOrder(context.Background(), ManualOrderInput{
		Email: "Buyer@Example.com ",
		Name:  "Jo Buyer",
		Address: models.Address{
			Name:       "Jo Buyer",
			Line1:      "1 Long Road",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
		Qty:       3,
		SKU:       "SATSHOP-1",
		Note:      "paid in cash at meetup",
		ActorID:   staffID,
		ActorName: "ops",
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if order.Status != enums.OrderStatusPaid {
		t.Fatalf("manual orders must start paid, got %s", order.Status)
	}
	if order.PaidAt == nil {
		t.Fatal("paid timestamp missing")
	}
	if order.FiatAmount != 36 {
		t.Fatalf("expected quoted total 36, got %d", order.FiatAmount)
	}
	if order.Email != "buyer@example.com" {
		t.Fatalf("email not normalized: %s", order.Email)
	}
	if order.PlacedByStaff == nil || *order.PlacedByStaff != staffID {
		t.Fatal("staff attribution missing")
	}
	if len(order.OrderNumber) != 5 {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if len(deps.customers.upserts) != 1 {
		t.Fatalf("expected customer upsert, got %d", len(deps.customers.upserts))
	}
	if len(deps.inventory.calls) != 1 {
		t.Fatalf("expected inline sale adjustment, got %d", len(deps.inventory.calls))
	}
	call := deps.inventory.calls[0].input
	if call.Type != enums.MovementTypeSale || call.Amount != 3 {
		t.Fatalf("unexpected adjustment %+v", call)
	}
	if deps.notifier.manual != 1 {
		t.Fatalf("expected warehouse notification, got %d", deps.notifier.manual)
	}
	if len(deps.repo.notes) != 1 {
		t.Fatalf("expected note, got %d", len(deps.repo.notes))
	}
}

func TestCreateManualOrderValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.CreateManualOrder(context.Background(), ManualOrderInput{
		Email: "buyer@example.com",
		Qty:   0,
		SKU:   "SATSHOP-1",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
