package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/satoshishop/backend/internal/customers"
	"github.com/satoshishop/backend/internal/inventory"
	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
	"github.com/satoshishop/backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier receives best-effort fan-out after a successful transition.
type Notifier interface {
	OrderShipped(ctx context.Context, order *models.Order)
	OrderRefunded(ctx context.Context, order *models.Order, amount int)
	OrderCancelled(ctx context.Context, order *models.Order)
	ManualOrderPlaced(ctx context.Context, order *models.Order)
}

// TrackingRegistrar registers a shipment with the carrier aggregator.
type TrackingRegistrar interface {
	Register(ctx context.Context, carrier, trackingNumber string) error
}

// PriceQuoter computes the discounted unit price and total for a quantity.
type PriceQuoter interface {
	Quote(qty int) (unitPrice, total int, err error)
}

// Service drives staff-side order mutations. Every status write goes through
// the transition table plus a conditional update keyed on the status the
// caller observed.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByReference(ctx context.Context, reference uuid.UUID) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, filters Filters) (*OrderList, error)
	Ship(ctx context.Context, input ShipInput) (*models.Order, error)
	Refund(ctx context.Context, input RefundInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	CreateManualOrder(ctx context.Context, input ManualOrderInput) (*models.Order, error)
}

// ShipInput captures the data required to mark an order shipped.
type ShipInput struct {
	OrderID        uuid.UUID
	Carrier        string
	TrackingNumber string
	ShippingCost   *int
	ActorID        uuid.UUID
	ActorName      string
}

// RefundInput captures a full or partial refund request. A nil Amount means
// refund the whole order.
type RefundInput struct {
	OrderID   uuid.UUID
	Amount    *int
	Reason    string
	ActorID   uuid.UUID
	ActorName string
}

// CancelInput captures an order cancellation.
type CancelInput struct {
	OrderID   uuid.UUID
	Reason    string
	ActorID   uuid.UUID
	ActorName string
}

// UpdateStatusInput drives the generic staff status endpoint. Ship fields are
// only consulted when the target status is shipped.
type UpdateStatusInput struct {
	OrderID        uuid.UUID
	Target         enums.OrderStatus
	Carrier        string
	TrackingNumber string
	ShippingCost   *int
	ActorID        uuid.UUID
	ActorName      string
}

// ManualOrderInput creates an order on behalf of a customer who paid outside
// the normal crypto flow. The order lands directly in paid.
type ManualOrderInput struct {
	Email     string
	Name      string
	Phone     *string
	Address   models.Address
	Qty       int
	SKU       string
	Note      string
	ActorID   uuid.UUID
	ActorName string
}

type service struct {
	repo      Repository
	customers customers.Repository
	tx        txRunner
	inventory inventory.Service
	notifier  Notifier
	tracking  TrackingRegistrar
	quoter    PriceQuoter
	logger    *logger.Logger
}

// NewService builds the staff order service with the required dependencies.
// Notifier and tracking may be nil, in which case those side effects are
// skipped.
func NewService(
	repo Repository,
	custRepo customers.Repository,
	tx txRunner,
	inv inventory.Service,
	notifier Notifier,
	tracking TrackingRegistrar,
	quoter PriceQuoter,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if custRepo == nil {
		return nil, fmt.Errorf("customers repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if quoter == nil {
		return nil, fmt.Errorf("price quoter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		customers: custRepo,
		tx:        tx,
		inventory: inv,
		notifier:  notifier,
		tracking:  tracking,
		quoter:    quoter,
		logger:    logg,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return order, nil
}

func (s *service) GetByReference(ctx context.Context, reference uuid.UUID) (*models.Order, error) {
	if reference == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference required")
	}
	order, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return order, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters Filters) (*OrderList, error) {
	list, err := s.repo.ListOrders(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *service) Ship(ctx context.Context, input ShipInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := ValidateShipInputs(input.Carrier, input.TrackingNumber); err != nil {
		return nil, err
	}

	var shipped *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return mapLookupError(err)
		}
		if err := ValidateTransition(order.Status, enums.OrderStatusShipped); err != nil {
			return err
		}

		now := time.Now().UTC()
		carrier := strings.TrimSpace(input.Carrier)
		trackingNumber := strings.TrimSpace(input.TrackingNumber)
		updates := map[string]any{
			"carrier":         carrier,
			"tracking_number": trackingNumber,
			"shipped_at":      now,
			"tracking_status": enums.TrackingStatusRegistered,
		}
		if input.ShippingCost != nil {
			updates["shipping_cost"] = *input.ShippingCost
		}

		ok, err := repo.TransitionStatus(ctx, order.ID, order.Status, enums.OrderStatusShipped, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed underneath this action, reload and retry")
		}

		order.Status = enums.OrderStatusShipped
		order.Carrier = &carrier
		order.TrackingNumber = &trackingNumber
		order.ShippingCost = input.ShippingCost
		order.ShippedAt = &now
		order.TrackingStatus = enums.TrackingStatusRegistered
		shipped = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.registerTracking(ctx, shipped)
	if s.notifier != nil {
		s.notifier.OrderShipped(ctx, shipped)
	}
	return shipped, nil
}

func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var refunded *models.Order
	var amount int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return mapLookupError(err)
		}

		amount = order.FiatAmount
		if input.Amount != nil {
			amount = *input.Amount
		}
		target, err := ClassifyRefund(amount, order.FiatAmount)
		if err != nil {
			return err
		}
		if err := ValidateTransition(order.Status, target); err != nil {
			return err
		}

		now := time.Now().UTC()
		ok, err := repo.TransitionStatus(ctx, order.ID, order.Status, target, map[string]any{
			"refunded_amount": amount,
			"refunded_at":     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed underneath this action, reload and retry")
		}

		note := &models.OrderNote{
			OrderID: order.ID,
			Author:  actorLabel(input.ActorName),
			Body:    refundNote(amount, order.FiatCurrency, input.Reason),
		}
		if err := repo.AppendNote(ctx, note); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append refund note")
		}

		order.Status = target
		order.RefundedAmount = &amount
		order.RefundedAt = &now
		refunded = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.restoreStock(ctx, refunded, enums.MovementTypeRefund, "order refunded", input.ActorName)
	if s.notifier != nil {
		s.notifier.OrderRefunded(ctx, refunded, amount)
	}
	return refunded, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var cancelled *models.Order
	var restock bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return mapLookupError(err)
		}
		if err := ValidateTransition(order.Status, enums.OrderStatusCancelled); err != nil {
			return err
		}

		// stock was only decremented once the order reached paid
		restock = order.Status == enums.OrderStatusPaid || order.Status == enums.OrderStatusProcessing

		now := time.Now().UTC()
		ok, err := repo.TransitionStatus(ctx, order.ID, order.Status, enums.OrderStatusCancelled, map[string]any{
			"cancelled_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed underneath this action, reload and retry")
		}

		if input.Reason != "" {
			note := &models.OrderNote{
				OrderID: order.ID,
				Author:  actorLabel(input.ActorName),
				Body:    "cancelled: " + input.Reason,
			}
			if err := repo.AppendNote(ctx, note); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append cancel note")
			}
		}

		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if restock {
		s.restoreStock(ctx, cancelled, enums.MovementTypeAdd, "order cancelled", input.ActorName)
	}
	if s.notifier != nil {
		s.notifier.OrderCancelled(ctx, cancelled)
	}
	return cancelled, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	switch input.Target {
	case enums.OrderStatusShipped:
		return s.Ship(ctx, ShipInput{
			OrderID:        input.OrderID,
			Carrier:        input.Carrier,
			TrackingNumber: input.TrackingNumber,
			ShippingCost:   input.ShippingCost,
			ActorID:        input.ActorID,
			ActorName:      input.ActorName,
		})
	case enums.OrderStatusCancelled:
		return s.Cancel(ctx, CancelInput{
			OrderID:   input.OrderID,
			ActorID:   input.ActorID,
			ActorName: input.ActorName,
		})
	case enums.OrderStatusRefunded, enums.OrderStatusPartiallyRefunded:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use the refund endpoint for refunds")
	case enums.OrderStatusProcessing, enums.OrderStatusDelivered:
		return s.simpleTransition(ctx, input.OrderID, input.Target)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("status %q cannot be set through this endpoint", input.Target))
	}
}

func (s *service) simpleTransition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return mapLookupError(err)
		}
		if err := ValidateTransition(order.Status, target); err != nil {
			return err
		}

		updates := map[string]any{}
		now := time.Now().UTC()
		if target == enums.OrderStatusDelivered {
			updates["delivered_at"] = now
			updates["tracking_status"] = enums.TrackingStatusDelivered
		}

		ok, err := repo.TransitionStatus(ctx, order.ID, order.Status, target, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed underneath this action, reload and retry")
		}

		order.Status = target
		if target == enums.OrderStatusDelivered {
			order.DeliveredAt = &now
			order.TrackingStatus = enums.TrackingStatusDelivered
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) CreateManualOrder(ctx context.Context, input ManualOrderInput) (*models.Order, error) {
	if err := validateManualOrderInput(input); err != nil {
		return nil, err
	}

	unitPrice, total, err := s.quoter.Quote(input.Qty)
	if err != nil {
		return nil, err
	}

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		orderNumber, err := GenerateOrderNumber(ctx, repo)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		staffID := input.ActorID
		order := &models.Order{
			Reference:    uuid.New(),
			OrderNumber:  orderNumber,
			Status:       enums.OrderStatusPaid,
			FiatAmount:   total,
			Email:        customers.NormalizeEmail(input.Email),
			ShippingAddr: input.Address,
			PlacedByStaff: func() *uuid.UUID {
				if staffID == uuid.Nil {
					return nil
				}
				return &staffID
			}(),
			PaidAt: &now,
			Items: []models.OrderItem{{
				SKU:       input.SKU,
				Qty:       input.Qty,
				UnitPrice: unitPrice,
				Total:     total,
			}},
		}
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create manual order")
		}

		if input.Note != "" {
			note := &models.OrderNote{
				OrderID: order.ID,
				Author:  actorLabel(input.ActorName),
				Body:    input.Note,
			}
			if err := repo.AppendNote(ctx, note); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append manual order note")
			}
		}

		custRepo := s.customers.WithTx(tx)
		if _, err := custRepo.Upsert(ctx, &models.Customer{
			Email: input.Email,
			Name:  input.Name,
			Phone: input.Phone,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert customer")
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	// manual orders decrement stock inline since no webhook will arrive
	if _, err := s.inventory.Adjust(ctx, inventory.AdjustInput{
		SKU:     input.SKU,
		Type:    enums.MovementTypeSale,
		Amount:  input.Qty,
		Reason:  "manual order",
		Actor:   actorLabel(input.ActorName),
		OrderID: &created.ID,
	}); err != nil {
		ctx = s.logger.WithOrderRef(ctx, created.Reference.String())
		s.logger.Error(ctx, "manual order stock adjustment failed", err)
	}

	if s.notifier != nil {
		s.notifier.ManualOrderPlaced(ctx, created)
	}
	return created, nil
}

func (s *service) registerTracking(ctx context.Context, order *models.Order) {
	if s.tracking == nil || order == nil || order.Carrier == nil || order.TrackingNumber == nil {
		return
	}
	if err := s.tracking.Register(ctx, *order.Carrier, *order.TrackingNumber); err != nil {
		ctx = s.logger.WithOrderRef(ctx, order.Reference.String())
		s.logger.Error(ctx, "tracking registration failed", err)
	}
}

// restoreStock puts an order's quantity back after a refund or cancellation.
// Failures are logged but never revert the transition that already happened.
func (s *service) restoreStock(ctx context.Context, order *models.Order, movement enums.MovementType, reason, actorName string) {
	if order == nil {
		return
	}
	for _, item := range order.Items {
		if item.Qty <= 0 {
			continue
		}
		orderID := order.ID
		if _, err := s.inventory.Adjust(ctx, inventory.AdjustInput{
			SKU:     item.SKU,
			Type:    movement,
			Amount:  item.Qty,
			Reason:  reason,
			Actor:   actorLabel(actorName),
			OrderID: &orderID,
		}); err != nil {
			ctx = s.logger.WithOrderRef(ctx, order.Reference.String())
			s.logger.Error(ctx, "stock restore failed", err)
		}
	}
}

func validateManualOrderInput(input ManualOrderInput) error {
	if strings.TrimSpace(input.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	if input.Qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if strings.TrimSpace(input.SKU) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	if strings.TrimSpace(input.Address.Line1) == "" || strings.TrimSpace(input.Address.City) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete")
	}
	return nil
}

func actorLabel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "staff"
	}
	return "staff:" + name
}

func refundNote(amount int, currency, reason string) string {
	note := fmt.Sprintf("refunded %d %s", amount, currency)
	if strings.TrimSpace(reason) != "" {
		note += ": " + reason
	}
	return note
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
