package payment

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/satoshishop/backend/internal/inventory"
	"github.com/satoshishop/backend/internal/orders"
	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
	"github.com/satoshishop/backend/pkg/metrics"
)

// Outcome classifies how a webhook delivery was handled. The processor never
// sees these; it always gets the same acknowledgement.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
	OutcomeError     Outcome = "error"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier fans out confirmations after a settlement is recorded.
type Notifier interface {
	OrderPaid(ctx context.Context, order *models.Order)
}

// Event is one parsed webhook delivery from the payment processor.
type Event struct {
	Reference     string
	Secret        string
	Pending       bool
	SettledAmount *decimal.Decimal
}

// Service applies processor settlement callbacks to orders. Deliveries are
// at-least-once, so everything here has to tolerate replays.
type Service interface {
	Process(ctx context.Context, event Event) Outcome
}

type service struct {
	repo      orders.Repository
	tx        txRunner
	inventory inventory.Service
	notifier  Notifier
	secret    string
	metrics   *metrics.OrderMetrics
	logger    *logger.Logger
}

// NewService builds the webhook handler. An empty secret is allowed at
// construction but rejects every delivery, so an unconfigured deployment
// fails closed instead of trusting the network.
func NewService(
	repo orders.Repository,
	tx txRunner,
	inv inventory.Service,
	notifier Notifier,
	secret string,
	orderMetrics *metrics.OrderMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		inventory: inv,
		notifier:  notifier,
		secret:    secret,
		metrics:   orderMetrics,
		logger:    logg,
	}, nil
}

func (s *service) Process(ctx context.Context, event Event) Outcome {
	outcome := s.process(ctx, event)
	s.metrics.IncWebhook(string(outcome))
	return outcome
}

func (s *service) process(ctx context.Context, event Event) Outcome {
	if !s.secretMatches(event.Secret) {
		s.logger.Warn(ctx, "payment webhook rejected, bad or missing secret")
		return OutcomeRejected
	}

	reference, err := uuid.Parse(event.Reference)
	if err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "reference", event.Reference),
			"payment webhook rejected, malformed reference")
		return OutcomeRejected
	}
	ctx = s.logger.WithOrderRef(ctx, reference.String())

	// the processor reports pending progress too; only settlement matters
	if event.Pending {
		return OutcomeIgnored
	}

	var paid *models.Order
	duplicate := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByReference(ctx, reference)
		if err != nil {
			return err
		}

		// at-least-once delivery: a replay finds the order already paid
		if order.Status.AtOrBeyondPaid() {
			duplicate = true
			return nil
		}
		if err := orders.ValidateTransition(order.Status, enums.OrderStatusPaid); err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]any{"paid_at": now}
		if event.SettledAmount != nil {
			updates["settled_amount"] = *event.SettledAmount
		}
		ok, err := repo.TransitionStatus(ctx, order.ID, order.Status, enums.OrderStatusPaid, updates)
		if err != nil {
			return err
		}
		if !ok {
			// lost the race to a concurrent delivery of the same event
			duplicate = true
			return nil
		}

		order.Status = enums.OrderStatusPaid
		order.PaidAt = &now
		order.SettledAmount = event.SettledAmount
		paid = order
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn(ctx, "payment webhook for unknown order reference")
			return OutcomeRejected
		}
		s.logger.Error(ctx, "payment webhook processing failed", err)
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
			return OutcomeRejected
		}
		return OutcomeError
	}
	if duplicate {
		s.logger.Info(ctx, "payment webhook replay ignored")
		return OutcomeDuplicate
	}

	// everything past the transition is advisory: the payment already
	// happened, so failures are logged and reconciled out-of-band
	s.decrementStock(ctx, paid)
	if s.notifier != nil {
		s.notifier.OrderPaid(ctx, paid)
	}
	s.logger.Info(ctx, "payment settled, order marked paid")
	return OutcomeApplied
}

func (s *service) decrementStock(ctx context.Context, order *models.Order) {
	qty := order.TotalQuantity()
	if qty <= 0 || len(order.Items) == 0 {
		return
	}
	orderID := order.ID
	if _, err := s.inventory.Adjust(ctx, inventory.AdjustInput{
		SKU:     order.Items[0].SKU,
		Type:    enums.MovementTypeSale,
		Amount:  qty,
		Reason:  "payment settled",
		Actor:   "system/webhook",
		OrderID: &orderID,
	}); err != nil {
		s.logger.Error(ctx, "settlement stock decrement failed", err)
	}
}

func (s *service) secretMatches(provided string) bool {
	if s.secret == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.secret), []byte(provided)) == 1
}
