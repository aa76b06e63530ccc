package cron

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/satoshishop/backend/internal/orders"
	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
	"github.com/satoshishop/backend/pkg/metrics"
	"github.com/satoshishop/backend/pkg/tracking"
)

const (
	jobExpirePending  = "expire_pending"
	jobPollDeliveries = "poll_deliveries"
)

// trackingLookup is the slice of the tracking client the poller uses.
type trackingLookup interface {
	Lookup(ctx context.Context, carrier, trackingNumber string) (*tracking.Shipment, error)
}

// SweepResult reports what a single sweep touched.
type SweepResult struct {
	Scanned int
	Updated int
}

// Service runs the background sweeps. Each sweep is a stateless pass invoked
// per cron tick; overlapping invocations are safe because every status write
// is conditional on the status the sweep observed.
type Service interface {
	Authorize(providedSecret string) error
	ExpirePending(ctx context.Context) (*SweepResult, error)
	PollDeliveries(ctx context.Context) (*SweepResult, error)
}

type service struct {
	repo     orders.Repository
	tracking trackingLookup
	cfg      config.CronConfig
	metrics  *metrics.CronJobMetrics
	logger   *logger.Logger
}

// NewService wires the sweepers. The tracking client may be nil, which turns
// the delivery poller into a no-op.
func NewService(
	repo orders.Repository,
	trackingClient trackingLookup,
	cfg config.CronConfig,
	cronMetrics *metrics.CronJobMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.PendingTTL <= 0 {
		return nil, fmt.Errorf("pending ttl must be positive")
	}
	return &service{
		repo:     repo,
		tracking: trackingClient,
		cfg:      cfg,
		metrics:  cronMetrics,
		logger:   logg,
	}, nil
}

// Authorize checks the shared sweep secret. An unconfigured secret rejects
// everything rather than letting the sweeps run open.
func (s *service) Authorize(providedSecret string) error {
	if s.cfg.Secret == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "cron secret is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(s.cfg.Secret), []byte(providedSecret)) != 1 {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid cron secret")
	}
	return nil
}

// ExpirePending moves orders that sat unpaid past the pending TTL to
// expired. Stock is untouched since pending orders never decremented it.
func (s *service) ExpirePending(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	result, err := s.expirePending(ctx)
	s.metrics.ObserveDuration(jobExpirePending, time.Since(start))
	if err != nil {
		s.metrics.IncFailure(jobExpirePending)
		return result, err
	}
	s.metrics.IncSuccess(jobExpirePending)
	return result, nil
}

func (s *service) expirePending(ctx context.Context) (*SweepResult, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.PendingTTL)
	stale, err := s.repo.FindPendingBefore(ctx, cutoff)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending orders")
	}

	result := &SweepResult{Scanned: len(stale)}
	var errs error
	for _, order := range stale {
		now := time.Now().UTC()
		ok, err := s.repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusExpired, map[string]any{
			"expired_at": now,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.Reference, err))
			continue
		}
		if !ok {
			// the order moved (most likely paid) between the scan and
			// this write; leave it alone
			continue
		}
		result.Updated++
	}

	fields := map[string]any{
		"scanned": result.Scanned,
		"expired": result.Updated,
	}
	if remaining, err := s.repo.CountByStatus(ctx, enums.OrderStatusPending); err == nil {
		fields["pending_remaining"] = remaining
	}
	logCtx := s.logger.WithFields(ctx, fields)
	s.logger.Info(logCtx, "pending expiration sweep finished")
	return result, errs
}

// PollDeliveries refreshes tracking for every shipped order and marks the
// delivered ones. One order's lookup failure never aborts the sweep.
func (s *service) PollDeliveries(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	result, err := s.pollDeliveries(ctx)
	s.metrics.ObserveDuration(jobPollDeliveries, time.Since(start))
	if err != nil {
		s.metrics.IncFailure(jobPollDeliveries)
		return result, err
	}
	s.metrics.IncSuccess(jobPollDeliveries)
	return result, nil
}

func (s *service) pollDeliveries(ctx context.Context) (*SweepResult, error) {
	if s.tracking == nil {
		return &SweepResult{}, nil
	}

	shipped, err := s.repo.FindShippedWithTracking(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipped orders")
	}

	result := &SweepResult{Scanned: len(shipped)}
	var errs error
	for _, order := range shipped {
		if err := s.refreshTracking(ctx, order, result); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.Reference, err))
		}
	}

	logCtx := s.logger.WithFields(ctx, map[string]any{
		"scanned": result.Scanned,
		"updated": result.Updated,
	})
	s.logger.Info(logCtx, "delivery poll sweep finished")
	return result, errs
}

func (s *service) refreshTracking(ctx context.Context, order models.Order, result *SweepResult) error {
	if order.Carrier == nil || order.TrackingNumber == nil {
		return nil
	}

	shipment, err := s.tracking.Lookup(ctx, *order.Carrier, *order.TrackingNumber)
	if err != nil {
		return err
	}

	events := make([]models.TrackingEvent, 0, len(shipment.Events))
	for _, event := range shipment.Events {
		events = append(events, models.TrackingEvent{
			Status:     event.Status.String(),
			Message:    event.Message,
			OccurredAt: event.OccurredAt,
		})
	}
	// the column is jsonb and map-based updates bypass the model serializer
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return err
	}

	if shipment.Status == enums.TrackingStatusDelivered {
		now := time.Now().UTC()
		ok, err := s.repo.TransitionStatus(ctx, order.ID, enums.OrderStatusShipped, enums.OrderStatusDelivered, map[string]any{
			"delivered_at":    now,
			"tracking_status": enums.TrackingStatusDelivered,
			"tracking_events": eventsJSON,
		})
		if err != nil {
			return err
		}
		if ok {
			result.Updated++
		}
		return nil
	}

	if shipment.Status == order.TrackingStatus && len(events) == len(order.TrackingEvents) {
		return nil
	}
	if err := s.repo.UpdateOrder(ctx, order.ID, map[string]any{
		"tracking_status": shipment.Status,
		"tracking_events": eventsJSON,
	}); err != nil {
		return err
	}
	result.Updated++
	return nil
}
