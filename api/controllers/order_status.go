package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/satoshishop/backend/api/responses"
	"github.com/satoshishop/backend/internal/orders"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
	"github.com/satoshishop/backend/pkg/redis"
)

const statusCacheTTL = 10 * time.Second

// statusCache is the slice of the Redis client the poll endpoint uses.
type statusCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(parts ...string) string
}

// OrderStatus is the unauthenticated poll endpoint. It returns only the
// status string so it leaks no payment or customer detail, and caches the
// answer briefly since storefronts poll it aggressively.
func OrderStatus(svc orders.Service, cache statusCache, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "reference"))
		reference, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order reference"))
			return
		}

		var cacheKey string
		if cache != nil {
			cacheKey = cache.CacheKey("order_status", reference.String())
			if status, err := cache.Get(ctx, cacheKey); err == nil && status != "" {
				responses.WriteSuccess(w, map[string]string{"status": status})
				return
			} else if err != nil && !redis.IsNil(err) {
				logg.Warn(ctx, "order status cache read failed")
			}
		}

		order, err := svc.GetByReference(ctx, reference)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status := order.Status.String()
		if cache != nil {
			if err := cache.Set(ctx, cacheKey, status, statusCacheTTL); err != nil {
				logg.Warn(ctx, "order status cache write failed")
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": status})
	}
}
