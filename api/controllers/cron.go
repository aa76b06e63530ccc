package controllers

import (
	"net/http"

	"github.com/satoshishop/backend/api/responses"
	"github.com/satoshishop/backend/internal/cron"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
)

// CronExpirePending runs the stale-pending expiration sweep.
func CronExpirePending(svc cron.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cron service unavailable"))
			return
		}

		result, err := svc.ExpirePending(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expiration sweep"))
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CronPollDeliveries runs the tracking refresh sweep.
func CronPollDeliveries(svc cron.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cron service unavailable"))
			return
		}

		result, err := svc.PollDeliveries(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delivery sweep"))
			return
		}
		responses.WriteSuccess(w, result)
	}
}
