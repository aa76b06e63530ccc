package middleware

import (
	"net/http"
	"strings"

	"github.com/satoshishop/backend/api/responses"
	"github.com/satoshishop/backend/pkg/logger"
)

const cronSecretHeader = "X-Cron-Secret"

// CronAuthorizer matches the cron service's secret check so the middleware
// fails closed the same way the sweeps themselves do.
type CronAuthorizer interface {
	Authorize(providedSecret string) error
}

// CronSecret guards the sweep endpoints with the shared secret header.
func CronSecret(authorizer CronAuthorizer, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(cronSecretHeader))
			if err := authorizer.Authorize(provided); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
