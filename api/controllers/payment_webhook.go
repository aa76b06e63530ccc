package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	paymenthook "github.com/satoshishop/backend/internal/webhooks/payment"
	"github.com/satoshishop/backend/pkg/logger"
)

// webhookAck is the fixed acknowledgement the processor expects. It retries
// the delivery until it sees exactly this body, so the handler returns it
// unconditionally with HTTP 200 regardless of the internal outcome.
const webhookAck = "ok"

// PaymentWebhook applies a settlement callback. Parameters arrive as query
// values per the processor's callback contract.
func PaymentWebhook(svc paymenthook.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			logg.Warn(ctx, "payment webhook received with no service wired")
			writeAck(w)
			return
		}

		query := r.URL.Query()
		event := paymenthook.Event{
			Reference: strings.TrimSpace(query.Get("reference")),
			Secret:    strings.TrimSpace(query.Get("secret")),
			Pending:   query.Get("pending") != "0",
		}
		if raw := strings.TrimSpace(query.Get("amount")); raw != "" {
			if amount, err := decimal.NewFromString(raw); err == nil {
				event.SettledAmount = &amount
			} else {
				logg.Warn(logg.WithField(ctx, "amount", raw), "payment webhook carried unparsable amount")
			}
		}

		svc.Process(ctx, event)
		writeAck(w)
	}
}

func writeAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(webhookAck))
}
