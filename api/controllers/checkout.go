package controllers

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/satoshishop/backend/api/responses"
	"github.com/satoshishop/backend/api/validators"
	"github.com/satoshishop/backend/internal/checkout"
	"github.com/satoshishop/backend/pkg/db/models"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
)

type checkoutAddressRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=120"`
	Line1      string `json:"line1" validate:"required,min=3,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,min=2,max=100"`
	PostalCode string `json:"postal_code" validate:"required,min=3,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
	Phone      string `json:"phone" validate:"max=30"`
}

type checkoutRequest struct {
	Email          string                 `json:"email" validate:"required,email"`
	Name           string                 `json:"name" validate:"required,min=2,max=120"`
	Phone          *string                `json:"phone" validate:"omitempty,max=30"`
	Address        checkoutAddressRequest `json:"address" validate:"required"`
	Qty            int                    `json:"qty" validate:"required,min=1,max=100"`
	CryptoCurrency string                 `json:"crypto_currency" validate:"required"`
}

type checkoutResponse struct {
	Reference      string `json:"reference"`
	OrderNumber    string `json:"order_number"`
	PaymentAddress string `json:"payment_address"`
	CryptoCurrency string `json:"crypto_currency"`
	CryptoAmount   string `json:"crypto_amount"`
	FiatAmount     int    `json:"fiat_amount"`
	FiatCurrency   string `json:"fiat_currency"`
	ExpiresAt      string `json:"expires_at"`
}

// Checkout accepts a storefront purchase request and returns the payment
// instructions for the resulting pending order.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Create(ctx, checkout.Input{
			Email: req.Email,
			Name:  req.Name,
			Phone: req.Phone,
			Address: models.Address{
				Name:       req.Address.Name,
				Line1:      req.Address.Line1,
				Line2:      req.Address.Line2,
				City:       req.Address.City,
				PostalCode: req.Address.PostalCode,
				Country:    strings.ToUpper(req.Address.Country),
				Phone:      req.Address.Phone,
			},
			Qty:            req.Qty,
			CryptoCurrency: req.CryptoCurrency,
			SourceIP:       clientIP(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Reference:      result.Reference.String(),
			OrderNumber:    result.OrderNumber,
			PaymentAddress: result.PaymentAddress,
			CryptoCurrency: result.CryptoCurrency.String(),
			CryptoAmount:   result.CryptoAmount.String(),
			FiatAmount:     result.FiatAmount,
			FiatCurrency:   result.FiatCurrency,
			ExpiresAt:      result.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
}

// clientIP prefers the forwarding header set by the edge proxy and falls
// back to the socket peer.
func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
