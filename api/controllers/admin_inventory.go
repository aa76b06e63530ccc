package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/satoshishop/backend/api/middleware"
	"github.com/satoshishop/backend/api/responses"
	"github.com/satoshishop/backend/api/validators"
	"github.com/satoshishop/backend/internal/inventory"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
)

type adjustInventoryRequest struct {
	Type    string  `json:"type" validate:"required"`
	Amount  int     `json:"amount" validate:"min=0"`
	Reason  string  `json:"reason" validate:"required,min=3,max=500"`
	OrderID *string `json:"order_id" validate:"omitempty,uuid"`
}

// AdminAdjustInventory applies a staff stock adjustment to a SKU.
func AdminAdjustInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		sku := strings.TrimSpace(chi.URLParam(r, "sku"))
		if sku == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "sku is required"))
			return
		}

		var req adjustInventoryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movementType, err := enums.ParseMovementType(strings.TrimSpace(req.Type))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, err.Error()))
			return
		}

		input := inventory.AdjustInput{
			SKU:    sku,
			Type:   movementType,
			Amount: req.Amount,
			Reason: req.Reason,
			Actor:  staffActor(r),
		}
		if req.OrderID != nil {
			orderID, err := uuid.Parse(*req.OrderID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
				return
			}
			input.OrderID = &orderID
		}

		result, err := svc.Adjust(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminInventoryMovements returns the most recent movements for a SKU.
func AdminInventoryMovements(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		sku := strings.TrimSpace(chi.URLParam(r, "sku"))
		if sku == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "sku is required"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movements, err := svc.Movements(r.Context(), sku, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quantity, err := svc.Quantity(r.Context(), sku)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"sku":       sku,
			"quantity":  quantity,
			"movements": movements,
		})
	}
}

func staffActor(r *http.Request) string {
	email := strings.TrimSpace(middleware.EmailFromContext(r.Context()))
	if email == "" {
		return "staff"
	}
	return "staff:" + email
}
