package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/satoshishop/backend/api/middleware"
	"github.com/satoshishop/backend/api/responses"
	"github.com/satoshishop/backend/api/validators"
	internalorders "github.com/satoshishop/backend/internal/orders"
	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/logger"
	"github.com/satoshishop/backend/pkg/pagination"
)

// AdminListOrders returns a filtered, cursor-paginated order page.
func AdminListOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		filters, err := buildOrderFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminOrderDetail returns the full order with items and notes.
func AdminOrderDetail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type shipOrderRequest struct {
	Carrier        string `json:"carrier" validate:"required,min=2,max=50"`
	TrackingNumber string `json:"tracking_number" validate:"required,min=4,max=60"`
	ShippingCost   *int   `json:"shipping_cost" validate:"omitempty,min=0"`
}

// AdminShipOrder marks a paid order shipped with carrier and tracking data.
func AdminShipOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req shipOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Ship(r.Context(), internalorders.ShipInput{
			OrderID:        orderID,
			Carrier:        req.Carrier,
			TrackingNumber: req.TrackingNumber,
			ShippingCost:   req.ShippingCost,
			ActorID:        middleware.StaffIDFromContext(r.Context()),
			ActorName:      middleware.EmailFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type refundOrderRequest struct {
	Amount *int   `json:"amount" validate:"omitempty,min=1"`
	Reason string `json:"reason" validate:"max=500"`
}

// AdminRefundOrder refunds an order fully or partially.
func AdminRefundOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req refundOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Refund(r.Context(), internalorders.RefundInput{
			OrderID:   orderID,
			Amount:    req.Amount,
			Reason:    req.Reason,
			ActorID:   middleware.StaffIDFromContext(r.Context()),
			ActorName: middleware.EmailFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// AdminCancelOrder cancels an order, restocking when payment had settled.
func AdminCancelOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderID:   orderID,
			Reason:    req.Reason,
			ActorID:   middleware.StaffIDFromContext(r.Context()),
			ActorName: middleware.EmailFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type updateStatusRequest struct {
	Status         string `json:"status" validate:"required"`
	Carrier        string `json:"carrier" validate:"omitempty,min=2,max=50"`
	TrackingNumber string `json:"tracking_number" validate:"omitempty,min=4,max=60"`
	ShippingCost   *int   `json:"shipping_cost" validate:"omitempty,min=0"`
}

// AdminUpdateOrderStatus is the generic staff transition endpoint. Shipping
// fields are honored only when the target status is shipped.
func AdminUpdateOrderStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseOrderStatus(strings.TrimSpace(req.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, err.Error()))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID:        orderID,
			Target:         target,
			Carrier:        req.Carrier,
			TrackingNumber: req.TrackingNumber,
			ShippingCost:   req.ShippingCost,
			ActorID:        middleware.StaffIDFromContext(r.Context()),
			ActorName:      middleware.EmailFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type manualOrderRequest struct {
	Email   string                 `json:"email" validate:"required,email"`
	Name    string                 `json:"name" validate:"required,min=2,max=120"`
	Phone   *string                `json:"phone" validate:"omitempty,max=30"`
	Address checkoutAddressRequest `json:"address" validate:"required"`
	Qty     int                    `json:"qty" validate:"required,min=1,max=100"`
	SKU     string                 `json:"sku" validate:"required"`
	Note    string                 `json:"note" validate:"max=500"`
}

// AdminCreateManualOrder records an offline sale as a paid order.
func AdminCreateManualOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var req manualOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateManualOrder(r.Context(), internalorders.ManualOrderInput{
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
			Qty:       req.Qty,
			SKU:       req.SKU,
			Note:      req.Note,
			ActorID:   middleware.StaffIDFromContext(r.Context()),
			ActorName: middleware.EmailFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

func buildOrderFilters(r *http.Request) (internalorders.Filters, error) {
	filters := internalorders.Filters{
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		filters.Status = &status
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from date")
		}
		filters.DateFrom = &from
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to date")
		}
		filters.DateTo = &to
	}

	return filters, nil
}
