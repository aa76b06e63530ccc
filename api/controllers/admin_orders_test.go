package controllers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/satoshishop/backend/api/middleware"
	"github.com/satoshishop/backend/internal/orders"
	"github.com/satoshishop/backend/pkg/db/models"
	"github.com/satoshishop/backend/pkg/enums"
	pkgerrors "github.com/satoshishop/backend/pkg/errors"
	"github.com/satoshishop/backend/pkg/pagination"
)

type stubAdminOrdersService struct {
	order *models.Order
	list  *orders.OrderList
	err   error

	shipInput   *orders.ShipInput
	refundInput *orders.RefundInput
	updateInput *orders.UpdateStatusInput
	manualInput *orders.ManualOrderInput
	listFilters *orders.Filters
}

func (s *stubAdminOrdersService) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubAdminOrdersService) GetByReference(ctx context.Context, reference uuid.UUID) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubAdminOrdersService) List(ctx context.Context, params pagination.Params, filters orders.Filters) (*orders.OrderList, error) {
	s.listFilters = &filters
	return s.list, s.err
}

func (s *stubAdminOrdersService) Ship(ctx context.Context, input orders.ShipInput) (*models.Order, error) {
	s.shipInput = &input
	return s.order, s.err
}

func (s *stubAdminOrdersService) Refund(ctx context.Context, input orders.RefundInput) (*models.Order, error) {
	s.refundInput = &input
	return s.order, s.err
}

func (s *stubAdminOrdersService) Cancel(ctx context.Context, input orders.CancelInput) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubAdminOrdersService) UpdateStatus(ctx context.Context, input orders.UpdateStatusInput) (*models.Order, error) {
	s.updateInput = &input
	return s.order, s.err
}

func (s *stubAdminOrdersService) CreateManualOrder(ctx context.Context, input orders.ManualOrderInput) (*models.Order, error) {
	s.manualInput = &input
	return s.order, s.err
}

func adminRequest(method, target string, body []byte, orderID uuid.UUID) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	ctx := middleware.WithStaff(req.Context(), uuid.New(), "staff@example.com", enums.StaffRoleAdmin)
	if orderID != uuid.Nil {
		rc := chi.NewRouteContext()
		rc.URLParams.Add("orderId", orderID.String())
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	return req.WithContext(ctx)
}

func TestAdminShipOrder(t *testing.T) {
	orderID := uuid.New()
	svc := &stubAdminOrdersService{order: &models.Order{ID: orderID, Status: enums.OrderStatusShipped}}

	body := []byte(`{"carrier":"dhl","tracking_number":"JD014600003","shipping_cost":450}`)
	resp := httptest.NewRecorder()
	AdminShipOrder(svc, testLogger()).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/admin/v1/orders/"+orderID.String()+"/ship", body, orderID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.shipInput == nil {
		t.Fatal("expected ship to be called")
	}
	if svc.shipInput.OrderID != orderID {
		t.Fatalf("unexpected order id %s", svc.shipInput.OrderID)
	}
	if svc.shipInput.Carrier != "dhl" || svc.shipInput.TrackingNumber != "JD014600003" {
		t.Fatalf("unexpected ship input %+v", svc.shipInput)
	}
	if svc.shipInput.ShippingCost == nil || *svc.shipInput.ShippingCost != 450 {
		t.Fatalf("unexpected shipping cost %v", svc.shipInput.ShippingCost)
	}
	if svc.shipInput.ActorID == uuid.Nil || svc.shipInput.ActorName != "staff@example.com" {
		t.Fatalf("expected staff identity on input, got %+v", svc.shipInput)
	}
}

func TestAdminShipOrderMissingTracking(t *testing.T) {
	orderID := uuid.New()
	svc := &stubAdminOrdersService{}

	body := []byte(`{"carrier":"dhl"}`)
	resp := httptest.NewRecorder()
	AdminShipOrder(svc, testLogger()).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/admin/v1/orders/"+orderID.String()+"/ship", body, orderID))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.shipInput != nil {
		t.Fatal("expected ship not to be called")
	}
}

func TestAdminShipOrderInvalidID(t *testing.T) {
	svc := &stubAdminOrdersService{}
	req := adminRequest(http.MethodPost, "/api/admin/v1/orders/nope/ship", []byte(`{"carrier":"dhl","tracking_number":"JD014600003"}`), uuid.Nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", "nope")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	resp := httptest.NewRecorder()
	AdminShipOrder(svc, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminRefundOrderStateConflict(t *testing.T) {
	orderID := uuid.New()
	svc := &stubAdminOrdersService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "cannot refund a pending order")}

	body := []byte(`{"reason":"customer request"}`)
	resp := httptest.NewRecorder()
	AdminRefundOrder(svc, testLogger()).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/admin/v1/orders/"+orderID.String()+"/refund", body, orderID))

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestAdminUpdateOrderStatusUnknownStatus(t *testing.T) {
	orderID := uuid.New()
	svc := &stubAdminOrdersService{}

	body := []byte(`{"status":"teleported"}`)
	resp := httptest.NewRecorder()
	AdminUpdateOrderStatus(svc, testLogger()).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/admin/v1/orders/"+orderID.String()+"/status", body, orderID))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.updateInput != nil {
		t.Fatal("expected update not to be called")
	}
}

func TestAdminUpdateOrderStatusShipped(t *testing.T) {
	orderID := uuid.New()
	svc := &stubAdminOrdersService{order: &models.Order{ID: orderID, Status: enums.OrderStatusShipped}}

	body := []byte(`{"status":"shipped","carrier":"dhl","tracking_number":"JD014600003"}`)
	resp := httptest.NewRecorder()
	AdminUpdateOrderStatus(svc, testLogger()).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/admin/v1/orders/"+orderID.String()+"/status", body, orderID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.updateInput == nil || svc.updateInput.Target != enums.OrderStatusShipped {
		t.Fatalf("unexpected update input %+v", svc.updateInput)
	}
	if svc.updateInput.Carrier != "dhl" {
		t.Fatalf("expected carrier forwarded, got %q", svc.updateInput.Carrier)
	}
}

func TestAdminCreateManualOrder(t *testing.T) {
	svc := &stubAdminOrdersService{order: &models.Order{ID: uuid.New(), Status: enums.OrderStatusPaid}}

	body := []byte(`{
		"email": "walkin@example.com",
		"name": "Walk In",
		"address": {
			"name": "Walk In",
			"line1": "2 Side St",
			"city": "Porto",
			"postal_code": "4000-001",
			"country": "pt"
		},
		"qty": 3,
		"sku": "SATSHOP-1",
		"note": "paid cash at the market stand"
	}`)
	resp := httptest.NewRecorder()
	AdminCreateManualOrder(svc, testLogger()).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/admin/v1/orders", body, uuid.Nil))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.manualInput == nil {
		t.Fatal("expected manual order to be created")
	}
	if svc.manualInput.Qty != 3 || svc.manualInput.SKU != "SATSHOP-1" {
		t.Fatalf("unexpected manual input %+v", svc.manualInput)
	}
	if svc.manualInput.Address.Country != "PT" {
		t.Fatalf("expected country upper-cased got %s", svc.manualInput.Address.Country)
	}
}

func TestAdminListOrdersFilters(t *testing.T) {
	svc := &stubAdminOrdersService{list: &orders.OrderList{}}

	req := adminRequest(http.MethodGet, "/api/admin/v1/orders?status=paid&q=walkin&limit=10", nil, uuid.Nil)
	resp := httptest.NewRecorder()
	AdminListOrders(svc, testLogger()).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.listFilters == nil {
		t.Fatal("expected list to be called")
	}
	if svc.listFilters.Status == nil || *svc.listFilters.Status != enums.OrderStatusPaid {
		t.Fatalf("unexpected status filter %+v", svc.listFilters.Status)
	}
	if svc.listFilters.Query != "walkin" {
		t.Fatalf("unexpected query filter %q", svc.listFilters.Query)
	}
}

func TestAdminListOrdersBadStatusFilter(t *testing.T) {
	svc := &stubAdminOrdersService{}

	req := adminRequest(http.MethodGet, "/api/admin/v1/orders?status=teleported", nil, uuid.Nil)
	resp := httptest.NewRecorder()
	AdminListOrders(svc, testLogger()).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
