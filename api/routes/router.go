package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/satoshishop/backend/api/controllers"
	"github.com/satoshishop/backend/api/middleware"
	checkoutsvc "github.com/satoshishop/backend/internal/checkout"
	cronsvc "github.com/satoshishop/backend/internal/cron"
	"github.com/satoshishop/backend/internal/inventory"
	"github.com/satoshishop/backend/internal/orders"
	paymenthook "github.com/satoshishop/backend/internal/webhooks/payment"
	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/logger"
	"github.com/satoshishop/backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	inventoryService inventory.Service,
	webhookService paymenthook.Service,
	cronService cronsvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", controllers.Checkout(checkoutService, logg))
		r.Get("/orders/{reference}/status", controllers.OrderStatus(ordersService, redisClient, logg))

		// the processor calls with query parameters on either verb
		r.Get("/webhooks/payment", controllers.PaymentWebhook(webhookService, logg))
		r.Post("/webhooks/payment", controllers.PaymentWebhook(webhookService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/orders", controllers.AdminListOrders(ordersService, logg))
		r.Get("/orders/{orderId}", controllers.AdminOrderDetail(ordersService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOrderManagement(logg))

			r.Post("/orders", controllers.AdminCreateManualOrder(ordersService, logg))
			r.Post("/orders/{orderId}/ship", controllers.AdminShipOrder(ordersService, logg))
			r.Post("/orders/{orderId}/refund", controllers.AdminRefundOrder(ordersService, logg))
			r.Post("/orders/{orderId}/cancel", controllers.AdminCancelOrder(ordersService, logg))
			r.Post("/orders/{orderId}/status", controllers.AdminUpdateOrderStatus(ordersService, logg))

			r.Get("/inventory/{sku}/movements", controllers.AdminInventoryMovements(inventoryService, logg))
			r.Post("/inventory/{sku}/adjust", controllers.AdminAdjustInventory(inventoryService, logg))
		})
	})

	r.Route("/api/cron/v1", func(r chi.Router) {
		r.Use(middleware.CronSecret(cronService, logg))

		r.Post("/expire-pending", controllers.CronExpirePending(cronService, logg))
		r.Post("/poll-deliveries", controllers.CronPollDeliveries(cronService, logg))
	})

	return r
}
