package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/satoshishop/backend/api/routes"
	"github.com/satoshishop/backend/internal/checkout"
	"github.com/satoshishop/backend/internal/cron"
	"github.com/satoshishop/backend/internal/customers"
	"github.com/satoshishop/backend/internal/inventory"
	"github.com/satoshishop/backend/internal/notifications"
	"github.com/satoshishop/backend/internal/orders"
	paymenthook "github.com/satoshishop/backend/internal/webhooks/payment"
	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/db"
	"github.com/satoshishop/backend/pkg/logger"
	"github.com/satoshishop/backend/pkg/metrics"
	"github.com/satoshishop/backend/pkg/migrate"
	"github.com/satoshishop/backend/pkg/payment"
	"github.com/satoshishop/backend/pkg/redis"
	"github.com/satoshishop/backend/pkg/tracking"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	paymentClient, err := payment.NewClient(context.Background(), cfg.Payment, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment client", err)
		os.Exit(1)
	}

	// The tracking aggregator is optional. Without it shipments still go
	// out, they just never auto-advance to delivered.
	var trackingClient *tracking.Client
	if cfg.Tracking.BaseURL != "" {
		trackingClient, err = tracking.NewClient(context.Background(), cfg.Tracking, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create tracking client", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "tracking base url not set, delivery polling disabled")
	}

	dispatcher, err := notifications.NewDispatcher(
		cfg.Notify,
		notifications.NewEmailSender(cfg.Notify),
		notifications.NewSMSSender(cfg.Notify),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	inventoryRepo := inventory.NewRepository(dbClient.DB())
	customersRepo := customers.NewRepository(dbClient.DB())

	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	inventoryService, err := inventory.NewService(inventoryRepo, dbClient, cfg.Inventory, logg, dispatcher)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	pricer, err := checkout.NewPricer(cfg.Product)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricer", err)
		os.Exit(1)
	}

	var registrar orders.TrackingRegistrar
	if trackingClient != nil {
		registrar = trackingClient
	}
	ordersService, err := orders.NewService(ordersRepo, customersRepo, dbClient, inventoryService, dispatcher, registrar, pricer, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(
		ordersRepo,
		customersRepo,
		dbClient,
		inventoryService,
		paymentClient,
		redisClient,
		pricer,
		cfg.Product,
		cfg.RateLimit,
		cfg.Payment,
		orderMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookService, err := paymenthook.NewService(ordersRepo, dbClient, inventoryService, dispatcher, cfg.Payment.WebhookSecret, orderMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	var cronService cron.Service
	if trackingClient != nil {
		cronService, err = cron.NewService(ordersRepo, trackingClient, cfg.Cron, cronMetrics, logg)
	} else {
		cronService, err = cron.NewService(ordersRepo, nil, cfg.Cron, cronMetrics, logg)
	}
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, redisClient, checkoutService, ordersService, inventoryService, webhookService, cronService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
