package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/booking-engine/internal/api/router"
	"github.com/clinicdesk/booking-engine/internal/bookings"
	appconfig "github.com/clinicdesk/booking-engine/internal/config"
	"github.com/clinicdesk/booking-engine/internal/coupons"
	"github.com/clinicdesk/booking-engine/internal/gateway"
	"github.com/clinicdesk/booking-engine/internal/observability/metrics"
	"github.com/clinicdesk/booking-engine/internal/orders"
	"github.com/clinicdesk/booking-engine/internal/pricing"
	"github.com/clinicdesk/booking-engine/internal/reconcile"
	"github.com/clinicdesk/booking-engine/internal/slots"
	"github.com/clinicdesk/booking-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	// Slot ledger: redis-backed when replicas share hold state, in-memory
	// otherwise.
	var ledger slots.Ledger
	if cfg.UseRedisLedger {
		ledger = slots.NewRedisLedger(redisClient, cfg.HoldWindow)
	} else {
		ledger = slots.NewMemoryLedger(cfg.HoldWindow)
	}

	// Booking store and order repository: postgres when configured.
	var bookingStore bookings.Store
	var orderRepo orders.Repository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		bookingStore = bookings.NewPgxStore(pool)
		orderRepo = orders.NewPgxRepository(pool)
	} else {
		bookingStore = bookings.NewMemoryStore()
		orderRepo = orders.NewMemoryRepository()
	}

	// Payment gateway collaborator.
	var gw gateway.Client
	switch {
	case cfg.GatewayBaseURL != "":
		gw = gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewaySecret, cfg.GatewayTimeout, logger)
	case cfg.AllowFakeGateway:
		logger.Warn("using fake payment gateway, do not enable in production")
		gw = gateway.NewFakeClient(cfg.GatewaySecret)
	default:
		logger.Error("GATEWAY_BASE_URL is required unless ALLOW_FAKE_GATEWAY is set")
		os.Exit(1)
	}

	bookingMetrics := metrics.NewBookingMetrics(nil)

	directory := slots.NewMemoryDirectory(seedDoctors(cfg)...)
	slotService := slots.NewService(directory, ledger, bookingMetrics, logger)

	couponEngine := coupons.NewEngine(
		coupons.NewMemoryRepository(seedCoupons()...),
		coupons.NewRedisUsageCounter(redisClient),
		logger,
	)
	calculator := pricing.NewCalculator(cfg.ConvenienceFeePct, cfg.UrgencySurchargePct, cfg.UrgencySurchargeFlat)

	orchestrator := orders.NewOrchestrator(
		ledger, directory, couponEngine, calculator, gw,
		orderRepo, bookingStore, cfg.Currency, cfg.OrderExpiry, logger,
	)
	reconciler := reconcile.NewReconciler(gw, ledger, bookingStore, orderRepo, couponEngine, bookingMetrics, logger)

	sweeper := reconcile.NewSweeper(reconciler, cfg.SweepInterval, logger)
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	sweeper.Start(sweepCtx)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		SlotsHandler:       slots.NewHandler(slotService, logger),
		CouponsHandler:     coupons.NewHandler(couponEngine, logger),
		OrdersHandler:      orders.NewHandler(orchestrator, logger),
		BookingsHandler:    bookings.NewHandler(bookingStore, logger),
		PaymentWebhook:     reconcile.NewWebhookHandler(reconciler, reconcile.NewRedisProcessedTracker(redisClient), bookingMetrics, logger),
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: splitOrigins(cfg.CORSAllowedOrigins),
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	sweeper.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
