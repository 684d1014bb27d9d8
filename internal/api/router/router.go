package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicdesk/booking-engine/internal/bookings"
	"github.com/clinicdesk/booking-engine/internal/coupons"
	httpmiddleware "github.com/clinicdesk/booking-engine/internal/http/middleware"
	"github.com/clinicdesk/booking-engine/internal/orders"
	"github.com/clinicdesk/booking-engine/internal/reconcile"
	"github.com/clinicdesk/booking-engine/internal/slots"
	"github.com/clinicdesk/booking-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	SlotsHandler       *slots.Handler
	CouponsHandler     *coupons.Handler
	OrdersHandler      *orders.Handler
	BookingsHandler    *bookings.Handler
	PaymentWebhook     *reconcile.WebhookHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/slots", func(r chi.Router) {
		r.Get("/available", cfg.SlotsHandler.ListAvailable)
		r.Post("/hold", cfg.SlotsHandler.Hold)
	})

	r.Post("/coupons/validate", cfg.CouponsHandler.Validate)
	r.Post("/payments/create-order", cfg.OrdersHandler.CreateOrder)

	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", cfg.BookingsHandler.Create)
		r.Get("/", cfg.BookingsHandler.List)
		r.Get("/{id}", cfg.BookingsHandler.Get)
	})

	if cfg.PaymentWebhook != nil {
		r.Post("/webhooks/payments", cfg.PaymentWebhook.Handle)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
