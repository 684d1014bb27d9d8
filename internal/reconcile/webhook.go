package reconcile

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/clinicdesk/booking-engine/internal/observability/metrics"
	"github.com/clinicdesk/booking-engine/pkg/logging"
)

// WebhookHandler receives gateway payment notifications. The user-facing
// response stays generic; specific causes go to the operational channel.
type WebhookHandler struct {
	reconciler *Reconciler
	processed  ProcessedTracker
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
}

// NewWebhookHandler creates the payment webhook handler.
func NewWebhookHandler(reconciler *Reconciler, processed ProcessedTracker, m *metrics.BookingMetrics, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		reconciler: reconciler,
		processed:  processed,
		metrics:    m,
		logger:     logger,
	}
}

type webhookEvent struct {
	EventID   string `json:"eventId"`
	Event     string `json:"event"` // payment.captured | payment.failed | payment.refunded
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
	Reason    string `json:"reason,omitempty"`
}

// Handle processes POST /webhooks/payments.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var evt webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.OrderID == "" || evt.Event == "" {
		http.Error(w, "missing event fields", http.StatusBadRequest)
		return
	}
	defer func() {
		h.metrics.ObserveWebhookLatency(evt.Event, time.Since(start).Seconds())
	}()

	if h.processed != nil && evt.EventID != "" {
		first, err := h.processed.MarkProcessed(r.Context(), evt.EventID)
		if err != nil {
			h.logger.Error("processed tracker failed", "error", err, "event_id", evt.EventID)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if !first {
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	var err error
	switch evt.Event {
	case "payment.captured":
		err = h.reconciler.OnConfirmation(r.Context(), evt.OrderID, evt.PaymentID, evt.Signature)
	case "payment.failed":
		err = h.reconciler.OnFailure(r.Context(), evt.OrderID, evt.Reason)
	case "payment.refunded":
		err = h.reconciler.OnRefund(r.Context(), evt.OrderID, evt.PaymentID)
	default:
		// Unhandled event types are acknowledged so the gateway stops
		// retrying them.
		w.WriteHeader(http.StatusOK)
		return
	}

	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrSignatureMismatch):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, ErrUnknownOrder):
		h.logger.Warn("webhook for unknown order", "order_id", evt.OrderID, "event", evt.Event)
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrSlotLost):
		// Recorded as a reconciliation exception; acknowledge so the
		// gateway does not redeliver.
		w.WriteHeader(http.StatusOK)
	default:
		h.logger.Error("webhook processing failed", "error", err, "order_id", evt.OrderID, "event", evt.Event)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}
