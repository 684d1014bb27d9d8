package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the reservation and payment
// reconciliation flows.
type BookingMetrics struct {
	holdsTotal       *prometheus.CounterVec
	paymentsTotal    *prometheus.CounterVec
	sweepExpired     prometheus.Counter
	reconcileExcepts prometheus.Counter
	webhookLatency   *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		holdsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "slots",
			Name:      "holds_total",
			Help:      "Total slot hold attempts by outcome",
		}, []string{"outcome"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "payments",
			Name:      "confirmations_total",
			Help:      "Total gateway confirmations by result",
		}, []string{"result"}),
		sweepExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "bookings",
			Name:      "sweep_expired_total",
			Help:      "Bookings expired by the sweep worker",
		}),
		reconcileExcepts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "payments",
			Name:      "reconciliation_exceptions_total",
			Help:      "Paid bookings that lost their slot and need a refund",
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicdesk",
			Subsystem: "payments",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of gateway webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.holdsTotal, m.paymentsTotal, m.sweepExpired, m.reconcileExcepts, m.webhookLatency)
	return m
}

func (m *BookingMetrics) ObserveHold(outcome string) {
	if m == nil {
		return
	}
	m.holdsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObservePayment(result string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepExpired.Add(float64(n))
}

func (m *BookingMetrics) ObserveReconciliationException() {
	if m == nil {
		return
	}
	m.reconcileExcepts.Inc()
}

func (m *BookingMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}
