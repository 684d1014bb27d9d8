// Package reconcile resolves asynchronous gateway outcomes into terminal
// booking states. Confirmations arrive at-least-once and can race the expiry
// sweep, so every path here has to be idempotent and the paid-after-expiry
// case is detected explicitly instead of silently succeeding or dropping.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicdesk/booking-engine/internal/bookings"
	"github.com/clinicdesk/booking-engine/internal/observability/metrics"
	"github.com/clinicdesk/booking-engine/internal/orders"
	"github.com/clinicdesk/booking-engine/internal/slots"
	"github.com/clinicdesk/booking-engine/pkg/logging"
)

func holdGone(err error) bool {
	return errors.Is(err, slots.ErrHoldExpired) || errors.Is(err, slots.ErrHoldNotFound)
}

var tracer = otel.Tracer("booking-engine/reconcile")

var (
	// ErrSignatureMismatch marks an unauthenticated confirmation. The
	// booking is left untouched.
	ErrSignatureMismatch = errors.New("reconcile: signature mismatch")
	// ErrUnknownOrder is returned when no booking references the order.
	ErrUnknownOrder = errors.New("reconcile: unknown order")
	// ErrSlotLost marks a verified payment whose slot hold had already
	// expired: a reconciliation exception requiring a refund.
	ErrSlotLost = errors.New("reconcile: slot lost after payment")
)

type signatureVerifier interface {
	VerifySignature(orderID, paymentID, signature string) bool
}

type slotLedger interface {
	Resolve(ctx context.Context, token string) (slots.Ref, error)
	Commit(ctx context.Context, token string) error
	Release(ctx context.Context, token string) error
}

type couponRedeemer interface {
	Redeem(ctx context.Context, code, userID string) error
}

// Reconciler applies the booking state machine to gateway events.
type Reconciler struct {
	verifier signatureVerifier
	ledger   slotLedger
	bookings bookings.Store
	orders   orders.Repository
	coupons  couponRedeemer
	metrics  *metrics.BookingMetrics
	clock    func() time.Time
	logger   *logging.Logger
	ops      *logging.Logger
}

// NewReconciler creates a payment reconciler.
func NewReconciler(
	verifier signatureVerifier,
	ledger slotLedger,
	store bookings.Store,
	repo orders.Repository,
	redeemer couponRedeemer,
	m *metrics.BookingMetrics,
	logger *logging.Logger,
) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		verifier: verifier,
		ledger:   ledger,
		bookings: store,
		orders:   repo,
		coupons:  redeemer,
		metrics:  m,
		clock:    time.Now,
		logger:   logger,
		ops:      logger.Ops(),
	}
}

// WithClock overrides the time source, for tests.
func (r *Reconciler) WithClock(clock func() time.Time) *Reconciler {
	r.clock = clock
	return r
}

// OnConfirmation processes a gateway success event. Replays of an already
// applied confirmation return nil without re-committing the slot or
// re-incrementing coupon usage.
func (r *Reconciler) OnConfirmation(ctx context.Context, orderID, paymentID, signature string) error {
	ctx, span := tracer.Start(ctx, "reconcile.confirmation")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	if !r.verifier.VerifySignature(orderID, paymentID, signature) {
		r.ops.Warn("payment confirmation failed signature verification",
			"order_id", orderID,
			"payment_id", paymentID,
		)
		r.metrics.ObservePayment("signature_mismatch")
		return ErrSignatureMismatch
	}

	booking, err := r.bookings.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, bookings.ErrNotFound) {
			return ErrUnknownOrder
		}
		return err
	}

	switch booking.Status {
	case bookings.StatusPaid:
		if booking.PaymentID == paymentID {
			return nil
		}
		r.ops.Warn("second payment reported for paid booking",
			"booking_id", booking.ID,
			"order_id", orderID,
			"payment_id", paymentID,
			"recorded_payment_id", booking.PaymentID,
		)
		return nil
	case bookings.StatusExpired, bookings.StatusFailed:
		// Money was captured after the checkout was already closed out.
		return r.flagSlotLost(ctx, booking, orderID, paymentID, false)
	case bookings.StatusRefunded:
		return nil
	}

	if _, err := r.ledger.Resolve(ctx, booking.HoldToken); err != nil {
		if holdGone(err) {
			return r.flagSlotLost(ctx, booking, orderID, paymentID, true)
		}
		return fmt.Errorf("reconcile: resolve hold: %w", err)
	}

	// Claim the booking with the conditional write before touching the
	// ledger. A sweep that wins the status race then loses cleanly instead of
	// leaving a booked slot behind an expired booking.
	if _, err := r.bookings.Transition(ctx, booking.ID, bookings.StatusPaid, bookings.CausePaymentConfirmed, paymentID); err != nil {
		if errors.Is(err, bookings.ErrInvalidTransition) {
			latest, getErr := r.bookings.Get(ctx, booking.ID)
			if getErr != nil {
				return fmt.Errorf("reconcile: reload booking: %w", getErr)
			}
			switch latest.Status {
			case bookings.StatusExpired, bookings.StatusFailed:
				return r.flagSlotLost(ctx, latest, orderID, paymentID, false)
			default:
				return nil
			}
		}
		return fmt.Errorf("reconcile: mark paid: %w", err)
	}

	if err := r.ledger.Commit(ctx, booking.HoldToken); err != nil {
		if holdGone(err) {
			// Money captured and the claim stuck, but the hold lapsed between
			// the resolve check and the commit. The booking stays PAID and
			// the refund path takes it from here.
			return r.flagSlotLost(ctx, booking, orderID, paymentID, false)
		}
		return fmt.Errorf("reconcile: commit slot: %w", err)
	}
	if booking.CouponCode != "" {
		if err := r.coupons.Redeem(ctx, booking.CouponCode, booking.UserID); err != nil {
			r.ops.Warn("coupon redemption failed on paid booking",
				"booking_id", booking.ID,
				"coupon", booking.CouponCode,
				"error", err,
			)
		}
	}
	r.metrics.ObservePayment("paid")
	r.logger.Info("booking paid",
		"booking_id", booking.ID,
		"order_id", orderID,
		"payment_id", paymentID,
	)
	return nil
}

// OnFailure processes a gateway failure event: the booking fails and the
// slot returns to the pool immediately.
func (r *Reconciler) OnFailure(ctx context.Context, orderID, reason string) error {
	ctx, span := tracer.Start(ctx, "reconcile.failure")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	booking, err := r.bookings.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, bookings.ErrNotFound) {
			return ErrUnknownOrder
		}
		return err
	}
	if booking.Status != bookings.StatusPending {
		return nil
	}

	if reason == "" {
		reason = "GATEWAY_FAILURE"
	}
	if _, err := r.bookings.Transition(ctx, booking.ID, bookings.StatusFailed, reason, ""); err != nil {
		return fmt.Errorf("reconcile: mark failed: %w", err)
	}
	if err := r.ledger.Release(ctx, booking.HoldToken); err != nil {
		r.logger.Warn("release after failure", "error", err, "booking_id", booking.ID)
	}
	r.metrics.ObservePayment("failed")
	return nil
}

// OnRefund records a refund for a paid booking.
func (r *Reconciler) OnRefund(ctx context.Context, orderID, paymentID string) error {
	booking, err := r.bookings.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, bookings.ErrNotFound) {
			return ErrUnknownOrder
		}
		return err
	}
	if booking.Status == bookings.StatusRefunded {
		return nil
	}
	if _, err := r.bookings.Transition(ctx, booking.ID, bookings.StatusRefunded, bookings.CauseRefunded, paymentID); err != nil {
		return fmt.Errorf("reconcile: mark refunded: %w", err)
	}
	r.metrics.ObservePayment("refunded")
	return nil
}

// SweepExpired expires bookings still PENDING past their order window and
// frees their slots. Returns how many bookings were expired.
func (r *Reconciler) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := r.orders.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("reconcile: list expired: %w", err)
	}

	swept := 0
	for _, order := range expired {
		booking, err := r.bookings.Get(ctx, order.BookingID)
		if err != nil {
			r.logger.Warn("sweep: booking lookup failed", "error", err, "order_id", order.OrderID)
			continue
		}
		if booking.Status == bookings.StatusPending {
			if _, err := r.bookings.Transition(ctx, booking.ID, bookings.StatusExpired, bookings.CauseCheckoutExpired, ""); err != nil {
				r.logger.Warn("sweep: expire transition failed", "error", err, "booking_id", booking.ID)
				continue
			}
			if err := r.ledger.Release(ctx, booking.HoldToken); err != nil && !holdGone(err) {
				r.logger.Warn("sweep: release failed", "error", err, "booking_id", booking.ID)
			}
			swept++
		}
		if err := r.orders.Delete(ctx, order.OrderID); err != nil {
			r.logger.Warn("sweep: order cleanup failed", "error", err, "order_id", order.OrderID)
		}
	}
	r.metrics.ObserveSwept(swept)
	return swept, nil
}

func (r *Reconciler) flagSlotLost(ctx context.Context, booking *bookings.Booking, orderID, paymentID string, transition bool) error {
	if transition {
		if _, err := r.bookings.Transition(ctx, booking.ID, bookings.StatusFailed, bookings.CauseSlotLostAfterPayment, ""); err != nil {
			return fmt.Errorf("reconcile: mark slot lost: %w", err)
		}
	}
	r.ops.Error("payment captured but slot lost, refund required",
		"booking_id", booking.ID,
		"order_id", orderID,
		"payment_id", paymentID,
		"cause", bookings.CauseSlotLostAfterPayment,
	)
	r.metrics.ObserveReconciliationException()
	r.metrics.ObservePayment("slot_lost")
	return fmt.Errorf("%w: booking %s", ErrSlotLost, booking.ID)
}
