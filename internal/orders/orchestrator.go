package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicdesk/booking-engine/internal/bookings"
	"github.com/clinicdesk/booking-engine/internal/coupons"
	"github.com/clinicdesk/booking-engine/internal/gateway"
	"github.com/clinicdesk/booking-engine/internal/pricing"
	"github.com/clinicdesk/booking-engine/internal/slots"
	"github.com/clinicdesk/booking-engine/pkg/logging"
)

var tracer = otel.Tracer("booking-engine/orders")

// Orchestrator turns a held slot and a server-computed price into a gateway
// order plus a PENDING booking. The slot stays HELD; commit happens only on a
// confirmed payment.
type Orchestrator struct {
	ledger      slots.Ledger
	directory   slots.Directory
	coupons     *coupons.Engine
	pricing     *pricing.Calculator
	gateway     gateway.Client
	orders      Repository
	bookings    bookings.Store
	currency    string
	orderExpiry time.Duration
	clock       func() time.Time
	logger      *logging.Logger
}

// NewOrchestrator creates an order orchestrator.
func NewOrchestrator(
	ledger slots.Ledger,
	directory slots.Directory,
	couponEngine *coupons.Engine,
	calculator *pricing.Calculator,
	gw gateway.Client,
	repo Repository,
	store bookings.Store,
	currency string,
	orderExpiry time.Duration,
	logger *logging.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		ledger:      ledger,
		directory:   directory,
		coupons:     couponEngine,
		pricing:     calculator,
		gateway:     gw,
		orders:      repo,
		bookings:    store,
		currency:    currency,
		orderExpiry: orderExpiry,
		clock:       time.Now,
		logger:      logger,
	}
}

// WithClock overrides the time source, for tests.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// CreateOrderInput carries one checkout attempt. When HoldToken is empty the
// orchestrator places the hold itself from the slot fields. ClientAmount,
// when non-zero, is cross-checked against the server-side recomputation; the
// client never dictates the price.
type CreateOrderInput struct {
	HoldToken    string
	Slot         slots.Ref
	ProcedureID  string
	UserID       string
	CouponCode   string
	IsUrgent     bool
	ClientAmount int64
	Patient      Patient
	Receipt      string
}

// CreateOrder is idempotent on Receipt: a retry before expiry returns the
// original order without touching the gateway again.
func (o *Orchestrator) CreateOrder(ctx context.Context, in CreateOrderInput) (*PendingOrder, error) {
	ctx, span := tracer.Start(ctx, "orders.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.receipt", in.Receipt),
		attribute.String("slot.doctor_id", in.Slot.DoctorID),
	)

	now := o.clock()
	if existing, err := o.orders.GetByReceipt(ctx, in.Receipt); err == nil {
		if !existing.Expired(now) {
			span.SetAttributes(attribute.Bool("order.idempotent_replay", true))
			return existing, nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	token := in.HoldToken
	placedHold := false
	if token == "" {
		if err := o.ensureScheduled(ctx, in.Slot); err != nil {
			return nil, err
		}
		var err error
		token, err = o.ledger.Hold(ctx, in.Slot)
		if err != nil {
			return nil, err
		}
		placedHold = true
	} else {
		ref, err := o.ledger.Resolve(ctx, token)
		if err != nil {
			return nil, err
		}
		in.Slot = ref
	}

	order, err := o.buildOrder(ctx, in, token, now)
	if err != nil {
		if placedHold {
			if relErr := o.ledger.Release(ctx, token); relErr != nil {
				o.logger.Warn("failed to release hold after checkout error", "error", relErr)
			}
		}
		return nil, err
	}
	return order, nil
}

// ensureScheduled rejects holds for slots the doctor's working-hours template
// never derives, so the ledger only ever tracks real candidates. Holds placed
// through the slots service are validated the same way.
func (o *Orchestrator) ensureScheduled(ctx context.Context, ref slots.Ref) error {
	doctor, err := o.directory.Get(ctx, ref.DoctorID)
	if err != nil {
		return err
	}
	candidates, err := doctor.SlotsOn(ref.Date)
	if err != nil {
		return err
	}
	for _, slot := range candidates {
		if slot.StartTime == ref.StartTime {
			return nil
		}
	}
	return slots.ErrSlotUnavailable
}

func (o *Orchestrator) buildOrder(ctx context.Context, in CreateOrderInput, token string, now time.Time) (*PendingOrder, error) {
	doctor, err := o.directory.Get(ctx, in.Slot.DoctorID)
	if err != nil {
		return nil, err
	}

	var discount int64
	if in.CouponCode != "" {
		validation, err := o.coupons.Validate(ctx, in.CouponCode, doctor.FeeAmount, in.Slot.DoctorID, in.ProcedureID, in.UserID)
		if err != nil {
			return nil, err
		}
		discount = validation.Discount
	}

	quote := o.pricing.Compute(doctor.FeeAmount, discount, in.IsUrgent)
	if in.ClientAmount > 0 && in.ClientAmount != quote.Total {
		return nil, fmt.Errorf("%w: client sent %d, server computed %d", ErrPricingMismatch, in.ClientAmount, quote.Total)
	}

	gwOrder, err := o.gateway.CreateOrder(ctx, quote.Total, o.currency, in.Receipt, map[string]string{
		"doctor_id": in.Slot.DoctorID,
		"slot":      in.Slot.Date + " " + in.Slot.StartTime,
		"coupon":    in.CouponCode,
	})
	if err != nil {
		return nil, err
	}

	booking, err := o.bookings.Create(ctx, &bookings.Booking{
		UserID:      in.UserID,
		DoctorID:    in.Slot.DoctorID,
		ProcedureID: in.ProcedureID,
		Slot:        in.Slot,
		Amount:      quote.Total,
		OrderID:     gwOrder.ID,
		HoldToken:   token,
		CouponCode:  in.CouponCode,
	})
	if err != nil {
		return nil, fmt.Errorf("orders: create booking: %w", err)
	}

	order := &PendingOrder{
		OrderID:    gwOrder.ID,
		Receipt:    in.Receipt,
		Amount:     quote.Total,
		Currency:   o.currency,
		HoldToken:  token,
		BookingID:  booking.ID,
		UserID:     in.UserID,
		CouponCode: in.CouponCode,
		Slot:       in.Slot,
		Patient:    in.Patient,
		CreatedAt:  now,
		ExpiresAt:  now.Add(o.orderExpiry),
	}
	if err := o.orders.Create(ctx, order); err != nil {
		if errors.Is(err, ErrDuplicateReceipt) {
			// A concurrent retry with the same receipt won the race; hand
			// back its order instead of surfacing a conflict.
			if existing, lookupErr := o.orders.GetByReceipt(ctx, in.Receipt); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	o.logger.Info("order created",
		"order_id", order.OrderID,
		"booking_id", booking.ID,
		"doctor_id", in.Slot.DoctorID,
		"amount", quote.Total,
		"receipt", in.Receipt,
	)
	return order, nil
}
