package coupons

import (
	"context"
	"time"

	"github.com/clinicdesk/booking-engine/internal/pricing"
	"github.com/clinicdesk/booking-engine/pkg/logging"
)

// Validation is the outcome of a successful coupon check.
type Validation struct {
	Coupon      *Coupon
	Discount    int64
	FinalAmount int64
}

// Engine validates coupon codes against a checkout. Validation never mutates
// usage; redemption happens only on a confirmed payment.
type Engine struct {
	repo   Repository
	usage  UsageCounter
	clock  func() time.Time
	logger *logging.Logger
}

// NewEngine creates a coupon engine.
func NewEngine(repo Repository, usage UsageCounter, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		repo:   repo,
		usage:  usage,
		clock:  time.Now,
		logger: logger,
	}
}

// WithClock overrides the time source, for tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Validate runs the checks in a fixed order and computes the discount.
// Each failed check returns its specific reason error.
func (e *Engine) Validate(ctx context.Context, code string, amount int64, doctorID, procedureID, userID string) (*Validation, error) {
	coupon, err := e.repo.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	if (!coupon.ValidFrom.IsZero() && now.Before(coupon.ValidFrom)) ||
		(!coupon.ValidTo.IsZero() && now.After(coupon.ValidTo)) {
		return nil, ErrExpired
	}
	if amount < coupon.MinAmount {
		return nil, ErrBelowMinimum
	}
	if !applies(coupon.DoctorIDs, doctorID) || !applies(coupon.ProcedureIDs, procedureID) {
		return nil, ErrNotApplicable
	}

	global, user, err := e.usage.Counts(ctx, coupon.Code, userID)
	if err != nil {
		return nil, err
	}
	if coupon.UsageLimit > 0 && global >= coupon.UsageLimit {
		return nil, ErrUsageExceeded
	}
	if userID != "" && coupon.PerUserLimit > 0 && user >= coupon.PerUserLimit {
		return nil, ErrUsageExceeded
	}

	discount := coupon.DiscountFor(amount)
	return &Validation{
		Coupon:      coupon,
		Discount:    discount,
		FinalAmount: amount - discount,
	}, nil
}

// Redeem records one use of the coupon for the user, atomically enforcing the
// configured limits. Called by the payment reconciler on PAID confirmation.
func (e *Engine) Redeem(ctx context.Context, code, userID string) error {
	coupon, err := e.repo.Get(ctx, code)
	if err != nil {
		return err
	}
	return e.usage.Redeem(ctx, coupon.Code, userID, coupon.UsageLimit, coupon.PerUserLimit)
}

// DiscountFor computes the discount for the amount, capped at MaxDiscount and
// never exceeding the amount itself.
func (c *Coupon) DiscountFor(amount int64) int64 {
	var discount int64
	switch c.Type {
	case DiscountPercent:
		discount = pricing.RoundHalfUp(float64(amount) * float64(c.Value) / 100)
	case DiscountFixed:
		discount = c.Value
	}
	if c.MaxDiscount > 0 && discount > c.MaxDiscount {
		discount = c.MaxDiscount
	}
	if discount > amount {
		discount = amount
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

func applies(allowed []string, id string) bool {
	if len(allowed) == 0 {
		return true
	}
	if id == "" {
		return false
	}
	for _, a := range allowed {
		if a == id {
			return true
		}
	}
	return false
}
