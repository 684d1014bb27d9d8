package orders

import (
	"errors"
	"time"

	"github.com/clinicdesk/booking-engine/internal/slots"
)

var (
	// ErrNotFound is returned when no pending order matches the lookup.
	ErrNotFound = errors.New("orders: not found")
	// ErrDuplicateReceipt is returned when an unexpired order already holds
	// the receipt.
	ErrDuplicateReceipt = errors.New("orders: duplicate receipt")
	// ErrPricingMismatch is returned when the client-sent amount disagrees
	// with the server-side recomputation.
	ErrPricingMismatch = errors.New("orders: pricing mismatch")
)

// Patient is the contact snapshot captured at checkout.
type Patient struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,min=7"`
}

// PendingOrder ties a gateway order to a held slot awaiting payment. Receipt
// is the client-generated idempotency key: re-submitting the same receipt
// before expiry returns the same order.
type PendingOrder struct {
	OrderID    string    `json:"orderId"`
	Receipt    string    `json:"receipt"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	HoldToken  string    `json:"-"`
	BookingID  string    `json:"bookingId"`
	UserID     string    `json:"userId,omitempty"`
	CouponCode string    `json:"couponCode,omitempty"`
	Slot       slots.Ref `json:"slot"`
	Patient    Patient   `json:"patient"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the order's window has closed.
func (p *PendingOrder) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}
