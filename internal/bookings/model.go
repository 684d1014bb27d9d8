package bookings

import (
	"errors"
	"time"

	"github.com/clinicdesk/booking-engine/internal/slots"
)

// Status of a booking. Transitions are monotonic: PENDING may move to PAID,
// FAILED or EXPIRED; PAID may move to REFUNDED; everything else is terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusPaid     Status = "PAID"
	StatusFailed   Status = "FAILED"
	StatusExpired  Status = "EXPIRED"
	StatusRefunded Status = "REFUNDED"
)

// Transition causes recorded in status history.
const (
	CauseCreated              = "CHECKOUT_STARTED"
	CausePaymentConfirmed     = "PAYMENT_CONFIRMED"
	CauseCheckoutExpired      = "CHECKOUT_EXPIRED"
	CauseSlotLostAfterPayment = "SLOT_LOST_AFTER_PAYMENT"
	CauseRefunded             = "REFUNDED"
)

var (
	// ErrNotFound is returned when no booking matches the lookup.
	ErrNotFound = errors.New("bookings: not found")
	// ErrInvalidTransition is returned for transitions the state machine
	// rejects.
	ErrInvalidTransition = errors.New("bookings: invalid status transition")
)

// StatusChange is one entry in a booking's ordered status history.
type StatusChange struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Cause  string    `json:"cause,omitempty"`
}

// Booking is the durable record of a checkout and its outcome.
type Booking struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	DoctorID    string         `json:"doctorId"`
	ProcedureID string         `json:"procedureId,omitempty"`
	Slot        slots.Ref      `json:"slot"`
	Amount      int64          `json:"amount"`
	Status      Status         `json:"status"`
	PaymentID   string         `json:"paymentId,omitempty"`
	OrderID     string         `json:"orderId"`
	HoldToken   string         `json:"-"`
	CouponCode  string         `json:"couponCode,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	History     []StatusChange `json:"statusHistory"`
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusPaid || to == StatusFailed || to == StatusExpired
	case StatusPaid:
		return to == StatusRefunded
	}
	return false
}
