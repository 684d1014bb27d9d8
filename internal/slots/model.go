package slots

import (
	"errors"
	"time"
)

// Status of a slot within the ledger.
type Status string

const (
	StatusFree   Status = "FREE"
	StatusHeld   Status = "HELD"
	StatusBooked Status = "BOOKED"
)

var (
	// ErrSlotUnavailable is returned when a hold targets a slot that is
	// booked or held by another live checkout.
	ErrSlotUnavailable = errors.New("slots: slot unavailable")
	// ErrHoldExpired is returned when a hold token is known but its window
	// has passed.
	ErrHoldExpired = errors.New("slots: hold expired")
	// ErrHoldNotFound is returned when a hold token does not reference any
	// live hold.
	ErrHoldNotFound = errors.New("slots: hold not found")
	// ErrDoctorNotFound is returned by the directory for unknown doctors.
	ErrDoctorNotFound = errors.New("slots: doctor not found")
)

// Ref identifies a bookable slot: one doctor, one date, one start time.
type Ref struct {
	DoctorID  string `json:"doctorId"`
	Date      string `json:"date"`      // YYYY-MM-DD
	StartTime string `json:"startTime"` // HH:MM, 24h clock
}

// Key returns the ledger key for the slot identity.
func (r Ref) Key() string {
	return r.DoctorID + "|" + r.Date + "|" + r.StartTime
}

// Slot is a candidate appointment window derived from a doctor's schedule.
type Slot struct {
	Ref
	Duration time.Duration `json:"-"`
}

// Window is a working-hours interval within a day, e.g. 09:00-13:00.
type Window struct {
	Start string
	End   string
}

// Doctor describes the scheduling and pricing attributes of a provider. The
// backing data lives with the booking backend; this is the engine's view.
type Doctor struct {
	ID           string
	Name         string
	FeeAmount    int64 // consultation fee in the smallest currency unit
	SlotDuration time.Duration
	WorkingHours map[time.Weekday][]Window
	DaysOff      []string // blackout dates, YYYY-MM-DD
}
