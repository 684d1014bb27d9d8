package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicdesk/booking-engine/internal/observability/metrics"
	"github.com/clinicdesk/booking-engine/pkg/logging"
)

// Service combines the doctor directory with the ledger to answer
// availability queries and place holds.
type Service struct {
	directory Directory
	ledger    Ledger
	clock     func() time.Time
	location  *time.Location
	logger    *logging.Logger
	metrics   *metrics.BookingMetrics
}

// NewService creates a slot service.
func NewService(directory Directory, ledger Ledger, m *metrics.BookingMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		directory: directory,
		ledger:    ledger,
		clock:     time.Now,
		location:  time.Local,
		logger:    logger,
		metrics:   m,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// ListAvailable derives the candidate slots for the doctor and date, drops
// slots that already started, and filters out booked or live-held slots.
func (s *Service) ListAvailable(ctx context.Context, doctorID, date string) ([]Slot, error) {
	doctor, err := s.directory.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	candidates, err := doctor.SlotsOn(date)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	upcoming := candidates[:0]
	for _, slot := range candidates {
		start, err := slot.StartsAt(s.location)
		if err != nil {
			return nil, err
		}
		if start.After(now) {
			upcoming = append(upcoming, slot)
		}
	}

	available, err := s.ledger.Available(ctx, upcoming)
	if err != nil {
		return nil, fmt.Errorf("slots: filter availability: %w", err)
	}
	return available, nil
}

// Hold validates the slot against the doctor's schedule and places the hold.
func (s *Service) Hold(ctx context.Context, ref Ref) (string, error) {
	doctor, err := s.directory.Get(ctx, ref.DoctorID)
	if err != nil {
		return "", err
	}
	candidates, err := doctor.SlotsOn(ref.Date)
	if err != nil {
		return "", err
	}
	valid := false
	for _, slot := range candidates {
		if slot.StartTime == ref.StartTime {
			valid = true
			break
		}
	}
	if !valid {
		return "", ErrSlotUnavailable
	}

	token, err := s.ledger.Hold(ctx, ref)
	if err != nil {
		s.metrics.ObserveHold("contended")
		return "", err
	}
	s.metrics.ObserveHold("granted")
	s.logger.Info("slot held",
		"doctor_id", ref.DoctorID,
		"date", ref.Date,
		"start_time", ref.StartTime,
	)
	return token, nil
}
