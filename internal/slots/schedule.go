package slots

import (
	"context"
	"fmt"
	"time"
)

// Directory resolves doctors by id.
type Directory interface {
	Get(ctx context.Context, doctorID string) (*Doctor, error)
}

// MemoryDirectory is an in-memory doctor directory, seeded at startup or from
// the booking backend sync.
type MemoryDirectory struct {
	doctors map[string]*Doctor
}

// NewMemoryDirectory creates a directory holding the given doctors.
func NewMemoryDirectory(doctors ...*Doctor) *MemoryDirectory {
	d := &MemoryDirectory{doctors: make(map[string]*Doctor, len(doctors))}
	for _, doc := range doctors {
		d.doctors[doc.ID] = doc
	}
	return d
}

// Get returns the doctor or ErrDoctorNotFound.
func (d *MemoryDirectory) Get(_ context.Context, doctorID string) (*Doctor, error) {
	doc, ok := d.doctors[doctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return doc, nil
}

// SlotsOn derives the candidate slots for one date from the doctor's
// working-hours template, excluding blackout dates. The result is ordered by
// start time and does not consult the ledger.
func (d *Doctor) SlotsOn(date string) ([]Slot, error) {
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, fmt.Errorf("slots: invalid date %q: %w", date, err)
	}
	for _, off := range d.DaysOff {
		if off == date {
			return nil, nil
		}
	}
	windows := d.WorkingHours[day.Weekday()]
	if len(windows) == 0 {
		return nil, nil
	}

	duration := d.SlotDuration
	if duration <= 0 {
		duration = 30 * time.Minute
	}

	var out []Slot
	for _, w := range windows {
		start, err := parseClock(w.Start)
		if err != nil {
			return nil, fmt.Errorf("slots: doctor %s window start: %w", d.ID, err)
		}
		end, err := parseClock(w.End)
		if err != nil {
			return nil, fmt.Errorf("slots: doctor %s window end: %w", d.ID, err)
		}
		for t := start; t+duration <= end; t += duration {
			out = append(out, Slot{
				Ref: Ref{
					DoctorID:  d.ID,
					Date:      date,
					StartTime: formatClock(t),
				},
				Duration: duration,
			})
		}
	}
	return out, nil
}

// StartsAt resolves the slot's wall-clock start in the given location.
func (s Slot) StartsAt(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", s.Date+" "+s.StartTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("slots: parse start: %w", err)
	}
	return t, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
