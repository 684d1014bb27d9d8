package slots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDoctor() *Doctor {
	return &Doctor{
		ID:           "dr1",
		Name:         "Dr. Asha Rao",
		FeeAmount:    1200,
		SlotDuration: 30 * time.Minute,
		WorkingHours: map[time.Weekday][]Window{
			// 2026-09-14 is a Monday.
			time.Monday: {
				{Start: "09:00", End: "11:00"},
				{Start: "14:00", End: "15:00"},
			},
		},
		DaysOff: []string{"2026-09-21"},
	}
}

func TestSlotsOn(t *testing.T) {
	doc := testDoctor()

	slots, err := doc.SlotsOn("2026-09-14")
	require.NoError(t, err)

	var times []string
	for _, s := range slots {
		assert.Equal(t, "dr1", s.DoctorID)
		assert.Equal(t, "2026-09-14", s.Date)
		times = append(times, s.StartTime)
	}
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "14:00", "14:30"}, times)
}

func TestSlotsOnNonWorkingDay(t *testing.T) {
	doc := testDoctor()

	// Sunday has no working hours.
	slots, err := doc.SlotsOn("2026-09-13")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotsOnDayOff(t *testing.T) {
	doc := testDoctor()

	slots, err := doc.SlotsOn("2026-09-21")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotsOnInvalidDate(t *testing.T) {
	doc := testDoctor()

	_, err := doc.SlotsOn("14-09-2026")
	require.Error(t, err)
}

func TestSlotsOnPartialWindow(t *testing.T) {
	doc := testDoctor()
	doc.SlotDuration = 45 * time.Minute

	// 09:00-11:00 fits 09:00 and 09:45 only; 10:30+45m overruns the window.
	slots, err := doc.SlotsOn("2026-09-14")
	require.NoError(t, err)

	var times []string
	for _, s := range slots {
		times = append(times, s.StartTime)
	}
	assert.Equal(t, []string{"09:00", "09:45"}, times)
}

func TestMemoryDirectory(t *testing.T) {
	dir := NewMemoryDirectory(testDoctor())

	doc, err := dir.Get(context.Background(), "dr1")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Asha Rao", doc.Name)

	_, err = dir.Get(context.Background(), "dr404")
	require.ErrorIs(t, err, ErrDoctorNotFound)
}
