package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func bookingRow(id string, status Status, createdAt time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "user_id", "doctor_id", "procedure_id", "slot_date", "slot_time",
		"amount", "status", "payment_id", "order_id", "hold_token", "coupon_code", "created_at",
	}).AddRow(
		id, "u1", "dr1", "", "2026-09-14", "10:00",
		int64(1107), string(status), "", "order_abc", "tok_1", "WELCOME10", createdAt,
	)
}

func historyRows(entries ...StatusChange) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"status", "cause", "at"})
	for _, e := range entries {
		rows.AddRow(string(e.Status), e.Cause, e.At)
	}
	return rows
}

func TestPgxStoreCreate(t *testing.T) {
	mock := newMockPool(t)
	store := NewPgxStore(mock)

	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), "u1", "dr1", "", "2026-09-14", "10:00",
			int64(1107), "PENDING", "", "order_abc", "tok_1", "WELCOME10", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO booking_status_history").
		WithArgs(pgxmock.AnyArg(), "PENDING", CauseCreated, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := store.Create(context.Background(), testBooking())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, StatusPending, created.Status)
	require.Len(t, created.History, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxStoreGet(t *testing.T) {
	mock := newMockPool(t)
	store := NewPgxStore(mock)
	createdAt := time.Date(2026, 9, 14, 9, 50, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id").
		WithArgs("b1").
		WillReturnRows(bookingRow("b1", StatusPaid, createdAt))
	mock.ExpectQuery("SELECT status, cause, at FROM booking_status_history").
		WithArgs("b1").
		WillReturnRows(historyRows(
			StatusChange{Status: StatusPending, Cause: CauseCreated, At: createdAt},
			StatusChange{Status: StatusPaid, Cause: CausePaymentConfirmed, At: createdAt.Add(time.Minute)},
		))

	got, err := store.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
	assert.Equal(t, "dr1", got.Slot.DoctorID)
	require.Len(t, got.History, 2)
	assert.Equal(t, CausePaymentConfirmed, got.History[1].Cause)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxStoreGetNotFound(t *testing.T) {
	mock := newMockPool(t)
	store := NewPgxStore(mock)

	// An empty row set surfaces as ErrNoRows from the scan.
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "doctor_id", "procedure_id", "slot_date", "slot_time",
			"amount", "status", "payment_id", "order_id", "hold_token", "coupon_code", "created_at",
		}))

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxStoreTransition(t *testing.T) {
	mock := newMockPool(t)
	store := NewPgxStore(mock)
	createdAt := time.Date(2026, 9, 14, 9, 50, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE bookings").
		WithArgs("PAID", "pay_1", "b1", []string{"PENDING"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO booking_status_history").
		WithArgs("b1", "PAID", CausePaymentConfirmed, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id").
		WithArgs("b1").
		WillReturnRows(bookingRow("b1", StatusPaid, createdAt))
	mock.ExpectQuery("SELECT status, cause, at FROM booking_status_history").
		WithArgs("b1").
		WillReturnRows(historyRows(StatusChange{Status: StatusPaid, Cause: CausePaymentConfirmed, At: createdAt}))

	got, err := store.Transition(context.Background(), "b1", StatusPaid, CausePaymentConfirmed, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxStoreTransitionGuardRejectsSettledBooking(t *testing.T) {
	mock := newMockPool(t)
	store := NewPgxStore(mock)
	createdAt := time.Date(2026, 9, 14, 9, 50, 0, 0, time.UTC)

	// Zero rows affected means another writer settled the booking first.
	mock.ExpectExec("UPDATE bookings").
		WithArgs("EXPIRED", "", "b1", []string{"PENDING"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id").
		WithArgs("b1").
		WillReturnRows(bookingRow("b1", StatusPaid, createdAt))
	mock.ExpectQuery("SELECT status, cause, at FROM booking_status_history").
		WithArgs("b1").
		WillReturnRows(historyRows(StatusChange{Status: StatusPaid, Cause: CausePaymentConfirmed, At: createdAt}))

	_, err := store.Transition(context.Background(), "b1", StatusExpired, CauseCheckoutExpired, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxStoreTransitionRejectsUnknownTarget(t *testing.T) {
	mock := newMockPool(t)
	store := NewPgxStore(mock)

	_, err := store.Transition(context.Background(), "b1", StatusPending, "", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}
