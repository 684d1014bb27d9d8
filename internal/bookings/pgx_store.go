package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxStore persists bookings in postgres. The status guard on the UPDATE
// makes each transition a conditional write, so concurrent reconcilers cannot
// both move the same booking.
type PgxStore struct {
	db    DB
	clock func() time.Time
}

// NewPgxStore creates a postgres-backed booking store.
func NewPgxStore(db DB) *PgxStore {
	return &PgxStore{db: db, clock: time.Now}
}

const bookingColumns = `id, user_id, doctor_id, procedure_id, slot_date, slot_time, amount, status, payment_id, order_id, hold_token, coupon_code, created_at`

// Create inserts a PENDING booking and its first history entry.
func (s *PgxStore) Create(ctx context.Context, b *Booking) (*Booking, error) {
	stored := *b
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.CreatedAt = s.clock().UTC()
	stored.Status = StatusPending

	_, err := s.db.Exec(ctx, `
		INSERT INTO bookings (id, user_id, doctor_id, procedure_id, slot_date, slot_time, amount, status, payment_id, order_id, hold_token, coupon_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		stored.ID, stored.UserID, stored.DoctorID, stored.ProcedureID,
		stored.Slot.Date, stored.Slot.StartTime, stored.Amount, string(stored.Status),
		stored.PaymentID, stored.OrderID, stored.HoldToken, stored.CouponCode, stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("bookings: insert: %w", err)
	}
	if err := s.appendHistory(ctx, stored.ID, StatusPending, CauseCreated, stored.CreatedAt); err != nil {
		return nil, err
	}
	stored.History = []StatusChange{{Status: StatusPending, At: stored.CreatedAt, Cause: CauseCreated}}
	return &stored, nil
}

// Get loads one booking with its history.
func (s *PgxStore) Get(ctx context.Context, id string) (*Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return s.scanWithHistory(ctx, row)
}

// GetByOrderID loads the booking linked to a gateway order.
func (s *PgxStore) GetByOrderID(ctx context.Context, orderID string) (*Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE order_id = $1`, orderID)
	return s.scanWithHistory(ctx, row)
}

// List returns all bookings, oldest first, without history.
func (s *PgxStore) List(ctx context.Context) ([]*Booking, error) {
	rows, err := s.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("bookings: list: %w", err)
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: list rows: %w", err)
	}
	return out, nil
}

// Transition performs the conditional status update and appends to history.
func (s *PgxStore) Transition(ctx context.Context, id string, to Status, cause, paymentID string) (*Booking, error) {
	var from []string
	switch to {
	case StatusPaid, StatusFailed, StatusExpired:
		from = []string{string(StatusPending)}
	case StatusRefunded:
		from = []string{string(StatusPaid)}
	default:
		return nil, ErrInvalidTransition
	}

	now := s.clock().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET status = $1, payment_id = CASE WHEN $2 <> '' THEN $2 ELSE payment_id END
		WHERE id = $3 AND status = ANY($4)`,
		string(to), paymentID, id, from,
	)
	if err != nil {
		return nil, fmt.Errorf("bookings: transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}
	if err := s.appendHistory(ctx, id, to, cause, now); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *PgxStore) appendHistory(ctx context.Context, id string, status Status, cause string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO booking_status_history (booking_id, status, cause, at)
		VALUES ($1, $2, $3, $4)`,
		id, string(status), cause, at,
	)
	if err != nil {
		return fmt.Errorf("bookings: append history: %w", err)
	}
	return nil
}

func (s *PgxStore) scanWithHistory(ctx context.Context, row pgx.Row) (*Booking, error) {
	b, err := scanBooking(row)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT status, cause, at FROM booking_status_history
		WHERE booking_id = $1 ORDER BY at ASC, id ASC`, b.ID)
	if err != nil {
		return nil, fmt.Errorf("bookings: load history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var change StatusChange
		var status string
		if err := rows.Scan(&status, &change.Cause, &change.At); err != nil {
			return nil, fmt.Errorf("bookings: scan history: %w", err)
		}
		change.Status = Status(status)
		b.History = append(b.History, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: history rows: %w", err)
	}
	return b, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var status string
	err := row.Scan(
		&b.ID, &b.UserID, &b.DoctorID, &b.ProcedureID,
		&b.Slot.Date, &b.Slot.StartTime, &b.Amount, &status,
		&b.PaymentID, &b.OrderID, &b.HoldToken, &b.CouponCode, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: scan: %w", err)
	}
	b.Status = Status(status)
	b.Slot.DoctorID = b.DoctorID
	return &b, nil
}
