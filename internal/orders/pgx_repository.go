package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicdesk/booking-engine/internal/bookings"
)

// PgxRepository persists pending orders in postgres. The unique index on
// receipt is the durable idempotency guarantee across replicas.
type PgxRepository struct {
	db bookings.DB
}

// NewPgxRepository creates a postgres-backed order repository.
func NewPgxRepository(db bookings.DB) *PgxRepository {
	return &PgxRepository{db: db}
}

const orderColumns = `order_id, receipt, amount, currency, hold_token, booking_id, user_id, coupon_code, slot_doctor_id, slot_date, slot_time, patient_name, patient_email, patient_phone, created_at, expires_at`

// Create inserts the order; a receipt conflict maps to ErrDuplicateReceipt.
func (r *PgxRepository) Create(ctx context.Context, order *PendingOrder) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pending_orders (order_id, receipt, amount, currency, hold_token, booking_id, user_id, coupon_code, slot_doctor_id, slot_date, slot_time, patient_name, patient_email, patient_phone, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		order.OrderID, order.Receipt, order.Amount, order.Currency, order.HoldToken,
		order.BookingID, order.UserID, order.CouponCode,
		order.Slot.DoctorID, order.Slot.Date, order.Slot.StartTime,
		order.Patient.Name, order.Patient.Email, order.Patient.Phone,
		order.CreatedAt, order.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReceipt
		}
		return fmt.Errorf("orders: insert: %w", err)
	}
	return nil
}

// GetByReceipt returns the order holding the receipt.
func (r *PgxRepository) GetByReceipt(ctx context.Context, receipt string) (*PendingOrder, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM pending_orders WHERE receipt = $1`, receipt)
	return scanOrder(row)
}

// GetByOrderID returns the order by its gateway id.
func (r *PgxRepository) GetByOrderID(ctx context.Context, orderID string) (*PendingOrder, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM pending_orders WHERE order_id = $1`, orderID)
	return scanOrder(row)
}

// ListExpired returns all orders whose expiry has passed.
func (r *PgxRepository) ListExpired(ctx context.Context, now time.Time) ([]*PendingOrder, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM pending_orders WHERE expires_at <= $1 ORDER BY expires_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("orders: list expired: %w", err)
	}
	defer rows.Close()

	var out []*PendingOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orders: expired rows: %w", err)
	}
	return out, nil
}

// Delete removes the order.
func (r *PgxRepository) Delete(ctx context.Context, orderID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM pending_orders WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("orders: delete: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*PendingOrder, error) {
	var o PendingOrder
	err := row.Scan(
		&o.OrderID, &o.Receipt, &o.Amount, &o.Currency, &o.HoldToken,
		&o.BookingID, &o.UserID, &o.CouponCode,
		&o.Slot.DoctorID, &o.Slot.Date, &o.Slot.StartTime,
		&o.Patient.Name, &o.Patient.Email, &o.Patient.Phone,
		&o.CreatedAt, &o.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("orders: scan: %w", err)
	}
	return &o, nil
}
