package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/booking-engine/internal/bookings"
	"github.com/clinicdesk/booking-engine/internal/gateway"
	"github.com/clinicdesk/booking-engine/internal/orders"
	"github.com/clinicdesk/booking-engine/internal/slots"
)

const webhookSecret = "whsec_test"

type recordingRedeemer struct {
	redeemed []string
}

func (r *recordingRedeemer) Redeem(_ context.Context, code, _ string) error {
	r.redeemed = append(r.redeemed, code)
	return nil
}

type reconcileFixture struct {
	reconciler *Reconciler
	ledger     *slots.MemoryLedger
	bookings   *bookings.MemoryStore
	orders     *orders.MemoryRepository
	redeemer   *recordingRedeemer
	now        time.Time
	clock      func() time.Time
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	f := &reconcileFixture{
		now:      time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC),
		redeemer: &recordingRedeemer{},
	}
	f.clock = func() time.Time { return f.now }

	f.ledger = slots.NewMemoryLedger(10 * time.Minute).WithClock(f.clock)
	f.bookings = bookings.NewMemoryStore().WithClock(f.clock)
	f.orders = orders.NewMemoryRepository()

	verifier := gateway.NewFakeClient(webhookSecret)
	f.reconciler = NewReconciler(verifier, f.ledger, f.bookings, f.orders, f.redeemer, nil, nil).WithClock(f.clock)
	return f
}

// checkout sets up a held slot, its PENDING booking and the pending order,
// mirroring what the orchestrator produces.
func (f *reconcileFixture) checkout(t *testing.T, orderID string) *bookings.Booking {
	t.Helper()
	ctx := context.Background()

	ref := slots.Ref{DoctorID: "dr1", Date: "2026-09-14", StartTime: "10:00"}
	token, err := f.ledger.Hold(ctx, ref)
	require.NoError(t, err)

	booking, err := f.bookings.Create(ctx, &bookings.Booking{
		UserID:     "u1",
		DoctorID:   "dr1",
		Slot:       ref,
		Amount:     1107,
		OrderID:    orderID,
		HoldToken:  token,
		CouponCode: "WELCOME10",
	})
	require.NoError(t, err)

	require.NoError(t, f.orders.Create(ctx, &orders.PendingOrder{
		OrderID:   orderID,
		Receipt:   "receipt_" + orderID,
		Amount:    1107,
		Currency:  "INR",
		HoldToken: token,
		BookingID: booking.ID,
		UserID:    "u1",
		Slot:      ref,
		CreatedAt: f.now,
		ExpiresAt: f.now.Add(10 * time.Minute),
	}))
	return booking
}

func sign(orderID, paymentID string) string {
	return gateway.Sign(webhookSecret, orderID, paymentID)
}

func TestOnConfirmation(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	booking := f.checkout(t, "order_1")

	err := f.reconciler.OnConfirmation(ctx, "order_1", "pay_1", sign("order_1", "pay_1"))
	require.NoError(t, err)

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusPaid, got.Status)
	assert.Equal(t, "pay_1", got.PaymentID)
	assert.Equal(t, []string{"WELCOME10"}, f.redeemer.redeemed)

	// The slot is booked for good.
	_, err = f.ledger.Hold(ctx, got.Slot)
	require.ErrorIs(t, err, slots.ErrSlotUnavailable)
}

func TestOnConfirmationReplayIsIdempotent(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	booking := f.checkout(t, "order_1")

	require.NoError(t, f.reconciler.OnConfirmation(ctx, "order_1", "pay_1", sign("order_1", "pay_1")))
	require.NoError(t, f.reconciler.OnConfirmation(ctx, "order_1", "pay_1", sign("order_1", "pay_1")))

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusPaid, got.Status)
	assert.Len(t, got.History, 2, "replay must not append history")
	assert.Len(t, f.redeemer.redeemed, 1, "replay must not redeem the coupon again")
}

func TestOnConfirmationSecondPaymentForPaidBooking(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	booking := f.checkout(t, "order_1")

	require.NoError(t, f.reconciler.OnConfirmation(ctx, "order_1", "pay_1", sign("order_1", "pay_1")))
	// A different capture for the same order is logged, not applied.
	require.NoError(t, f.reconciler.OnConfirmation(ctx, "order_1", "pay_2", sign("order_1", "pay_2")))

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "pay_1", got.PaymentID)
}

func TestOnConfirmationBadSignature(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	booking := f.checkout(t, "order_1")

	err := f.reconciler.OnConfirmation(ctx, "order_1", "pay_1", "tampered")
	require.ErrorIs(t, err, ErrSignatureMismatch)

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusPending, got.Status)
}

func TestOnConfirmationUnknownOrder(t *testing.T) {
	f := newReconcileFixture(t)

	err := f.reconciler.OnConfirmation(context.Background(), "order_404", "pay_1", sign("order_404", "pay_1"))
	require.ErrorIs(t, err, ErrUnknownOrder)
}

func TestOnConfirmationAfterHoldExpiry(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	booking := f.checkout(t, "order_1")

	// The payment arrives after the hold lapsed and another patient took the
	// slot.
	f.now = f.now.Add(11 * time.Minute)
	_, err := f.ledger.Hold(ctx, booking.Slot)
	require.NoError(t, err)

	err = f.reconciler.OnConfirmation(ctx, "order_1", "pay_1", sign("order_1", "pay_1"))
	require.ErrorIs(t, err, ErrSlotLost)

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusFailed, got.Status)
	assert.Equal(t, bookings.CauseSlotLostAfterPayment, got.History[len(got.History)-1].Cause)
	assert.Empty(t, f.redeemer.redeemed)
}

func TestOnConfirmationAfterSweep(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	booking := f.checkout(t, "order_1")

	f.now = f.now.Add(11 * time.Minute)
	swept, err := f.reconciler.SweepExpired(ctx, f.now)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	// Verified capture for an already expired checkout: flagged for refund,
	// status stays EXPIRED.
	err = f.reconciler.OnConfirmation(ctx, "order_1", "pay_1", sign("order_1", "pay_1"))
	require.ErrorIs(t, err, ErrSlotLost)

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusExpired, got.Status)
}

// sweepRacingStore expires the booking right before the paid transition,
// reproducing a sweep tick landing between the reconciler's status check and
// its conditional write.
type sweepRacingStore struct {
	*bookings.MemoryStore
	ledger *slots.MemoryLedger
	token  string
	raced  bool
}

func (s *sweepRacingStore) Transition(ctx context.Context, id string, to bookings.Status, cause, paymentID string) (*bookings.Booking, error) {
	if to == bookings.StatusPaid && !s.raced {
		s.raced = true
		if _, err := s.MemoryStore.Transition(ctx, id, bookings.StatusExpired, bookings.CauseCheckoutExpired, ""); err != nil {
			return nil, err
		}
		_ = s.ledger.Release(ctx, s.token)
	}
	return s.MemoryStore.Transition(ctx, id, to, cause, paymentID)
}

func TestOnConfirmationSweepWinsStatusRace(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	booking := f.checkout(t, "order_1")

	racing := &sweepRacingStore{MemoryStore: f.bookings, ledger: f.ledger, token: booking.HoldToken}
	reconciler := NewReconciler(gateway.NewFakeClient(webhookSecret), f.ledger, racing, f.orders, f.redeemer, nil, nil).WithClock(f.clock)

	err := reconciler.OnConfirmation(ctx, "order_1", "pay_1", sign("order_1", "pay_1"))
	require.ErrorIs(t, err, ErrSlotLost)

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusExpired, got.Status)
	assert.Empty(t, f.redeemer.redeemed)

	// The slot must not be left booked behind the expired checkout.
	_, err = f.ledger.Hold(ctx, booking.Slot)
	require.NoError(t, err)
}

// lapsingLedger advances the clock between the reconciler's resolve check and
// the commit, so the hold expires inside the narrowest remaining window.
type lapsingLedger struct {
	*slots.MemoryLedger
	advance func()
}

func (l *lapsingLedger) Commit(ctx context.Context, token string) error {
	l.advance()
	return l.MemoryLedger.Commit(ctx, token)
}

func TestOnConfirmationHoldLapsesBeforeCommit(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	booking := f.checkout(t, "order_1")

	lapsing := &lapsingLedger{MemoryLedger: f.ledger, advance: func() { f.now = f.now.Add(11 * time.Minute) }}
	reconciler := NewReconciler(gateway.NewFakeClient(webhookSecret), lapsing, f.bookings, f.orders, f.redeemer, nil, nil).WithClock(f.clock)

	err := reconciler.OnConfirmation(ctx, "order_1", "pay_1", sign("order_1", "pay_1"))
	require.ErrorIs(t, err, ErrSlotLost)

	// The claim stuck before the slot was lost; the booking stays PAID and is
	// flagged for the refund path rather than reverted.
	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusPaid, got.Status)
	assert.Empty(t, f.redeemer.redeemed)
}

func TestOnFailure(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	booking := f.checkout(t, "order_1")

	require.NoError(t, f.reconciler.OnFailure(ctx, "order_1", "CARD_DECLINED"))

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusFailed, got.Status)
	assert.Equal(t, "CARD_DECLINED", got.History[len(got.History)-1].Cause)

	// The slot went back to the pool immediately.
	_, err = f.ledger.Hold(ctx, booking.Slot)
	require.NoError(t, err)

	// Replays on a settled booking are no-ops.
	require.NoError(t, f.reconciler.OnFailure(ctx, "order_1", "CARD_DECLINED"))
}

func TestOnRefund(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	booking := f.checkout(t, "order_1")

	require.NoError(t, f.reconciler.OnConfirmation(ctx, "order_1", "pay_1", sign("order_1", "pay_1")))
	require.NoError(t, f.reconciler.OnRefund(ctx, "order_1", "pay_1"))

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusRefunded, got.Status)

	require.NoError(t, f.reconciler.OnRefund(ctx, "order_1", "pay_1"))
}

func TestSweepExpired(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	booking := f.checkout(t, "order_1")

	// Not yet expired: nothing happens.
	swept, err := f.reconciler.SweepExpired(ctx, f.now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, swept)

	f.now = f.now.Add(11 * time.Minute)
	swept, err = f.reconciler.SweepExpired(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusExpired, got.Status)
	assert.Equal(t, bookings.CauseCheckoutExpired, got.History[len(got.History)-1].Cause)

	// Slot is FREE again and the order row is gone.
	_, err = f.ledger.Hold(ctx, booking.Slot)
	require.NoError(t, err)
	_, err = f.orders.GetByOrderID(ctx, "order_1")
	require.ErrorIs(t, err, orders.ErrNotFound)
}

func TestSweepExpiredSkipsPaidBooking(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	booking := f.checkout(t, "order_1")

	require.NoError(t, f.reconciler.OnConfirmation(ctx, "order_1", "pay_1", sign("order_1", "pay_1")))

	f.now = f.now.Add(11 * time.Minute)
	swept, err := f.reconciler.SweepExpired(ctx, f.now)
	require.NoError(t, err)
	assert.Zero(t, swept)

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusPaid, got.Status)

	// The stale order row is still cleaned up.
	_, err = f.orders.GetByOrderID(ctx, "order_1")
	require.ErrorIs(t, err, orders.ErrNotFound)
}
