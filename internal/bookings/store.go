package bookings

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the durable record of bookings. It is the only writer of status
// history: creation comes from the order orchestrator, transitions from the
// payment reconciler.
type Store interface {
	Create(ctx context.Context, b *Booking) (*Booking, error)
	Get(ctx context.Context, id string) (*Booking, error)
	GetByOrderID(ctx context.Context, orderID string) (*Booking, error)
	List(ctx context.Context) ([]*Booking, error)
	Transition(ctx context.Context, id string, to Status, cause, paymentID string) (*Booking, error)
}

// MemoryStore keeps bookings in process memory. Useful for tests and
// single-node deployments without a database.
type MemoryStore struct {
	clock func() time.Time

	mu       sync.Mutex
	bookings map[string]*Booking
	byOrder  map[string]string // order id -> booking id
	order    []string          // insertion order for List
}

// NewMemoryStore creates an empty in-memory booking store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clock:    time.Now,
		bookings: make(map[string]*Booking),
		byOrder:  make(map[string]string),
	}
}

// WithClock overrides the time source, for tests.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

// Create assigns an id and createdAt, sets status PENDING and writes the
// first history entry.
func (s *MemoryStore) Create(_ context.Context, b *Booking) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	stored := *b
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.CreatedAt = now
	stored.Status = StatusPending
	stored.History = []StatusChange{{Status: StatusPending, At: now, Cause: CauseCreated}}

	s.bookings[stored.ID] = &stored
	if stored.OrderID != "" {
		s.byOrder[stored.OrderID] = stored.ID
	}
	s.order = append(s.order, stored.ID)

	out := stored
	return &out, nil
}

// Get returns the booking or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *b
	return &out, nil
}

// GetByOrderID returns the booking linked to the gateway order.
func (s *MemoryStore) GetByOrderID(_ context.Context, orderID string) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.bookings[id]
	return &out, nil
}

// List returns all bookings in creation order.
func (s *MemoryStore) List(_ context.Context) ([]*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Booking, 0, len(s.order))
	for _, id := range s.order {
		b := *s.bookings[id]
		out = append(out, &b)
	}
	return out, nil
}

// Transition moves the booking to the target status, enforcing the state
// machine and appending to history. paymentID is recorded only for PAID and
// REFUNDED.
func (s *MemoryStore) Transition(_ context.Context, id string, to Status, cause, paymentID string) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !CanTransition(b.Status, to) {
		return nil, ErrInvalidTransition
	}
	b.Status = to
	if to == StatusPaid || to == StatusRefunded {
		if paymentID != "" {
			b.PaymentID = paymentID
		}
	}
	b.History = append(b.History, StatusChange{Status: to, At: s.clock().UTC(), Cause: cause})

	out := *b
	return &out, nil
}
