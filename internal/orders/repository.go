package orders

import (
	"context"
	"sync"
	"time"
)

// Repository persists pending orders. Receipt uniqueness is enforced at this
// layer so concurrent retries of the same checkout collapse onto one order.
type Repository interface {
	Create(ctx context.Context, order *PendingOrder) error
	GetByReceipt(ctx context.Context, receipt string) (*PendingOrder, error)
	GetByOrderID(ctx context.Context, orderID string) (*PendingOrder, error)
	ListExpired(ctx context.Context, now time.Time) ([]*PendingOrder, error)
	Delete(ctx context.Context, orderID string) error
}

// MemoryRepository keeps pending orders in process memory.
type MemoryRepository struct {
	mu        sync.Mutex
	byOrder   map[string]*PendingOrder
	byReceipt map[string]string // receipt -> order id
}

// NewMemoryRepository creates an empty in-memory order repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byOrder:   make(map[string]*PendingOrder),
		byReceipt: make(map[string]string),
	}
}

// Create stores the order, rejecting a receipt that is already taken by a
// live order.
func (r *MemoryRepository) Create(_ context.Context, order *PendingOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byReceipt[order.Receipt]; ok {
		if existing, live := r.byOrder[existingID]; live && !existing.Expired(order.CreatedAt) {
			return ErrDuplicateReceipt
		}
	}
	stored := *order
	r.byOrder[stored.OrderID] = &stored
	r.byReceipt[stored.Receipt] = stored.OrderID
	return nil
}

// GetByReceipt returns the order holding the receipt.
func (r *MemoryRepository) GetByReceipt(_ context.Context, receipt string) (*PendingOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byReceipt[receipt]
	if !ok {
		return nil, ErrNotFound
	}
	order, ok := r.byOrder[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *order
	return &out, nil
}

// GetByOrderID returns the order by its gateway id.
func (r *MemoryRepository) GetByOrderID(_ context.Context, orderID string) (*PendingOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *order
	return &out, nil
}

// ListExpired returns all orders whose expiry has passed.
func (r *MemoryRepository) ListExpired(_ context.Context, now time.Time) ([]*PendingOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*PendingOrder
	for _, order := range r.byOrder {
		if order.Expired(now) {
			o := *order
			out = append(out, &o)
		}
	}
	return out, nil
}

// Delete removes the order; the receipt becomes reusable.
func (r *MemoryRepository) Delete(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byOrder[orderID]
	if !ok {
		return nil
	}
	delete(r.byOrder, orderID)
	if r.byReceipt[order.Receipt] == orderID {
		delete(r.byReceipt, order.Receipt)
	}
	return nil
}
