package slots

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ledger is the source of truth for slot state. Hold is the single
// synchronization point preventing double-booking: concurrent holds for the
// same slot identity race and exactly one wins; losers get ErrSlotUnavailable
// immediately.
type Ledger interface {
	Hold(ctx context.Context, ref Ref) (string, error)
	Commit(ctx context.Context, token string) error
	Release(ctx context.Context, token string) error
	Resolve(ctx context.Context, token string) (Ref, error)
	Available(ctx context.Context, candidates []Slot) ([]Slot, error)
}

type holdState struct {
	status Status
	token  string
	expiry time.Time
}

// MemoryLedger keeps slot state in process memory behind a mutex. State-map
// access is serialized, which makes Hold linearizable per slot identity.
// Expired holds are reclaimed lazily on the next touch of the same slot.
type MemoryLedger struct {
	holdWindow time.Duration
	clock      func() time.Time

	mu     sync.Mutex
	states map[string]*holdState // slot key -> state
	tokens map[string]Ref        // hold token -> slot identity
}

// NewMemoryLedger creates a ledger with the given hold window.
func NewMemoryLedger(holdWindow time.Duration) *MemoryLedger {
	return &MemoryLedger{
		holdWindow: holdWindow,
		clock:      time.Now,
		states:     make(map[string]*holdState),
		tokens:     make(map[string]Ref),
	}
}

// WithClock overrides the time source, for tests.
func (l *MemoryLedger) WithClock(clock func() time.Time) *MemoryLedger {
	l.clock = clock
	return l
}

// Hold atomically transitions FREE (or expired HELD) to HELD and returns a
// fresh hold token.
func (l *MemoryLedger) Hold(_ context.Context, ref Ref) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	key := ref.Key()
	if st, ok := l.states[key]; ok {
		switch st.status {
		case StatusBooked:
			return "", ErrSlotUnavailable
		case StatusHeld:
			if st.expiry.After(now) {
				return "", ErrSlotUnavailable
			}
			delete(l.tokens, st.token)
		}
	}

	token := uuid.NewString()
	l.states[key] = &holdState{
		status: StatusHeld,
		token:  token,
		expiry: now.Add(l.holdWindow),
	}
	l.tokens[token] = ref
	return token, nil
}

// Commit transitions HELD to BOOKED while the hold window is still open.
func (l *MemoryLedger) Commit(_ context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ref, ok := l.tokens[token]
	if !ok {
		return ErrHoldNotFound
	}
	st := l.states[ref.Key()]
	if st == nil || st.status != StatusHeld || st.token != token {
		return ErrHoldNotFound
	}
	if !st.expiry.After(l.clock()) {
		l.reclaimLocked(ref.Key(), st)
		return ErrHoldExpired
	}
	st.status = StatusBooked
	delete(l.tokens, token)
	return nil
}

// Release returns a held slot to FREE before its window closes.
func (l *MemoryLedger) Release(_ context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ref, ok := l.tokens[token]
	if !ok {
		return ErrHoldNotFound
	}
	st := l.states[ref.Key()]
	if st == nil || st.status != StatusHeld || st.token != token {
		return ErrHoldNotFound
	}
	l.reclaimLocked(ref.Key(), st)
	return nil
}

// Resolve returns the slot identity behind a live, non-expired hold.
func (l *MemoryLedger) Resolve(_ context.Context, token string) (Ref, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ref, ok := l.tokens[token]
	if !ok {
		return Ref{}, ErrHoldNotFound
	}
	st := l.states[ref.Key()]
	if st == nil || st.status != StatusHeld || st.token != token {
		return Ref{}, ErrHoldNotFound
	}
	if !st.expiry.After(l.clock()) {
		return Ref{}, ErrHoldExpired
	}
	return ref, nil
}

// Available filters candidates down to slots that are neither booked nor
// under a live hold, reclaiming expired holds along the way.
func (l *MemoryLedger) Available(_ context.Context, candidates []Slot) ([]Slot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	out := make([]Slot, 0, len(candidates))
	for _, slot := range candidates {
		st, ok := l.states[slot.Key()]
		if !ok {
			out = append(out, slot)
			continue
		}
		switch st.status {
		case StatusBooked:
		case StatusHeld:
			if st.expiry.After(now) {
				continue
			}
			l.reclaimLocked(slot.Key(), st)
			out = append(out, slot)
		default:
			out = append(out, slot)
		}
	}
	return out, nil
}

func (l *MemoryLedger) reclaimLocked(key string, st *holdState) {
	delete(l.tokens, st.token)
	delete(l.states, key)
}
