package slots

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const tokenIndexRetention = 24 * time.Hour

// holdScript places a hold only when the slot is neither booked nor held.
// KEYS: booked, hold, token index. ARGV: token, hold TTL ms, index value,
// index TTL ms.
var holdScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
if redis.call("SET", KEYS[2], ARGV[1], "NX", "PX", ARGV[2]) then
	redis.call("SET", KEYS[3], ARGV[3], "PX", ARGV[4])
	return 1
end
return 0
`)

// commitScript promotes a hold to booked only while the hold value still
// matches the caller's token. KEYS: hold, booked, token index. ARGV: token.
var commitScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[2], ARGV[1])
	redis.call("DEL", KEYS[1], KEYS[3])
	return 1
end
return 0
`)

// releaseScript drops a hold only while the hold value still matches the
// caller's token. KEYS: hold, token index. ARGV: token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1], KEYS[2])
	return 1
end
return 0
`)

// RedisLedger implements Ledger on redis so multiple API replicas share one
// hold space. The hold key carries the hold-window TTL, so expiry reclamation
// happens inside redis; the token index outlives the hold window so a late
// commit can be told apart from an unknown token.
type RedisLedger struct {
	client     *redis.Client
	holdWindow time.Duration
	clock      func() time.Time
}

// NewRedisLedger creates a redis-backed ledger.
func NewRedisLedger(client *redis.Client, holdWindow time.Duration) *RedisLedger {
	return &RedisLedger{
		client:     client,
		holdWindow: holdWindow,
		clock:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (l *RedisLedger) WithClock(clock func() time.Time) *RedisLedger {
	l.clock = clock
	return l
}

// Hold attempts the conditional write; exactly one concurrent caller per slot
// identity observes FREE and wins.
func (l *RedisLedger) Hold(ctx context.Context, ref Ref) (string, error) {
	token := uuid.NewString()
	expiry := l.clock().Add(l.holdWindow)
	indexValue := ref.Key() + "|" + strconv.FormatInt(expiry.UnixMilli(), 10)

	ok, err := holdScript.Run(ctx, l.client,
		[]string{bookedKey(ref.Key()), holdKey(ref.Key()), tokenKey(token)},
		token, l.holdWindow.Milliseconds(), indexValue, tokenIndexRetention.Milliseconds(),
	).Int()
	if err != nil {
		return "", fmt.Errorf("slots: redis hold: %w", err)
	}
	if ok != 1 {
		return "", ErrSlotUnavailable
	}
	return token, nil
}

// Commit transitions HELD to BOOKED while the hold window is still open.
func (l *RedisLedger) Commit(ctx context.Context, token string) error {
	key, expiry, err := l.lookupToken(ctx, token)
	if err != nil {
		return err
	}
	ok, err := commitScript.Run(ctx, l.client,
		[]string{holdKey(key), bookedKey(key), tokenKey(token)},
		token,
	).Int()
	if err != nil {
		return fmt.Errorf("slots: redis commit: %w", err)
	}
	if ok != 1 {
		if !expiry.After(l.clock()) {
			return ErrHoldExpired
		}
		return ErrHoldNotFound
	}
	return nil
}

// Release returns a held slot to FREE early.
func (l *RedisLedger) Release(ctx context.Context, token string) error {
	key, _, err := l.lookupToken(ctx, token)
	if err != nil {
		return err
	}
	ok, err := releaseScript.Run(ctx, l.client,
		[]string{holdKey(key), tokenKey(token)},
		token,
	).Int()
	if err != nil {
		return fmt.Errorf("slots: redis release: %w", err)
	}
	if ok != 1 {
		return ErrHoldNotFound
	}
	return nil
}

// Resolve returns the slot identity behind a live, non-expired hold.
func (l *RedisLedger) Resolve(ctx context.Context, token string) (Ref, error) {
	key, expiry, err := l.lookupToken(ctx, token)
	if err != nil {
		return Ref{}, err
	}
	if !expiry.After(l.clock()) {
		return Ref{}, ErrHoldExpired
	}
	current, err := l.client.Get(ctx, holdKey(key)).Result()
	if err == redis.Nil || (err == nil && current != token) {
		return Ref{}, ErrHoldNotFound
	}
	if err != nil {
		return Ref{}, fmt.Errorf("slots: redis resolve: %w", err)
	}
	return parseKey(key)
}

// Available filters candidates down to slots with no booked marker and no
// live hold. Expired holds disappear via TTL, so no explicit reclaim is
// needed here.
func (l *RedisLedger) Available(ctx context.Context, candidates []Slot) ([]Slot, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	pipe := l.client.Pipeline()
	checks := make([]*redis.IntCmd, len(candidates))
	for i, slot := range candidates {
		checks[i] = pipe.Exists(ctx, bookedKey(slot.Key()), holdKey(slot.Key()))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("slots: redis availability: %w", err)
	}
	out := make([]Slot, 0, len(candidates))
	for i, slot := range candidates {
		if checks[i].Val() == 0 {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (l *RedisLedger) lookupToken(ctx context.Context, token string) (string, time.Time, error) {
	raw, err := l.client.Get(ctx, tokenKey(token)).Result()
	if err == redis.Nil {
		return "", time.Time{}, ErrHoldNotFound
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("slots: redis token lookup: %w", err)
	}
	idx := strings.LastIndexByte(raw, '|')
	if idx < 0 {
		return "", time.Time{}, ErrHoldNotFound
	}
	millis, err := strconv.ParseInt(raw[idx+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, ErrHoldNotFound
	}
	return raw[:idx], time.UnixMilli(millis), nil
}

func parseKey(key string) (Ref, error) {
	parts := strings.Split(key, "|")
	if len(parts) != 3 {
		return Ref{}, fmt.Errorf("slots: malformed slot key %q", key)
	}
	return Ref{DoctorID: parts[0], Date: parts[1], StartTime: parts[2]}, nil
}

func bookedKey(key string) string { return "slot:booked:" + key }
func holdKey(key string) string   { return "slot:hold:" + key }
func tokenKey(token string) string {
	return "slot:token:" + token
}
