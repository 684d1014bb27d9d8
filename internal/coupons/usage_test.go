package coupons

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUsageCounter(t *testing.T) *RedisUsageCounter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisUsageCounter(client)
}

func TestRedisUsageCounterRedeem(t *testing.T) {
	counter := newTestUsageCounter(t)
	ctx := context.Background()

	require.NoError(t, counter.Redeem(ctx, "WELCOME10", "u1", 2, 0))
	require.NoError(t, counter.Redeem(ctx, "WELCOME10", "u2", 2, 0))
	require.ErrorIs(t, counter.Redeem(ctx, "WELCOME10", "u3", 2, 0), ErrUsageExceeded)

	global, _, err := counter.Counts(ctx, "WELCOME10", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), global)
}

func TestRedisUsageCounterPerUserLimit(t *testing.T) {
	counter := newTestUsageCounter(t)
	ctx := context.Background()

	require.NoError(t, counter.Redeem(ctx, "ONCE", "u1", 0, 1))
	require.ErrorIs(t, counter.Redeem(ctx, "ONCE", "u1", 0, 1), ErrUsageExceeded)

	// The rollback keeps the global counter consistent for other users.
	global, user, err := counter.Counts(ctx, "ONCE", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), global)
	assert.Equal(t, int64(1), user)

	require.NoError(t, counter.Redeem(ctx, "ONCE", "u2", 0, 1))
}

func TestRedisUsageCounterConcurrentRedeems(t *testing.T) {
	counter := newTestUsageCounter(t)
	ctx := context.Background()

	const attempts = 20
	const limit = 5

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results <- counter.Redeem(ctx, "FLASH", "", limit, 0)
		}(i)
	}
	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrUsageExceeded):
			rejected++
		}
	}
	assert.Equal(t, limit, ok)
	assert.Equal(t, attempts-limit, rejected)

	global, _, err := counter.Counts(ctx, "FLASH", "")
	require.NoError(t, err)
	assert.Equal(t, int64(limit), global)
}

func TestRedisUsageCounterCodeCaseFolding(t *testing.T) {
	counter := newTestUsageCounter(t)
	ctx := context.Background()

	require.NoError(t, counter.Redeem(ctx, "welcome10", "u1", 0, 0))
	global, _, err := counter.Counts(ctx, "WELCOME10", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), global)
}
