package coupons

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// UsageCounter tracks coupon redemptions. Redeem must be an atomic
// increment-and-check so concurrent confirmations cannot over-redeem.
type UsageCounter interface {
	Counts(ctx context.Context, code, userID string) (global int64, user int64, err error)
	Redeem(ctx context.Context, code, userID string, limit, perUserLimit int64) error
}

// RedisUsageCounter keeps redemption counters in redis using INCR, so the
// check happens on the incremented value rather than a stale read.
type RedisUsageCounter struct {
	client *redis.Client
}

// NewRedisUsageCounter creates a redis-backed usage counter.
func NewRedisUsageCounter(client *redis.Client) *RedisUsageCounter {
	return &RedisUsageCounter{client: client}
}

// Counts returns the current global and per-user redemption counts without
// modifying them, keeping validation side-effect-free.
func (c *RedisUsageCounter) Counts(ctx context.Context, code, userID string) (int64, int64, error) {
	global, err := c.client.Get(ctx, globalUsageKey(code)).Int64()
	if err != nil && err != redis.Nil {
		return 0, 0, fmt.Errorf("coupons: read usage: %w", err)
	}
	var user int64
	if userID != "" {
		user, err = c.client.Get(ctx, userUsageKey(code, userID)).Int64()
		if err != nil && err != redis.Nil {
			return 0, 0, fmt.Errorf("coupons: read user usage: %w", err)
		}
	}
	return global, user, nil
}

// Redeem increments the counters and rolls back when a limit is exceeded.
func (c *RedisUsageCounter) Redeem(ctx context.Context, code, userID string, limit, perUserLimit int64) error {
	count, err := c.client.Incr(ctx, globalUsageKey(code)).Result()
	if err != nil {
		return fmt.Errorf("coupons: increment usage: %w", err)
	}
	if limit > 0 && count > limit {
		c.client.Decr(ctx, globalUsageKey(code))
		return ErrUsageExceeded
	}

	if userID != "" && perUserLimit > 0 {
		userCount, err := c.client.Incr(ctx, userUsageKey(code, userID)).Result()
		if err != nil {
			c.client.Decr(ctx, globalUsageKey(code))
			return fmt.Errorf("coupons: increment user usage: %w", err)
		}
		if userCount > perUserLimit {
			c.client.Decr(ctx, userUsageKey(code, userID))
			c.client.Decr(ctx, globalUsageKey(code))
			return ErrUsageExceeded
		}
	}
	return nil
}

func globalUsageKey(code string) string {
	return "coupon:usage:" + strings.ToUpper(code)
}

func userUsageKey(code, userID string) string {
	return "coupon:usage:" + strings.ToUpper(code) + ":user:" + userID
}
