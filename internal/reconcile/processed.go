package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const processedRetention = 48 * time.Hour

// ProcessedTracker remembers webhook event ids so at-least-once delivery
// collapses to one application per event.
type ProcessedTracker interface {
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
}

// RedisProcessedTracker stores processed event ids as SETNX keys with a
// retention window, claiming the id atomically so two replicas cannot both
// process the same delivery.
type RedisProcessedTracker struct {
	client *redis.Client
}

// NewRedisProcessedTracker creates a redis-backed tracker.
func NewRedisProcessedTracker(client *redis.Client) *RedisProcessedTracker {
	return &RedisProcessedTracker{client: client}
}

// MarkProcessed claims the event id. It returns true when this caller is the
// first to see the event.
func (t *RedisProcessedTracker) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	ok, err := t.client.SetNX(ctx, "webhook:processed:"+eventID, "1", processedRetention).Result()
	if err != nil {
		return false, fmt.Errorf("reconcile: mark processed: %w", err)
	}
	return ok, nil
}
