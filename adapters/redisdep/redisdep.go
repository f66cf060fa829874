// Package redisdep provides an example transient dependency backed by
// Redis: an idempotency guard that reserves a message ID before a handler
// runs and releases the reservation if the surrounding transaction rolls
// back, so a retried delivery of the same message can proceed again.
package redisdep

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ghuser/txbus/pkg/cache"
	"github.com/ghuser/txbus/uow"
)

// IdempotencyGuard reserves a key in Redis for the lifetime of a
// transaction and only makes the reservation durable on commit.
type IdempotencyGuard struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewIdempotencyGuard returns a factory producing a guard for key, scoped
// to the message currently being dispatched. Pass the factory as a
// bus.DependencyFactory under whatever name handlers declare.
func NewIdempotencyGuard(rc *cache.RedisClient, key string, ttl time.Duration) func() *IdempotencyGuard {
	return func() *IdempotencyGuard {
		return &IdempotencyGuard{client: rc.Client(), key: key, ttl: ttl}
	}
}

// Reserve attempts to claim the guard's key, returning false if another
// in-flight (or already-committed) delivery holds it.
func (g *IdempotencyGuard) Reserve(ctx context.Context) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key, "reserved", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redisdep: reserve: %w", err)
	}
	return ok, nil
}

// OnAfterCommit marks the reservation durable by refreshing its TTL to a
// longer window so the same message ID is rejected for a full retention
// period, not just for the duration of the in-flight transaction.
func (g *IdempotencyGuard) OnAfterCommit(ctx context.Context) error {
	if err := g.client.Expire(ctx, g.key, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("redisdep: extend ttl: %w", err)
	}
	return nil
}

// OnAfterRollback releases the reservation so the message can be retried.
func (g *IdempotencyGuard) OnAfterRollback(ctx context.Context) error {
	if err := g.client.Del(ctx, g.key).Err(); err != nil {
		return fmt.Errorf("redisdep: release: %w", err)
	}
	return nil
}

var _ uow.Dependency = (*IdempotencyGuard)(nil)
