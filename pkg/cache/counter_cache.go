package cache

import (
	"context"
	"fmt"
	"time"
)

// CounterCacheTTL is the time-to-live for cached counter read models.
const CounterCacheTTL = 24 * time.Hour

const counterCacheKeyPrefix = "counter"

// CachedCounter is the denormalized read model stored in Redis after a
// CounterIncrementedEvent commits, so reads of the current value don't
// have to go back through the unit of work.
type CachedCounter struct {
	ID        string    `json:"id"`
	Value     int       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CounterCache provides structured read/write operations for counter read
// models. Key format: "counter:{id}"
type CounterCache struct {
	client *RedisClient
}

// NewCounterCache creates a new CounterCache backed by the given RedisClient.
func NewCounterCache(r *RedisClient) *CounterCache {
	return &CounterCache{client: r}
}

// Get retrieves the cached counter for id. Returns a "not found" error
// when the key does not exist or has expired.
func (c *CounterCache) Get(ctx context.Context, id string) (*CachedCounter, error) {
	key := c.key(id)
	vals, err := c.client.Client().HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("cache get %s: not found", id)
	}
	var value int
	if _, err := fmt.Sscanf(vals["value"], "%d", &value); err != nil {
		return nil, fmt.Errorf("cache parse value: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, vals["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("cache parse updated_at: %w", err)
	}
	return &CachedCounter{ID: id, Value: value, UpdatedAt: updatedAt}, nil
}

// Set writes a cached counter as a Redis hash with a 24-hour TTL, sending
// the fields and the TTL in one pipelined round trip. The pipeline is not a
// MULTI/EXEC transaction, so the two commands are not applied atomically.
func (c *CounterCache) Set(ctx context.Context, counter *CachedCounter) error {
	key := c.key(counter.ID)
	pipe := c.client.Client().Pipeline()
	pipe.HSet(ctx, key,
		"id", counter.ID,
		"value", counter.Value,
		"updated_at", counter.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, CounterCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes a cached counter.
func (c *CounterCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Client().Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (c *CounterCache) key(id string) string {
	return fmt.Sprintf("%s:%s", counterCacheKeyPrefix, id)
}
