package redisdep

import (
	"context"
	"time"

	"github.com/ghuser/txbus/pkg/cache"
	"github.com/ghuser/txbus/uow"
)

// CacheWarmer is a transient dependency that stages a read-model write and
// only commits it to Redis once the surrounding transaction itself
// commits, mirroring this project's event-driven cache-warming pattern
// but scoped to the same transaction as the event that triggered it
// instead of an out-of-band subscriber.
type CacheWarmer struct {
	cache  *cache.CounterCache
	id     string
	value  int
	staged bool
}

// NewCacheWarmer returns a factory producing a warmer backed by rc.
func NewCacheWarmer(rc *cache.RedisClient) func() *CacheWarmer {
	return func() *CacheWarmer {
		return &CacheWarmer{cache: cache.NewCounterCache(rc)}
	}
}

// Stage records the value to write on commit. Call it from the handler
// that owns the read model; it has no effect until OnAfterCommit fires.
func (w *CacheWarmer) Stage(id string, value int) {
	w.id, w.value, w.staged = id, value, true
}

// OnAfterCommit writes the staged value to Redis. A no-op if Stage was
// never called.
func (w *CacheWarmer) OnAfterCommit(ctx context.Context) error {
	if !w.staged {
		return nil
	}
	return w.cache.Set(ctx, &cache.CachedCounter{ID: w.id, Value: w.value, UpdatedAt: time.Now().UTC()})
}

// OnAfterRollback discards the staged write.
func (w *CacheWarmer) OnAfterRollback(ctx context.Context) error {
	w.staged = false
	return nil
}

var _ uow.Dependency = (*CacheWarmer)(nil)
