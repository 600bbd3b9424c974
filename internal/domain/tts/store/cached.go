package store

import (
	"context"
	"sync"
	"time"

	"mochimon-server-go/internal/domain/tts/aggregate"
	"mochimon-server-go/internal/domain/tts/inter"
)

// cachedStore fronts another MetadataStore with a short-lived in-process
// read-through cache. Every write through this store invalidates the key;
// writes made by other processes become visible after at most ttl.
type cachedStore struct {
	inner   inter.MetadataStore
	ttl     time.Duration
	now     func() time.Time
	mutex   sync.RWMutex
	data    map[string]cachedEntry
	version uint64
	hits    int64
	misses  int64
}

type cachedEntry struct {
	entry    aggregate.CacheEntry
	expireAt time.Time
}

// NewCached wraps inner with a read-through cache whose items live for ttl.
func NewCached(inner inter.MetadataStore, ttl time.Duration) inter.MetadataStore {
	return &cachedStore{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
		data:  make(map[string]cachedEntry),
	}
}

func (c *cachedStore) lookup(key string) (aggregate.CacheEntry, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	item, ok := c.data[key]
	if ok && c.now().Before(item.expireAt) {
		c.hits++
		return item.entry, true
	}
	if ok {
		delete(c.data, key)
	}
	c.misses++
	return aggregate.CacheEntry{}, false
}

func (c *cachedStore) Get(ctx context.Context, key string) (aggregate.CacheEntry, bool, error) {
	if entry, ok := c.lookup(key); ok {
		return entry, true, nil
	}

	c.mutex.RLock()
	version := c.version
	c.mutex.RUnlock()

	entry, found, err := c.inner.Get(ctx, key)
	if err != nil || !found {
		return entry, found, err
	}

	c.mutex.Lock()
	// a write raced with the read; keep the stale value out of the cache
	if c.version == version {
		c.data[key] = cachedEntry{entry: entry, expireAt: c.now().Add(c.ttl)}
	}
	c.mutex.Unlock()
	return entry, true, nil
}

func (c *cachedStore) invalidate(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.version++
	delete(c.data, key)
}

func (c *cachedStore) Set(ctx context.Context, key string, entry aggregate.CacheEntry) error {
	defer c.invalidate(key)
	return c.inner.Set(ctx, key, entry)
}

func (c *cachedStore) Update(ctx context.Context, key string, patch aggregate.URLPatch) error {
	defer c.invalidate(key)
	return c.inner.Update(ctx, key, patch)
}

func (c *cachedStore) Delete(ctx context.Context, key string) error {
	defer c.invalidate(key)
	return c.inner.Delete(ctx, key)
}

func (c *cachedStore) CleanupExpired(ctx context.Context) ([]aggregate.CacheEntry, error) {
	c.mutex.Lock()
	c.version++
	c.data = make(map[string]cachedEntry)
	c.mutex.Unlock()
	return c.inner.CleanupExpired(ctx)
}

func (c *cachedStore) Stats(ctx context.Context) (map[string]any, error) {
	stats, err := c.inner.Stats(ctx)
	if err != nil {
		return nil, err
	}
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	stats["front_cache"] = map[string]any{
		"size":     len(c.data),
		"hits":     c.hits,
		"misses":   c.misses,
		"hit_rate": hitRate,
		"ttl":      c.ttl.String(),
	}
	return stats, nil
}

func (c *cachedStore) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}
