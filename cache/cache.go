package cache

import (
	"time"

	"github.com/IvanBrykalov/ccache/internal/util"
)

// Cache is a sharded in-memory cache with TTL and weight-bounded LRU eviction.
// All methods are safe for concurrent use by multiple goroutines.
//
// Lookups are served by the owning bucket and are immediately consistent.
// Recency tracking and eviction happen asynchronously on background workers,
// so the accounted weight (Size) can lag slightly behind Set and Delete.
type Cache[V any] struct {
	*engine[V]
	buckets []*bucket[V]
	mask    uint32
}

// New constructs a Cache and starts its workers. See Options for defaults.
// Call Stop to release the workers when the cache is no longer needed.
func New[V any](opt Options[V]) *Cache[V] {
	opt = opt.withDefaults()

	c := &Cache[V]{
		buckets: make([]*bucket[V], opt.Buckets),
		mask:    uint32(opt.Buckets - 1),
	}
	c.engine = newEngine(opt, func(e *Entry[V]) bool {
		return c.bucket(e.key).deleteIfSame(e.key, e)
	})
	f := c.factory()
	for i := range c.buckets {
		c.buckets[i] = newBucket("", f, opt.LockTimeout)
	}
	c.restart()
	return c
}

// ItemCount returns the number of entries stored across all buckets,
// including entries the workers have not promoted yet.
func (c *Cache[V]) ItemCount() int {
	count := 0
	for _, b := range c.buckets {
		count += b.itemCount()
	}
	return count
}

// Get returns the entry for key or ErrNotFound.
// The entry may be expired; check Entry.Expired. Fresh entries are promoted.
func (c *Cache[V]) Get(key string) (*Entry[V], error) {
	e, err := c.bucket(key).get(key)
	if err != nil {
		c.opt.Metrics.Miss()
		return nil, err
	}
	c.touch(e)
	return e, nil
}

// GetOrNil is like Get but returns nil when key is absent.
func (c *Cache[V]) GetOrNil(key string) *Entry[V] {
	e := c.bucket(key).getOrNil(key)
	c.touch(e)
	return e
}

// TrackingGet is like GetOrNil but also pins the entry: GC will not evict it
// until Entry.Release is called (unless Config.AlwaysEvict is set).
func (c *Cache[V]) TrackingGet(key string) *Entry[V] {
	return c.track(c.bucket(key).getOrNil(key))
}

// Fetch returns the fresh entry for key, or calls fetch, stores its value
// with ttl and returns the new entry. Errors from fetch are returned as is
// and leave the cache unchanged. Concurrent fetches of one key share a call.
func (c *Cache[V]) Fetch(key string, ttl time.Duration, fetch func() (V, error)) (*Entry[V], error) {
	return c.fetch(flightKey{key: key},
		func() *Entry[V] { return c.bucket(key).getOrNil(key) },
		func(v V) *Entry[V] { return c.Set(key, v, ttl) },
		fetch)
}

// Set inserts or replaces key with a value that expires after ttl.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) *Entry[V] {
	e, existing := c.bucket(key).set(key, value, ttl)
	if existing != nil {
		c.remove(existing)
	}
	c.promote(e)
	return e
}

// Replace updates the value of an existing key, keeping its remaining TTL.
// Returns false (and stores nothing) if key does not exist.
func (c *Cache[V]) Replace(key string, value V) bool {
	e := c.bucket(key).getOrNil(key)
	if e == nil {
		return false
	}
	c.Set(key, value, e.TTL())
	return true
}

// Extend resets the expiry of an existing key to now+ttl.
// Returns false if key does not exist.
func (c *Cache[V]) Extend(key string, ttl time.Duration) bool {
	e := c.bucket(key).getOrNil(key)
	if e == nil {
		return false
	}
	e.Extend(ttl)
	return true
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	e := c.bucket(key).delete(key)
	if e == nil {
		return false
	}
	c.remove(e)
	return true
}

// DeletePrefix removes every key starting with prefix and returns how many
// entries matched.
func (c *Cache[V]) DeletePrefix(prefix string) int {
	count := 0
	c.deleteBatch(func(sink func(*Entry[V])) {
		for _, b := range c.buckets {
			count += b.deleteByPrefix(prefix, sink)
		}
	})
	return count
}

// Clear removes every entry and unlinks it from the recency list immediately.
// Entries written while Clear runs survive it. OnEvict is not called for
// cleared entries.
func (c *Cache[V]) Clear() {
	c.clear(func(sink func(*Entry[V])) {
		for _, b := range c.buckets {
			b.drainAll(sink)
		}
	})
}

// Dropped returns the number of entries evicted by GC since the previous
// call, and resets the counter.
func (c *Cache[V]) Dropped() int { return c.dropCount() }

// Size returns the weight currently accounted in the recency list.
func (c *Cache[V]) Size() int64 { return c.weight() }

// GC runs one garbage-collection pass and returns the number of evicted
// entries. The workers run it automatically when Size exceeds MaxSize;
// calling it between Stop and Restart gives a deterministic pass.
func (c *Cache[V]) GC() int { return c.gc() }

// Stop stops the background workers after they have drained their queues.
// While stopped, reads and writes still work but recency tracking and
// eviction are suspended; their signals are held and applied by Restart.
func (c *Cache[V]) Stop() { c.stop() }

// Restart starts a new generation of workers with fresh queues, stopping
// the current one first, and replays the signals held while stopped.
// Stored entries are kept.
func (c *Cache[V]) Restart() { c.restart() }

func (c *Cache[V]) bucket(key string) *bucket[V] {
	return c.buckets[util.BucketIndex(key, c.mask)]
}
