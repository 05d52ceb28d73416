package cache

import (
	"time"

	"github.com/IvanBrykalov/ccache/internal/util"
)

// LayeredCache is a Cache keyed by (primary, secondary) pairs. Entries that
// share a primary key form a group that can be deleted as a unit (DeleteAll)
// or accessed through a SecondaryCache. Recency and GC are global across
// groups, exactly as in Cache.
type LayeredCache[V any] struct {
	*engine[V]
	buckets []*layeredBucket[V]
	mask    uint32
}

// NewLayered constructs a LayeredCache and starts its workers.
// Buckets are selected by hashing the primary key.
func NewLayered[V any](opt Options[V]) *LayeredCache[V] {
	opt = opt.withDefaults()

	c := &LayeredCache[V]{
		buckets: make([]*layeredBucket[V], opt.Buckets),
		mask:    uint32(opt.Buckets - 1),
	}
	c.engine = newEngine(opt, func(e *Entry[V]) bool {
		return c.bucket(e.group).deleteIfSame(e.group, e.key, e)
	})
	f := c.factory()
	for i := range c.buckets {
		c.buckets[i] = newLayeredBucket(f, opt.LockTimeout)
	}
	c.restart()
	return c
}

// ItemCount returns the number of entries across all groups.
func (c *LayeredCache[V]) ItemCount() int {
	count := 0
	for _, b := range c.buckets {
		count += b.itemCount()
	}
	return count
}

// Get returns the entry for (primary, secondary) or ErrNotFound.
func (c *LayeredCache[V]) Get(primary, secondary string) (*Entry[V], error) {
	e, err := c.bucket(primary).get(primary, secondary)
	if err != nil {
		c.opt.Metrics.Miss()
		return nil, err
	}
	c.touch(e)
	return e, nil
}

// GetOrNil is like Get but returns nil when the key is absent.
func (c *LayeredCache[V]) GetOrNil(primary, secondary string) *Entry[V] {
	e := c.bucket(primary).getOrNil(primary, secondary)
	c.touch(e)
	return e
}

// TrackingGet is like GetOrNil but pins the entry until Entry.Release.
func (c *LayeredCache[V]) TrackingGet(primary, secondary string) *Entry[V] {
	return c.track(c.bucket(primary).getOrNil(primary, secondary))
}

// Fetch returns the fresh entry for (primary, secondary), or loads it with
// fetch and stores it with ttl.
func (c *LayeredCache[V]) Fetch(primary, secondary string, ttl time.Duration, fetch func() (V, error)) (*Entry[V], error) {
	return c.fetch(flightKey{group: primary, key: secondary},
		func() *Entry[V] { return c.bucket(primary).getOrNil(primary, secondary) },
		func(v V) *Entry[V] { return c.Set(primary, secondary, v, ttl) },
		fetch)
}

// Set inserts or replaces (primary, secondary).
func (c *LayeredCache[V]) Set(primary, secondary string, value V, ttl time.Duration) *Entry[V] {
	e, existing := c.bucket(primary).set(primary, secondary, value, ttl)
	if existing != nil {
		c.remove(existing)
	}
	c.promote(e)
	return e
}

// Replace updates an existing entry, keeping its remaining TTL.
func (c *LayeredCache[V]) Replace(primary, secondary string, value V) bool {
	e := c.bucket(primary).getOrNil(primary, secondary)
	if e == nil {
		return false
	}
	c.Set(primary, secondary, value, e.TTL())
	return true
}

// Extend resets the expiry of an existing entry to now+ttl.
func (c *LayeredCache[V]) Extend(primary, secondary string, ttl time.Duration) bool {
	e := c.bucket(primary).getOrNil(primary, secondary)
	if e == nil {
		return false
	}
	e.Extend(ttl)
	return true
}

// Delete removes (primary, secondary) and reports whether it was present.
func (c *LayeredCache[V]) Delete(primary, secondary string) bool {
	e := c.bucket(primary).delete(primary, secondary)
	if e == nil {
		return false
	}
	c.remove(e)
	return true
}

// DeleteAll removes every entry of the primary group and drops the group.
// Reports whether the group held any entries.
func (c *LayeredCache[V]) DeleteAll(primary string) bool {
	count := 0
	c.deleteBatch(func(sink func(*Entry[V])) {
		count = c.bucket(primary).drainAll(primary, sink)
	})
	return count > 0
}

// DeletePrefix removes the entries of the primary group whose secondary key
// starts with prefix, and returns how many matched.
func (c *LayeredCache[V]) DeletePrefix(primary, prefix string) int {
	count := 0
	c.deleteBatch(func(sink func(*Entry[V])) {
		count = c.bucket(primary).deleteByPrefix(primary, prefix, sink)
	})
	return count
}

// GetOrCreateSecondaryCache returns a view bound to the primary group,
// creating the group if needed.
func (c *LayeredCache[V]) GetOrCreateSecondaryCache(primary string) *SecondaryCache[V] {
	lb := c.bucket(primary)
	lb.bucket(primary, true)
	return &SecondaryCache[V]{group: primary, lb: lb, pCache: c}
}

// Clear removes every entry and drops every group. OnEvict is not called
// for cleared entries.
func (c *LayeredCache[V]) Clear() {
	c.clear(func(sink func(*Entry[V])) {
		for _, b := range c.buckets {
			b.drainEverything(sink)
		}
	})
}

// Dropped returns the number of GC evictions since the previous call and resets it.
func (c *LayeredCache[V]) Dropped() int { return c.dropCount() }

// Size returns the weight currently accounted in the recency list.
func (c *LayeredCache[V]) Size() int64 { return c.weight() }

// GC runs one garbage-collection pass and returns the number of evicted entries.
func (c *LayeredCache[V]) GC() int { return c.gc() }

// Stop stops the background workers after they have drained their queues.
func (c *LayeredCache[V]) Stop() { c.stop() }

// Restart starts a new generation of workers and replays the signals held
// while stopped.
func (c *LayeredCache[V]) Restart() { c.restart() }

func (c *LayeredCache[V]) bucket(primary string) *layeredBucket[V] {
	return c.buckets[util.BucketIndex(primary, c.mask)]
}
