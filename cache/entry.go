package cache

import (
	"time"

	"go.uber.org/atomic"
)

// entryState tracks where an entry is in the recency pipeline.
type entryState uint8

const (
	// stateUnlinked: stored in a bucket, not yet promoted into the recency list.
	stateUnlinked entryState = iota
	// stateLinked: resident in the recency list; promotions counts reads since the last move.
	stateLinked
	// stateRemoved: deleted or evicted. Queue messages still in flight for
	// the entry are ignored, so it can never be promoted again.
	stateRemoved
)

// Entry is a cached value with its expiry and bookkeeping.
// Entries returned by the cache stay valid after the key is deleted or
// evicted; they simply are no longer reachable from the cache.
type Entry[V any] struct {
	key    string
	group  string
	value  V
	weight int64
	clock  Clock

	expires  atomic.Int64 // UnixNano
	refCount atomic.Int32

	// Guarded by the engine's list mutex.
	node       *node[V]
	state      entryState
	promotions int32
}

// entryFactory builds entries for buckets; it is shared by every bucket of an engine.
type entryFactory[V any] struct {
	clock   Clock
	weigher func(key string, v V) int64
}

func (f *entryFactory[V]) newEntry(group, key string, value V, ttl time.Duration) *Entry[V] {
	e := &Entry[V]{
		key:    key,
		group:  group,
		value:  value,
		weight: 1,
		clock:  f.clock,
	}
	if f.weigher != nil {
		if w := f.weigher(key, value); w > 1 {
			e.weight = w
		}
	}
	e.expires.Store(f.clock.NowUnixNano() + int64(ttl))
	return e
}

// Key returns the entry key (the secondary key for layered caches).
func (e *Entry[V]) Key() string { return e.key }

// Group returns the primary key of a layered entry, or "" for flat caches.
func (e *Entry[V]) Group() string { return e.group }

// Value returns the cached value.
func (e *Entry[V]) Value() V { return e.value }

// Weight returns the weight accounted against Config.MaxSize.
func (e *Entry[V]) Weight() int64 { return e.weight }

// Expired reports whether the entry's TTL has elapsed.
// The cache never hides expired entries; callers decide what stale means.
func (e *Entry[V]) Expired() bool {
	return e.expires.Load() < e.clock.NowUnixNano()
}

// TTL returns the time left until expiry; negative once expired.
func (e *Entry[V]) TTL() time.Duration {
	return time.Duration(e.expires.Load() - e.clock.NowUnixNano())
}

// Expires returns the absolute expiry time.
func (e *Entry[V]) Expires() time.Time {
	return time.Unix(0, e.expires.Load())
}

// Extend sets the expiry to now+ttl.
func (e *Entry[V]) Extend(ttl time.Duration) {
	e.expires.Store(e.clock.NowUnixNano() + int64(ttl))
}

// Release drops a reference taken by TrackingGet. Once every reference is
// released the entry can be evicted by GC again. Extra calls are no-ops.
func (e *Entry[V]) Release() {
	for {
		n := e.refCount.Load()
		if n <= 0 {
			return
		}
		if e.refCount.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// RefCount returns the number of outstanding TrackingGet references.
func (e *Entry[V]) RefCount() int32 { return e.refCount.Load() }

func (e *Entry[V]) track() { e.refCount.Inc() }

// shouldPromote counts a read of a resident entry and reports whether it
// reached the move-to-front threshold. Called with the list mutex held.
func (e *Entry[V]) shouldPromote(getsPerPromote int32) bool {
	e.promotions++
	return e.promotions >= getsPerPromote
}
