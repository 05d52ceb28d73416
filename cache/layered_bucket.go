package cache

import (
	"time"

	"github.com/IvanBrykalov/ccache/internal/util"
)

// layeredBucket maps a primary key to an inner bucket holding that group's
// secondary keys. Inner buckets are created on first write and dropped by
// DeleteAll and Clear; a dropped bucket is retired so late writers retry
// against the current one.
type layeredBucket[V any] struct {
	mu          *util.TimedRWMutex
	buckets     map[string]*bucket[V]
	factory     *entryFactory[V]
	lockTimeout time.Duration
}

func newLayeredBucket[V any](factory *entryFactory[V], lockTimeout time.Duration) *layeredBucket[V] {
	return &layeredBucket[V]{
		mu:          util.NewTimedRWMutex(lockTimeout),
		buckets:     make(map[string]*bucket[V]),
		factory:     factory,
		lockTimeout: lockTimeout,
	}
}

func (lb *layeredBucket[V]) itemCount() int {
	count := 0
	for _, b := range lb.snapshot() {
		count += b.itemCount()
	}
	return count
}

// bucket returns the inner bucket for primary. With create it is made on demand;
// otherwise nil is returned for an unknown group.
func (lb *layeredBucket[V]) bucket(primary string, create bool) *bucket[V] {
	lb.mu.RLock()
	b := lb.buckets[primary]
	lb.mu.RUnlock()
	if b != nil || !create {
		return b
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()
	if b = lb.buckets[primary]; b == nil {
		b = newBucket(primary, lb.factory, lb.lockTimeout)
		lb.buckets[primary] = b
	}
	return b
}

func (lb *layeredBucket[V]) get(primary, secondary string) (*Entry[V], error) {
	b := lb.bucket(primary, false)
	if b == nil {
		return nil, ErrNotFound
	}
	return b.get(secondary)
}

func (lb *layeredBucket[V]) getOrNil(primary, secondary string) *Entry[V] {
	b := lb.bucket(primary, false)
	if b == nil {
		return nil
	}
	return b.getOrNil(secondary)
}

// set stores the value under (primary, secondary); the entry's group is primary.
func (lb *layeredBucket[V]) set(primary, secondary string, value V, ttl time.Duration) (entry, existing *Entry[V]) {
	for {
		if entry, existing = lb.bucket(primary, true).set(secondary, value, ttl); entry != nil {
			return entry, existing
		}
	}
}

func (lb *layeredBucket[V]) delete(primary, secondary string) *Entry[V] {
	b := lb.bucket(primary, false)
	if b == nil {
		return nil
	}
	return b.delete(secondary)
}

func (lb *layeredBucket[V]) deleteIfSame(primary, secondary string, e *Entry[V]) bool {
	b := lb.bucket(primary, false)
	if b == nil {
		return false
	}
	return b.deleteIfSame(secondary, e)
}

// drainAll drops one group, forwarding its entries to sink.
func (lb *layeredBucket[V]) drainAll(primary string, sink func(*Entry[V])) int {
	lb.mu.Lock()
	b := lb.buckets[primary]
	delete(lb.buckets, primary)
	lb.mu.Unlock()
	if b == nil {
		return 0
	}
	return b.retire(sink)
}

func (lb *layeredBucket[V]) deleteByPrefix(primary, prefix string, sink func(*Entry[V])) int {
	b := lb.bucket(primary, false)
	if b == nil {
		return 0
	}
	return b.deleteByPrefix(prefix, sink)
}

// drainEverything drops every group.
func (lb *layeredBucket[V]) drainEverything(sink func(*Entry[V])) int {
	lb.mu.Lock()
	buckets := lb.buckets
	lb.buckets = make(map[string]*bucket[V])
	lb.mu.Unlock()

	count := 0
	for _, b := range buckets {
		count += b.retire(sink)
	}
	return count
}

// snapshot copies the inner buckets so callers can visit them without
// holding the layered lock.
func (lb *layeredBucket[V]) snapshot() []*bucket[V] {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	out := make([]*bucket[V], 0, len(lb.buckets))
	for _, b := range lb.buckets {
		out = append(out, b)
	}
	return out
}
