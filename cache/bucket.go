package cache

import (
	"strings"
	"time"

	"github.com/IvanBrykalov/ccache/internal/util"
)

// bucket is an independent partition of the key space with its own lock
// and map. It knows nothing about recency; callers forward the entries it
// returns to the engine's queues.
type bucket[V any] struct {
	mu      *util.TimedRWMutex
	lookup  map[string]*Entry[V]
	group   string // stamped onto every entry created here ("" for flat caches)
	factory *entryFactory[V]
	retired bool   // set once a layered group is dropped; guarded by mu
}

func newBucket[V any](group string, factory *entryFactory[V], lockTimeout time.Duration) *bucket[V] {
	return &bucket[V]{
		mu:      util.NewTimedRWMutex(lockTimeout),
		lookup:  make(map[string]*Entry[V]),
		group:   group,
		factory: factory,
	}
}

func (b *bucket[V]) itemCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lookup)
}

// get returns ErrNotFound if key is absent.
func (b *bucket[V]) get(key string) (*Entry[V], error) {
	if e := b.getOrNil(key); e != nil {
		return e, nil
	}
	return nil, ErrNotFound
}

func (b *bucket[V]) getOrNil(key string) *Entry[V] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lookup[key]
}

// set stores a new entry for key and returns it along with the entry it
// replaced, if any. A retired bucket stores nothing and returns nil entries;
// the caller resolves the group again.
func (b *bucket[V]) set(key string, value V, ttl time.Duration) (entry, existing *Entry[V]) {
	entry = b.factory.newEntry(b.group, key, value, ttl)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.retired {
		return nil, nil
	}
	existing = b.lookup[key]
	b.lookup[key] = entry
	return entry, existing
}

// delete removes key and returns the removed entry, if any.
func (b *bucket[V]) delete(key string) *Entry[V] {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.lookup[key]
	delete(b.lookup, key)
	return e
}

// deleteIfSame removes key only while it still maps to e. GC uses it so an
// old entry never takes a newer value for the same key down with it.
func (b *bucket[V]) deleteIfSame(key string, e *Entry[V]) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lookup[key] != e {
		return false
	}
	delete(b.lookup, key)
	return true
}

// drainAll atomically empties the bucket and then hands every removed entry
// to sink (which may be nil). Returns the number of removed entries.
func (b *bucket[V]) drainAll(sink func(*Entry[V])) int {
	b.mu.Lock()
	lookup := b.lookup
	b.lookup = make(map[string]*Entry[V])
	b.mu.Unlock()

	if sink != nil {
		for _, e := range lookup {
			sink(e)
		}
	}
	return len(lookup)
}

// retire drains the bucket like drainAll and makes every later set fail,
// so a writer holding a stale pointer to a dropped group cannot lose its entry.
func (b *bucket[V]) retire(sink func(*Entry[V])) int {
	b.mu.Lock()
	b.retired = true
	b.mu.Unlock()
	return b.drainAll(sink)
}

// deleteByPrefix removes every entry whose key starts with prefix.
//
// The scan and the sink calls run under the read lock only; matches are
// forwarded to sink before they leave the map, and the write lock is taken
// just to delete them. The sink must therefore tolerate seeing an entry
// slightly before it disappears from the map.
func (b *bucket[V]) deleteByPrefix(prefix string, sink func(*Entry[V])) int {
	matched := b.matchPrefix(prefix, sink)
	if len(matched) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range matched {
		// A concurrent set may have replaced the entry; leave the new one alone.
		if b.lookup[e.key] == e {
			delete(b.lookup, e.key)
		}
	}
	return len(matched)
}

func (b *bucket[V]) matchPrefix(prefix string, sink func(*Entry[V])) []*Entry[V] {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []*Entry[V]
	for key, e := range b.lookup {
		if strings.HasPrefix(key, prefix) {
			sink(e)
			matched = append(matched, e)
		}
	}
	return matched
}
