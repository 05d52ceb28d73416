package cache

import "time"

// SecondaryCache is a view of one group of a LayeredCache. It resolves the
// primary key's shard once; the group itself is looked up on every call, so
// the view stays valid after DeleteAll or Clear drop the group. Reads and
// writes feed the parent's queues and take part in its global recency
// tracking and GC.
type SecondaryCache[V any] struct {
	group  string
	lb     *layeredBucket[V]
	pCache *LayeredCache[V]
}

// Get returns the entry for secondary or ErrNotFound.
func (s *SecondaryCache[V]) Get(secondary string) (*Entry[V], error) {
	e, err := s.lb.get(s.group, secondary)
	if err != nil {
		s.pCache.opt.Metrics.Miss()
		return nil, err
	}
	s.pCache.touch(e)
	return e, nil
}

// GetOrNil is like Get but returns nil when the key is absent.
func (s *SecondaryCache[V]) GetOrNil(secondary string) *Entry[V] {
	e := s.lb.getOrNil(s.group, secondary)
	s.pCache.touch(e)
	return e
}

// TrackingGet is like GetOrNil but pins the entry until Entry.Release.
func (s *SecondaryCache[V]) TrackingGet(secondary string) *Entry[V] {
	return s.pCache.track(s.lb.getOrNil(s.group, secondary))
}

// Set inserts or replaces secondary within the group.
func (s *SecondaryCache[V]) Set(secondary string, value V, ttl time.Duration) *Entry[V] {
	e, existing := s.lb.set(s.group, secondary, value, ttl)
	if existing != nil {
		s.pCache.remove(existing)
	}
	s.pCache.promote(e)
	return e
}

// Fetch returns the fresh entry for secondary, or loads it with fetch.
func (s *SecondaryCache[V]) Fetch(secondary string, ttl time.Duration, fetch func() (V, error)) (*Entry[V], error) {
	return s.pCache.fetch(flightKey{group: s.group, key: secondary},
		func() *Entry[V] { return s.lb.getOrNil(s.group, secondary) },
		func(v V) *Entry[V] { return s.Set(secondary, v, ttl) },
		fetch)
}

// Delete removes secondary from the group and reports whether it was present.
func (s *SecondaryCache[V]) Delete(secondary string) bool {
	e := s.lb.delete(s.group, secondary)
	if e == nil {
		return false
	}
	s.pCache.remove(e)
	return true
}

// Replace updates an existing entry of the group, keeping its remaining TTL.
func (s *SecondaryCache[V]) Replace(secondary string, value V) bool {
	e := s.lb.getOrNil(s.group, secondary)
	if e == nil {
		return false
	}
	s.Set(secondary, value, e.TTL())
	return true
}
