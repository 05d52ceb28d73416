// Package cache provides a sharded, in-memory LRU cache with per-entry TTL,
// weight-bounded eviction, prefix deletion, pinning, and a two-level
// ("layered") variant.
//
// Design
//
//   - Concurrency: keys are split over a power-of-two number of buckets, each
//     with its own reader/writer lock. Lookups touch a single bucket and are
//     immediately consistent.
//
//   - Recency: a single recency list per cache orders promoted entries.
//     Buckets never touch it. Reads and writes post the entry to a bounded
//     promote queue; removals post it to a bounded delete queue. One promote
//     worker and one delete worker apply these signals, so the list lags
//     slightly behind the buckets. A full queue blocks the writer.
//
//   - Promotion throttling: a resident entry is moved to the head of the list
//     only every Config.GetsPerPromote reads, which keeps hot keys cheap.
//
//   - GC: when the accounted weight exceeds Config.MaxSize after a new entry is
//     promoted, the promote worker evicts up to Config.ItemsToPrune entries
//     from the tail. Entries pinned with TrackingGet are skipped until
//     released, unless Config.AlwaysEvict is set.
//
//   - TTL: expiry is never enforced on read. Get returns expired entries; use
//     Entry.Expired and Entry.TTL to decide what to do with them.
//
//   - Locks: bucket locks have an acquisition timeout (Config.LockTimeout).
//     Exceeding it panics with ErrSyncTimeout.
//
//   - Callbacks: Options.OnEvict is called exactly once for every entry that
//     is deleted, replaced or evicted. Clear does not call it. Signals sent
//     while the workers are stopped are held and delivered after Restart.
//
// Basic usage
//
//	c := cache.New[string](cache.Options[string]{})
//	defer c.Stop()
//
//	c.Set("user:1", "alice", time.Minute)
//	if e := c.GetOrNil("user:1"); e != nil && !e.Expired() {
//	    _ = e.Value()
//	}
//	c.DeletePrefix("user:")
//
// Layered usage
//
//	lc := cache.NewLayered[string](cache.Options[string]{})
//	lc.Set("user:1", "profile", "...", time.Minute)
//	lc.Set("user:1", "settings", "...", time.Minute)
//	lc.DeleteAll("user:1") // drops the whole group
//
// Deterministic tests
//
// Stop waits until both workers have drained their queues. Stop followed by
// GC and Restart gives a point where no promotion or deletion is in flight.
package cache
