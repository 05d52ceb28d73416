package cache

import (
	"sync"

	"github.com/ssgreg/logf"
	"go.uber.org/atomic"

	"github.com/IvanBrykalov/ccache/internal/singleflight"
)

// flightKey identifies a Fetch in flight; group is "" for flat caches.
type flightKey struct {
	group string
	key   string
}

// engine is the recency and eviction machinery shared by Cache and
// LayeredCache. Buckets hold the canonical key→entry mapping; the engine
// learns about reads and writes through two bounded queues:
//
//   - promotables: entries that were written or read. The promote worker links
//     new entries into the recency list, moves hot ones to the head and runs GC
//     when the accounted weight exceeds MaxSize.
//   - deletables: entries removed from a bucket. The delete worker unlinks them
//     and fires OnEvict.
//
// The recency list and weight are only mutated by the workers, GC and Clear,
// all under mu, so contention on mu stays negligible.
type engine[V any] struct {
	opt Options[V]
	log *logf.Logger

	// detach removes a GC victim from its bucket if the bucket still maps its key to it.
	detach func(e *Entry[V]) bool

	// ---- guarded by qmu; senders hold it in read mode ----
	qmu         sync.RWMutex
	promotables chan *Entry[V]
	deletables  chan *Entry[V]
	done        chan struct{} // closed once both workers have drained
	stopped     bool

	// Signals sent while stopped; replayed by the next restart.
	heldMu      sync.Mutex
	heldPromote []*Entry[V]
	heldDelete  []*Entry[V]

	// ---- guarded by mu ----
	mu   sync.Mutex
	list recencyList[V]

	size    atomic.Int64 // weight of linked entries; written under mu
	dropped atomic.Int64 // GC evictions since the last Dropped()

	sf singleflight.Group[flightKey, *Entry[V]]
}

// newEngine returns a stopped engine; call restart to start the workers.
func newEngine[V any](opt Options[V], detach func(*Entry[V]) bool) *engine[V] {
	return &engine[V]{
		opt:     opt,
		log:     opt.Logger,
		detach:  detach,
		stopped: true,
	}
}

func (e *engine[V]) factory() *entryFactory[V] {
	return &entryFactory[V]{clock: e.opt.Clock, weigher: e.opt.Weigher}
}

// ---- queues ----

// promote signals a read or write of ent. It blocks while the promote queue
// is full; while the engine is stopped the signal is held until Restart.
func (e *engine[V]) promote(ent *Entry[V]) {
	e.qmu.RLock()
	defer e.qmu.RUnlock()
	if e.stopped {
		e.hold(&e.heldPromote, ent)
		return
	}
	e.promotables <- ent
}

// remove hands an entry that left its bucket to the delete worker.
func (e *engine[V]) remove(ent *Entry[V]) {
	e.qmu.RLock()
	defer e.qmu.RUnlock()
	e.sendDelete(ent)
}

// deleteBatch runs fn with a sink feeding the delete queue. The queue lock is
// held once for the whole batch, so fn may block on a full queue while it
// holds bucket read locks without ever racing Stop.
func (e *engine[V]) deleteBatch(fn func(sink func(*Entry[V]))) {
	e.qmu.RLock()
	defer e.qmu.RUnlock()
	fn(e.sendDelete)
}

// sendDelete is called with qmu held in read mode.
func (e *engine[V]) sendDelete(ent *Entry[V]) {
	if e.stopped {
		e.hold(&e.heldDelete, ent)
		return
	}
	e.deletables <- ent
}

func (e *engine[V]) hold(held *[]*Entry[V], ent *Entry[V]) {
	e.heldMu.Lock()
	*held = append(*held, ent)
	e.heldMu.Unlock()
}

// ---- reads ----

// touch records a read of ent (nil on miss). Fresh entries are promoted;
// expired ones are returned to the caller but not promoted.
func (e *engine[V]) touch(ent *Entry[V]) {
	if ent == nil || ent.Expired() {
		e.opt.Metrics.Miss()
		return
	}
	e.opt.Metrics.Hit()
	e.promote(ent)
}

// track pins ent against GC and records the read.
func (e *engine[V]) track(ent *Entry[V]) *Entry[V] {
	e.touch(ent)
	if ent == nil {
		return nil
	}
	ent.track()
	return ent
}

// fetch returns the fresh entry from lookup, or loads it with fn and stores
// it with set. Concurrent fetches of the same key share one call of fn.
func (e *engine[V]) fetch(k flightKey, lookup func() *Entry[V], set func(V) *Entry[V], fn func() (V, error)) (*Entry[V], error) {
	if fn == nil {
		return nil, ErrNoLoader
	}
	if ent := lookup(); ent != nil && !ent.Expired() {
		e.touch(ent)
		return ent, nil
	}
	e.opt.Metrics.Miss()

	ent, err, _ := e.sf.Do(k, func() (*Entry[V], error) {
		// double-check after flight join
		if ent := lookup(); ent != nil && !ent.Expired() {
			return ent, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		return set(v), nil
	})
	return ent, err
}

// ---- workers ----

// restart stops the running workers (if any) and starts a new generation
// with fresh queues, replaying the signals held while stopped. Entries and
// the recency list are untouched.
func (e *engine[V]) restart() {
	e.stop()

	e.qmu.Lock()
	defer e.qmu.Unlock()
	if !e.stopped {
		return // a concurrent restart won
	}
	e.promotables = make(chan *Entry[V], e.opt.PromoteBuffer)
	e.deletables = make(chan *Entry[V], e.opt.DeleteBuffer)
	e.done = make(chan struct{})
	e.stopped = false
	go e.run(e.promotables, e.deletables, e.done)

	// No sender can run while qmu is held, so the held signals are final.
	e.heldMu.Lock()
	promotes, deletes := e.heldPromote, e.heldDelete
	e.heldPromote, e.heldDelete = nil, nil
	e.heldMu.Unlock()

	e.log.Debug("cache workers started",
		logf.Int("promoteBuffer", e.opt.PromoteBuffer),
		logf.Int("deleteBuffer", e.opt.DeleteBuffer),
		logf.Int("replayed", len(promotes)+len(deletes)))

	// The workers never take qmu, so these sends drain even past the buffer size.
	for _, ent := range deletes {
		e.deletables <- ent
	}
	for _, ent := range promotes {
		e.promotables <- ent
	}
}

// stop closes the promote queue and waits until both workers have drained
// their queues. Safe to call more than once.
func (e *engine[V]) stop() {
	e.qmu.Lock()
	if e.stopped {
		e.qmu.Unlock()
		return
	}
	e.stopped = true
	close(e.promotables)
	done := e.done
	e.qmu.Unlock()

	<-done
	e.log.Debug("cache workers stopped")
}

// run is the promote worker. It owns the lifetime of the delete worker:
// once the promote queue is closed and drained it closes the delete queue
// and waits for the delete worker before signalling done.
func (e *engine[V]) run(promotables, deletables chan *Entry[V], done chan struct{}) {
	defer close(done)

	deleted := make(chan struct{})
	go e.runDeletes(deletables, deleted)

	for ent := range promotables {
		if e.doPromote(ent) && e.size.Load() > e.opt.MaxSize {
			e.dropped.Add(int64(e.gc()))
		}
	}

	close(deletables)
	<-deleted
}

func (e *engine[V]) runDeletes(deletables chan *Entry[V], deleted chan struct{}) {
	defer close(deleted)
	for ent := range deletables {
		if e.unlink(ent) {
			e.evicted(ent, EvictDeleted)
		}
	}
}

// doPromote links a new entry at the head, or counts a read of a resident
// one. It reports whether the entry was newly linked (the weight grew).
func (e *engine[V]) doPromote(ent *Entry[V]) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ent.state {
	case stateRemoved:
		return false
	case stateLinked:
		if ent.shouldPromote(e.opt.GetsPerPromote) {
			e.list.moveToFront(ent.node)
			ent.promotions = 0
		}
		return false
	}

	ent.node = e.list.pushFront(ent)
	ent.state = stateLinked
	e.size.Add(ent.weight)
	e.opt.Metrics.Size(e.list.len, e.size.Load())
	return true
}

// unlink moves ent into the removed state, detaching it from the recency
// list if it was linked. It reports false if ent was already removed.
func (e *engine[V]) unlink(ent *Entry[V]) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unlinkLocked(ent)
}

func (e *engine[V]) unlinkLocked(ent *Entry[V]) bool {
	switch ent.state {
	case stateRemoved:
		return false
	case stateLinked:
		e.list.remove(ent.node)
		e.size.Sub(ent.weight)
		e.opt.Metrics.Size(e.list.len, e.size.Load())
	}
	ent.node = nil
	ent.state = stateRemoved
	return true
}

// evicted reports an entry that left the cache and invokes OnEvict.
func (e *engine[V]) evicted(ent *Entry[V], reason EvictReason) {
	e.opt.Metrics.Evict(reason)
	if e.opt.OnEvict == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("OnEvict callback panicked",
				logf.String("group", ent.group),
				logf.String("key", ent.key),
				logf.Any("panic", r))
		}
	}()
	e.opt.OnEvict(ent)
}

// ---- GC ----

// gc evicts up to ItemsToPrune entries from the tail of the recency list,
// skipping entries pinned by TrackingGet unless AlwaysEvict is set.
// Returns the number of evicted entries.
func (e *engine[V]) gc() int {
	victims, pinned := e.collect()

	// Bucket locks are taken without mu held: a bucket reader may be
	// blocked on the delete queue, and the delete worker needs mu.
	for _, ent := range victims {
		e.detach(ent)
		e.evicted(ent, EvictCapacity)
	}

	if len(victims) > 0 || pinned > 0 {
		e.log.Debug("cache gc pass",
			logf.Int("evicted", len(victims)),
			logf.Int("pinned", pinned),
			logf.Int64("size", e.size.Load()))
	}
	return len(victims)
}

func (e *engine[V]) collect() (victims []*Entry[V], pinned int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.list.back()
	for i := 0; i < e.opt.ItemsToPrune && n != nil; i++ {
		prev := n.prev
		ent := n.entry
		if e.opt.AlwaysEvict || ent.refCount.Load() == 0 {
			e.unlinkLocked(ent)
			victims = append(victims, ent)
		} else {
			pinned++
		}
		n = prev
	}
	return victims, pinned
}

// ---- clear ----

// clear empties the buckets through drain and unlinks every drained entry
// synchronously, marking it removed so queue messages still in flight for it
// are ignored. Entries written after the drain keep their state and stay
// under GC. OnEvict is not called.
func (e *engine[V]) clear(drain func(sink func(*Entry[V]))) {
	// Drain before taking mu, same lock order as gc.
	var drained []*Entry[V]
	drain(func(ent *Entry[V]) { drained = append(drained, ent) })

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ent := range drained {
		e.unlinkLocked(ent)
	}
}

// ---- counters ----

func (e *engine[V]) dropCount() int { return int(e.dropped.Swap(0)) }

func (e *engine[V]) weight() int64 { return e.size.Load() }
