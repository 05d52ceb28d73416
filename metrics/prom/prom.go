// Package prom exports cache metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/ccache/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
//
// Exported series (prefixed with namespace and subsystem):
//
//	hits_total, misses_total
//	evictions_total{reason="deleted"|"capacity"}
//	size_entries, size_weight
type Adapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  [2]prometheus.Counter // indexed by cache.EvictReason
	entries prometheus.Gauge
	weight  prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
//
// Both eviction reasons are created up front so they are exported as zero.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels}
	}
	gauge := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels}
	}

	evicts := prometheus.NewCounterVec(counter("evictions_total", "Entries that left the cache, by reason"), []string{"reason"})
	a := &Adapter{
		hits:    prometheus.NewCounter(counter("hits_total", "Reads that found a fresh entry")),
		misses:  prometheus.NewCounter(counter("misses_total", "Reads that found no entry or an expired one")),
		entries: prometheus.NewGauge(gauge("size_entries", "Entries in the recency list")),
		weight:  prometheus.NewGauge(gauge("size_weight", "Total weight accounted against max_size")),
	}
	a.evicts[cache.EvictDeleted] = evicts.WithLabelValues(reason(cache.EvictDeleted))
	a.evicts[cache.EvictCapacity] = evicts.WithLabelValues(reason(cache.EvictCapacity))

	reg.MustRegister(a.hits, a.misses, evicts, a.entries, a.weight)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter for r.
func (a *Adapter) Evict(r cache.EvictReason) {
	if r != cache.EvictCapacity {
		r = cache.EvictDeleted
	}
	a.evicts[r].Inc()
}

// Size updates gauges for the number of entries and their total weight.
func (a *Adapter) Size(entries int, weight int64) {
	a.entries.Set(float64(entries))
	a.weight.Set(float64(weight))
}

// reason maps EvictReason to a stable label value.
func reason(r cache.EvictReason) string {
	if r == cache.EvictCapacity {
		return "capacity"
	}
	return "deleted"
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
