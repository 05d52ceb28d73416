package cache

import (
	"time"

	"github.com/ssgreg/logf"

	"github.com/IvanBrykalov/ccache/internal/util"
)

// Defaults applied by New/NewLayered to zero-valued Config fields.
const (
	DefaultMaxSize        int64 = 5000
	DefaultBuckets              = 16
	DefaultItemsToPrune         = 500
	DefaultDeleteBuffer         = 1024
	DefaultPromoteBuffer        = 1024
	DefaultGetsPerPromote int32 = 3
	DefaultLockTimeout          = 10 * time.Second
)

// EvictReason explains why an entry left the cache.
type EvictReason int

const (
	// EvictDeleted: removed by Delete, DeletePrefix, DeleteAll, or replaced by Set/Replace.
	EvictDeleted EvictReason = iota
	// EvictCapacity: removed by the garbage collector to satisfy MaxSize.
	EvictCapacity
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// Size reports the entries and weight accounted in the recency list.
	Size(entries int, weight int64)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

type systemClock struct{}

func (systemClock) NowUnixNano() int64 { return time.Now().UnixNano() }

// Config holds the tunables of a cache. It carries no callbacks, so it can be
// loaded from files (see package config). Zero values are replaced by defaults.
type Config struct {
	// MaxSize is the total weight the recency list may hold before a GC pass runs.
	MaxSize int64 `mapstructure:"max_size"`

	// Buckets is the number of shards. It is rounded up to a power of two.
	Buckets int `mapstructure:"buckets"`

	// ItemsToPrune is how many entries one GC pass visits from the tail.
	ItemsToPrune int `mapstructure:"items_to_prune"`

	// DeleteBuffer and PromoteBuffer size the bounded worker queues.
	// Writers block while a queue is full.
	DeleteBuffer  int `mapstructure:"delete_buffer"`
	PromoteBuffer int `mapstructure:"promote_buffer"`

	// GetsPerPromote is how many reads of a resident entry move it to the
	// head of the recency list once.
	GetsPerPromote int32 `mapstructure:"gets_per_promote"`

	// AlwaysEvict makes GC ignore reference counts taken by TrackingGet.
	AlwaysEvict bool `mapstructure:"always_evict"`

	// LockTimeout bounds bucket lock acquisition. Exceeding it panics with
	// ErrSyncTimeout: a peer is stuck and the process state is suspect.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() Config {
	return Config{
		MaxSize:        DefaultMaxSize,
		Buckets:        DefaultBuckets,
		ItemsToPrune:   DefaultItemsToPrune,
		DeleteBuffer:   DefaultDeleteBuffer,
		PromoteBuffer:  DefaultPromoteBuffer,
		GetsPerPromote: DefaultGetsPerPromote,
		LockTimeout:    DefaultLockTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSize <= 0 {
		c.MaxSize = d.MaxSize
	}
	if c.Buckets <= 0 {
		c.Buckets = d.Buckets
	}
	if !util.IsPowerOfTwo(c.Buckets) {
		c.Buckets = util.NextPow2(c.Buckets)
	}
	if c.ItemsToPrune <= 0 {
		c.ItemsToPrune = d.ItemsToPrune
	}
	if c.DeleteBuffer <= 0 {
		c.DeleteBuffer = d.DeleteBuffer
	}
	if c.PromoteBuffer <= 0 {
		c.PromoteBuffer = d.PromoteBuffer
	}
	if c.GetsPerPromote <= 0 {
		c.GetsPerPromote = d.GetsPerPromote
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = d.LockTimeout
	}
	return c
}

// Options configures a Cache or LayeredCache. Zero values are safe;
// defaults are applied in New()/NewLayered():
//   - zero Config fields => DefaultConfig values
//   - nil Weigher        => every entry weighs 1
//   - nil Metrics        => NoopMetrics
//   - nil Logger         => disabled logger
//   - nil Clock          => time.Now()
type Options[V any] struct {
	Config

	// OnEvict is called once for every entry that leaves the cache through
	// the delete queue or GC. It runs on a worker goroutine: it must not block
	// and must not call back into the cache. Panics are recovered and logged.
	// Clear does not invoke it.
	OnEvict func(e *Entry[V])

	// Weigher returns the weight of an entry; results below 1 are clamped to 1.
	Weigher func(key string, v V) int64

	// Observability
	Metrics Metrics
	Logger  *logf.Logger

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
}

func (o Options[V]) withDefaults() Options[V] {
	o.Config = o.Config.withDefaults()
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = logf.NewDisabledLogger()
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	return o
}
