// Command bench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"

	"github.com/IvanBrykalov/ccache/cache"
	"github.com/IvanBrykalov/ccache/config"
	pmet "github.com/IvanBrykalov/ccache/metrics/prom"
)

// store is the part of Cache and LayeredCache the workload needs.
type store interface {
	get(key string) *cache.Entry[string]
	set(key, value string, ttl time.Duration)
	ItemCount() int
	Size() int64
	Stop()
}

type flat struct{ *cache.Cache[string] }

func (f flat) get(key string) *cache.Entry[string]      { return f.GetOrNil(key) }
func (f flat) set(key, value string, ttl time.Duration) { f.Set(key, value, ttl) }

// layered spreads keys over groups by their numeric suffix.
type layered struct {
	*cache.LayeredCache[string]
	groups int
}

func (l layered) group(key string) string {
	n, _ := strconv.Atoi(key[2:])
	return "g:" + strconv.Itoa(n%l.groups)
}

func (l layered) get(key string) *cache.Entry[string] { return l.GetOrNil(l.group(key), key) }
func (l layered) set(key, value string, ttl time.Duration) {
	l.Set(l.group(key), key, value, ttl)
}

func main() {
	// ---- Flags ----
	var (
		cfgPath = flag.String("config", "", "cache config file (yaml/json); CCACHE_* env vars override it")
		maxSize = flag.Int64("max", 0, "max total weight (0 = from config)")
		buckets = flag.Int("buckets", 0, "number of buckets (0 = from config)")
		groups  = flag.Int("groups", 0, "use a LayeredCache with this many primary keys (0 = flat Cache)")
		ttl     = flag.Duration("ttl", time.Minute, "entry TTL")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = max/2)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
		verbose     = flag.Bool("v", false, "debug logging (cache workers and GC passes)")
		noColor     = flag.Bool("no-color", false, "disable colored log output")
	)
	flag.Parse()

	// ---- Logging ----
	level := logf.LevelInfo
	if *verbose {
		level = logf.LevelDebug
	}
	channel, closeLog := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          logftext.NewAppender(os.Stderr, logftext.EncoderConfig{NoColor: noColor}),
		EnableSyncOnError: true,
	})
	logger := logf.NewLogger(level, channel)
	fatal := func(msg string, err error) {
		logger.Error(msg, logf.Error(err))
		closeLog()
		os.Exit(1)
	}

	// ---- Config ----
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal("failed to load cache config", err)
	}
	if *maxSize > 0 {
		cfg.MaxSize = *maxSize
	}
	if *buckets > 0 {
		cfg.Buckets = *buckets
	}

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			logger.Info("serving pprof", logf.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				logger.Error("pprof server stopped", logf.Error(err))
			}
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "ccache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("serving metrics", logf.String("addr", *metricsAddr))
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			logger.Error("metrics server stopped", logf.Error(err))
		}
	}()

	// ---- Build cache ----
	opt := cache.Options[string]{
		Config:  cfg,
		Metrics: metrics,
		Logger:  logger.With(logf.String("component", "cache")),
	}
	var c store
	if *groups > 0 {
		c = layered{cache.NewLayered[string](opt), *groups}
	} else {
		c = flat{cache.New[string](opt)}
	}

	// ---- Preload half capacity to get a realistic hit-rate ----
	pl := *preload
	if pl == 0 {
		pl = int(cfg.MaxSize / 2)
	}
	for i := 0; i < pl; i++ {
		c.set("k:"+strconv.Itoa(i), "v"+strconv.Itoa(i), *ttl)
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	ttlVal := *ttl
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, hits, misses, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					if e := c.get(keyByZipf()); e != nil && !e.Expired() {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
				} else {
					atomic.AddUint64(&writes, 1)
					c.set(keyByZipf(), "v"+strconv.Itoa(localR.Int()), ttlVal)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)
	c.Stop()

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("max=%d buckets=%d groups=%d workers=%d keys=%d dur=%v seed=%d\n",
		cfg.MaxSize, cfg.Buckets, *groups, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)
	fmt.Printf("ItemCount()=%d  Size()=%d\n", c.ItemCount(), c.Size())
	closeLog()
}
