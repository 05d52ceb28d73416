package cache

import (
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// A mixed workload of concurrent Set/Get/TrackingGet/Delete/DeletePrefix on
// random keys with a small MaxSize, so GC runs constantly.
// Should pass under `-race` without detector reports.
func TestRace_Basic(t *testing.T) {
	var evicted atomic.Int64
	c := New[[]byte](Options[[]byte]{
		Config:  Config{MaxSize: 1_000, ItemsToPrune: 50, Buckets: 32, GetsPerPromote: 2},
		OnEvict: func(*Entry[[]byte]) { evicted.Inc() },
	})
	t.Cleanup(c.Stop)

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 5_000
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% Delete
					c.Delete(k)
				case 5: // ~1% DeletePrefix
					c.DeletePrefix("k:1")
				case 6, 7, 8, 9: // ~4% TrackingGet
					if e := c.TrackingGet(k); e != nil {
						e.Release()
					}
				case 10, 11, 12, 13, 14, 15, 16, 17, 18, 19: // ~10% Set
					c.Set(k, []byte("x"), time.Duration(10+r.Intn(20))*time.Millisecond)
				default: // ~80% Get
					c.GetOrNil(k)
				}
			}
		}(w)
	}
	wg.Wait()
	c.Stop()

	// Every linked entry is still reachable from a bucket, and the accounted
	// weight matches the list.
	linked := listKeys(c.engine)
	assert.LessOrEqual(t, len(linked), c.ItemCount())
	assert.Equal(t, int64(len(linked)), c.Size())
	assert.Positive(t, evicted.Load())
}

func TestRace_Layered(t *testing.T) {
	c := NewLayered[int](Options[int]{
		Config: Config{MaxSize: 500, ItemsToPrune: 25},
	})
	t.Cleanup(c.Stop)

	workers := 2 * runtime.GOMAXPROCS(0)
	deadline := time.Now().Add(time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(id) + 1))
			for time.Now().Before(deadline) {
				p := "p" + strconv.Itoa(r.Intn(16))
				k := strconv.Itoa(r.Intn(256))
				switch r.Intn(100) {
				case 0:
					c.DeleteAll(p)
				case 1:
					c.Clear()
				case 2, 3:
					c.DeletePrefix(p, "1")
				case 4, 5, 6, 7, 8, 9, 10, 11, 12, 13:
					c.GetOrCreateSecondaryCache(p).Set(k, id, time.Minute)
				case 14, 15, 16, 17, 18, 19, 20, 21, 22, 23:
					c.Set(p, k, id, time.Minute)
				default:
					c.GetOrNil(p, k)
				}
			}
		}(w)
	}
	wg.Wait()
	c.Stop()

	assert.Equal(t, int64(len(listKeys(c.engine))), c.Size())
}

// Clear racing with writers must leave the recency list consistent with
// the buckets: every stored entry linked and accounted exactly once.
func TestRace_ClearAndSet(t *testing.T) {
	c := New[int](Options[int]{Config: Config{Buckets: 8}})
	t.Cleanup(c.Stop)

	workers := 2 * runtime.GOMAXPROCS(0)
	deadline := time.Now().Add(time.Second)

	var wg sync.WaitGroup
	wg.Add(workers + 1)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(id) + 1))
			for time.Now().Before(deadline) {
				c.Set(strconv.Itoa(r.Intn(256)), id, time.Minute)
			}
		}(w)
	}
	go func() {
		defer wg.Done()
		for time.Now().Before(deadline) {
			c.Clear()
			time.Sleep(time.Millisecond)
		}
	}()
	wg.Wait()
	c.Stop()

	assert.Equal(t, c.ItemCount(), len(listKeys(c.engine)))
	assert.Equal(t, int64(c.ItemCount()), c.Size())
}

// One hundred goroutines call Fetch on the same key concurrently.
// The loader should run at most once (singleflight coalescing).
func TestRace_Fetch(t *testing.T) {
	var calls atomic.Int64

	c := New[string](Options[string]{})
	t.Cleanup(c.Stop)

	load := func() (string, error) {
		calls.Inc()
		time.Sleep(2 * time.Millisecond) // simulate I/O
		return "v", nil
	}

	const goroutines = 100
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			e, err := c.Fetch("same-key", time.Minute, load)
			if err != nil {
				t.Errorf("Fetch error: %v", err)
				return
			}
			if e.Value() != "v" {
				t.Errorf("unexpected value: %q", e.Value())
			}
		}()
	}

	close(start)
	wg.Wait()

	require.Equal(t, int64(1), calls.Load(), "loader should run once")

	// Subsequent call should be a pure cache hit.
	e, err := c.Fetch("same-key", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "v", e.Value())
	assert.Equal(t, int64(1), calls.Load())
}

// Restart racing with writers must neither lose entries nor panic.
func TestRace_StopRestart(t *testing.T) {
	c := New[int](Options[int]{Config: Config{PromoteBuffer: 4, DeleteBuffer: 4}})
	t.Cleanup(c.Stop)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5_000; i++ {
			k := strconv.Itoa(i % 64)
			c.Set(k, i, time.Minute)
			c.Delete(k)
			c.Set(k, i, time.Minute)
		}
	}()

	for i := 0; ; i++ {
		select {
		case <-done:
			assert.Equal(t, 64, c.ItemCount())
			return
		default:
		}
		c.Restart()
		if i%2 == 0 {
			c.Stop()
		}
	}
}
