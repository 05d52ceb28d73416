package prom

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/ccache/cache"
)

func TestAdapter_Counters(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	a := New(reg, "app", "cache", prometheus.Labels{"name": "users"})

	a.Hit()
	a.Hit()
	a.Miss()
	a.Evict(cache.EvictCapacity)
	a.Evict(cache.EvictDeleted)
	a.Evict(cache.EvictDeleted)
	a.Size(3, 42)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.evicts[cache.EvictCapacity]))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.evicts[cache.EvictDeleted]))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.entries))
	assert.Equal(t, 42.0, testutil.ToFloat64(a.weight))

	expected := `
# HELP app_cache_evictions_total Entries that left the cache, by reason
# TYPE app_cache_evictions_total counter
app_cache_evictions_total{name="users",reason="capacity"} 1
app_cache_evictions_total{name="users",reason="deleted"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "app_cache_evictions_total"))
}

func TestAdapter_WiredIntoCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "", "ccache", nil)

	c := cache.New[int](cache.Options[int]{
		Config:  cache.Config{MaxSize: 4, ItemsToPrune: 1},
		Metrics: a,
	})
	t.Cleanup(c.Stop)

	for i := 0; i < 6; i++ {
		c.Set(strconv.Itoa(i), i, time.Minute)
	}
	c.GetOrNil("5")
	c.GetOrNil("missing")
	c.Stop()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.misses))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.evicts[cache.EvictCapacity]))
	assert.Equal(t, 4.0, testutil.ToFloat64(a.entries))
	assert.Equal(t, 4.0, testutil.ToFloat64(a.weight))
}
