package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFactory() *entryFactory[int] {
	return &entryFactory[int]{clock: systemClock{}}
}

func TestBucket_SetReturnsExisting(t *testing.T) {
	b := newBucket("", testFactory(), time.Second)

	first, existing := b.set("k", 1, time.Minute)
	assert.Nil(t, existing)
	second, existing := b.set("k", 2, time.Minute)
	assert.Same(t, first, existing)
	assert.Same(t, second, b.getOrNil("k"))
	assert.Equal(t, 1, b.itemCount())
}

func TestBucket_DeleteIfSame(t *testing.T) {
	b := newBucket("g", testFactory(), time.Second)

	old, _ := b.set("k", 1, time.Minute)
	assert.Equal(t, "g", old.Group())
	b.set("k", 2, time.Minute)

	assert.False(t, b.deleteIfSame("k", old))
	assert.NotNil(t, b.getOrNil("k"))
	assert.True(t, b.deleteIfSame("k", b.getOrNil("k")))
	assert.Nil(t, b.getOrNil("k"))
	assert.Nil(t, b.delete("k"))
}

func TestBucket_DeleteByPrefix(t *testing.T) {
	b := newBucket("", testFactory(), time.Second)
	for _, k := range []string{"a::1", "a::2", "b::1"} {
		b.set(k, 0, time.Minute)
	}

	var sunk []string
	n := b.deleteByPrefix("a::", func(e *Entry[int]) { sunk = append(sunk, e.Key()) })
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"a::1", "a::2"}, sunk)
	assert.Equal(t, 1, b.itemCount())
	assert.NotNil(t, b.getOrNil("b::1"))

	// The empty prefix matches everything.
	assert.Equal(t, 1, b.deleteByPrefix("", func(*Entry[int]) {}))
	assert.Equal(t, 0, b.itemCount())
}

func TestBucket_DrainAll(t *testing.T) {
	b := newBucket("", testFactory(), time.Second)
	b.set("a", 1, time.Minute)
	b.set("b", 2, time.Minute)

	var sunk int
	assert.Equal(t, 2, b.drainAll(func(*Entry[int]) { sunk++ }))
	assert.Equal(t, 2, sunk)
	assert.Equal(t, 0, b.itemCount())
	assert.Equal(t, 0, b.drainAll(nil))
}

func TestLayeredBucket_Groups(t *testing.T) {
	lb := newLayeredBucket(testFactory(), time.Second)

	assert.Nil(t, lb.bucket("p", false))
	lb.set("p", "a", 1, time.Minute)
	lb.set("p", "b", 2, time.Minute)
	lb.set("q", "a", 3, time.Minute)
	require.NotNil(t, lb.bucket("p", false))
	assert.Equal(t, 3, lb.itemCount())

	assert.Equal(t, 2, lb.drainAll("p", nil))
	assert.Equal(t, 0, lb.drainAll("missing", nil))
	assert.Nil(t, lb.bucket("p", false), "drained groups are dropped")
	assert.Len(t, lb.snapshot(), 1)

	assert.Equal(t, 1, lb.drainEverything(nil))
	assert.Equal(t, 0, lb.itemCount())
	assert.Empty(t, lb.snapshot())
}

func TestBucket_RetiredRejectsWrites(t *testing.T) {
	b := newBucket("g", testFactory(), time.Second)
	b.set("a", 1, time.Minute)

	assert.Equal(t, 1, b.retire(nil))
	e, existing := b.set("b", 2, time.Minute)
	assert.Nil(t, e)
	assert.Nil(t, existing)
	assert.Equal(t, 0, b.itemCount())
}

// A writer holding the bucket of a group that is dropped concurrently lands
// in the group's new bucket instead of the retired one.
func TestLayeredBucket_SetRetriesAfterDrop(t *testing.T) {
	lb := newLayeredBucket(testFactory(), time.Second)
	lb.set("p", "a", 1, time.Minute)
	stale := lb.bucket("p", false)

	lb.drainAll("p", nil)
	_, existing := stale.set("late", 0, time.Minute)
	assert.Nil(t, existing)
	assert.Nil(t, stale.getOrNil("late"))

	e, _ := lb.set("p", "late", 2, time.Minute)
	require.NotNil(t, e)
	assert.Same(t, e, lb.getOrNil("p", "late"))
	assert.NotSame(t, stale, lb.bucket("p", false))
}
