package memory

import (
	"fmt"
	"image"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/swipe/cache"
)

func key(n int) cache.Key {
	return cache.NewKey(fmt.Sprintf("https://example.com/%d.jpg", n), 0)
}

func img() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 1, 1))
}

func TestCachePutGet(t *testing.T) {
	t.Parallel()

	c := New()
	want := img()
	c.Put(key(1), want, 100)

	got, ok := c.Get(key(1))
	require.True(t, ok)
	assert.Same(t, want, got)

	_, ok = c.Get(key(2))
	assert.False(t, ok)
	assert.Equal(t, int64(100), c.Cost())
	assert.Equal(t, 1, c.Len())
}

func TestCacheVariantsAreSeparate(t *testing.T) {
	t.Parallel()

	c := New()
	url := "https://example.com/cat.jpg"
	c.Put(cache.NewKey(url, 256), img(), 10)

	_, ok := c.Get(cache.NewKey(url, 0))
	assert.False(t, ok, "thumbnail must not satisfy full-resolution lookup")
	_, ok = c.Get(cache.NewKey(url, 256))
	assert.True(t, ok)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := New(WithMaxCost(300), WithMaxEntries(0))
	c.Put(key(1), img(), 100)
	c.Put(key(2), img(), 100)
	c.Put(key(3), img(), 100)

	// Touch 1 so 2 becomes the oldest.
	_, ok := c.Get(key(1))
	require.True(t, ok)

	c.Put(key(4), img(), 100)

	_, ok = c.Get(key(2))
	assert.False(t, ok, "least recently used entry should be evicted")
	for _, n := range []int{1, 3, 4} {
		_, ok := c.Get(key(n))
		assert.True(t, ok, "entry %d should survive", n)
	}
	assert.Equal(t, int64(300), c.Cost())
}

func TestCacheEntryCeiling(t *testing.T) {
	t.Parallel()

	c := New(WithMaxCost(1<<30), WithMaxEntries(2))
	c.Put(key(1), img(), 1)
	c.Put(key(2), img(), 1)
	c.Put(key(3), img(), 1)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(key(1))
	assert.False(t, ok)
}

func TestCacheZeroEntriesDisablesCeiling(t *testing.T) {
	t.Parallel()

	c := New(WithMaxCost(1<<30), WithMaxEntries(0))
	for i := range DefaultMaxEntries + 20 {
		c.Put(key(i), img(), 1)
	}
	assert.Equal(t, DefaultMaxEntries+20, c.Len())
}

func TestCacheOverwriteDoesNotDoubleCount(t *testing.T) {
	t.Parallel()

	c := New(WithMaxCost(1000))
	c.Put(key(1), img(), 400)
	c.Put(key(1), img(), 300)

	assert.Equal(t, int64(300), c.Cost())
	assert.Equal(t, 1, c.Len())
}

func TestCacheOversizedEntryNotRetained(t *testing.T) {
	t.Parallel()

	c := New(WithMaxCost(100))
	c.Put(key(1), img(), 50)
	c.Put(key(2), img(), 500)

	_, ok := c.Get(key(2))
	assert.False(t, ok)
	_, ok = c.Get(key(1))
	assert.True(t, ok, "oversized put must not flush existing entries")
	assert.Equal(t, int64(50), c.Cost())
}

func TestCacheClearAndRemove(t *testing.T) {
	t.Parallel()

	c := New()
	c.Put(key(1), img(), 10)
	c.Put(key(2), img(), 10)

	c.Remove(key(1))
	assert.Equal(t, int64(10), c.Cost())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Cost())
	_, ok := c.Get(key(2))
	assert.False(t, ok)
}

func TestCacheBudgetInvariant(t *testing.T) {
	t.Parallel()

	const budget = 1000
	c := New(WithMaxCost(budget), WithMaxEntries(8))
	r := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 5000; i++ {
		k := key(r.IntN(32))
		if r.IntN(3) == 0 {
			c.Get(k)
		} else {
			c.Put(k, img(), int64(r.IntN(400)))
		}
		require.LessOrEqual(t, c.Cost(), int64(budget), "cost exceeded budget after op %d", i)
		require.LessOrEqual(t, c.Len(), 8)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	t.Parallel()

	const budget = 5000
	c := New(WithMaxCost(budget), WithMaxEntries(0))

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				k := key((g*31 + i) % 50)
				c.Put(k, img(), int64(i%200))
				c.Get(k)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Cost(), int64(budget))

	// Recompute the cost from the retained entries to detect double counting.
	c.mu.Lock()
	var sum int64
	for _, elem := range c.entries {
		sum += elem.Value.(*entry).cost
	}
	n := c.order.Len()
	c.mu.Unlock()
	assert.Equal(t, sum, c.Cost())
	assert.Equal(t, n, c.Len())
}
