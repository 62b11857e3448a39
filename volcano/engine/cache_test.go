package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCacheHitMiss(t *testing.T) {
	c := NewPlanCache(10, time.Minute)
	r := &Result{Fingerprint: "a"}

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Set("k", r)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Same(t, r, got)

	hits, misses, size := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1, size)

	c.Clear()
	hits, misses, size = c.Stats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
	assert.Zero(t, size)
}

func TestPlanCacheExpires(t *testing.T) {
	c := NewPlanCache(10, 10*time.Millisecond)
	c.Set("k", &Result{})

	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestPlanCacheEvictsOldest(t *testing.T) {
	c := NewPlanCache(3, time.Minute)
	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), &Result{})
		time.Sleep(time.Millisecond)
	}

	// Replacing an existing key never evicts
	c.Set("k2", &Result{})
	_, _, size := c.Stats()
	assert.Equal(t, 3, size)

	c.Set("k3", &Result{})
	_, ok := c.Get("k0")
	assert.False(t, ok, "oldest entry evicted")
	for _, k := range []string{"k1", "k2", "k3"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
}

func TestPlanCacheNilSafe(t *testing.T) {
	var c *PlanCache
	c.Set("k", &Result{})
	_, ok := c.Get("k")
	assert.False(t, ok)
	hits, misses, size := c.Stats()
	assert.Zero(t, hits+misses)
	assert.Zero(t, size)
}

func TestPlanCacheDefaults(t *testing.T) {
	c := NewPlanCache(0, 0)
	assert.Equal(t, 1000, c.maxSize)
	assert.Equal(t, 5*time.Minute, c.ttl)
}
