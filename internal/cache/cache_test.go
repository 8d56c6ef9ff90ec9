package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissingKey(t *testing.T) {
	c := New[string](10, time.Minute)
	_, ok := c.Get("absent")
	assert.False(t, ok)
}

func TestSetAndGet(t *testing.T) {
	c := New[[]string](10, time.Minute)
	c.SetDefault("k", []string{"a", "b"})

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSetUpdatesInPlace(t *testing.T) {
	c := New[int](10, time.Minute)
	c.SetDefault("k", 1)
	c.SetDefault("k", 2)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, got)
	assert.Equal(t, 1, c.Len())
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	c := New[string](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", "v", 30*time.Second)

	now = now.Add(29 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry past its TTL must read as a miss")
	assert.Equal(t, 0, c.Len(), "expired entry is evicted on access")
}

func TestEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := New[int](3, time.Minute)
	c.SetDefault("a", 1)
	c.SetDefault("b", 2)
	c.SetDefault("c", 3)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.SetDefault("d", 4)

	_, ok = c.Get("b")
	assert.False(t, ok, "least-recently-used entry should have been evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "key %s should survive", key)
	}
	assert.Equal(t, 3, c.Len())
}

func TestInvalidatePrefixIsTenantScoped(t *testing.T) {
	c := New[string](20, time.Minute)
	c.SetDefault("search:ws-1:suggest:ja", "x")
	c.SetDefault("search:ws-1:suggest:jan", "y")
	c.SetDefault("search:ws-2:suggest:ja", "z")

	removed := c.InvalidatePrefix("search:ws-1:")
	assert.Equal(t, 2, removed)

	_, ok := c.Get("search:ws-1:suggest:ja")
	assert.False(t, ok)
	_, ok = c.Get("search:ws-2:suggest:ja")
	assert.True(t, ok, "other tenants' entries must survive")
}

func TestInvalidatePrefixNoMatches(t *testing.T) {
	c := New[string](10, time.Minute)
	c.SetDefault("a", "x")
	assert.Equal(t, 0, c.InvalidatePrefix("nope:"))
	assert.Equal(t, 1, c.Len())
}

func TestClear(t *testing.T) {
	c := New[int](10, time.Minute)
	for i := 0; i < 5; i++ {
		c.SetDefault(fmt.Sprintf("k%d", i), i)
	}
	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok)
}

func TestZeroTTLUsesDefault(t *testing.T) {
	c := New[string](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", "v", 0)

	now = now.Add(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}
