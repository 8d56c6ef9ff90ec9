// Package cache implements a generic in-process LRU+TTL key/value store.
// It backs the suggestion engine and is invalidated per tenant by the flush
// pipeline and the reindex orchestrator. All state lives in process memory;
// the cache performs no I/O and cannot fail.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
	expiresAt  time.Time
}

// Cache is a fixed-capacity LRU with per-entry TTL. Expired entries are
// treated as misses and evicted lazily on access; there is no background
// sweep.
type Cache[V any] struct {
	mu         sync.Mutex
	maxEntries int
	defaultTTL time.Duration
	ll         *list.List
	items      map[string]*list.Element

	// now is swappable for TTL tests.
	now func() time.Time
}

// New creates a Cache holding at most maxEntries values, each expiring
// after defaultTTL unless Set overrides it.
func New[V any](maxEntries int, defaultTTL time.Duration) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cache[V]{
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Get returns the live value for key. An expired entry is removed and
// reported as a miss. A hit marks the entry most-recently-used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	ent := el.Value.(*entry[V])
	if c.now().After(ent.expiresAt) {
		c.removeElement(el)
		return zero, false
	}
	c.ll.MoveToFront(el)
	return ent.value, true
}

// Set stores value under key with an explicit TTL. At capacity the
// least-recently-used entry is evicted before the insert.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[V])
		ent.value = value
		ent.insertedAt = now
		ent.expiresAt = now.Add(ttl)
		c.ll.MoveToFront(el)
		return
	}
	if c.ll.Len() >= c.maxEntries {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	el := c.ll.PushFront(&entry[V]{
		key:        key,
		value:      value,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	})
	c.items[key] = el
}

// SetDefault stores value under key with the cache's default TTL.
func (c *Cache[V]) SetDefault(key string, value V) {
	c.Set(key, value, c.defaultTTL)
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns the number removed. Tenant-scoped invalidation passes the
// tenant's key prefix.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(el)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

// Len returns the number of stored entries, counting any that have expired
// but not yet been evicted.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache[V]) removeElement(el *list.Element) {
	ent := el.Value.(*entry[V])
	c.ll.Remove(el)
	delete(c.items, ent.key)
}
