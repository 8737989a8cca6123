package cloudfleet

import (
	"sync"
	"time"
)

// Cache is a time-windowed memo for low-volatility lookups (customer detail,
// location list, route list). Entries expire after the TTL; there is no
// per-write invalidation, staleness up to the window is accepted. Tests set
// Bypass or call Invalidate to take it out of the picture.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	// Bypass disables reads; writes still happen.
	Bypass bool

	// now is swapped out by tests to control expiry.
	now func() time.Time
}

type cacheEntry struct {
	value  any
	stored time.Time
}

// NewCache creates a cache with the given staleness window. A zero TTL
// disables caching entirely.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Bypass || c.ttl <= 0 {
		return nil, false
	}
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.stored) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) put(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 {
		return
	}
	c.entries[key] = cacheEntry{value: v, stored: c.now()}
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
