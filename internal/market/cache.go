package market

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value    any
	storedAt time.Time
}

// ResponseCache keeps provider responses for ttl. Expiry is checked lazily
// on read; Purge drops expired entries explicitly.
type ResponseCache struct {
	ttl   time.Duration
	clock Clock

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewResponseCache(ttl time.Duration, clock Clock) *ResponseCache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ResponseCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

func (c *ResponseCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	return e.value, true
}

func (c *ResponseCache) Put(key string, value any) {
	now := c.clock.Now()
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, storedAt: now}
	c.mu.Unlock()
}

// Purge removes expired entries and reports how many were dropped.
func (c *ResponseCache) Purge() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
