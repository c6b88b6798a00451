// internal/app/system/cache/cache.go

// Package cache provides a small TTL cache with a pluggable clock. It is
// passed by reference to whoever needs it rather than held as a
// process-wide variable.
package cache

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a concurrency-safe map of string keys to values that expire
// ttl after being stored.
type Cache[V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   Clock
	items map[string]entry[V]
}

// New builds a cache with the given ttl. A nil clock means time.Now.
func New[V any](ttl time.Duration, now Clock) *Cache[V] {
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		ttl:   ttl,
		now:   now,
		items: make(map[string]entry[V]),
	}
}

// Get returns the cached value if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, resetting its ttl.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, storedAt: c.now()}
	c.mu.Unlock()
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Purge drops every expired entry. Callers with long-lived caches can run
// it periodically; Get never returns expired values either way.
func (c *Cache[V]) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.items {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
