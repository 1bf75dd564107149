// Package cache provides a small in-process TTL cache used by the board
// providers. Entries expire lazily: nothing runs in the background, a stale
// entry is simply refetched on the next access.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache associates keys with fetched values for a fixed TTL. Concurrent
// lookups of the same missing key are coalesced into one fetch; every caller
// receives the same result.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[K]entry[V]
	group   singleflight.Group

	// now is replaceable in tests.
	now func() time.Time
}

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// New creates a cache whose entries stay fresh for ttl after being fetched.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		entries: make(map[K]entry[V]),
		now:     time.Now,
	}
}

// GetOrFetch returns the cached value for key if it is still fresh,
// otherwise calls fetch and caches the result. A failed fetch caches
// nothing; any stale entry for the key is dropped.
func (c *Cache[K, V]) GetOrFetch(ctx context.Context, key K, fetch func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(fmt.Sprint(key), func() (any, error) {
		// A concurrent caller may have stored the value while this one
		// waited on the flight group.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		value, err := fetch(ctx)
		if err != nil {
			c.drop(key)
			var zero V
			return zero, err
		}

		c.Put(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	return v.(V), nil
}

// Get returns the cached value for key if it is still fresh.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.lookup(key)
}

// Put stores value for key, resetting its TTL.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, fetchedAt: c.now()}
}

// Invalidate drops the entry for key, if any.
func (c *Cache[K, V]) Invalidate(key K) {
	c.drop(key)
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

func (c *Cache[K, V]) lookup(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	// Fresh iff now is strictly before fetchedAt+ttl.
	if !c.now().Before(e.fetchedAt.Add(c.ttl)) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}

	return e.value, true
}

func (c *Cache[K, V]) drop(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
