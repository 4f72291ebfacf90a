// Package cache provides the read-cache used by the store's query layer.
//
// Entries expire after a fixed TTL. Writers never invalidate single keys:
// any write-producing phase clears the whole cache through InvalidateAll.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a TTL-bound read cache keyed by query-parameter tuples.
type Cache[V any] struct {
	lru *expirable.LRU[string, V]

	mu  sync.Mutex
	gen uint64
}

// New creates a cache holding at most size entries for ttl each.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Get returns the cached value for key, if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Generation identifies the current invalidation epoch. Capture it before
// computing a value and hand it to SetAt.
func (c *Cache[V]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetAt stores value under key unless InvalidateAll ran since gen was taken.
// It reports whether the value was stored.
func (c *Cache[V]) SetAt(key string, value V, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.lru.Add(key, value)
	return true
}

// InvalidateAll drops every entry and starts a new generation.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Purge()
}

// Len reports the number of live entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Key joins query parameters into a cache key.
func Key(parts ...any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, "|")
}
