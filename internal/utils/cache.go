package utils

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheItem wraps a cached value with its expiry and the epoch it was
// loaded at.
type CacheItem[V any] struct {
	Data      V
	ExpiresAt time.Time
	Epoch     uint64
}

// ViewCache is a size-bounded LRU with a per-entry TTL. A nil *ViewCache is
// valid and caches nothing.
//
// Every Delete advances one cache-wide generation counter. The epoch of a
// cached key is the generation it was stored at; the epoch of an absent key
// is the current generation. A reader that loaded a value before a Delete
// therefore always holds a stale epoch and cannot store it, and no state is
// kept for keys outside the LRU.
type ViewCache[V any] struct {
	lruCache *lru.Cache[string, CacheItem[V]]
	ttl      time.Duration
	now      func() time.Time

	mu  sync.Mutex
	gen uint64
}

// NewViewCache creates a cache of the given capacity. A non-positive size
// disables caching and returns nil.
func NewViewCache[V any](size int, ttl time.Duration) (*ViewCache[V], error) {
	if size <= 0 {
		return nil, nil
	}
	l, err := lru.New[string, CacheItem[V]](size)
	if err != nil {
		return nil, err
	}
	return &ViewCache[V]{
		lruCache: l,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Epoch returns the current generation of key. Pass it to SetIfEpoch.
func (c *ViewCache[V]) Epoch(key string) uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochLocked(key)
}

func (c *ViewCache[V]) epochLocked(key string) uint64 {
	if item, ok := c.lruCache.Peek(key); ok {
		return item.Epoch
	}
	return c.gen
}

// SetIfEpoch stores data unless key was invalidated after epoch was read.
func (c *ViewCache[V]) SetIfEpoch(key string, epoch uint64, data V) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epochLocked(key) != epoch {
		return false
	}
	c.lruCache.Add(key, CacheItem[V]{
		Data:      data,
		ExpiresAt: c.now().Add(c.ttl),
		Epoch:     epoch,
	})
	return true
}

// Get returns the cached value, or false if it is missing or expired.
func (c *ViewCache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.lruCache.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().After(val.ExpiresAt) {
		c.lruCache.Remove(key)
		return zero, false
	}
	return val.Data, true
}

// Delete invalidates key.
func (c *ViewCache[V]) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.gen++
	c.lruCache.Remove(key)
	c.mu.Unlock()
}
