package likes

import (
	"context"
	"sync"
	"time"

	"github.com/graph-gophers/dataloader/v7"
)

type cacheEntry[V any] struct {
	thunk   dataloader.Thunk[V]
	expires time.Time
}

// ttlCache is a dataloader cache whose entries expire after ttl, so like
// checks made through the loader are eventually re-fetched from the server.
type ttlCache[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	items map[K]cacheEntry[V]
}

func newTTLCache[K comparable, V any](ttl time.Duration, now func() time.Time) *ttlCache[K, V] {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &ttlCache[K, V]{ttl: ttl, now: now, items: make(map[K]cacheEntry[V])}
}

// Get returns the cached thunk while it has not expired.
func (c *ttlCache[K, V]) Get(_ context.Context, key K) (dataloader.Thunk[V], bool) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !now.Before(entry.expires) {
		c.mu.Lock()
		if current, still := c.items[key]; still && !now.Before(current.expires) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.thunk, true
}

// Set stores thunk for ttl.
func (c *ttlCache[K, V]) Set(_ context.Context, key K, thunk dataloader.Thunk[V]) {
	c.mu.Lock()
	c.items[key] = cacheEntry[V]{thunk: thunk, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete evicts key and reports whether it was present.
func (c *ttlCache[K, V]) Delete(_ context.Context, key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		return false
	}
	delete(c.items, key)
	return true
}

// Clear evicts everything.
func (c *ttlCache[K, V]) Clear() {
	c.mu.Lock()
	c.items = make(map[K]cacheEntry[V])
	c.mu.Unlock()
}
