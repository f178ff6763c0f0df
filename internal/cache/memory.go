package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache holds serialized scoring results in process memory. Entries
// expire after their TTL; a background janitor sweeps out expired results.
type MemoryCache struct {
	store *gocache.Cache
}

// NewMemoryCache creates a result cache. defaultTTL applies to entries stored
// without an explicit TTL. A cleanupInterval of zero or less defaults to the
// TTL itself so expired results do not linger.
func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultTTL
	}
	return &MemoryCache{store: gocache.New(defaultTTL, cleanupInterval)}
}

// Get returns the serialized result for key, if present and unexpired.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	val, found := c.store.Get(key)
	if !found {
		return nil, false
	}
	return val.([]byte), true
}

// Set stores a serialized result. A ttl of zero or less uses the cache
// default.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(key, value, ttl)
	return nil
}

// Delete evicts a single result, e.g. when a cached payload fails to decode.
func (c *MemoryCache) Delete(key string) error {
	c.store.Delete(key)
	return nil
}

// Clear drops every cached result.
func (c *MemoryCache) Clear() error {
	c.store.Flush()
	return nil
}

// Len reports the number of cached results, counting entries that have
// expired but not yet been swept.
func (c *MemoryCache) Len() int {
	return c.store.ItemCount()
}
