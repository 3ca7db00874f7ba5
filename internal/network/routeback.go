package network

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// RouteBackCache is a bounded, TTL-ceilinged map from message hash to
// previous-hop peer id (C1). Eviction is least-recently-inserted via an LRU
// once the capacity bound is hit; entries older than the configured TTL read
// as absent regardless of capacity pressure. All operations are serialized
// by a single mutex and are O(1) amortized.
type RouteBackCache struct {
	mu    sync.Mutex
	cache *lru.Cache
	ttl   time.Duration
}

type routeBackEntry struct {
	prevHop    PeerId
	insertedAt time.Time
}

// NewRouteBackCache builds a cache with the given capacity and TTL.
func NewRouteBackCache(capacity int, ttl time.Duration) *RouteBackCache {
	c, err := lru.New(capacity)
	if err != nil {
		// capacity <= 0 is a caller programming error, not a runtime condition.
		panic(err)
	}
	return &RouteBackCache{cache: c, ttl: ttl}
}

// Insert records prevHop as the previous hop for hash, evicting the least
// recently inserted entry if the cache is at capacity.
func (c *RouteBackCache) Insert(hash Hash, prevHop PeerId, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(hash, routeBackEntry{prevHop: prevHop, insertedAt: now})
}

// Remove consumes and returns the previous hop for hash, if present and not
// expired. The entry is removed from the cache either way, matching the
// single-use semantics messages routed by hash require.
func (c *RouteBackCache) Remove(hash Hash, now time.Time) (PeerId, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(hash)
	if !ok {
		return PeerId{}, false
	}
	c.cache.Remove(hash)
	entry := v.(routeBackEntry)
	if now.Sub(entry.insertedAt) > c.ttl {
		return PeerId{}, false
	}
	return entry.prevHop, true
}

// Compare reports whether hash currently maps to candidate, without
// consuming the entry. Used by message_for_me, which must not disturb a
// route-back entry that a later Remove will still need.
func (c *RouteBackCache) Compare(hash Hash, candidate PeerId, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Peek(hash)
	if !ok {
		return false
	}
	entry := v.(routeBackEntry)
	if now.Sub(entry.insertedAt) > c.ttl {
		return false
	}
	return entry.prevHop == candidate
}

// Len reports the number of entries currently tracked, including any that
// are logically expired but not yet evicted.
func (c *RouteBackCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
