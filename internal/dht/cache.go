package dht

import "github.com/golang/groupcache/lru"

// resultCache is the node's optional client-side cache for keys it
// forwarded on behalf of a client, bounded by a configurable capacity
// and evicted least-recently-used -- resolving the open cache-eviction
// question left by the original (spec §9) rather than growing without
// bound.
type resultCache struct {
	lru *lru.Cache
}

func newResultCache(size int) *resultCache {
	if size <= 0 {
		size = 1024
	}
	return &resultCache{lru: lru.New(size)}
}

func (c *resultCache) get(key string) (string, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (c *resultCache) put(key, value string) {
	c.lru.Add(key, value)
}
