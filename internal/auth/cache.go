package auth

import (
	"sync"
	"time"
)

// AuthCache remembers accepted keys for a TTL so bcrypt runs once per key
// per window. Rejections are never cached.
type AuthCache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	principal *Principal
	expiresAt time.Time
}

func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl}
}

// Get returns the cached principal for a fresh entry.
func (c *AuthCache) Get(apiKey string) (*Principal, bool) {
	val, ok := c.store.Load(apiKey)
	if !ok {
		return nil, false
	}
	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.store.Delete(apiKey)
		return nil, false
	}
	return entry.principal, true
}

func (c *AuthCache) Set(apiKey string, p *Principal) {
	c.store.Store(apiKey, &cacheEntry{
		principal: p,
		expiresAt: time.Now().Add(c.ttl),
	})
}
