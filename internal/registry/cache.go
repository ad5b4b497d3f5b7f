package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// ToolCache is a TTL cache with stale-while-revalidate, keyed by tool name.
// Uses sync.Map for lock-free reads on the hot path.
type ToolCache struct {
	store sync.Map // map[string]*toolCacheEntry
	ttl   time.Duration
}

type toolCacheEntry struct {
	tool       *ToolDefinition // nil = negative cache (tool not published)
	expiresAt  time.Time
	refreshing atomic.Bool
}

// CacheGetResult holds the result of a cache lookup.
type CacheGetResult struct {
	Tool         *ToolDefinition // nil if not found or negative cache
	Hit          bool            // true if a value was found (fresh or stale)
	NeedsRefresh bool            // true if expired and this caller should refresh
}

func NewToolCache(ttl time.Duration) *ToolCache {
	return &ToolCache{ttl: ttl}
}

// Get performs a non-blocking lookup. Expired entries are still returned;
// exactly one caller per expiry sees NeedsRefresh.
func (c *ToolCache) Get(toolName string) CacheGetResult {
	val, ok := c.store.Load(toolName)
	if !ok {
		return CacheGetResult{}
	}

	entry := val.(*toolCacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return CacheGetResult{Tool: entry.tool, Hit: true}
	}

	return CacheGetResult{
		Tool:         entry.tool,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

// Set stores a definition with a fresh TTL. nil records a negative entry.
func (c *ToolCache) Set(toolName string, tool *ToolDefinition) {
	c.store.Store(toolName, &toolCacheEntry{
		tool:      tool,
		expiresAt: time.Now().Add(c.ttl),
	})
}

func (c *ToolCache) Delete(toolName string) {
	c.store.Delete(toolName)
}
