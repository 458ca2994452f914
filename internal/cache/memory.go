// Package cache provides rule cache implementations for Kestrel.
package cache

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/bookwell/kestrel/internal/domain"
)

const shardCount = 32

// MemoryCache is a sharded in-process TTL cache. Writes lock only the shard
// owning the key, so invalidating one (org, family) entry never serializes
// unrelated lookups. There is no LRU pressure; entries leave only through TTL
// expiry and explicit invalidation.
type MemoryCache struct {
	shards [shardCount]*shard
}

type shard struct {
	mu    sync.RWMutex
	items map[string]memEntry
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a new in-process cache.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{}
	for i := range c.shards {
		c.shards[i] = &shard{items: make(map[string]memEntry)}
	}
	return c
}

// Get retrieves a value. Returns nil, nil when absent or expired.
func (c *MemoryCache) Get(ctx context.Context, orgID string, key string) ([]byte, error) {
	if orgID == "" {
		return nil, fmt.Errorf("orgID is required")
	}

	fullKey := makeKey(orgID, key)
	sh := c.shardFor(fullKey)

	sh.mu.RLock()
	entry, ok := sh.items[fullKey]
	sh.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		sh.mu.Lock()
		// Re-check under the write lock; a Set may have raced the expiry.
		if cur, ok := sh.items[fullKey]; ok && time.Now().After(cur.expiresAt) {
			delete(sh.items, fullKey)
		}
		sh.mu.Unlock()
		return nil, nil
	}

	return entry.value, nil
}

// Set stores a value with TTL.
func (c *MemoryCache) Set(ctx context.Context, orgID string, key string, value []byte, ttl time.Duration) error {
	if orgID == "" {
		return fmt.Errorf("orgID is required")
	}

	fullKey := makeKey(orgID, key)
	sh := c.shardFor(fullKey)

	sh.mu.Lock()
	sh.items[fullKey] = memEntry{value: value, expiresAt: time.Now().Add(ttl)}
	sh.mu.Unlock()

	return nil
}

// Delete removes a single key.
func (c *MemoryCache) Delete(ctx context.Context, orgID string, key string) error {
	if orgID == "" {
		return fmt.Errorf("orgID is required")
	}

	fullKey := makeKey(orgID, key)
	sh := c.shardFor(fullKey)

	sh.mu.Lock()
	delete(sh.items, fullKey)
	sh.mu.Unlock()

	return nil
}

// DeletePrefix removes every key for the organization starting with prefix.
// An empty prefix clears the organization's entries.
func (c *MemoryCache) DeletePrefix(ctx context.Context, orgID string, prefix string) error {
	if orgID == "" {
		return fmt.Errorf("orgID is required")
	}

	fullPrefix := makeKey(orgID, prefix)
	for _, sh := range c.shards {
		sh.mu.Lock()
		for k := range sh.items {
			if strings.HasPrefix(k, fullPrefix) {
				delete(sh.items, k)
			}
		}
		sh.mu.Unlock()
	}

	return nil
}

// Flush clears all entries across organizations.
func (c *MemoryCache) Flush(ctx context.Context) error {
	for _, sh := range c.shards {
		sh.mu.Lock()
		sh.items = make(map[string]memEntry)
		sh.mu.Unlock()
	}
	return nil
}

// Ping checks cache health.
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close cleans up the cache.
func (c *MemoryCache) Close() error {
	return c.Flush(context.Background())
}

// Size returns the number of live entries, expired included.
func (c *MemoryCache) Size() int {
	total := 0
	for _, sh := range c.shards {
		sh.mu.RLock()
		total += len(sh.items)
		sh.mu.RUnlock()
	}
	return total
}

func (c *MemoryCache) shardFor(fullKey string) *shard {
	h := fnv.New32a()
	h.Write([]byte(fullKey))
	return c.shards[h.Sum32()%shardCount]
}

func makeKey(orgID, key string) string {
	return orgID + ":" + key
}

var _ domain.RuleCache = (*MemoryCache)(nil)
