package domain

import (
	"context"
	"time"
)

// RuleCache is the TTL-bounded cache of serialized rule lists keyed by
// (organization, family prefix). All methods require orgID for strict
// isolation. There is no eviction pressure beyond TTL expiry and explicit
// invalidation; candidate sets per key are expected to be small.
type RuleCache interface {
	// Get retrieves a value. Returns nil, nil when the key is absent or
	// expired.
	Get(ctx context.Context, orgID string, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, orgID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key.
	Delete(ctx context.Context, orgID string, key string) error

	// DeletePrefix removes every key for the organization that starts with
	// prefix. An empty prefix clears the organization's entries.
	DeletePrefix(ctx context.Context, orgID string, prefix string) error

	// Flush clears all entries across organizations.
	Flush(ctx context.Context) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// TTL applied to rule-list entries.
	TTL time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}
