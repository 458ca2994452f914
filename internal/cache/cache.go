package cache

import (
	"fmt"

	"github.com/bookwell/kestrel/internal/domain"
)

// New creates a new rule cache based on configuration.
// Community tier: in-process memory cache. Pro tier: Redis.
func New(cfg domain.CacheConfig) (domain.RuleCache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCache(), nil

	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
