package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements domain.RuleCache using Redis, for multi-node
// deployments where invalidation must be visible across processes.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, orgID string, key string) ([]byte, error) {
	if orgID == "" {
		return nil, fmt.Errorf("orgID is required")
	}

	val, err := c.client.Get(ctx, c.makeKey(orgID, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, orgID string, key string, value []byte, ttl time.Duration) error {
	if orgID == "" {
		return fmt.Errorf("orgID is required")
	}

	return c.client.Set(ctx, c.makeKey(orgID, key), value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, orgID string, key string) error {
	if orgID == "" {
		return fmt.Errorf("orgID is required")
	}

	return c.client.Del(ctx, c.makeKey(orgID, key)).Err()
}

// DeletePrefix removes every key for the organization starting with prefix,
// scanning in batches so large keyspaces don't block the server.
func (c *RedisCache) DeletePrefix(ctx context.Context, orgID string, prefix string) error {
	if orgID == "" {
		return fmt.Errorf("orgID is required")
	}

	return c.deletePattern(ctx, c.makeKey(orgID, prefix)+"*")
}

// Flush clears all kestrel entries across organizations.
func (c *RedisCache) Flush(ctx context.Context) error {
	return c.deletePattern(ctx, "kestrel:*")
}

func (c *RedisCache) deletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(orgID, key string) string {
	return "kestrel:" + orgID + ":" + key
}
