package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/citeright/citeright/internal/compose"
)

// answerPrefix namespaces cache keys in Redis.
const answerPrefix = "answer:"

// RedisCache implements Cache using Redis. Entries are stored as JSON values
// under a fixed key prefix; SET gives atomic replace per key. Durability
// across restarts depends on the Redis persistence configuration.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed cache and verifies connectivity.
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client, used by tests.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Get returns the cached entry for query, or (nil, nil) on a miss.
func (c *RedisCache) Get(ctx context.Context, query string) (*Entry, error) {
	data, err := c.client.Get(ctx, answerPrefix+query).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

// Set stores an entry for query, overwriting any existing one.
func (c *RedisCache) Set(ctx context.Context, query, answer string, citations []compose.Citation) error {
	if citations == nil {
		citations = []compose.Citation{}
	}
	data, err := json.Marshal(Entry{
		Answer:    answer,
		Citations: citations,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, answerPrefix+query, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// ClearAll removes every cached entry under the answer prefix.
func (c *RedisCache) ClearAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, answerPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ensure RedisCache implements Cache.
var _ Cache = (*RedisCache)(nil)
