package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ContextCache stores built word contexts between requests under keys made
// by ContextKey.
type ContextCache interface {
	Get(ctx context.Context, key string) (WordContext, bool, error)
	Set(ctx context.Context, key string, wc WordContext) error
}

const contextPrefix = "lexireader:context:"

// RedisContextCache keeps word contexts in Redis and lets TTL expire them.
type RedisContextCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ContextCache = (*RedisContextCache)(nil)

// NewRedisContextCache creates a cache on client. A non-positive ttl keeps
// entries until they are evicted.
func NewRedisContextCache(client *redis.Client, ttl time.Duration) *RedisContextCache {
	return &RedisContextCache{client: client, ttl: max(ttl, 0)}
}

// Get returns the context cached under key.
func (c *RedisContextCache) Get(ctx context.Context, key string) (WordContext, bool, error) {
	data, err := c.client.Get(ctx, contextPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return WordContext{}, false, nil
	}
	if err != nil {
		return WordContext{}, false, fmt.Errorf("get context: %w", err)
	}
	var wc WordContext
	if err := json.Unmarshal(data, &wc); err != nil {
		return WordContext{}, false, fmt.Errorf("unmarshal context: %w", err)
	}
	return wc, true, nil
}

// Set stores wc under key.
func (c *RedisContextCache) Set(ctx context.Context, key string, wc WordContext) error {
	data, err := json.Marshal(wc)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	if err := c.client.Set(ctx, contextPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set context: %w", err)
	}
	return nil
}
