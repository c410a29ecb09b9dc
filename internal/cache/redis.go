package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces reference entries in Redis.
const DefaultRedisPrefix = "classrelay:ref:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// Prefix is prepended to every token (defaults to "classrelay:ref:")
	Prefix string

	// TTL is the time-to-live for cached envelopes (defaults to DefaultTTL)
	TTL time.Duration
}

// RedisCache implements Cache using Redis for distributed storage.
// This is suitable for multi-instance deployments behind a load balancer.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a new Redis-based cache.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisCacheWithClient(client, cfg), nil
}

func newRedisCacheWithClient(client *redis.Client, cfg RedisConfig) *RedisCache {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	slog.Info("redis reference cache connected", "prefix", prefix, "ttl", ttl)

	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get retrieves an envelope from Redis.
func (c *RedisCache) Get(ctx context.Context, token string) (json.RawMessage, error) {
	data, err := c.client.Get(ctx, c.prefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reference from redis: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("cached reference %q is not valid JSON", token)
	}
	return json.RawMessage(data), nil
}

// Set stores an envelope in Redis.
func (c *RedisCache) Set(ctx context.Context, token string, envelope json.RawMessage) error {
	if err := c.client.Set(ctx, c.prefix+token, []byte(envelope), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set reference in redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
