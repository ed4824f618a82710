package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "polymirror:market:"
	redisTTL           = 24 * time.Hour
)

// SharedCache is a cache tier shared between processes.
// Get returns ErrNotFound on a miss.
type SharedCache interface {
	Get(ctx context.Context, tokenID string) (MarketInfo, error)
	Set(ctx context.Context, tokenID string, info MarketInfo) error
}

// RedisOptions describe the shared Redis tier.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisCache stores resolved market info as JSON strings keyed by token id.
//
// Key schema:
//
//	{prefix}{tokenID} - JSON encoded MarketInfo
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache dials a Redis client for the shared tier.
func NewRedisCache(opts RedisOptions) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisCacheWithClient(rdb, opts.Prefix, opts.TTL)
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = redisTTL
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(tokenID string) string { return c.prefix + tokenID }

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Get reads a cached entry.
func (c *RedisCache) Get(ctx context.Context, tokenID string) (MarketInfo, error) {
	data, err := c.rdb.Get(ctx, c.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return MarketInfo{}, ErrNotFound
		}
		return MarketInfo{}, fmt.Errorf("redis: get market %s: %w", tokenID, err)
	}

	var info MarketInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return MarketInfo{}, fmt.Errorf("redis: unmarshal market %s: %w", tokenID, err)
	}
	return info, nil
}

// Set stores an entry with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, tokenID string, info MarketInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", tokenID, err)
	}
	if err := c.rdb.Set(ctx, c.key(tokenID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", tokenID, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

var _ SharedCache = (*RedisCache)(nil)
