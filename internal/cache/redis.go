package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements Remote on a redis instance. All keys are namespaced
// under a prefix so Flush can clear this cache without touching anything
// else sharing the instance.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds connection settings for the networked tier.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisCache creates a redis-backed Remote. The connection is lazy; an
// unreachable instance degrades reads rather than failing construction.
// Parameters:
//   - cfg: redis connection settings and key prefix.
// Returns:
//   - *RedisCache: initialized remote tier.
func NewRedisCache(cfg *RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "tw:cache:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get fetches a key from redis.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: cache key without prefix.
// Returns:
//   - []byte: stored value.
//   - error: domain.ErrCacheMiss if absent, transport error otherwise.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores a key with the given TTL.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: cache key without prefix.
//   - value: serialized value.
//   - ttl: expiry duration.
// Returns:
//   - error: non-nil on transport failure.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes keys.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - keys: cache keys without prefix.
// Returns:
//   - error: non-nil on transport failure.
func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.prefix + k
	}
	if err := r.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Flush scans and deletes every key under the prefix.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of keys removed.
//   - error: non-nil on transport failure.
func (r *RedisCache) Flush(ctx context.Context) (int64, error) {
	var removed int64
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 500).Iterator()

	batch := make([]string, 0, 500)
	flushBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.client.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		removed += n
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flushBatch(); err != nil {
				return removed, fmt.Errorf("redis flush: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis flush scan: %w", err)
	}
	if err := flushBatch(); err != nil {
		return removed, fmt.Errorf("redis flush: %w", err)
	}
	return removed, nil
}

// Ping checks connectivity.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: non-nil when the instance is unreachable.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client's connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
