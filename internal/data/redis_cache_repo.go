package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-reports/internal/core"
)

var _ core.CacheRepository = (*RedisCacheRepo)(nil)

// defaultCacheOpTimeout bounds a single cache round trip so a stalled Redis degrades reads instead of blocking them.
const defaultCacheOpTimeout = 500 * time.Millisecond

// RedisCacheRepo implements the CacheRepository interface using Redis.
type RedisCacheRepo struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

// RedisCacheOptions configures NewRedisCacheRepoWithOptions.
type RedisCacheOptions struct {
	// OpTimeout caps each command; zero uses the default.
	OpTimeout time.Duration
}

// NewRedisCacheRepo creates a new RedisCacheRepo with the given Redis client.
func NewRedisCacheRepo(client redis.UniversalClient) *RedisCacheRepo {
	return NewRedisCacheRepoWithOptions(client, RedisCacheOptions{})
}

// NewRedisCacheRepoWithOptions creates a RedisCacheRepo with explicit options.
func NewRedisCacheRepoWithOptions(client redis.UniversalClient, opts RedisCacheOptions) *RedisCacheRepo {
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = defaultCacheOpTimeout
	}
	return &RedisCacheRepo{client: client, opTimeout: timeout}
}

func (r *RedisCacheRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

// Set stores a value in Redis with the given key and TTL.
func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get retrieves a value from Redis by key. A missing key yields nil, nil.
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return result, nil
}

// Delete removes a key from Redis.
func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return result > 0, nil
}

// Health checks the health of the Redis connection.
func (r *RedisCacheRepo) Health(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
