package localbucket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client used by RedisBackend.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisBackend stores blobs as Redis strings under <prefix><key>.
type RedisBackend struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisBackend creates a Redis backend. A zero ttl keeps blobs forever.
func NewRedisBackend(client RedisClient, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "tablestate:"
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}
}

// prefixKey adds the namespace prefix to a key.
func (b *RedisBackend) prefixKey(key string) string {
	return b.prefix + key
}

// Load implements Backend.
func (b *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.prefixKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Save implements Backend.
func (b *RedisBackend) Save(ctx context.Context, key string, data []byte) error {
	if err := b.client.Set(ctx, b.prefixKey(key), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefixKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
