package collections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces collection keys in a shared redis.
const DefaultKeyPrefix = "workbench:collection:"

// RedisBackend stores collections in redis with a TTL.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBackend wraps a redis client.
func NewRedisBackend(client *redis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, prefix: DefaultKeyPrefix, ttl: ttl}
}

// Connect dials redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", addr, err)
	}
	return client, nil
}

func (b *RedisBackend) key(kind Kind) string {
	return b.prefix + string(kind)
}

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, kind Kind) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, b.key(kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", kind, err)
	}
	return data, true, nil
}

// Set implements Backend.
func (b *RedisBackend) Set(ctx context.Context, kind Kind, payload []byte) error {
	if err := b.client.Set(ctx, b.key(kind), payload, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", kind, err)
	}
	return nil
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, kinds ...Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	keys := make([]string, len(kinds))
	for i, k := range kinds {
		keys[i] = b.key(k)
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
