package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/vitals/internal/infra"
)

// RedisKV: общее эфемерное хранилище. Все ключи живут под infra.RedisKeyStorePrefix,
// поэтому Clear не трогает чужие данные в той же базе.
type RedisKV struct {
	rdb *redis.Client
}

func NewRedisKV(rdb *redis.Client) *RedisKV {
	return &RedisKV{rdb: rdb}
}

func (r *RedisKV) Name() string  { return "redis" }
func (r *RedisKV) Durable() bool { return false }

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.rdb.Get(ctx, infra.StoreKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, infra.StoreKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, infra.StoreKey(key)).Err()
}

// Clear проходит SCAN по префиксу и удаляет ключи пачками через pipeline
func (r *RedisKV) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, infra.RedisKeyStorePrefix+"*", 500).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}

		if len(keys) > 0 {
			pipe := r.rdb.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("redis clear: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
