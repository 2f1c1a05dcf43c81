// Package store: хранилища ключ-значение, которые очищает стратегия восстановления
// и проверяет аудит потока данных.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: key not found")

// KV: эфемерное или долговременное хранилище.
// Clear удаляет только ключи этого хранилища, а не всю базу.
type KV interface {
	Name() string
	Durable() bool
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
