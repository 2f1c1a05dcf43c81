package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "vitals"
)

// RedisKeyStorePrefix префикс ключей общего KV-хранилища
const RedisKeyStorePrefix = RedisNamespace + ":kv:"

// Каналы Pub/Sub
const (
	// RedisChanEvents: трансляция событий мониторинга (аудит, оптимизации, восстановление).
	RedisChanEvents = RedisNamespace + ":monitor:events"
	// RedisChanCommands команды оператора ("audit", "retry")
	RedisChanCommands = RedisNamespace + ":monitor:commands"
)

// StoreKey ключ KV-хранилища в пространстве имен
func StoreKey(key string) string {
	return fmt.Sprintf("%s%s", RedisKeyStorePrefix, key)
}
