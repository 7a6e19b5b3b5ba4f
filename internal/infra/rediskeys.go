package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "spaceai:fleet"
)

// Ключи блокировок
const (
	// RedisKeyLockSweep — лидерство свипера присутствия на один тик
	RedisKeyLockSweep = RedisNamespace + ":lock:presence-sweep"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanEvents — общий канал событий agent:update / agent:status / job:update
	// между инстансами оркестратора.
	RedisChanEvents = RedisNamespace + ":events"
)
