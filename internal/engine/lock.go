package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker — распределенная блокировка на один тик фоновой задачи.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisLock — SetNX, чтобы только один инстанс выполнял фоновую работу за тик.
// Лок не снимается явно: он истекает по TTL, которое меньше интервала тика.
type RedisLock struct {
	rdb    *redis.Client
	owner  string
	logger *zap.Logger
}

func NewRedisLock(rdb *redis.Client, owner string, logger *zap.Logger) *RedisLock {
	return &RedisLock{rdb: rdb, owner: owner, logger: logger.Named("lock")}
}

func (l *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		l.logger.Debug("lock held by another instance", zap.String("key", key))
	}
	return ok, nil
}
