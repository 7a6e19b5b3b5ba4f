package broadcast

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"go.uber.org/zap"
)

// RedisRelay — публикатор для нескольких инстансов оркестратора.
// Событие уходит в общий канал Redis, каждый инстанс (включая автора)
// принимает его в Run и раздает своим наблюдателям.
type RedisRelay struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
	logger  *zap.Logger

	subscribed atomic.Bool
	ready      chan struct{}
}

func NewRedisRelay(rdb *redis.Client, hub *Hub, channel string, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		rdb:     rdb,
		hub:     hub,
		channel: channel,
		logger:  logger.Named("relay"),
		ready:   make(chan struct{}),
	}
}

// Ready закрывается после первой успешной подписки на канал.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

func (r *RedisRelay) Publish(ctx context.Context, topic string, payload any) {
	ev, err := NewEvent(topic, payload)
	if err != nil {
		r.logger.Warn("event dropped: payload not serializable", zap.String("topic", topic), zap.Error(err))
		return
	}
	raw, _ := json.Marshal(ev)

	if err := r.rdb.Publish(ctx, r.channel, raw).Err(); err != nil {
		// Redis недоступен: локальные наблюдатели все равно получат событие
		r.logger.Warn("event relay failed, delivering locally",
			zap.String("topic", topic), zap.String("channel", r.channel), zap.Error(err))
		r.hub.Deliver(ev)
		return
	}
	// До первой подписки свое же сообщение из Redis не вернется
	if !r.subscribed.Load() {
		r.hub.Deliver(ev)
	}
}

func (r *RedisRelay) onSubscribed() error {
	if !r.subscribed.Swap(true) {
		close(r.ready)
		r.logger.Info("event relay subscribed", zap.String("channel", r.channel))
		return nil
	}
	r.logger.Info("event relay resubscribed", zap.String("channel", r.channel))
	return nil
}

// Run блокируется до отмены ctx, переподключаясь при обрывах.
func (r *RedisRelay) Run(ctx context.Context) {
	engine.ListenResilient(ctx, r.rdb, r.logger, r.channel, r.onSubscribed, func(payload string) {
		var ev domain.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			r.logger.Error("invalid event format", zap.String("payload", payload), zap.Error(err))
			return
		}
		r.hub.Deliver(ev)
	})
}
