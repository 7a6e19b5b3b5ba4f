// Package broadcast — fan-out уведомлений об изменении агентов и задач.
// Доставка best-effort: без очереди, без подтверждений, без истории.
// Наблюдатель, подключившийся после события, его не увидит.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"go.uber.org/zap"
)

// TopicAll — подписка на все топики сразу.
const TopicAll = "*"

// Observer — один подписчик (например, SSE-поток). События читаются из C().
type Observer struct {
	ID     string
	ch     chan domain.Event
	topics map[string]struct{}
	closed bool
}

func (o *Observer) C() <-chan domain.Event { return o.ch }

type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Observer]struct{} // topic -> observers
	buffer int
	onDrop func(topic string)
	logger *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger, onDrop func(topic string)) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[string]map[*Observer]struct{}),
		buffer: buffer,
		onDrop: onDrop,
		logger: logger.Named("hub"),
	}
}

// NewObserver создает наблюдателя без подписок.
func (h *Hub) NewObserver() *Observer {
	return &Observer{
		ID:     uuid.NewString(),
		ch:     make(chan domain.Event, h.buffer),
		topics: make(map[string]struct{}),
	}
}

func (h *Hub) Subscribe(o *Observer, topic string) {
	if topic == "" {
		topic = TopicAll
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if o.closed {
		return
	}
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*Observer]struct{})
		h.subs[topic] = set
	}
	set[o] = struct{}{}
	o.topics[topic] = struct{}{}
}

func (h *Hub) Unsubscribe(o *Observer, topic string) {
	if topic == "" {
		topic = TopicAll
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(o, topic)
}

func (h *Hub) unsubscribeLocked(o *Observer, topic string) {
	if set, ok := h.subs[topic]; ok {
		delete(set, o)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
	delete(o.topics, topic)
}

// Remove снимает все подписки и закрывает канал наблюдателя.
func (h *Hub) Remove(o *Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if o.closed {
		return
	}
	for topic := range o.topics {
		h.unsubscribeLocked(o, topic)
	}
	o.closed = true
	close(o.ch)
}

// Subscribers — число наблюдателей, получивших бы событие топика.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.targetsLocked(topic))
}

// Publish сериализует payload и раздает событие локальным наблюдателям.
func (h *Hub) Publish(ctx context.Context, topic string, payload any) {
	ev, err := NewEvent(topic, payload)
	if err != nil {
		h.logger.Warn("event dropped: payload not serializable", zap.String("topic", topic), zap.Error(err))
		return
	}
	h.Deliver(ev)
}

// Deliver раздает готовое событие. Отправка неблокирующая: если буфер
// наблюдателя полон, событие для него теряется.
func (h *Hub) Deliver(ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for o := range h.targetsLocked(ev.Topic) {
		select {
		case o.ch <- ev:
		default:
			h.logger.Warn("observer buffer full, event dropped",
				zap.String("observer", o.ID), zap.String("topic", ev.Topic))
			if h.onDrop != nil {
				h.onDrop(ev.Topic)
			}
		}
	}
}

// targetsLocked — адресаты события. Пустой топик адресован всем наблюдателям.
func (h *Hub) targetsLocked(topic string) map[*Observer]struct{} {
	out := make(map[*Observer]struct{})
	if topic == "" || topic == TopicAll {
		for _, set := range h.subs {
			for o := range set {
				out[o] = struct{}{}
			}
		}
		return out
	}
	for o := range h.subs[topic] {
		out[o] = struct{}{}
	}
	for o := range h.subs[TopicAll] {
		out[o] = struct{}{}
	}
	return out
}

func NewEvent(topic string, payload any) (domain.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{Topic: topic, Payload: raw, At: time.Now().UTC()}, nil
}
