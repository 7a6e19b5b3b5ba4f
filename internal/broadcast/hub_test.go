package broadcast

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"go.uber.org/zap"
)

func drain(o *Observer) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev, ok := <-o.C():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHubDeliversByTopic(t *testing.T) {
	h := NewHub(8, zap.NewNop(), nil)
	agents := h.NewObserver()
	jobs := h.NewObserver()
	all := h.NewObserver()
	h.Subscribe(agents, domain.TopicAgentUpdate)
	h.Subscribe(jobs, domain.TopicJobUpdate)
	h.Subscribe(all, TopicAll)

	h.Publish(context.Background(), domain.TopicAgentUpdate, map[string]string{"id": "a1"})
	h.Publish(context.Background(), domain.TopicJobUpdate, map[string]string{"id": "j1"})

	got := drain(agents)
	require.Len(t, got, 1)
	assert.Equal(t, domain.TopicAgentUpdate, got[0].Topic)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(got[0].Payload, &payload))
	assert.Equal(t, "a1", payload["id"])

	assert.Len(t, drain(jobs), 1)
	assert.Len(t, drain(all), 2)
}

func TestHubUnqualifiedPublishReachesEveryone(t *testing.T) {
	h := NewHub(8, zap.NewNop(), nil)
	a := h.NewObserver()
	b := h.NewObserver()
	h.Subscribe(a, domain.TopicAgentStatus)
	h.Subscribe(b, domain.TopicJobUpdate)

	h.Publish(context.Background(), "", "ping")
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

func TestHubPublishOrderPerObserver(t *testing.T) {
	h := NewHub(16, zap.NewNop(), nil)
	o := h.NewObserver()
	h.Subscribe(o, domain.TopicJobUpdate)
	for i := 0; i < 10; i++ {
		h.Publish(context.Background(), domain.TopicJobUpdate, i)
	}
	got := drain(o)
	require.Len(t, got, 10)
	for i, ev := range got {
		var n int
		require.NoError(t, json.Unmarshal(ev.Payload, &n))
		assert.Equal(t, i, n)
	}
}

func TestHubUnsubscribeAndLateObserver(t *testing.T) {
	h := NewHub(8, zap.NewNop(), nil)
	o := h.NewObserver()
	h.Subscribe(o, domain.TopicAgentUpdate)
	h.Publish(context.Background(), domain.TopicAgentUpdate, 1)

	late := h.NewObserver()
	h.Subscribe(late, domain.TopicAgentUpdate)
	assert.Empty(t, drain(late), "no backlog for late observers")

	h.Unsubscribe(o, domain.TopicAgentUpdate)
	h.Publish(context.Background(), domain.TopicAgentUpdate, 2)
	assert.Len(t, drain(o), 1, "only the event published before unsubscribe")
	assert.Equal(t, 1, h.Subscribers(domain.TopicAgentUpdate))
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	var dropped atomic.Int32
	h := NewHub(1, zap.NewNop(), func(string) { dropped.Add(1) })
	o := h.NewObserver()
	h.Subscribe(o, domain.TopicJobUpdate)

	for i := 0; i < 3; i++ {
		h.Publish(context.Background(), domain.TopicJobUpdate, i)
	}
	assert.Len(t, drain(o), 1)
	assert.EqualValues(t, 2, dropped.Load())
}

func TestHubRemoveClosesObserver(t *testing.T) {
	h := NewHub(4, zap.NewNop(), nil)
	o := h.NewObserver()
	h.Subscribe(o, domain.TopicAgentUpdate)
	h.Subscribe(o, domain.TopicJobUpdate)

	h.Remove(o)
	h.Remove(o)
	_, ok := <-o.C()
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers(domain.TopicJobUpdate))

	// Публикация после удаления не паникует
	h.Publish(context.Background(), domain.TopicJobUpdate, 1)
}
