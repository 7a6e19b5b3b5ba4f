package handler

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/xela07ax/spaceai-fleet/internal/broadcast"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"go.uber.org/zap"
)

const keepAliveInterval = 15 * time.Second

type EventHandler struct {
	hub    *broadcast.Hub
	logger *zap.Logger
}

func NewEventHandler(hub *broadcast.Hub, logger *zap.Logger) *EventHandler {
	return &EventHandler{hub: hub, logger: logger.Named("event-stream")}
}

// Stream — GET /v1/events?topic=agent:update&topic=job:update (Server-Sent Events).
// Подключение подписывает поток на топики (на все, если не указаны), отключение — отписывает.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	topics, err := parseTopics(r.URL.Query()["topic"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	o := h.hub.NewObserver()
	for _, t := range topics {
		h.hub.Subscribe(o, t)
	}
	defer h.hub.Remove(o)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": connected %s\n\n", o.ID)
	flusher.Flush()

	h.logger.Debug("observer connected", zap.String("observer", o.ID), zap.Strings("topics", topics))

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("observer disconnected", zap.String("observer", o.ID))
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-o.C():
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Topic, ev.Payload)
			flusher.Flush()
		}
	}
}

func parseTopics(raw []string) ([]string, error) {
	var topics []string
	for _, item := range raw {
		for _, t := range strings.Split(item, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if t != broadcast.TopicAll && !slices.Contains(domain.Topics, t) {
				return nil, domain.Invalidf("unknown topic %q", t)
			}
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		topics = []string{broadcast.TopicAll}
	}
	return topics, nil
}
