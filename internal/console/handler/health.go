package handler

import (
	"net/http"
	"time"

	"github.com/xela07ax/spaceai-fleet/internal/console/service"
	"go.uber.org/zap"
)

type HealthHandler struct {
	service *service.HealthService
	logger  *zap.Logger
}

func NewHealthHandler(s *service.HealthService, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{service: s, logger: logger.Named("health-handler")}
}

// Health — GET /health: доступность хранилища.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Check(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "error",
			"database":  "disconnected",
			"timestamp": time.Now().UTC(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"database":  "connected",
		"timestamp": time.Now().UTC(),
	})
}

// Summary — GET /health/metrics: счетчики агентов и задач.
func (h *HealthHandler) Summary(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Summary(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
