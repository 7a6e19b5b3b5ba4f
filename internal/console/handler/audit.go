package handler

import (
	"net/http"

	"github.com/xela07ax/spaceai-fleet/internal/console/service"
	"go.uber.org/zap"
)

type AuditHandler struct {
	service *service.AuditService
	logger  *zap.Logger
}

func NewAuditHandler(s *service.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{service: s, logger: logger.Named("audit-handler")}
}

// GetLogs возвращает последние записи журнала
// GET /v1/audit?agent_id=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.FetchLogs(r.Context(), r.URL.Query().Get("agent_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
