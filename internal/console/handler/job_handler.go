package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/spaceai-fleet/internal/console/service"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"go.uber.org/zap"
)

type JobHandler struct {
	service *service.JobService
	logger  *zap.Logger
}

func NewJobHandler(s *service.JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{service: s, logger: logger.Named("job-handler")}
}

type createJobRequest struct {
	Command string `json:"command"`
	AgentID string `json:"agentId"`
}

func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	job, err := h.service.Create(r.Context(), req.Command, req.AgentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// List — GET /v1/jobs[?agentId=...]
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		jobs []*domain.Job
		err  error
	)
	if agentID := r.URL.Query().Get("agentId"); agentID != "" {
		jobs, err = h.service.ListByAgent(r.Context(), agentID)
	} else {
		jobs, err = h.service.List(r.Context())
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// Pending — GET /v1/jobs/pending/{agentId}: очередь агента, старые первыми.
func (h *JobHandler) Pending(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListPendingByAgent(r.Context(), chi.URLParam(r, "agentId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Update — PUT /v1/jobs/{id}: отчет агента о ходе выполнения.
func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.JobUpdate
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	job, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
