package handler

import (
	"math"
	"net/http"
	"time"

	"github.com/xela07ax/spaceai-fleet/internal/console/service"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"go.uber.org/zap"
)

type TokenHandler struct {
	service *service.TokenService
	logger  *zap.Logger
}

func NewTokenHandler(s *service.TokenService, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{service: s, logger: logger.Named("token-handler")}
}

// maxTTLSeconds — наибольший TTL, представимый в time.Duration (~292 года).
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

type issueRequest struct {
	TTLSeconds *int64 `json:"ttlSeconds,omitempty"`
}

// Issue — POST /v1/agents/tokens. Без ttlSeconds действует TTL по умолчанию,
// ttlSeconds = 0 выпускает уже истекший токен.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var (
		tok *domain.RegistrationToken
		err error
	)
	switch {
	case req.TTLSeconds == nil:
		tok, err = h.service.Issue(r.Context(), 0)
	case *req.TTLSeconds < 0:
		err = domain.Invalidf("ttlSeconds must not be negative")
	case *req.TTLSeconds > maxTTLSeconds:
		err = domain.Invalidf("ttlSeconds must not exceed %d", maxTTLSeconds)
	default:
		tok, err = h.service.IssueWithTTL(r.Context(), time.Duration(*req.TTLSeconds)*time.Second)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}
