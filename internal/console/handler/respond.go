package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"go.uber.org/zap"
)

// maxBodyBytes — запросы к API маленькие, больше не читаем.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor переводит доменный класс ошибки в HTTP-код.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindInvalid:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// writeError отдает доменные ошибки как есть, инфраструктурные — обезличенно.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		logger.Error("request failed",
			zap.String("trace_id", domain.TraceIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, statusFor(kind), errorBody{Error: msg, Kind: kind.String()})
}

// decodeJSON читает тело запроса. allowEmpty — пустое тело не ошибка.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.Invalidf("malformed request body: %v", err)
	}
	return nil
}
