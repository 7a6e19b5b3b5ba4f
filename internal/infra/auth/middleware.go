package auth

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс проверки операторских JWT
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure",
					zap.String("trace_id", domain.TraceIDFrom(r.Context())),
					zap.Error(err))
				unauthorized(w)
				return
			}

			// Прокидываем оператора в контекст
			ctx := domain.WithPrincipal(r.Context(), &domain.Principal{ID: claims.UserID, Username: claims.Username})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
