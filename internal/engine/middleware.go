package engine

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"go.uber.org/zap"
)

const TraceHeader = "X-Trace-ID"

// TracingMiddleware инициализирует Trace-ID для каждого запроса
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Пытаемся достать ID из заголовка (если пришел от агента/прокси)
		traceID := r.Header.Get(TraceHeader)

		// 2. Если его нет — генерируем новый
		if traceID == "" {
			traceID = uuid.New().String()
		}

		// 3. Кладем в контекст
		ctx := domain.WithTraceID(r.Context(), traceID)

		// 4. Добавляем в ответ, чтобы клиент тоже знал ID своего запроса
		w.Header().Set(TraceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MetricsMiddleware пишет RED-метрики по шаблону маршрута chi (а не по сырому пути,
// иначе UUID в пути раздувают кардинальность).
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			code := strconv.Itoa(ww.Status())
			m.TotalRequests.WithLabelValues(r.Method, route, code).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route, code).Observe(time.Since(start).Seconds())
			if kind, ok := kindForStatus(ww.Status()); ok {
				m.ErrorTotal.WithLabelValues(kind.String()).Inc()
			}
		})
	}
}

func kindForStatus(code int) (domain.Kind, bool) {
	switch {
	case code == http.StatusNotFound:
		return domain.KindNotFound, true
	case code == http.StatusConflict:
		return domain.KindConflict, true
	case code == http.StatusBadRequest:
		return domain.KindInvalid, true
	case code == http.StatusUnauthorized:
		return domain.KindUnauthorized, true
	case code >= 500:
		return domain.KindInternal, true
	}
	return 0, false
}

// AccessLog — структурный лог запроса с trace id.
func AccessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("trace_id", domain.TraceIDFrom(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}
