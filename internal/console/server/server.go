package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/spaceai-fleet/internal/console/handler"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"github.com/xela07ax/spaceai-fleet/internal/infra/auth"
	"go.uber.org/zap"
)

// Handlers — обработчики бизнес-доменов
type Handlers struct {
	Auth   *handler.AuthHandler   // /auth/token
	Health *handler.HealthHandler // /health
	Agents *handler.AgentHandler  // /v1/agents
	Tokens *handler.TokenHandler  // /v1/agents/tokens
	Jobs   *handler.JobHandler    // /v1/jobs
	Events *handler.EventHandler  // /v1/events (SSE)
	Audit  *handler.AuditHandler  // /v1/audit
}

type ConsoleServer struct {
	router  *chi.Mux
	logger  *zap.Logger
	metrics *engine.Metrics

	// Проверка операторских токенов (RS256)
	authValidator auth.TokenValidator

	h Handlers
}

// NewConsoleServer инициализирует API оркестратора со всеми зависимостями
func NewConsoleServer(logger *zap.Logger, metrics *engine.Metrics, validator auth.TokenValidator, h Handlers) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		metrics:       metrics,
		authValidator: validator,
		h:             h,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(engine.MetricsMiddleware(s.metrics))
	r.Use(engine.AccessLog(s.logger))
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.h.Auth.Login)

		r.Get("/health", s.h.Health.Health)
		r.Get("/health/metrics", s.h.Health.Summary)

		// Вызовы агентов: авторизуются токеном регистрации или знанием id
		r.Post("/v1/agents/register", s.h.Agents.Register)
		r.Post("/v1/agents/{id}/heartbeat", s.h.Agents.Heartbeat)
		r.Get("/v1/jobs/pending/{agentId}", s.h.Jobs.Pending)
		r.Put("/v1/jobs/{id}", s.h.Jobs.Update)

		// Чтение задач и каталога открыто
		r.Get("/v1/jobs", s.h.Jobs.List)
		r.Get("/v1/jobs/{id}", s.h.Jobs.Get)
		r.Get("/v1/commands", handler.ListCommands)

		// Наблюдатели
		r.Get("/v1/events", s.h.Events.Stream)
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		r.Post("/v1/agents/tokens", s.h.Tokens.Issue)
		r.Get("/v1/agents", s.h.Agents.List)
		r.Get("/v1/agents/{id}", s.h.Agents.Get)
		r.Delete("/v1/agents/{id}", s.h.Agents.Delete)

		r.Post("/v1/jobs", s.h.Jobs.Create)
		r.Delete("/v1/jobs/{id}", s.h.Jobs.Delete)

		// Аудит и Логи (Observability)
		r.Get("/v1/audit", s.h.Audit.GetLogs)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
