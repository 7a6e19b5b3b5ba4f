package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/xela07ax/spaceai-fleet/internal/audit"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"go.uber.org/zap"
)

// recentJobsLimit — сколько последних задач отдается в карточке агента.
const recentJobsLimit = 10

type AgentService struct {
	repo    AgentRepository
	jobs    JobRepository
	tokens  *TokenService
	pub     Publisher
	journal audit.Auditor
	clock   Clock
	metrics *engine.Metrics
	logger  *zap.Logger
}

func NewAgentService(
	repo AgentRepository,
	jobs JobRepository,
	tokens *TokenService,
	pub Publisher,
	journal audit.Auditor,
	metrics *engine.Metrics,
	logger *zap.Logger,
) *AgentService {
	return &AgentService{
		repo:    repo,
		jobs:    jobs,
		tokens:  tokens,
		pub:     pub,
		journal: journal,
		metrics: metrics,
		logger:  logger.Named("agent-service"),
	}
}

func (s *AgentService) SetClock(c Clock) { s.clock = c }

// Register тратит токен и создает агента или переподключает известный hostname.
// Неуспешное списание токена не меняет состояние агентов.
func (s *AgentService) Register(ctx context.Context, reg domain.Registration, tokenValue string) (*domain.Agent, error) {
	// Валидируем до списания, чтобы кривой запрос не сжег токен
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	// 1. Token gate
	if err := s.tokens.Consume(ctx, tokenValue); err != nil {
		return nil, err
	}

	// 2. Persistence Layer
	agent, created, err := s.repo.UpsertAgent(ctx, reg, s.clock.now())
	if err != nil {
		s.logger.Error("failed to upsert agent",
			zap.String("hostname", reg.Hostname),
			zap.Error(err))
		return nil, fmt.Errorf("service: register database error: %w", err)
	}

	kind := "reattach"
	if created {
		kind = "new"
	}
	s.metrics.Registrations.WithLabelValues(kind).Inc()

	// 3. Real-time Signaling
	s.pub.Publish(ctx, domain.TopicAgentUpdate, agent)
	s.journal.Log(domain.JournalEntry{
		TraceID: domain.TraceIDFrom(ctx),
		Action:  "agent.register",
		AgentID: agent.ID,
		Details: map[string]string{"hostname": agent.Hostname, "kind": kind},
	})

	s.logger.Info("agent registered",
		zap.String("agent_id", agent.ID),
		zap.String("hostname", agent.Hostname),
		zap.String("kind", kind))
	return agent, nil
}

// Heartbeat отмечает агента живым и обновляет загрузку памяти.
func (s *AgentService) Heartbeat(ctx context.Context, id string, ramUsedMB int64) (*domain.Agent, error) {
	if ramUsedMB < 0 {
		return nil, domain.Invalidf("ramUsedMB must not be negative")
	}

	agent, prev, err := s.repo.TouchAgent(ctx, id, ramUsedMB, s.clock.now())
	if err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			return nil, err
		}
		s.logger.Error("failed to record heartbeat", zap.String("agent_id", id), zap.Error(err))
		return nil, fmt.Errorf("service: heartbeat database error: %w", err)
	}

	s.pub.Publish(ctx, domain.TopicAgentUpdate, agent)
	if prev == domain.AgentOffline {
		s.journal.Log(domain.JournalEntry{
			TraceID: domain.TraceIDFrom(ctx),
			Action:  "agent.reactivate",
			AgentID: agent.ID,
		})
		s.logger.Info("agent back online", zap.String("agent_id", agent.ID))
	}
	return agent, nil
}

// ListAgents возвращает агентов, новые регистрации первыми.
func (s *AgentService) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		s.logger.Error("failed to list agents from repository", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch agents: %w", err)
	}

	// Фронтенд получает пустой массив [], а не null
	if agents == nil {
		return []*domain.Agent{}, nil
	}
	return agents, nil
}

// GetAgent возвращает агента с последними задачами (новые первыми).
func (s *AgentService) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	agent, err := s.repo.GetAgent(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrAgentNotFound) {
			s.logger.Error("failed to fetch agent details", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}

	jobs, err := s.jobs.ListJobs(ctx, domain.JobFilter{AgentID: id, Limit: recentJobsLimit})
	if err != nil {
		return nil, fmt.Errorf("service: could not fetch agent jobs: %w", err)
	}
	agent.Jobs = jobs
	if agent.Jobs == nil {
		agent.Jobs = []*domain.Job{}
	}
	return agent, nil
}

// DeleteAgent удаляет агента вместе с его задачами.
func (s *AgentService) DeleteAgent(ctx context.Context, id string) error {
	if err := s.repo.DeleteAgent(ctx, id); err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			return err
		}
		s.logger.Error("failed to delete agent", zap.String("agent_id", id), zap.Error(err))
		return fmt.Errorf("service: delete database error: %w", err)
	}

	s.journal.Log(domain.JournalEntry{
		TraceID: domain.TraceIDFrom(ctx),
		Action:  "agent.delete",
		AgentID: id,
		ActorID: actorID(ctx),
	})
	s.logger.Info("agent deleted", zap.String("agent_id", id), zap.String("actor", actorID(ctx)))
	return nil
}
