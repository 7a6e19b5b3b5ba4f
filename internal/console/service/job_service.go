package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-fleet/internal/audit"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"github.com/xela07ax/spaceai-fleet/internal/policy"
	"go.uber.org/zap"
)

// AgentReader — то, что диспетчеру нужно от реестра агентов.
type AgentReader interface {
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
}

type JobService struct {
	repo    JobRepository
	agents  AgentReader
	pub     Publisher
	journal audit.Auditor
	clock   Clock
	metrics *engine.Metrics
	logger  *zap.Logger
}

func NewJobService(repo JobRepository, agents AgentReader, pub Publisher, journal audit.Auditor, metrics *engine.Metrics, logger *zap.Logger) *JobService {
	return &JobService{
		repo:    repo,
		agents:  agents,
		pub:     pub,
		journal: journal,
		metrics: metrics,
		logger:  logger.Named("job-service"),
	}
}

func (s *JobService) SetClock(c Clock) { s.clock = c }

// Create ставит задачу в очередь агента. Порядок проверок: белый список,
// существование агента, его статус. Гонка с уходом агента в offline
// сразу после проверки допустима.
func (s *JobService) Create(ctx context.Context, command, agentID string) (*domain.Job, error) {
	if _, err := policy.Authorize(command); err != nil {
		s.logger.Warn("command rejected by whitelist",
			zap.String("command_id", policy.CommandID(command)),
			zap.String("actor", actorID(ctx)))
		return nil, err
	}

	agent, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: agent lookup failed: %w", err)
	}
	if agent.Status != domain.AgentOnline {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrAgentOffline, agent.Hostname, agent.Status)
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		Command:   command,
		AgentID:   agent.ID,
		Status:    domain.JobPending,
		CreatedAt: s.clock.now(),
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			return nil, err
		}
		s.logger.Error("failed to persist job", zap.String("agent_id", agentID), zap.Error(err))
		return nil, fmt.Errorf("service: create job database error: %w", err)
	}
	job.Agent = agent.Summary()

	s.metrics.JobsCreated.Inc()
	s.pub.Publish(ctx, domain.TopicJobUpdate, job)
	s.journal.Log(domain.JournalEntry{
		TraceID: domain.TraceIDFrom(ctx),
		Action:  "job.create",
		AgentID: job.AgentID,
		JobID:   job.ID,
		ActorID: actorID(ctx),
		Details: map[string]string{"command": command},
	})

	s.logger.Info("job queued",
		zap.String("job_id", job.ID),
		zap.String("agent_id", job.AgentID),
		zap.String("command_id", policy.CommandID(command)))
	return job, nil
}

// List — все задачи, новые первыми, со сводкой агента.
func (s *JobService) List(ctx context.Context) ([]*domain.Job, error) {
	return s.list(ctx, domain.JobFilter{})
}

func (s *JobService) ListByAgent(ctx context.Context, agentID string) ([]*domain.Job, error) {
	return s.list(ctx, domain.JobFilter{AgentID: agentID})
}

// ListPendingByAgent — очередь агента, старые первыми (FIFO).
func (s *JobService) ListPendingByAgent(ctx context.Context, agentID string) ([]*domain.Job, error) {
	return s.list(ctx, domain.JobFilter{AgentID: agentID, Status: domain.JobPending, Oldest: true})
}

func (s *JobService) list(ctx context.Context, f domain.JobFilter) ([]*domain.Job, error) {
	jobs, err := s.repo.ListJobs(ctx, f)
	if err != nil {
		s.logger.Error("failed to list jobs", zap.String("agent_id", f.AgentID), zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch jobs: %w", err)
	}
	if jobs == nil {
		return []*domain.Job{}, nil
	}
	return jobs, nil
}

func (s *JobService) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: could not fetch job: %w", err)
	}
	return job, nil
}

// Update применяет частичное обновление от агента. Статус движется только вперед,
// терминальный статус не меняется, а output/error пишутся всегда.
func (s *JobService) Update(ctx context.Context, id string, u domain.JobUpdate) (*domain.Job, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	job, prev, err := s.repo.UpdateJob(ctx, id, u, s.clock.now())
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update job", zap.String("job_id", id), zap.Error(err))
		return nil, fmt.Errorf("service: update job database error: %w", err)
	}

	if u.Status != nil && job.Status != *u.Status {
		s.logger.Warn("status transition ignored",
			zap.String("job_id", id),
			zap.String("current", string(job.Status)),
			zap.String("requested", string(*u.Status)))
	}

	if prev != job.Status {
		s.onTransition(ctx, job, prev)
	}
	s.pub.Publish(ctx, domain.TopicJobUpdate, job)
	return job, nil
}

func (s *JobService) onTransition(ctx context.Context, job *domain.Job, prev domain.JobStatus) {
	if job.Status.Terminal() {
		s.metrics.JobsFinished.WithLabelValues(string(job.Status)).Inc()
		if job.StartedAt != nil && job.CompletedAt != nil {
			s.metrics.JobDuration.Observe(job.CompletedAt.Sub(*job.StartedAt).Seconds())
		}
	}
	s.journal.Log(domain.JournalEntry{
		TraceID: domain.TraceIDFrom(ctx),
		Action:  "job." + string(job.Status),
		AgentID: job.AgentID,
		JobID:   job.ID,
		Details: map[string]string{"from": string(prev), "to": string(job.Status)},
	})
	s.logger.Info("job transitioned",
		zap.String("job_id", job.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(job.Status)))
}

func (s *JobService) Delete(ctx context.Context, id string) error {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return err
		}
		return fmt.Errorf("service: could not fetch job: %w", err)
	}
	if err := s.repo.DeleteJob(ctx, id); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return err
		}
		s.logger.Error("failed to delete job", zap.String("job_id", id), zap.Error(err))
		return fmt.Errorf("service: delete job database error: %w", err)
	}

	s.journal.Log(domain.JournalEntry{
		TraceID: domain.TraceIDFrom(ctx),
		Action:  "job.delete",
		AgentID: job.AgentID,
		JobID:   id,
		ActorID: actorID(ctx),
	})
	return nil
}
