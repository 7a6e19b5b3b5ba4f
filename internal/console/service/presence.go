package service

import (
	"context"
	"time"

	"github.com/xela07ax/spaceai-fleet/internal/audit"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"github.com/xela07ax/spaceai-fleet/internal/infra"
	"go.uber.org/zap"
)

// PresenceSweeper периодически переводит в offline агентов, которые молчат
// дольше окна живости. Это оценка живости, а не health-check.
type PresenceSweeper struct {
	agents   AgentRepository
	stats    StatsRepository
	pub      Publisher
	journal  audit.Auditor
	locker   engine.Locker // nil — единственный инстанс
	timeout  time.Duration
	interval time.Duration
	clock    Clock
	metrics  *engine.Metrics
	logger   *zap.Logger
}

func NewPresenceSweeper(
	agents AgentRepository,
	stats StatsRepository,
	pub Publisher,
	journal audit.Auditor,
	locker engine.Locker,
	timeout, interval time.Duration,
	metrics *engine.Metrics,
	logger *zap.Logger,
) *PresenceSweeper {
	return &PresenceSweeper{
		agents:   agents,
		stats:    stats,
		pub:      pub,
		journal:  journal,
		locker:   locker,
		timeout:  timeout,
		interval: interval,
		metrics:  metrics,
		logger:   logger.Named("presence"),
	}
}

func (s *PresenceSweeper) SetClock(c Clock) { s.clock = c }

// Sweep — один проход. Агент с lastHeartbeat < now - timeout становится offline.
func (s *PresenceSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock.now().Add(-s.timeout)
	demoted, err := s.agents.MarkStaleOffline(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, a := range demoted {
		s.pub.Publish(ctx, domain.TopicAgentStatus, domain.AgentStatusChange{AgentID: a.ID, Status: a.Status})
		s.journal.Log(domain.JournalEntry{
			Action:  "agent.offline",
			AgentID: a.ID,
			Details: map[string]string{"last_heartbeat": a.LastHeartbeat.Format(time.RFC3339Nano)},
		})
		s.logger.Info("agent marked offline",
			zap.String("agent_id", a.ID),
			zap.String("hostname", a.Hostname),
			zap.Time("last_heartbeat", a.LastHeartbeat))
	}
	s.metrics.SweepDemotions.Add(float64(len(demoted)))

	if s.stats != nil {
		if st, err := s.stats.FleetStats(ctx); err == nil {
			s.metrics.AgentsOnline.Set(float64(st.Agents.Online))
		}
	}
	return len(demoted), nil
}

// Run блокируется до отмены ctx. Ошибки прохода логируются,
// следующий тик повторит попытку.
func (s *PresenceSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("presence sweeper started",
		zap.Duration("liveness_timeout", s.timeout),
		zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("presence sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *PresenceSweeper) tick(ctx context.Context) {
	if s.locker != nil {
		// TTL чуть меньше интервала: лок истекает к следующему тику
		ok, err := s.locker.TryLock(ctx, infra.RedisKeyLockSweep, s.interval*4/5)
		if err != nil {
			s.logger.Warn("sweep lock unavailable, skipping tick", zap.Error(err))
			return
		}
		if !ok {
			return
		}
	}
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Warn("presence sweep failed, will retry next tick", zap.Error(err))
	}
}
