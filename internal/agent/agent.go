package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Hostname          string // пусто — имя хоста из ОС
	Token             string
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
}

// Agent — основной цикл исполнителя: регистрация, heartbeat, опрос очереди.
type Agent struct {
	orch   Orchestrator
	runner *Runner
	cfg    Config
	memory func() Memory
	logger *zap.Logger

	mu   sync.RWMutex
	self *domain.Agent
}

func New(orch Orchestrator, runner *Runner, cfg Config, logger *zap.Logger) *Agent {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Agent{
		orch:   orch,
		runner: runner,
		cfg:    cfg,
		memory: ReadMemory,
		logger: logger.Named("agent"),
	}
}

func (a *Agent) ID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.self == nil {
		return ""
	}
	return a.self.ID
}

// Register тратит токен регистрации и запоминает выданный идентификатор.
func (a *Agent) Register(ctx context.Context) error {
	reg, err := Snapshot(a.cfg.Hostname)
	if err != nil {
		return fmt.Errorf("agent: resolve hostname: %w", err)
	}
	self, err := a.orch.Register(ctx, reg, a.cfg.Token)
	if err != nil {
		return fmt.Errorf("agent: registration failed: %w", err)
	}

	a.mu.Lock()
	a.self = self
	a.mu.Unlock()

	a.logger.Info("registered",
		zap.String("agent_id", self.ID),
		zap.String("hostname", self.Hostname),
		zap.String("os", self.OS))
	return nil
}

// Run регистрирует агента и крутит циклы heartbeat и опроса до отмены ctx.
// Возвращает ошибку, если регистрация не удалась или агента удалили на сервере.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Register(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.heartbeatLoop(gctx) })
	g.Go(func() error { return a.pollLoop(gctx) })

	err := g.Wait()
	if ctx.Err() != nil {
		// Штатная остановка
		return nil
	}
	return err
}

func (a *Agent) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Heartbeat(ctx); err != nil {
				return err
			}
		}
	}
}

// Heartbeat отправляет пульс. Фатальна только потеря записи агента на сервере.
func (a *Agent) Heartbeat(ctx context.Context) error {
	id := a.ID()
	_, err := a.orch.Heartbeat(ctx, id, a.memory().UsedMB)
	if err == nil {
		return nil
	}
	if domain.KindOf(err) == domain.KindNotFound {
		return fmt.Errorf("agent: %s was removed from the orchestrator: %w", id, err)
	}
	if ctx.Err() == nil {
		a.logger.Warn("heartbeat failed", zap.String("agent_id", id), zap.Error(err))
	}
	return nil
}

func (a *Agent) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.Poll(ctx)
		}
	}
}

// Poll забирает очередь и исполняет задачи по одной, старые первыми.
func (a *Agent) Poll(ctx context.Context) {
	jobs, err := a.orch.PendingJobs(ctx, a.ID())
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("poll failed", zap.Error(err))
		}
		return
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		a.execute(ctx, job)
	}
}

func (a *Agent) execute(ctx context.Context, job *domain.Job) {
	ctx = domain.WithTraceID(ctx, uuid.NewString())
	log := a.logger.With(zap.String("job_id", job.ID), zap.String("trace_id", domain.TraceIDFrom(ctx)))

	running := domain.JobRunning
	if _, err := a.orch.UpdateJob(ctx, job.ID, domain.JobUpdate{Status: &running}); err != nil {
		// Задача остается pending и будет взята на следующем опросе
		log.Warn("failed to claim job", zap.Error(err))
		return
	}

	log.Info("executing", zap.String("command", job.Command))
	res := a.runner.Run(ctx, job.Command)

	// Итог отправляется даже при остановке агента
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	upd := res.Update()
	if _, err := a.orch.UpdateJob(rctx, job.ID, upd); err != nil {
		log.Error("failed to report job result", zap.Error(err))
		return
	}
	log.Info("job reported", zap.String("status", string(*upd.Status)))
}
