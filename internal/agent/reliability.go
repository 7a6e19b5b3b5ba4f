package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ReliabilityOptions struct {
	Attempts       uint
	RequestTimeout time.Duration
	RateLimit      float64 // запросов в секунду
	CBFailures     uint32  // подряд идущих сбоев до размыкания
	CBTimeout      time.Duration
}

func (o *ReliabilityOptions) defaults() {
	if o.Attempts == 0 {
		o.Attempts = 3
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 10
	}
	if o.CBFailures == 0 {
		o.CBFailures = 5
	}
	if o.CBTimeout <= 0 {
		o.CBTimeout = 30 * time.Second
	}
}

// ReliableOrchestrator оборачивает каждый вызов в лимитер, предохранитель
// и повтор с бэкоффом. Доменные отказы (4xx, NotFound, Conflict) не повторяются
// и не считаются сбоем для предохранителя.
type ReliableOrchestrator struct {
	next    Orchestrator
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	opts    ReliabilityOptions
}

func NewReliableOrchestrator(next Orchestrator, opts ReliabilityOptions, metrics *engine.Metrics, logger *zap.Logger) *ReliableOrchestrator {
	opts.defaults()
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	logger = logger.Named("reliability")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "orchestrator",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     opts.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.CBFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !transient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(cb.Name()).Set(float64(cb.State()))

	return &ReliableOrchestrator{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit)+1),
		opts:    opts,
	}
}

// transient — ошибка инфраструктуры, которую есть смысл повторить.
func transient(err error) bool {
	var tErr *ThrottleError
	if errors.As(err, &tErr) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return domain.KindOf(err) == domain.KindInternal
}

func (w *ReliableOrchestrator) Register(ctx context.Context, reg domain.Registration, token string) (*domain.Agent, error) {
	return call(ctx, w, func(ctx context.Context) (*domain.Agent, error) {
		return w.next.Register(ctx, reg, token)
	})
}

func (w *ReliableOrchestrator) Heartbeat(ctx context.Context, agentID string, ramUsedMB int64) (*domain.Agent, error) {
	return call(ctx, w, func(ctx context.Context) (*domain.Agent, error) {
		return w.next.Heartbeat(ctx, agentID, ramUsedMB)
	})
}

func (w *ReliableOrchestrator) PendingJobs(ctx context.Context, agentID string) ([]*domain.Job, error) {
	return call(ctx, w, func(ctx context.Context) ([]*domain.Job, error) {
		return w.next.PendingJobs(ctx, agentID)
	})
}

func (w *ReliableOrchestrator) UpdateJob(ctx context.Context, jobID string, u domain.JobUpdate) (*domain.Job, error) {
	return call(ctx, w, func(ctx context.Context) (*domain.Job, error) {
		return w.next.UpdateJob(ctx, jobID, u)
	})
}

func call[T any](ctx context.Context, w *ReliableOrchestrator, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	res, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.opts.Attempts),
			retry.RetryIf(transient),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Оркестратор прислал Retry-After
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		var out T
		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
			defer cancel()

			var callErr error
			out, callErr = fn(tCtx)
			return callErr
		})
		return out, retryErr
	})
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}
