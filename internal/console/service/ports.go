package service

import (
	"context"
	"time"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

// Publisher — канал уведомлений наблюдателей (best-effort, ошибок не возвращает).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any)
}

// Clock — источник времени. Подменяется в тестах.
type Clock func() time.Time

// now приводит время к точности хранилища (Postgres timestamptz — микросекунды).
func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	return c().UTC().Truncate(time.Microsecond)
}

type TokenRepository interface {
	CreateToken(ctx context.Context, t *domain.RegistrationToken) error
	// ConsumeToken атомарно переводит used: false -> true.
	// Отказ классифицируется как ErrTokenInvalid, ErrTokenUsed или ErrTokenExpired.
	ConsumeToken(ctx context.Context, value string, now time.Time) (*domain.RegistrationToken, error)
}

// AgentRepository описывает требования к хранилищу данных об агентах
type AgentRepository interface {
	UpsertAgent(ctx context.Context, reg domain.Registration, now time.Time) (*domain.Agent, bool, error)
	TouchAgent(ctx context.Context, id string, ramUsedMB int64, now time.Time) (*domain.Agent, domain.AgentStatus, error)
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]*domain.Agent, error)
	DeleteAgent(ctx context.Context, id string) error
	MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]*domain.Agent, error)
}

type JobRepository interface {
	CreateJob(ctx context.Context, j *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, f domain.JobFilter) ([]*domain.Job, error)
	// UpdateJob применяет обновление под блокировкой строки и возвращает статус до него.
	UpdateJob(ctx context.Context, id string, u domain.JobUpdate, now time.Time) (*domain.Job, domain.JobStatus, error)
	DeleteJob(ctx context.Context, id string) error
}

type UserRepository interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
}

type StatsRepository interface {
	Ping(ctx context.Context) error
	FleetStats(ctx context.Context) (*domain.FleetStats, error)
}

// actorID — кто инициировал изменение (пусто для вызовов агентов).
func actorID(ctx context.Context) string {
	if p := domain.PrincipalFrom(ctx); p != nil {
		return p.ID
	}
	return ""
}
