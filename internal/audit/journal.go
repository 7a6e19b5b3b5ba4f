package audit

/*
Журнал жизненного цикла флота: регистрации, переходы задач, удаления.

- Non-blocking: Log никогда не блокирует вызывающий запрос, при переполнении
  буфера запись сбрасывается (Load Shedding) с предупреждением в лог.
- Batching: записи копятся в памяти и пишутся пачкой по таймеру или по лимиту.
- Drain: Stop закрывает вход и дожидается финального flush.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"go.uber.org/zap"
)

// Storage определяет, куда физически пишутся записи журнала
type Storage interface {
	WriteBatch(ctx context.Context, entries []domain.JournalEntry) error
}

// Auditor — то, что нужно сервисам от журнала.
type Auditor interface {
	Log(entry domain.JournalEntry)
}

// Nop — журнал-заглушка для конфигураций без аудита.
type Nop struct{}

func (Nop) Log(domain.JournalEntry) {}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	// OnDrop вызывается при сбросе записи (метрика переполнения)
	OnDrop func()
}

type Journal struct {
	ch       chan domain.JournalEntry
	repo     Storage
	logger   *zap.Logger
	opts     Options
	wg       sync.WaitGroup
	stopOnce sync.Once

	// mu охраняет закрытие ch: Log шлет под RLock, Stop закрывает под Lock
	mu     sync.RWMutex
	closed bool
}

func NewJournal(repo Storage, logger *zap.Logger, opts Options) *Journal {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	return &Journal{
		ch:     make(chan domain.JournalEntry, opts.BufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "journal")),
		opts:   opts,
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop запирает вход в канал и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.ch)
		j.mu.Unlock()
		j.wg.Wait()
		j.logger.Info("journal stopped gracefully")
	})
}

func (j *Journal) Log(entry domain.JournalEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Warn("journal entry dropped: journal is stopping", zap.String("action", entry.Action))
		return
	}

	select {
	case j.ch <- entry:
	default:
		j.logger.Error("journal_buffer_overflow",
			zap.String("action", entry.Action),
			zap.String("agent_id", entry.AgentID),
			zap.String("job_id", entry.JobID),
		)
		if j.opts.OnDrop != nil {
			j.opts.OnDrop()
		}
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]domain.JournalEntry, 0, j.opts.BatchSize)
	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к этому моменту может быть уже закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-j.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= j.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
