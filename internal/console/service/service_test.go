package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-fleet/internal/audit"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"github.com/xela07ax/spaceai-fleet/internal/repository/memory"
	"go.uber.org/zap"
)

type recordedEvent struct {
	Topic   string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Topic: topic, Payload: payload})
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Topic)
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []domain.JournalEntry
}

func (j *recordingJournal) Log(e domain.JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

func (j *recordingJournal) actions() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e.Action)
	}
	return out
}

// fakeClock — ручные часы, общие для всех сервисов стенда.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store   *memory.Store
	pub     *recordingPublisher
	journal *recordingJournal
	clock   *fakeClock
	tokens  *TokenService
	agents  *AgentService
	jobs    *JobService
	sweeper *PresenceSweeper
}

var _ audit.Auditor = (*recordingJournal)(nil)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	pub := &recordingPublisher{}
	journal := &recordingJournal{}
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	metrics := engine.NewMetrics(nil)
	log := zap.NewNop()

	f := &fixture{store: store, pub: pub, journal: journal, clock: clock}
	f.tokens = NewTokenService(store, time.Hour, metrics, log)
	f.agents = NewAgentService(store, store, f.tokens, pub, journal, metrics, log)
	f.jobs = NewJobService(store, store, pub, journal, metrics, log)
	f.sweeper = NewPresenceSweeper(store, store, pub, journal, nil, 60*time.Second, 5*time.Second, metrics, log)

	for _, s := range []interface{ SetClock(Clock) }{f.tokens, f.agents, f.jobs, f.sweeper} {
		s.SetClock(clock.Now)
	}
	return f
}

func (f *fixture) register(t *testing.T, hostname string) *domain.Agent {
	t.Helper()
	tok, err := f.tokens.Issue(context.Background(), time.Minute)
	require.NoError(t, err)
	a, err := f.agents.Register(context.Background(), domain.Registration{
		Hostname: hostname, OS: "linux", CPUCores: 4, RAMTotalMB: 8192, RAMUsedMB: 1024,
	}, tok.Value)
	require.NoError(t, err)
	return a
}

func status(s domain.JobStatus) *domain.JobStatus { return &s }
func str(s string) *string                        { return &s }
