package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestConsumeTokenSingleUseUnderContention(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateToken(ctx, &domain.RegistrationToken{Value: "tok", CreatedAt: t0, ExpiresAt: t0.Add(time.Minute)}))

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumeToken(ctx, "tok", t0)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrTokenUsed)
	}
	assert.Equal(t, 1, ok)
}

func TestConsumeTokenFailures(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateToken(ctx, &domain.RegistrationToken{Value: "tok", ExpiresAt: t0}))

	_, err := s.ConsumeToken(ctx, "missing", t0)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	_, err = s.ConsumeToken(ctx, "tok", t0)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestUpsertAgentByHostname(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	a, created, err := s.UpsertAgent(ctx, domain.Registration{Hostname: "h1", OS: "linux", CPUCores: 2}, t0)
	require.NoError(t, err)
	assert.True(t, created)

	b, created, err := s.UpsertAgent(ctx, domain.Registration{Hostname: "h1", OS: "linux", CPUCores: 8}, t0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 8, b.CPUCores)
	assert.True(t, b.LastHeartbeat.After(a.LastHeartbeat))
	assert.Equal(t, t0, b.RegisteredAt)

	list, err := s.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListAgentsNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, _, _ = s.UpsertAgent(ctx, domain.Registration{Hostname: "old", OS: "linux"}, t0)
	_, _, _ = s.UpsertAgent(ctx, domain.Registration{Hostname: "new", OS: "linux"}, t0.Add(time.Second))
	_, _, _ = s.UpsertAgent(ctx, domain.Registration{Hostname: "tie", OS: "linux"}, t0.Add(time.Second))

	list, err := s.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"tie", "new", "old"}, []string{list[0].Hostname, list[1].Hostname, list[2].Hostname})
}

func TestMarkStaleOffline(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	stale, _, _ := s.UpsertAgent(ctx, domain.Registration{Hostname: "stale", OS: "linux"}, t0.Add(-61*time.Second))
	_, _, _ = s.UpsertAgent(ctx, domain.Registration{Hostname: "fresh", OS: "linux"}, t0.Add(-59*time.Second))

	demoted, err := s.MarkStaleOffline(ctx, t0.Add(-60*time.Second))
	require.NoError(t, err)
	require.Len(t, demoted, 1)
	assert.Equal(t, stale.ID, demoted[0].ID)
	assert.Equal(t, domain.AgentOffline, demoted[0].Status)

	// Повторный проход ничего не меняет
	demoted, err = s.MarkStaleOffline(ctx, t0.Add(-60*time.Second))
	require.NoError(t, err)
	assert.Empty(t, demoted)

	_, prev, err := s.TouchAgent(ctx, stale.ID, 10, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentOffline, prev)
}

func TestDeleteAgentCascadesJobs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a, _, _ := s.UpsertAgent(ctx, domain.Registration{Hostname: "h1", OS: "linux"}, t0)
	other, _, _ := s.UpsertAgent(ctx, domain.Registration{Hostname: "h2", OS: "linux"}, t0)
	require.NoError(t, s.CreateJob(ctx, &domain.Job{ID: "j1", AgentID: a.ID, Command: "ls", Status: domain.JobPending, CreatedAt: t0}))
	require.NoError(t, s.CreateJob(ctx, &domain.Job{ID: "j2", AgentID: other.ID, Command: "ls", Status: domain.JobPending, CreatedAt: t0}))

	require.NoError(t, s.DeleteAgent(ctx, a.ID))
	assert.ErrorIs(t, s.DeleteAgent(ctx, a.ID), domain.ErrAgentNotFound)

	_, err := s.GetJob(ctx, "j1")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	j2, err := s.GetJob(ctx, "j2")
	require.NoError(t, err)
	assert.Equal(t, "h2", j2.Agent.Hostname)

	// Хост освобожден для новой регистрации
	_, created, _ := s.UpsertAgent(ctx, domain.Registration{Hostname: "h1", OS: "linux"}, t0)
	assert.True(t, created)
}

func TestListJobsOrderingAndFilter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a, _, _ := s.UpsertAgent(ctx, domain.Registration{Hostname: "h1", OS: "linux"}, t0)
	for i, id := range []string{"j1", "j2", "j3"} {
		require.NoError(t, s.CreateJob(ctx, &domain.Job{ID: id, AgentID: a.ID, Command: "ls", Status: domain.JobPending, CreatedAt: t0.Add(time.Duration(i) * time.Second)}))
	}
	running := domain.JobRunning
	_, _, err := s.UpdateJob(ctx, "j2", domain.JobUpdate{Status: &running}, t0)
	require.NoError(t, err)

	pending, err := s.ListJobs(ctx, domain.JobFilter{AgentID: a.ID, Status: domain.JobPending, Oldest: true})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "j1", pending[0].ID)
	assert.Equal(t, "j3", pending[1].ID)

	recent, err := s.ListJobs(ctx, domain.JobFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "j3", recent[0].ID)
	assert.Equal(t, "j2", recent[1].ID)
}

func TestCreateJobUnknownAgent(t *testing.T) {
	s := NewStore()
	err := s.CreateJob(context.Background(), &domain.Job{ID: "j1", AgentID: "nope"})
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
}

func TestJournalNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.WriteBatch(ctx, []domain.JournalEntry{
		{ID: "1", AgentID: "a"}, {ID: "2", AgentID: "b"}, {ID: "3", AgentID: "a"},
	}))
	got, err := s.FetchJournal(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ID)

	got, err = s.FetchJournal(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].ID)
}
