package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

func TestRegisterCreatesOnlineAgent(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "h1")

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, domain.AgentOnline, a.Status)
	assert.Equal(t, f.clock.Now(), a.LastHeartbeat)
	assert.Equal(t, []string{domain.TopicAgentUpdate}, f.pub.topics())
	assert.Equal(t, []string{"agent.register"}, f.journal.actions())
}

func TestReRegistrationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.register(t, "h1")

	f.clock.Advance(5 * time.Second)
	tok, err := f.tokens.Issue(ctx, time.Minute)
	require.NoError(t, err)
	second, err := f.agents.Register(ctx, domain.Registration{
		Hostname: "h1", OS: "darwin", CPUCores: 16, RAMTotalMB: 32768, RAMUsedMB: 100,
	}, tok.Value)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "darwin", second.OS)
	assert.Equal(t, 16, second.CPUCores)
	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)

	list, err := f.agents.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRegisterFailedTokenLeavesNoState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok, err := f.tokens.Issue(ctx, time.Minute)
	require.NoError(t, err)
	_, err = f.tokens.Issue(ctx, time.Minute)
	require.NoError(t, err)

	reg := domain.Registration{Hostname: "h1", OS: "linux"}
	_, err = f.agents.Register(ctx, reg, "forged")
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	_, err = f.agents.Register(ctx, reg, tok.Value)
	require.NoError(t, err)
	_, err = f.agents.Register(ctx, domain.Registration{Hostname: "h2", OS: "linux"}, tok.Value)
	assert.ErrorIs(t, err, domain.ErrTokenUsed)

	list, err := f.agents.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "h1", list[0].Hostname)
}

func TestRegisterInvalidInputKeepsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok, err := f.tokens.Issue(ctx, time.Minute)
	require.NoError(t, err)

	_, err = f.agents.Register(ctx, domain.Registration{OS: "linux"}, tok.Value)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.agents.Register(ctx, domain.Registration{Hostname: "h1", OS: "linux"}, tok.Value)
	assert.NoError(t, err)
}

func TestHeartbeatFreshness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "h1")

	// Часы не сдвигались: метка все равно строго растет
	hb, err := f.agents.Heartbeat(ctx, a.ID, 2048)
	require.NoError(t, err)
	assert.True(t, hb.LastHeartbeat.After(a.LastHeartbeat))
	assert.Equal(t, int64(2048), hb.RAMUsedMB)
	assert.Equal(t, domain.AgentOnline, hb.Status)

	f.clock.Advance(time.Second)
	hb2, err := f.agents.Heartbeat(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.True(t, hb2.LastHeartbeat.After(hb.LastHeartbeat))

	_, err = f.agents.Heartbeat(ctx, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
}

func TestHeartbeatReactivatesOfflineAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "h1")

	f.clock.Advance(61 * time.Second)
	n, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	hb, err := f.agents.Heartbeat(ctx, a.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentOnline, hb.Status)
	assert.Contains(t, f.journal.actions(), "agent.reactivate")
}

func TestGetAgentWithRecentJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "h1")

	var last *domain.Job
	for i := 0; i < 12; i++ {
		f.clock.Advance(time.Second)
		j, err := f.jobs.Create(ctx, fmt.Sprintf("echo %d", i), a.ID)
		require.NoError(t, err)
		last = j
	}

	got, err := f.agents.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got.Jobs, 10)
	assert.Equal(t, last.ID, got.Jobs[0].ID)
	assert.Equal(t, "echo 2", got.Jobs[9].Command)

	_, err = f.agents.GetAgent(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
}

func TestListAgentsNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.register(t, "first")
	f.clock.Advance(time.Second)
	f.register(t, "second")

	list, err := f.agents.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Hostname)
}

func TestDeleteAgentCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "h1")
	j, err := f.jobs.Create(ctx, "ls -la", a.ID)
	require.NoError(t, err)

	require.NoError(t, f.agents.DeleteAgent(ctx, a.ID))
	assert.ErrorIs(t, f.agents.DeleteAgent(ctx, a.ID), domain.ErrAgentNotFound)

	_, err = f.jobs.Get(ctx, j.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
