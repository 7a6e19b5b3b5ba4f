package agentrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-fleet/internal/audit"
	"github.com/xela07ax/spaceai-fleet/internal/broadcast"
	"github.com/xela07ax/spaceai-fleet/internal/console/service"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"github.com/xela07ax/spaceai-fleet/internal/repository/memory"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type rpcEnv struct {
	client *Client
	tokens *service.TokenService
	jobs   *service.JobService
	hub    *broadcast.Hub
}

func newRPCEnv(t *testing.T) *rpcEnv {
	t.Helper()
	log := zap.NewNop()
	store := memory.NewStore()
	metrics := engine.NewMetrics(nil)
	hub := broadcast.NewHub(16, log, nil)

	tokens := service.NewTokenService(store, time.Hour, metrics, log)
	agents := service.NewAgentService(store, store, tokens, hub, audit.Nop{}, metrics, log)
	jobs := service.NewJobService(store, store, hub, audit.Nop{}, metrics, log)

	lis := bufconn.Listen(1 << 20)
	gs := NewGRPCServer(NewServer(agents, jobs), metrics, log)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &rpcEnv{client: NewClient(conn, 5*time.Second), tokens: tokens, jobs: jobs, hub: hub}
}

func TestAgentLifecycleOverGRPC(t *testing.T) {
	env := newRPCEnv(t)
	ctx := context.Background()

	tok, err := env.tokens.Issue(ctx, 0)
	require.NoError(t, err)

	agent, err := env.client.Register(ctx, domain.Registration{
		Hostname: "rpc-host", OS: "linux", CPUCores: 4, RAMTotalMB: 8192, RAMUsedMB: 1024,
	}, tok.Value)
	require.NoError(t, err)
	assert.NotEmpty(t, agent.ID)
	assert.Equal(t, domain.AgentOnline, agent.Status)
	assert.EqualValues(t, 8192, agent.RAMTotalMB)

	hb, err := env.client.Heartbeat(ctx, agent.ID, 2048)
	require.NoError(t, err)
	assert.EqualValues(t, 2048, hb.RAMUsedMB)
	assert.True(t, hb.LastHeartbeat.After(agent.LastHeartbeat))

	job, err := env.jobs.Create(ctx, "uptime", agent.ID)
	require.NoError(t, err)

	pending, err := env.client.PendingJobs(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, job.ID, pending[0].ID)

	running := domain.JobRunning
	got, err := env.client.UpdateJob(ctx, job.ID, domain.JobUpdate{Status: &running})
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, got.Status)
	require.NotNil(t, got.StartedAt)

	done := domain.JobCompleted
	out := " 10:00 up 3 days"
	got, err = env.client.UpdateJob(ctx, job.ID, domain.JobUpdate{Status: &done, Output: &out})
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.Status)
	assert.Equal(t, out, *got.Output)

	pending, err = env.client.PendingJobs(ctx, agent.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGRPCErrorKinds(t *testing.T) {
	env := newRPCEnv(t)
	ctx := context.Background()

	_, err := env.client.Register(ctx, domain.Registration{Hostname: "h", OS: "linux"}, "no-such-token")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	tok, err := env.tokens.Issue(ctx, 0)
	require.NoError(t, err)
	_, err = env.client.Register(ctx, domain.Registration{Hostname: "h", OS: "linux"}, tok.Value)
	require.NoError(t, err)
	_, err = env.client.Register(ctx, domain.Registration{Hostname: "h", OS: "linux"}, tok.Value)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	_, err = env.client.Heartbeat(ctx, "missing", 1)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	bogus := domain.JobStatus("bogus")
	_, err = env.client.UpdateJob(ctx, "missing", domain.JobUpdate{Status: &bogus})
	assert.Equal(t, domain.KindInvalid, domain.KindOf(err))
}

func TestUnaryErrorInterceptorCodes(t *testing.T) {
	icpt := UnaryErrorInterceptor(engine.NewMetrics(nil), zap.NewNop())
	info := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodHeartbeat)}

	cases := map[error]codes.Code{
		domain.ErrAgentNotFound:             codes.NotFound,
		domain.ErrTokenUsed:                 codes.FailedPrecondition,
		domain.ErrTokenExpired:              codes.InvalidArgument,
		domain.ErrUnauthorized:              codes.Unauthenticated,
		assert.AnError:                      codes.Internal,
		status.Error(codes.Unavailable, "x"): codes.Unavailable,
	}
	for in, want := range cases {
		_, err := icpt(context.Background(), nil, info, func(context.Context, any) (any, error) {
			return nil, in
		})
		assert.Equal(t, want, status.Code(err), in.Error())
	}

	_, err := icpt(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, assert.AnError
	})
	assert.Equal(t, "internal error", status.Convert(err).Message())
}
