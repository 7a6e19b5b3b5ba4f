package server

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-fleet/internal/audit"
	"github.com/xela07ax/spaceai-fleet/internal/broadcast"
	"github.com/xela07ax/spaceai-fleet/internal/console/handler"
	"github.com/xela07ax/spaceai-fleet/internal/console/service"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"github.com/xela07ax/spaceai-fleet/internal/infra/auth"
	"github.com/xela07ax/spaceai-fleet/internal/repository/memory"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	srv   *httptest.Server
	hub   *broadcast.Hub
	store *memory.Store
	token string // операторский JWT
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	store := memory.NewStore()
	metrics := engine.NewMetrics(nil)
	hub := broadcast.NewHub(16, log, nil)
	journal := audit.NewJournal(store, log, audit.Options{FlushInterval: 10 * time.Millisecond})
	journal.Start()
	t.Cleanup(journal.Stop)

	tokens := service.NewTokenService(store, time.Hour, metrics, log)
	agents := service.NewAgentService(store, store, tokens, hub, journal, metrics, log)
	jobs := service.NewJobService(store, store, hub, journal, metrics, log)
	authSvc := service.NewAuthService(store, key, time.Hour, log)
	require.NoError(t, authSvc.EnsureAdmin(context.Background(), "admin", "admin123", bcrypt.MinCost))

	cs := NewConsoleServer(log, metrics, auth.NewBaseValidator(&key.PublicKey), Handlers{
		Auth:   handler.NewAuthHandler(authSvc, log),
		Health: handler.NewHealthHandler(service.NewHealthService(store), log),
		Agents: handler.NewAgentHandler(agents, log),
		Tokens: handler.NewTokenHandler(tokens, log),
		Jobs:   handler.NewJobHandler(jobs, log),
		Events: handler.NewEventHandler(hub, log),
		Audit:  handler.NewAuditHandler(service.NewAuditService(store), log),
	})
	srv := httptest.NewServer(cs)
	t.Cleanup(srv.Close)

	env := &testEnv{srv: srv, hub: hub, store: store}
	var login domain.TokenResponse
	code := env.do(t, http.MethodPost, "/auth/token", "", domain.LoginRequest{Username: "admin", Password: "admin123"}, &login)
	require.Equal(t, http.StatusOK, code)
	env.token = login.AccessToken
	return env
}

// do выполняет запрос; bearer == "" — без авторизации.
func (e *testEnv) do(t *testing.T, method, path, bearer string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestOperatorRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	for _, rt := range []struct{ method, path string }{
		{http.MethodPost, "/v1/agents/tokens"},
		{http.MethodGet, "/v1/agents"},
		{http.MethodGet, "/v1/agents/x"},
		{http.MethodDelete, "/v1/agents/x"},
		{http.MethodPost, "/v1/jobs"},
		{http.MethodDelete, "/v1/jobs/x"},
		{http.MethodGet, "/v1/audit"},
	} {
		assert.Equal(t, http.StatusUnauthorized, env.do(t, rt.method, rt.path, "", nil, nil), "%s %s", rt.method, rt.path)
	}
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/agents", "garbage", nil, nil))

	var bad map[string]string
	assert.Equal(t, http.StatusUnauthorized,
		env.do(t, http.MethodPost, "/auth/token", "", domain.LoginRequest{Username: "admin", Password: "nope"}, &bad))
}

func TestHTTPEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	var tok domain.RegistrationToken
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/agents/tokens", env.token, map[string]int{"ttlSeconds": 60}, &tok))
	assert.WithinDuration(t, time.Now().Add(time.Minute), tok.ExpiresAt, 5*time.Second)

	reg := domain.Registration{Hostname: "h1", OS: "linux", CPUCores: 2, RAMTotalMB: 2048, RAMUsedMB: 100}
	var agent domain.Agent
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/agents/register", tok.Value, reg, &agent))
	assert.Equal(t, domain.AgentOnline, agent.Status)

	// Токен одноразовый
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/v1/agents/register", tok.Value, reg, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/v1/agents/register", "forged", reg, nil))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/agents/"+agent.ID+"/heartbeat", "", map[string]int64{"ramUsedMB": 200}, &agent))
	assert.Equal(t, int64(200), agent.RAMUsedMB)

	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, "/v1/jobs", env.token, map[string]string{"command": "rm -rf /", "agentId": agent.ID}, nil))

	var job domain.Job
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/v1/jobs", env.token, map[string]string{"command": "echo hi", "agentId": agent.ID}, &job))
	assert.Equal(t, domain.JobPending, job.Status)

	var pending []domain.Job
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/jobs/pending/"+agent.ID, "", nil, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, job.ID, pending[0].ID)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/v1/jobs/"+job.ID, "", map[string]string{"status": "running"}, &job))
	require.NotNil(t, job.StartedAt)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/v1/jobs/"+job.ID, "", map[string]string{"status": "completed", "output": "hi"}, &job))

	var got domain.Job
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/jobs/"+job.ID, "", nil, &got))
	assert.Equal(t, domain.JobCompleted, got.Status)
	require.NotNil(t, got.Output)
	assert.Equal(t, "hi", *got.Output)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, "h1", got.Agent.Hostname)

	var detail domain.Agent
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/agents/"+agent.ID, env.token, nil, &detail))
	require.Len(t, detail.Jobs, 1)

	var stats domain.FleetStats
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/metrics", "", nil, &stats))
	assert.Equal(t, 1, stats.Agents.Online)
	assert.Equal(t, 1, stats.Jobs.Completed)

	assert.Eventually(t, func() bool {
		var entries []domain.JournalEntry
		env.do(t, http.MethodGet, "/v1/audit?agent_id="+agent.ID, env.token, nil, &entries)
		return len(entries) == 4
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/v1/agents/"+agent.ID, env.token, nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/jobs/"+job.ID, "", nil, nil))
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	var body map[string]string
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/v1/jobs/missing", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not_found", body["kind"])
	assert.NotEmpty(t, resp.Header.Get(engine.TraceHeader))

	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPut, "/v1/jobs/missing", "", map[string]string{"status": "done"}, nil))
	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/v1/agents/missing/heartbeat", "", map[string]int{"ramUsedMB": 1}, nil))
	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, "/v1/agents/tokens", env.token, map[string]int{"ttlSeconds": -5}, nil))

	var cmds []map[string]any
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/commands", "", nil, &cmds))
	assert.Len(t, cmds, 9)
}

func TestCreateJobWhitelistBeforeAgent(t *testing.T) {
	env := newTestEnv(t)

	var body map[string]string
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/v1/jobs", strings.NewReader(`{"command":"rm -rf /"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "not whitelisted")

	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/v1/jobs", env.token, map[string]string{"command": "ls"}, nil))
}

func TestIssueTokenTTLBounds(t *testing.T) {
	env := newTestEnv(t)

	var expired domain.RegistrationToken
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/v1/agents/tokens", env.token, map[string]int64{"ttlSeconds": 0}, &expired))
	assert.True(t, expired.ExpiresAt.Equal(expired.CreatedAt), "zero ttl expires at issue time")

	var dflt domain.RegistrationToken
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/v1/agents/tokens", env.token, map[string]any{}, &dflt))
	assert.Equal(t, time.Hour, dflt.ExpiresAt.Sub(dflt.CreatedAt))

	// Значения, не представимые в time.Duration, отклоняются, а не переполняются.
	for _, ttl := range []int64{18446744074, 10000000000} {
		assert.Equal(t, http.StatusBadRequest,
			env.do(t, http.MethodPost, "/v1/agents/tokens", env.token, map[string]int64{"ttlSeconds": ttl}, nil), "ttl %d", ttl)
	}

	var longest domain.RegistrationToken
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/v1/agents/tokens", env.token, map[string]int64{"ttlSeconds": 9223372036}, &longest))
	assert.True(t, longest.ExpiresAt.After(longest.CreatedAt.AddDate(290, 0, 0)))
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/v1/events?topic=job:update", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		return env.hub.Subscribers(domain.TopicJobUpdate) == 1
	}, 2*time.Second, 10*time.Millisecond)

	env.hub.Publish(ctx, domain.TopicAgentUpdate, map[string]string{"id": "skip"})
	env.hub.Publish(ctx, domain.TopicJobUpdate, map[string]string{"id": "j1"})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event:") || strings.HasPrefix(line, "data:") {
			lines = append(lines, line)
		}
		if len(lines) == 2 {
			break
		}
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "event: job:update", lines[0])
	assert.JSONEq(t, `{"id":"j1"}`, strings.TrimPrefix(lines[1], "data: "))

	cancel()
	assert.Eventually(t, func() bool {
		return env.hub.Subscribers(domain.TopicJobUpdate) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventStreamRejectsUnknownTopic(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/events?topic=nope", "", nil, nil))
}
