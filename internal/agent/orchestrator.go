// Package agent — рантайм исполнителя: клиенты оркестратора, обертка
// надежности, исполнение команд из белого списка и основной цикл.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

// Orchestrator — все, что агент делает с control plane. Реализуется
// HTTPClient и agentrpc.Client.
type Orchestrator interface {
	Register(ctx context.Context, reg domain.Registration, token string) (*domain.Agent, error)
	Heartbeat(ctx context.Context, agentID string, ramUsedMB int64) (*domain.Agent, error)
	PendingJobs(ctx context.Context, agentID string) ([]*domain.Job, error)
	UpdateJob(ctx context.Context, jobID string, u domain.JobUpdate) (*domain.Job, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *HTTPClient) Register(ctx context.Context, reg domain.Registration, token string) (*domain.Agent, error) {
	var agent domain.Agent
	if err := c.do(ctx, http.MethodPost, "/v1/agents/register", token, reg, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (c *HTTPClient) Heartbeat(ctx context.Context, agentID string, ramUsedMB int64) (*domain.Agent, error) {
	body := map[string]int64{"ramUsedMB": ramUsedMB}
	var agent domain.Agent
	if err := c.do(ctx, http.MethodPost, "/v1/agents/"+url.PathEscape(agentID)+"/heartbeat", "", body, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (c *HTTPClient) PendingJobs(ctx context.Context, agentID string) ([]*domain.Job, error) {
	var jobs []*domain.Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/pending/"+url.PathEscape(agentID), "", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *HTTPClient) UpdateJob(ctx context.Context, jobID string, u domain.JobUpdate) (*domain.Job, error) {
	var job domain.Job
	if err := c.do(ctx, http.MethodPut, "/v1/jobs/"+url.PathEscape(jobID), "", u, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

type apiError struct {
	Error string `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, path, bearer string, body, dst any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("agent: encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("agent: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if traceID := domain.TraceIDFrom(ctx); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("agent: decode %s response: %w", path, err)
	}
	return nil
}

// responseError превращает ответ с ошибкой в доменную ошибку того же класса.
func responseError(resp *http.Response) error {
	var body apiError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return &domain.Error{Kind: domain.KindNotFound, Msg: msg}
	case http.StatusConflict:
		return &domain.Error{Kind: domain.KindConflict, Msg: msg}
	case http.StatusBadRequest:
		return &domain.Error{Kind: domain.KindInvalid, Msg: msg}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &domain.Error{Kind: domain.KindUnauthorized, Msg: msg}
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      errors.New(msg),
		}
	}
	return fmt.Errorf("agent: orchestrator returned %d: %s", resp.StatusCode, msg)
}

// parseRetryAfter понимает секунды и HTTP-дату. Нераспознанное значение — 1s.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return time.Second
}
