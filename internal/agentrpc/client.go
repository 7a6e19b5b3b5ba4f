package agentrpc

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client — сторона агента. Реализует тот же контракт, что и HTTP-клиент агента.
type Client struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

// NewClient создает клиент поверх готового соединения. timeout <= 0 — 15 секунд.
func NewClient(conn grpc.ClientConnInterface, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{conn: conn, timeout: timeout}
}

func (c *Client) Register(ctx context.Context, reg domain.Registration, token string) (*domain.Agent, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	var agent domain.Agent
	if err := c.call(ctx, MethodRegister, reg, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (c *Client) Heartbeat(ctx context.Context, agentID string, ramUsedMB int64) (*domain.Agent, error) {
	var agent domain.Agent
	if err := c.call(ctx, MethodHeartbeat, heartbeatRequest{AgentID: agentID, RAMUsedMB: ramUsedMB}, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (c *Client) PendingJobs(ctx context.Context, agentID string) ([]*domain.Job, error) {
	var resp pendingResponse
	if err := c.call(ctx, MethodPendingJobs, pendingRequest{AgentID: agentID}, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (c *Client) UpdateJob(ctx context.Context, jobID string, u domain.JobUpdate) (*domain.Job, error) {
	var job domain.Job
	if err := c.call(ctx, MethodUpdateJob, updateRequest{JobID: jobID, JobUpdate: u}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) call(ctx context.Context, method string, req, dst any) error {
	in, err := toStruct(req)
	if err != nil {
		return fmt.Errorf("failed to create proto struct: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if traceID := domain.TraceIDFrom(ctx); traceID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-trace-id", traceID)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return fromStatus(err)
	}
	if err := fromStruct(out, dst); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return nil
}

// fromStatus возвращает доменную ошибку с тем же классом, что был на сервере.
// Транспортные сбои (Unavailable, DeadlineExceeded) остаются Internal.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	kind := KindFor(st.Code())
	if kind == domain.KindInternal {
		return fmt.Errorf("agent rpc failed: %w", err)
	}
	return &domain.Error{Kind: kind, Msg: st.Message()}
}
