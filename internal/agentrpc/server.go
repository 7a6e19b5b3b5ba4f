package agentrpc

import (
	"context"

	"github.com/xela07ax/spaceai-fleet/internal/console/service"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"github.com/xela07ax/spaceai-fleet/internal/infra/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type Server struct {
	agents *service.AgentService
	jobs   *service.JobService
}

func NewServer(agents *service.AgentService, jobs *service.JobService) *Server {
	return &Server{agents: agents, jobs: jobs}
}

// NewGRPCServer собирает grpc.Server с перехватчиком ошибок и сервисом агентов.
func NewGRPCServer(s *Server, metrics *engine.Metrics, logger *zap.Logger) *grpc.Server {
	gs := grpc.NewServer(grpc.UnaryInterceptor(UnaryErrorInterceptor(metrics, logger.Named("agent-rpc"))))
	gs.RegisterService(&ServiceDesc, s)
	return gs
}

type registerRequest struct {
	domain.Registration
	Token string `json:"token,omitempty"`
}

type heartbeatRequest struct {
	AgentID   string `json:"agentId"`
	RAMUsedMB int64  `json:"ramUsedMB"`
}

type pendingRequest struct {
	AgentID string `json:"agentId"`
}

type pendingResponse struct {
	Jobs []*domain.Job `json:"jobs"`
}

type updateRequest struct {
	JobID string `json:"jobId"`
	domain.JobUpdate
}

func (s *Server) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req registerRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, domain.Invalidf("malformed register request: %v", err)
	}
	token := req.Token
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("authorization"); len(v) > 0 {
			token = auth.BearerToken(v[0])
		}
	}
	agent, err := s.agents.Register(ctx, req.Registration, token)
	if err != nil {
		return nil, err
	}
	return toStruct(agent)
}

func (s *Server) Heartbeat(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req heartbeatRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, domain.Invalidf("malformed heartbeat request: %v", err)
	}
	agent, err := s.agents.Heartbeat(ctx, req.AgentID, req.RAMUsedMB)
	if err != nil {
		return nil, err
	}
	return toStruct(agent)
}

func (s *Server) PendingJobs(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pendingRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, domain.Invalidf("malformed pending request: %v", err)
	}
	jobs, err := s.jobs.ListPendingByAgent(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	return toStruct(pendingResponse{Jobs: jobs})
}

func (s *Server) UpdateJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req updateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, domain.Invalidf("malformed update request: %v", err)
	}
	job, err := s.jobs.Update(ctx, req.JobID, req.JobUpdate)
	if err != nil {
		return nil, err
	}
	return toStruct(job)
}

// UnaryErrorInterceptor переводит доменные ошибки в gRPC-статусы и
// прокидывает trace id из метаданных x-trace-id.
func UnaryErrorInterceptor(metrics *engine.Metrics, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-trace-id"); len(ids) > 0 {
				ctx = domain.WithTraceID(ctx, ids[0])
			}
		}

		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if _, ok := status.FromError(err); ok {
			// Уже gRPC-статус
			return nil, err
		}

		kind := domain.KindOf(err)
		metrics.ErrorTotal.WithLabelValues(kind.String()).Inc()
		if kind == domain.KindInternal {
			logger.Error("rpc failed", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Internal, "internal error")
		}
		return nil, status.Error(CodeFor(kind), err.Error())
	}
}

func CodeFor(kind domain.Kind) codes.Code {
	switch kind {
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindConflict:
		return codes.FailedPrecondition
	case domain.KindInvalid:
		return codes.InvalidArgument
	case domain.KindUnauthorized:
		return codes.Unauthenticated
	}
	return codes.Internal
}

// KindFor — обратное отображение для клиента.
func KindFor(code codes.Code) domain.Kind {
	switch code {
	case codes.NotFound:
		return domain.KindNotFound
	case codes.FailedPrecondition, codes.AlreadyExists:
		return domain.KindConflict
	case codes.InvalidArgument:
		return domain.KindInvalid
	case codes.Unauthenticated, codes.PermissionDenied:
		return domain.KindUnauthorized
	}
	return domain.KindInternal
}
