// Package agentrpc — gRPC-транспорт агент -> оркестратор. Сообщения
// передаются как google.protobuf.Struct, поэтому сгенерированный код не нужен:
// дескриптор сервиса объявлен вручную.
package agentrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "fleet.agent.v1.AgentService"

const (
	MethodRegister    = "Register"
	MethodHeartbeat   = "Heartbeat"
	MethodPendingJobs = "PendingJobs"
	MethodUpdateJob   = "UpdateJob"
)

// AgentServiceServer — серверная сторона сервиса агентов.
type AgentServiceServer interface {
	Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Heartbeat(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	PendingJobs(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	UpdateJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(AgentServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AgentServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AgentServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AgentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodRegister, AgentServiceServer.Register),
		unary(MethodHeartbeat, AgentServiceServer.Heartbeat),
		unary(MethodPendingJobs, AgentServiceServer.PendingJobs),
		unary(MethodUpdateJob, AgentServiceServer.UpdateJob),
	},
	Metadata: "fleet/agent/v1/agent.proto",
}

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// toStruct упаковывает JSON-представление значения в Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("agentrpc: value is not an object: %w", err)
	}
	return structpb.NewStruct(m)
}

// fromStruct распаковывает Struct в типизированное значение через JSON.
func fromStruct(in *structpb.Struct, dst any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
