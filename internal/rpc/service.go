package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name, mirroring what
// protoc-gen-go-grpc would derive from a "fleettrack.rpc.v1" package.
const ServiceName = "fleettrack.rpc.v1.FleetService"

// FleetServiceServer is the Command API plus Subscription Hub surface
// (spec.md §6, SPEC_FULL.md §6.1). internal/service.Core implements it,
// wiring SendCommand/CancelCommand/... into internal/command and
// Subscribe into internal/hub.
type FleetServiceServer interface {
	SendCommand(context.Context, *SendCommandRequest) (*CommandResponse, error)
	GetCommand(context.Context, *GetCommandRequest) (*CommandResponse, error)
	ListCommands(context.Context, *ListCommandsRequest) (*ListCommandsResponse, error)
	CancelCommand(context.Context, *CancelCommandRequest) (*CommandResponse, error)
	CreateTemplate(context.Context, *CreateTemplateRequest) (*TemplateResponse, error)
	ListTemplates(context.Context, *ListTemplatesRequest) (*ListTemplatesResponse, error)
	ScheduleCommand(context.Context, *ScheduleCommandRequest) (*ScheduledCommandResponse, error)
	Subscribe(FleetService_SubscribeServer) error
}

// FleetService_SubscribeServer is the server-side handle for the
// bidirectional Subscribe stream.
type FleetService_SubscribeServer interface {
	Send(*PushEnvelope) error
	Recv() (*SubscribeRequest, error)
	grpc.ServerStream
}

type fleetServiceSubscribeServer struct {
	grpc.ServerStream
}

func (s *fleetServiceSubscribeServer) Send(m *PushEnvelope) error {
	return s.ServerStream.SendMsg(m)
}

func (s *fleetServiceSubscribeServer) Recv() (*SubscribeRequest, error) {
	m := new(SubscribeRequest)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func handlerSendCommand(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(SendCommandRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetServiceServer).SendCommand(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/SendCommand"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServiceServer).SendCommand(ctx, req.(*SendCommandRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func handlerGetCommand(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetCommandRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetServiceServer).GetCommand(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/GetCommand"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServiceServer).GetCommand(ctx, req.(*GetCommandRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func handlerListCommands(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ListCommandsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetServiceServer).ListCommands(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/ListCommands"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServiceServer).ListCommands(ctx, req.(*ListCommandsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func handlerCancelCommand(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(CancelCommandRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetServiceServer).CancelCommand(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/CancelCommand"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServiceServer).CancelCommand(ctx, req.(*CancelCommandRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func handlerCreateTemplate(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(CreateTemplateRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetServiceServer).CreateTemplate(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/CreateTemplate"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServiceServer).CreateTemplate(ctx, req.(*CreateTemplateRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func handlerListTemplates(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ListTemplatesRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetServiceServer).ListTemplates(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/ListTemplates"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServiceServer).ListTemplates(ctx, req.(*ListTemplatesRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func handlerScheduleCommand(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ScheduleCommandRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetServiceServer).ScheduleCommand(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/ScheduleCommand"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServiceServer).ScheduleCommand(ctx, req.(*ScheduleCommandRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func streamHandlerSubscribe(srv any, stream grpc.ServerStream) error {
	return srv.(FleetServiceServer).Subscribe(&fleetServiceSubscribeServer{stream})
}

// ServiceDesc is the hand-described grpc.ServiceDesc for FleetService,
// built the way protoc-gen-go-grpc would, carrying plain Go structs
// instead of generated proto.Message types (SPEC_FULL.md §6.1).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FleetServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendCommand", Handler: handlerSendCommand},
		{MethodName: "GetCommand", Handler: handlerGetCommand},
		{MethodName: "ListCommands", Handler: handlerListCommands},
		{MethodName: "CancelCommand", Handler: handlerCancelCommand},
		{MethodName: "CreateTemplate", Handler: handlerCreateTemplate},
		{MethodName: "ListTemplates", Handler: handlerListTemplates},
		{MethodName: "ScheduleCommand", Handler: handlerScheduleCommand},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       streamHandlerSubscribe,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "fleettrack/internal/rpc/fleet_service.go",
}

// RegisterFleetServiceServer registers srv against s using ServiceDesc.
func RegisterFleetServiceServer(s grpc.ServiceRegistrar, srv FleetServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
