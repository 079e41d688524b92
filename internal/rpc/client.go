package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// FleetServiceClient is the typed client side of FleetServiceServer, used
// by fleet-ctl (pkg/client).
type FleetServiceClient interface {
	SendCommand(ctx context.Context, req *SendCommandRequest, opts ...grpc.CallOption) (*CommandResponse, error)
	GetCommand(ctx context.Context, req *GetCommandRequest, opts ...grpc.CallOption) (*CommandResponse, error)
	ListCommands(ctx context.Context, req *ListCommandsRequest, opts ...grpc.CallOption) (*ListCommandsResponse, error)
	CancelCommand(ctx context.Context, req *CancelCommandRequest, opts ...grpc.CallOption) (*CommandResponse, error)
	CreateTemplate(ctx context.Context, req *CreateTemplateRequest, opts ...grpc.CallOption) (*TemplateResponse, error)
	ListTemplates(ctx context.Context, req *ListTemplatesRequest, opts ...grpc.CallOption) (*ListTemplatesResponse, error)
	ScheduleCommand(ctx context.Context, req *ScheduleCommandRequest, opts ...grpc.CallOption) (*ScheduledCommandResponse, error)
	Subscribe(ctx context.Context, opts ...grpc.CallOption) (FleetService_SubscribeClient, error)
}

// FleetService_SubscribeClient is the client-side handle for the
// bidirectional Subscribe stream.
type FleetService_SubscribeClient interface {
	Send(*SubscribeRequest) error
	Recv() (*PushEnvelope, error)
	grpc.ClientStream
}

type fleetServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewFleetServiceClient builds a FleetServiceClient over an existing
// *grpc.ClientConn. The conn must be dialed with grpc.ForceCodec(json
// codec) so the wire format matches the server's ForceServerCodec.
func NewFleetServiceClient(cc grpc.ClientConnInterface) FleetServiceClient {
	return &fleetServiceClient{cc: cc}
}

func (c *fleetServiceClient) SendCommand(ctx context.Context, req *SendCommandRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	out := new(CommandResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/SendCommand", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fleetServiceClient) GetCommand(ctx context.Context, req *GetCommandRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	out := new(CommandResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetCommand", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fleetServiceClient) ListCommands(ctx context.Context, req *ListCommandsRequest, opts ...grpc.CallOption) (*ListCommandsResponse, error) {
	out := new(ListCommandsResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ListCommands", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fleetServiceClient) CancelCommand(ctx context.Context, req *CancelCommandRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	out := new(CommandResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/CancelCommand", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fleetServiceClient) CreateTemplate(ctx context.Context, req *CreateTemplateRequest, opts ...grpc.CallOption) (*TemplateResponse, error) {
	out := new(TemplateResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/CreateTemplate", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fleetServiceClient) ListTemplates(ctx context.Context, req *ListTemplatesRequest, opts ...grpc.CallOption) (*ListTemplatesResponse, error) {
	out := new(ListTemplatesResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ListTemplates", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fleetServiceClient) ScheduleCommand(ctx context.Context, req *ScheduleCommandRequest, opts ...grpc.CallOption) (*ScheduledCommandResponse, error) {
	out := new(ScheduledCommandResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ScheduleCommand", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fleetServiceClient) Subscribe(ctx context.Context, opts ...grpc.CallOption) (FleetService_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Subscribe", opts...)
	if err != nil {
		return nil, err
	}
	return &fleetServiceSubscribeClient{stream}, nil
}

type fleetServiceSubscribeClient struct {
	grpc.ClientStream
}

func (c *fleetServiceSubscribeClient) Send(m *SubscribeRequest) error {
	return c.ClientStream.SendMsg(m)
}

func (c *fleetServiceSubscribeClient) Recv() (*PushEnvelope, error) {
	m := new(PushEnvelope)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
