// pkg/client/command.go
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"fleettrack/internal/rpc"
)

// CommandClient is fleet-ctl's typed client for the Command API and
// Subscription Hub, grounded on the teacher's SolverClient dial pattern
// but speaking the JSON codec described in internal/rpc instead of
// protobuf binary.
type CommandClient struct {
	conn   *grpc.ClientConn
	client rpc.FleetServiceClient
}

// CommandClientConfig configures the dial target.
type CommandClientConfig struct {
	Address    string
	Timeout    time.Duration
	MaxRetries int
	EnableTLS  bool
	CertFile   string
}

// DefaultCommandClientConfig returns sane defaults for local operation.
func DefaultCommandClientConfig() *CommandClientConfig {
	return &CommandClientConfig{
		Address:    "localhost:50051",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		EnableTLS:  false,
	}
}

// NewCommandClient dials the fleet-core Command API. The connection is
// forced onto the JSON codec registered by internal/rpc so it matches the
// server's ForceServerCodec (SPEC_FULL.md §6.1).
func NewCommandClient(cfg *CommandClientConfig) (*CommandClient, error) {
	if cfg == nil {
		cfg = DefaultCommandClientConfig()
	}

	codec := encoding.GetCodec("json")
	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(codec),
			grpc.MaxCallRecvMsgSize(16*1024*1024),
			grpc.MaxCallSendMsgSize(16*1024*1024),
		),
	}

	if cfg.EnableTLS {
		// TODO: добавить TLS
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to fleet-core: %w", err)
	}

	return &CommandClient{
		conn:   conn,
		client: rpc.NewFleetServiceClient(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *CommandClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Send issues a new command against a device.
func (c *CommandClient) Send(ctx context.Context, req *rpc.SendCommandRequest) (*rpc.CommandResponse, error) {
	return c.client.SendCommand(ctx, req)
}

// Get fetches a single command by ID.
func (c *CommandClient) Get(ctx context.Context, id string) (*rpc.CommandResponse, error) {
	return c.client.GetCommand(ctx, &rpc.GetCommandRequest{ID: id})
}

// List returns a page of commands for a device, optionally filtered by status.
func (c *CommandClient) List(ctx context.Context, deviceID, status string, limit, offset int32) (*rpc.ListCommandsResponse, error) {
	return c.client.ListCommands(ctx, &rpc.ListCommandsRequest{
		DeviceID: deviceID,
		Status:   status,
		Limit:    limit,
		Offset:   offset,
	})
}

// Cancel cancels a pending or sent command.
func (c *CommandClient) Cancel(ctx context.Context, id string) (*rpc.CommandResponse, error) {
	return c.client.CancelCommand(ctx, &rpc.CancelCommandRequest{ID: id})
}

// SendWithTimeout issues a command bounded by an explicit deadline.
func (c *CommandClient) SendWithTimeout(ctx context.Context, req *rpc.SendCommandRequest, timeout time.Duration) (*rpc.CommandResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Send(ctx, req)
}

// Subscribe opens the bidirectional push stream and joins the given topics.
func (c *CommandClient) Subscribe(ctx context.Context, topics []string) (rpc.FleetService_SubscribeClient, error) {
	stream, err := c.client.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	if err := stream.Send(&rpc.SubscribeRequest{Subscribe: topics}); err != nil {
		return nil, err
	}
	return stream, nil
}

// CreateTemplate registers a reusable command shape.
func (c *CommandClient) CreateTemplate(ctx context.Context, req *rpc.CreateTemplateRequest) (*rpc.TemplateResponse, error) {
	return c.client.CreateTemplate(ctx, req)
}

// ListTemplates returns the full template catalogue.
func (c *CommandClient) ListTemplates(ctx context.Context) (*rpc.ListTemplatesResponse, error) {
	return c.client.ListTemplates(ctx, &rpc.ListTemplatesRequest{})
}

// ScheduleCommand registers a scheduled command against a template.
func (c *CommandClient) ScheduleCommand(ctx context.Context, req *rpc.ScheduleCommandRequest) (*rpc.ScheduledCommandResponse, error) {
	return c.client.ScheduleCommand(ctx, req)
}
