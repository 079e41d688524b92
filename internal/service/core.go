// Package service wires the Position Pipeline, Event Engine, Command
// Queue & Dispatcher, Geofence Engine, and Subscription Hub into the one
// process described by spec.md §5, and is the concrete
// internal/rpc.FleetServiceServer the gRPC transport dispatches onto.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fleettrack/internal/command"
	"fleettrack/internal/domain"
	"fleettrack/internal/hub"
	"fleettrack/internal/rpc"
	"fleettrack/pkg/logger"
)

// Core is the composition root: it owns the long-running background loops
// (dispatcher, sweepers, scheduler, hub reaper, retention job — all
// started by Run) and answers the Command API's unary RPCs directly
// against internal/command, delegating Subscribe to internal/hub.Hub.
type Core struct {
	queue     *command.Queue
	templates *command.Templates
	scheduler *command.Scheduler
	hub       *hub.Hub

	background []backgroundLoop
}

type backgroundLoop interface {
	Run(ctx context.Context)
}

// New builds a Core from its already-constructed collaborators. Additional
// background loops (dispatcher, sweepers, retention job) are registered
// via WithBackground so Run starts them all uniformly.
func New(queue *command.Queue, templates *command.Templates, scheduler *command.Scheduler, h *hub.Hub) *Core {
	return &Core{queue: queue, templates: templates, scheduler: scheduler, hub: h}
}

// WithBackground registers an additional cooperative loop (anything with a
// Run(ctx) method) to be started by Run and stopped when ctx is cancelled.
func (c *Core) WithBackground(loops ...backgroundLoop) *Core {
	c.background = append(c.background, loops...)
	return c
}

// Run starts every registered background loop and blocks until ctx is
// cancelled, then waits for them to return — the first half of spec.md
// §5's shutdown sequence ("stop accepting new work, drain the dispatcher
// and scheduler, then exit").
func (c *Core) Run(ctx context.Context) {
	done := make(chan struct{}, len(c.background)+2)

	runLoop := func(l backgroundLoop) {
		l.Run(ctx)
		done <- struct{}{}
	}

	go runLoop(c.hub)
	for _, l := range c.background {
		go runLoop(l)
	}

	<-ctx.Done()
	for i := 0; i < len(c.background)+1; i++ {
		<-done
	}
	logger.Log.Info("service core: all background loops stopped")
}

// SendCommand enqueues a new outbound command.
func (c *Core) SendCommand(ctx context.Context, req *rpc.SendCommandRequest) (*rpc.CommandResponse, error) {
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if req.ExpiresIn > 0 {
		t := time.Now().Add(req.ExpiresIn)
		expiresAt = &t
	}

	cmd, err := c.queue.Enqueue(ctx, command.EnqueueInput{
		DeviceID:   req.DeviceID,
		IssuedBy:   req.IssuedBy,
		Type:       domain.CommandType(req.Type),
		Priority:   priority,
		Params:     req.Params,
		MaxRetries: req.MaxRetries,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		return nil, err
	}
	return commandResponse(cmd), nil
}

// GetCommand fetches a single command by ID.
func (c *Core) GetCommand(ctx context.Context, req *rpc.GetCommandRequest) (*rpc.CommandResponse, error) {
	cmd, err := c.queue.Store().GetCommand(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return commandResponse(cmd), nil
}

// ListCommands returns a device's command history, optionally filtered by
// status.
func (c *Core) ListCommands(ctx context.Context, req *rpc.ListCommandsRequest) (*rpc.ListCommandsResponse, error) {
	cmds, err := c.queue.Store().ListCommands(ctx, req.DeviceID)
	if err != nil {
		return nil, err
	}

	if req.Status != "" {
		filtered := cmds[:0]
		for _, cmd := range cmds {
			if string(cmd.Status) == req.Status {
				filtered = append(filtered, cmd)
			}
		}
		cmds = filtered
	}

	total := int64(len(cmds))
	cmds = page(cmds, req.Offset, req.Limit)

	out := make([]*rpc.CommandResponse, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, commandResponse(cmd))
	}
	return &rpc.ListCommandsResponse{Commands: out, Total: total}, nil
}

func page[T any](items []T, offset, limit int32) []T {
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}

// CancelCommand cancels a non-terminal command.
func (c *Core) CancelCommand(ctx context.Context, req *rpc.CancelCommandRequest) (*rpc.CommandResponse, error) {
	if err := c.queue.Cancel(ctx, req.ID); err != nil {
		return nil, err
	}
	cmd, err := c.queue.Store().GetCommand(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return commandResponse(cmd), nil
}

// CreateTemplate persists a reusable command shape.
func (c *Core) CreateTemplate(ctx context.Context, req *rpc.CreateTemplateRequest) (*rpc.TemplateResponse, error) {
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	tmpl := &domain.CommandTemplate{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Type:       domain.CommandType(req.Type),
		Priority:   priority,
		Params:     req.Params,
		MaxRetries: req.MaxRetries,
		Channel:    req.Channel,
	}
	if err := c.templates.Create(ctx, tmpl); err != nil {
		return nil, err
	}
	return templateResponse(tmpl), nil
}

// ListTemplates returns the full template catalogue.
func (c *Core) ListTemplates(ctx context.Context, _ *rpc.ListTemplatesRequest) (*rpc.ListTemplatesResponse, error) {
	tmpls, err := c.templates.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*rpc.TemplateResponse, 0, len(tmpls))
	for _, t := range tmpls {
		out = append(out, templateResponse(t))
	}
	return &rpc.ListTemplatesResponse{Templates: out}, nil
}

// ScheduleCommand registers a scheduled command against a template.
func (c *Core) ScheduleCommand(ctx context.Context, req *rpc.ScheduleCommandRequest) (*rpc.ScheduledCommandResponse, error) {
	sched := &domain.ScheduledCommand{
		ID:             uuid.New().String(),
		DeviceID:       req.DeviceID,
		TemplateID:     req.TemplateID,
		Overrides:      req.Overrides,
		EarliestAt:     req.EarliestAt,
		RepeatInterval: req.RepeatInterval,
		MaxRepeats:     req.MaxRepeats,
		Active:         true,
	}
	if err := c.scheduler.Store().CreateSchedule(ctx, sched); err != nil {
		return nil, err
	}
	return scheduledCommandResponse(sched), nil
}

// Subscribe delegates directly to the Subscription Hub.
func (c *Core) Subscribe(stream rpc.FleetService_SubscribeServer) error {
	return c.hub.Subscribe(stream)
}
