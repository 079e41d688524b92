package service

import (
	"context"
	"testing"
	"time"

	"fleettrack/internal/command"
	"fleettrack/internal/domain"
	"fleettrack/internal/hub"
	"fleettrack/internal/rpc"
	"fleettrack/pkg/apperror"
	"fleettrack/pkg/config"
)

type fakeCommandStore struct {
	commands map[string]*domain.Command
	entries  map[string]*domain.CommandQueueEntry
}

func newFakeCommandStore() *fakeCommandStore {
	return &fakeCommandStore{commands: map[string]*domain.Command{}, entries: map[string]*domain.CommandQueueEntry{}}
}

func (f *fakeCommandStore) CreateCommand(_ context.Context, cmd *domain.Command, entry *domain.CommandQueueEntry) error {
	f.commands[cmd.ID] = cmd
	f.entries[entry.ID] = entry
	return nil
}
func (f *fakeCommandStore) GetCommand(_ context.Context, id string) (*domain.Command, error) {
	cmd, ok := f.commands[id]
	if !ok {
		return nil, apperror.ErrCommandNotFound
	}
	return cmd, nil
}
func (f *fakeCommandStore) ListCommands(_ context.Context, deviceID string) ([]*domain.Command, error) {
	var out []*domain.Command
	for _, cmd := range f.commands {
		if cmd.DeviceID == deviceID {
			out = append(out, cmd)
		}
	}
	return out, nil
}
func (f *fakeCommandStore) UpdateCommand(_ context.Context, cmd *domain.Command) error {
	f.commands[cmd.ID] = cmd
	return nil
}
func (f *fakeCommandStore) ReadyEntries(_ context.Context, _ time.Time, _ int) ([]*domain.CommandQueueEntry, error) {
	return nil, nil
}
func (f *fakeCommandStore) UpdateQueueEntry(_ context.Context, entry *domain.CommandQueueEntry) error {
	f.entries[entry.ID] = entry
	return nil
}
func (f *fakeCommandStore) DeactivateQueueEntry(_ context.Context, commandID string) error {
	for _, e := range f.entries {
		if e.CommandID == commandID {
			e.Active = false
		}
	}
	return nil
}
func (f *fakeCommandStore) SentBefore(_ context.Context, _ time.Time) ([]*domain.Command, error) {
	return nil, nil
}
func (f *fakeCommandStore) DeliveredBefore(_ context.Context, _ time.Time) ([]*domain.Command, error) {
	return nil, nil
}
func (f *fakeCommandStore) DeviceRef(_ context.Context, deviceID string) (string, string, error) {
	return deviceID, "suntech", nil
}

type fakeTemplateStore struct {
	templates map[string]*domain.CommandTemplate
}

func newFakeTemplateStore() *fakeTemplateStore {
	return &fakeTemplateStore{templates: map[string]*domain.CommandTemplate{}}
}
func (f *fakeTemplateStore) CreateTemplate(_ context.Context, t *domain.CommandTemplate) error {
	f.templates[t.ID] = t
	return nil
}
func (f *fakeTemplateStore) GetTemplate(_ context.Context, id string) (*domain.CommandTemplate, error) {
	t, ok := f.templates[id]
	if !ok {
		return nil, apperror.ErrTemplateNotFound
	}
	return t, nil
}
func (f *fakeTemplateStore) ListTemplates(_ context.Context) ([]*domain.CommandTemplate, error) {
	var out []*domain.CommandTemplate
	for _, t := range f.templates {
		out = append(out, t)
	}
	return out, nil
}
func (f *fakeTemplateStore) IncrementUsage(_ context.Context, id string) error {
	if t, ok := f.templates[id]; ok {
		t.UsageCount++
	}
	return nil
}

type fakeScheduleStore struct {
	schedules map[string]*domain.ScheduledCommand
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{schedules: map[string]*domain.ScheduledCommand{}}
}
func (f *fakeScheduleStore) CreateSchedule(_ context.Context, s *domain.ScheduledCommand) error {
	f.schedules[s.ID] = s
	return nil
}
func (f *fakeScheduleStore) DueSchedules(_ context.Context, _ time.Time) ([]*domain.ScheduledCommand, error) {
	return nil, nil
}
func (f *fakeScheduleStore) UpdateSchedule(_ context.Context, s *domain.ScheduledCommand) error {
	f.schedules[s.ID] = s
	return nil
}

func newTestCore() *Core {
	cmdStore := newFakeCommandStore()
	tmplStore := newFakeTemplateStore()
	schedStore := newFakeScheduleStore()

	queue := command.NewQueue(cmdStore, nil)
	templates := command.NewTemplates(tmplStore, queue)
	scheduler := command.NewScheduler(schedStore, tmplStore, queue, time.Hour)
	h := hub.New(config.HubConfig{OutboundBuffer: 8})

	return New(queue, templates, scheduler, h)
}

func TestCore_SendAndGetCommand(t *testing.T) {
	c := newTestCore()
	ctx := context.Background()

	resp, err := c.SendCommand(ctx, &rpc.SendCommandRequest{
		DeviceID: "dev-1",
		IssuedBy: "operator",
		Type:     "reboot",
		Priority: "HIGH",
	})
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if resp.Status != string(domain.CommandPending) {
		t.Errorf("Status = %v, want PENDING", resp.Status)
	}

	got, err := c.GetCommand(ctx, &rpc.GetCommandRequest{ID: resp.ID})
	if err != nil {
		t.Fatalf("GetCommand: %v", err)
	}
	if got.ID != resp.ID {
		t.Errorf("GetCommand returned wrong command")
	}
}

func TestCore_SendCommand_RejectsUnknownPriority(t *testing.T) {
	c := newTestCore()
	_, err := c.SendCommand(context.Background(), &rpc.SendCommandRequest{
		DeviceID: "dev-1",
		Type:     "reboot",
		Priority: "URGENT",
	})
	if err == nil {
		t.Fatal("expected an error for an unknown priority")
	}
}

func TestCore_CancelCommand(t *testing.T) {
	c := newTestCore()
	ctx := context.Background()

	sent, err := c.SendCommand(ctx, &rpc.SendCommandRequest{DeviceID: "dev-1", Type: "reboot"})
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	cancelled, err := c.CancelCommand(ctx, &rpc.CancelCommandRequest{ID: sent.ID})
	if err != nil {
		t.Fatalf("CancelCommand: %v", err)
	}
	if cancelled.Status != string(domain.CommandCancelled) {
		t.Errorf("Status = %v, want CANCELLED", cancelled.Status)
	}
}

func TestCore_ListCommands_FiltersByStatusAndPages(t *testing.T) {
	c := newTestCore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.SendCommand(ctx, &rpc.SendCommandRequest{DeviceID: "dev-1", Type: "reboot"}); err != nil {
			t.Fatalf("SendCommand: %v", err)
		}
	}

	resp, err := c.ListCommands(ctx, &rpc.ListCommandsRequest{DeviceID: "dev-1", Status: "PENDING", Limit: 2})
	if err != nil {
		t.Fatalf("ListCommands: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("Total = %d, want 3", resp.Total)
	}
	if len(resp.Commands) != 2 {
		t.Errorf("page length = %d, want 2", len(resp.Commands))
	}
}

func TestCore_CreateAndListTemplates(t *testing.T) {
	c := newTestCore()
	ctx := context.Background()

	tmpl, err := c.CreateTemplate(ctx, &rpc.CreateTemplateRequest{Name: "stop-engine", Type: "engineStop", Priority: "HIGH"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	list, err := c.ListTemplates(ctx, &rpc.ListTemplatesRequest{})
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(list.Templates) != 1 || list.Templates[0].ID != tmpl.ID {
		t.Errorf("ListTemplates = %+v, want one entry matching %v", list.Templates, tmpl.ID)
	}
}

func TestCore_ScheduleCommand(t *testing.T) {
	c := newTestCore()
	ctx := context.Background()

	resp, err := c.ScheduleCommand(ctx, &rpc.ScheduleCommandRequest{
		DeviceID:   "dev-1",
		TemplateID: "tmpl-1",
		EarliestAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("ScheduleCommand: %v", err)
	}
	if !resp.Active {
		t.Error("a freshly created schedule should be active")
	}
}
