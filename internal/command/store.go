// Package command implements the Command Queue & Dispatcher (C7, C8): the
// state machine, priority dispatch loop, timeout sweeper, templates, and
// scheduled commands of spec.md §4.7.
package command

import (
	"context"
	"time"

	"fleettrack/internal/domain"
)

// Store is the narrow persistence facade this package needs. Implemented
// by internal/repository; backed by a single `commands` + `command_queue`
// table pair with the queue read ordered by (priority desc, enqueued_at
// asc) and filtered to active, unexpired, earliest_at-eligible rows — the
// "SELECT ... FOR UPDATE SKIP LOCKED" shape a real dispatcher needs, kept
// out of this package's concern.
type Store interface {
	// CreateCommand persists a new Command and its queue entry together.
	CreateCommand(ctx context.Context, cmd *domain.Command, entry *domain.CommandQueueEntry) error
	GetCommand(ctx context.Context, id string) (*domain.Command, error)
	ListCommands(ctx context.Context, deviceID string) ([]*domain.Command, error)
	UpdateCommand(ctx context.Context, cmd *domain.Command) error

	// ReadyEntries returns up to limit active queue entries visible at
	// now (earliest_at <= now), ordered by priority desc then
	// enqueued_at asc (spec.md §4.7 dispatcher loop).
	ReadyEntries(ctx context.Context, now time.Time, limit int) ([]*domain.CommandQueueEntry, error)
	UpdateQueueEntry(ctx context.Context, entry *domain.CommandQueueEntry) error
	DeactivateQueueEntry(ctx context.Context, commandID string) error

	// GetQueueEntryByCommand looks up the queue entry backing a command,
	// so the timeout sweeper can apply the same retry-then-terminal
	// bookkeeping the dispatcher's fail() does (spec.md §4.7/§7).
	GetQueueEntryByCommand(ctx context.Context, commandID string) (*domain.CommandQueueEntry, error)

	// SentBefore/DeliveredBefore feed the timeout sweeper.
	SentBefore(ctx context.Context, cutoff time.Time) ([]*domain.Command, error)
	DeliveredBefore(ctx context.Context, cutoff time.Time) ([]*domain.Command, error)

	// DeviceRef resolves the protocol-level identity the dispatcher needs
	// to pick a live link and an encoder.
	DeviceRef(ctx context.Context, deviceID string) (uniqueID, protocolName string, err error)
}

// TemplateStore persists reusable command shapes (spec.md §4.7's external
// template API).
type TemplateStore interface {
	CreateTemplate(ctx context.Context, tmpl *domain.CommandTemplate) error
	GetTemplate(ctx context.Context, id string) (*domain.CommandTemplate, error)
	ListTemplates(ctx context.Context) ([]*domain.CommandTemplate, error)
	IncrementUsage(ctx context.Context, id string) error
}

// ScheduleStore persists scheduled commands and the cursor the scheduler
// sweeper needs to find due ones.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, sched *domain.ScheduledCommand) error
	DueSchedules(ctx context.Context, now time.Time) ([]*domain.ScheduledCommand, error)
	UpdateSchedule(ctx context.Context, sched *domain.ScheduledCommand) error
}

// LinkWriter is the outbound wire write the dispatcher needs. Satisfied by
// internal/transport.LinkTable.
type LinkWriter interface {
	Write(uniqueID string, payload []byte) error
}

// Publisher fans out command lifecycle events to the Subscription Hub.
type Publisher interface {
	PublishEvent(ctx context.Context, ev *domain.Event) error
}
