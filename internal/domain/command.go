package domain

import "time"

// CommandType is the closed set of outbound control instruction kinds.
// Each protocol encoder (internal/protocol) maps these to its own wire
// syntax (spec.md §4.7).
type CommandType string

const (
	CommandSetInterval   CommandType = "setInterval"
	CommandEngineStop    CommandType = "engineStop"
	CommandEngineResume  CommandType = "engineResume"
	CommandRequestStatus CommandType = "requestStatus"
	CommandReboot        CommandType = "reboot"
	CommandSetOutput     CommandType = "setOutput"
	CommandCustom        CommandType = "custom"
)

// Priority orders command dispatch; the dispatcher always prefers the
// higher value among ready commands for an idle device.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String renders the priority's wire/log name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// CommandStatus is the command state machine's closed set (spec.md §4.7).
type CommandStatus string

const (
	CommandPending    CommandStatus = "PENDING"
	CommandSent       CommandStatus = "SENT"
	CommandDelivered  CommandStatus = "DELIVERED"
	CommandExecuted   CommandStatus = "EXECUTED"
	CommandTimeout    CommandStatus = "TIMEOUT"
	CommandCancelled  CommandStatus = "CANCELLED"
	CommandExpired    CommandStatus = "EXPIRED"
	CommandFailed     CommandStatus = "FAILED"
)

// Terminal reports whether a command status accepts no further transitions.
// FAILED and TIMEOUT are deliberately excluded even though they're often the
// last state a command reaches: both can still transition back to PENDING
// while retries remain (spec.md §4.7/§7), so only the owning sweeper/
// dispatcher — which tracks the retry count — knows whether a given
// instance is actually done.
func (s CommandStatus) Terminal() bool {
	switch s {
	case CommandExecuted, CommandCancelled, CommandExpired:
		return true
	default:
		return false
	}
}

// validTransitions enumerates the state machine's allowed edges, keyed by
// current status, so Command.Transition can reject skips and reversals
// (spec.md P4).
var validTransitions = map[CommandStatus]map[CommandStatus]bool{
	CommandPending:   {CommandSent: true, CommandFailed: true, CommandCancelled: true, CommandExpired: true},
	CommandSent:      {CommandDelivered: true, CommandTimeout: true, CommandFailed: true, CommandCancelled: true},
	CommandDelivered: {CommandExecuted: true, CommandTimeout: true, CommandCancelled: true},
	CommandFailed:    {CommandPending: true},
	CommandTimeout:   {CommandPending: true},
}

// Command is an outbound control instruction targeting a device.
type Command struct {
	ID             string
	DeviceID       string
	IssuedBy       string
	Type           CommandType
	Priority       Priority
	Status         CommandStatus
	Params         map[string]any
	WireString     string
	RetryCount     int
	MaxRetries     int
	ExpiresAt      *time.Time
	Response       string
	Error          string
	CreatedAt      time.Time
	SentAt         *time.Time
	DeliveredAt    *time.Time
	ExecutedAt     *time.Time
	FailedAt       *time.Time
}

// Transition validates and applies a state machine edge (spec.md §4.7's
// ASCII diagram); it never mutates the command when the edge is invalid.
func (c *Command) Transition(to CommandStatus) error {
	allowed := validTransitions[c.Status]
	if !allowed[to] {
		return errInvalidTransition(c.Status, to)
	}
	c.Status = to
	return nil
}

// CommandQueueEntry is one-to-one with a non-terminal Command.
type CommandQueueEntry struct {
	ID           string
	CommandID    string
	Priority     Priority
	EarliestAt   *time.Time
	Attempts     int
	LastAttempt  *time.Time
	NextAttempt  *time.Time
	Active       bool
	EnqueuedAt   time.Time
}

// CommandTemplate records a reusable command shape with a usage counter.
type CommandTemplate struct {
	ID         string
	Name       string
	Type       CommandType
	Priority   Priority
	Params     map[string]any
	MaxRetries int
	Channel    string
	UsageCount int64
}

// ScheduledCommand wraps a command definition with a release schedule.
type ScheduledCommand struct {
	ID              string
	DeviceID        string
	TemplateID      string
	Overrides       map[string]any
	EarliestAt      time.Time
	RepeatInterval  time.Duration
	MaxRepeats      int
	RepeatsFired    int
	Active          bool
}
