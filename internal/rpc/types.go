package rpc

import "time"

// SendCommandRequest issues a new command against a device (spec.md §6).
type SendCommandRequest struct {
	DeviceID   string         `json:"device_id"`
	IssuedBy   string         `json:"issued_by"`
	Type       string         `json:"type"`
	Priority   string         `json:"priority"`
	Params     map[string]any `json:"params,omitempty"`
	MaxRetries int            `json:"max_retries,omitempty"`
	ExpiresIn  time.Duration  `json:"expires_in,omitempty"`
}

// CommandResponse mirrors the persisted command's externally visible state.
type CommandResponse struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"device_id"`
	Type        string     `json:"type"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	Response    string     `json:"response,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
}

// GetCommandRequest fetches a single command by ID.
type GetCommandRequest struct {
	ID string `json:"id"`
}

// ListCommandsRequest filters the command history for a device.
type ListCommandsRequest struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status,omitempty"`
	Limit    int32  `json:"limit,omitempty"`
	Offset   int32  `json:"offset,omitempty"`
}

// ListCommandsResponse is a page of commands.
type ListCommandsResponse struct {
	Commands []*CommandResponse `json:"commands"`
	Total    int64              `json:"total"`
}

// CancelCommandRequest cancels a pending or sent command.
type CancelCommandRequest struct {
	ID string `json:"id"`
}

// CreateTemplateRequest defines a reusable command shape.
type CreateTemplateRequest struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Priority   string         `json:"priority"`
	Params     map[string]any `json:"params,omitempty"`
	MaxRetries int            `json:"max_retries,omitempty"`
	Channel    string         `json:"channel,omitempty"`
}

// TemplateResponse mirrors a persisted command template.
type TemplateResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Priority   string         `json:"priority"`
	Params     map[string]any `json:"params,omitempty"`
	MaxRetries int            `json:"max_retries"`
	UsageCount int64          `json:"usage_count"`
}

// ListTemplatesRequest lists all defined templates; no filters today.
type ListTemplatesRequest struct{}

// ListTemplatesResponse is the full template catalogue.
type ListTemplatesResponse struct {
	Templates []*TemplateResponse `json:"templates"`
}

// ScheduleCommandRequest releases a templated command at or after a future time.
type ScheduleCommandRequest struct {
	DeviceID       string         `json:"device_id"`
	TemplateID     string         `json:"template_id"`
	Overrides      map[string]any `json:"overrides,omitempty"`
	EarliestAt     time.Time      `json:"earliest_at"`
	RepeatInterval time.Duration  `json:"repeat_interval,omitempty"`
	MaxRepeats     int            `json:"max_repeats,omitempty"`
}

// ScheduledCommandResponse mirrors a persisted scheduled command.
type ScheduledCommandResponse struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	TemplateID   string    `json:"template_id"`
	EarliestAt   time.Time `json:"earliest_at"`
	RepeatsFired int       `json:"repeats_fired"`
	Active       bool      `json:"active"`
}

// SubscribeRequest is the first message on the bidirectional Subscribe
// stream: the initial topic set to join (spec.md §6.2, SPEC_FULL.md §6.1).
// Subsequent client messages add or drop topics without reopening the
// stream.
type SubscribeRequest struct {
	Subscribe   []string `json:"subscribe,omitempty"`
	Unsubscribe []string `json:"unsubscribe,omitempty"`
}

// PushEnvelope is the operator push protocol envelope (spec.md §6.2):
// {"type", "data", "timestamp"}.
type PushEnvelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}
