package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fleettrack/internal/domain"
	"fleettrack/pkg/apperror"
)

// Queue is the enqueue-side API: building a Command + CommandQueueEntry
// pair and handing both to the Store in one write (spec.md §4.7).
type Queue struct {
	store      Store
	dispatcher *Dispatcher
}

// NewQueue builds a Queue. dispatcher may be nil in tests that don't care
// about the enqueue-triggers-an-immediate-pull behavior.
func NewQueue(store Store, dispatcher *Dispatcher) *Queue {
	return &Queue{store: store, dispatcher: dispatcher}
}

// Store exposes the underlying Store for read-only lookups (get/list) that
// don't belong to the enqueue/cancel API itself.
func (q *Queue) Store() Store {
	return q.store
}

// EnqueueInput describes a new outbound command before it has an ID.
type EnqueueInput struct {
	DeviceID   string
	IssuedBy   string
	Type       domain.CommandType
	Priority   domain.Priority
	Params     map[string]any
	MaxRetries int
	ExpiresAt  *time.Time
	EarliestAt *time.Time
}

// Enqueue creates a PENDING Command and its queue entry, then nudges the
// dispatcher to look immediately rather than waiting for the next tick
// (spec.md §4.7 "periodically, and on wake-up from enqueue"). An
// already-expired input is rejected outright rather than queued dead
// (spec.md "expiry check runs on both enqueue and dequeue").
func (q *Queue) Enqueue(ctx context.Context, in EnqueueInput) (*domain.Command, error) {
	now := time.Now()
	if in.ExpiresAt != nil && now.After(*in.ExpiresAt) {
		return nil, apperror.ErrCommandExpired
	}

	cmd := &domain.Command{
		ID:         uuid.New().String(),
		DeviceID:   in.DeviceID,
		IssuedBy:   in.IssuedBy,
		Type:       in.Type,
		Priority:   in.Priority,
		Status:     domain.CommandPending,
		Params:     in.Params,
		MaxRetries: in.MaxRetries,
		ExpiresAt:  in.ExpiresAt,
		CreatedAt:  now,
	}
	entry := &domain.CommandQueueEntry{
		ID:         uuid.New().String(),
		CommandID:  cmd.ID,
		Priority:   cmd.Priority,
		EarliestAt: in.EarliestAt,
		Active:     true,
		EnqueuedAt: now,
	}

	if err := q.store.CreateCommand(ctx, cmd, entry); err != nil {
		return nil, err
	}

	if q.dispatcher != nil {
		go func() {
			wakeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = q.dispatcher.DispatchBatch(wakeCtx)
		}()
	}

	return cmd, nil
}

// Cancel transitions a PENDING, SENT or DELIVERED command to CANCELLED and
// deactivates its queue entry; the state machine rejects cancellation from
// any other status (spec.md §4.7's diagram).
func (q *Queue) Cancel(ctx context.Context, commandID string) error {
	cmd, err := q.store.GetCommand(ctx, commandID)
	if err != nil {
		return err
	}
	if err := cmd.Transition(domain.CommandCancelled); err != nil {
		return err
	}
	if err := q.store.UpdateCommand(ctx, cmd); err != nil {
		return err
	}
	return q.store.DeactivateQueueEntry(ctx, cmd.ID)
}
