package command

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"fleettrack/internal/domain"
	"fleettrack/internal/protocol"
	"fleettrack/pkg/apperror"
	"fleettrack/pkg/config"
	"fleettrack/pkg/logger"
)

// Dispatcher runs the periodic pull-dispatch loop of spec.md §4.7: pull
// ready queue entries in priority order, resolve the device's live link,
// encode and send, and advance the state machine.
type Dispatcher struct {
	store     Store
	links     LinkWriter
	encoders  map[string]protocol.Encoder
	cfg       config.CommandConfig
	publisher Publisher
}

// NewDispatcher builds a Dispatcher. encoders is keyed by protocol name
// (e.g. "suntech", "osmand") — one internal/protocol.Encoder per listener.
func NewDispatcher(store Store, links LinkWriter, encoders map[string]protocol.Encoder, cfg config.CommandConfig, publisher Publisher) *Dispatcher {
	return &Dispatcher{store: store, links: links, encoders: encoders, cfg: cfg, publisher: publisher}
}

// Run blocks, dispatching a batch on every tick until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	tick := d.cfg.DispatchTick
	if tick <= 0 {
		tick = 2 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.DispatchBatch(ctx); err != nil {
				logger.Log.Error("command dispatch batch failed", "error", err)
			}
		}
	}
}

// DispatchBatch pulls and processes up to cfg.DispatchBatch ready entries.
// Exported so an enqueue can trigger an immediate out-of-cycle pull as well
// as the ticker (spec.md §4.7 "periodically, and on wake-up from enqueue").
func (d *Dispatcher) DispatchBatch(ctx context.Context) error {
	batch := d.cfg.DispatchBatch
	if batch <= 0 {
		batch = 20
	}

	entries, err := d.store.ReadyEntries(ctx, time.Now(), batch)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		d.dispatchOne(ctx, entry)
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, entry *domain.CommandQueueEntry) {
	cmd, err := d.store.GetCommand(ctx, entry.CommandID)
	if err != nil {
		logger.Log.Warn("dispatcher: command lookup failed", "command_id", entry.CommandID, "error", err)
		return
	}

	now := time.Now()
	if cmd.ExpiresAt != nil && now.After(*cmd.ExpiresAt) {
		d.expire(ctx, cmd)
		return
	}

	uniqueID, protocolName, err := d.store.DeviceRef(ctx, cmd.DeviceID)
	if err != nil {
		logger.Log.Warn("dispatcher: device lookup failed", "device_id", cmd.DeviceID, "error", err)
		return
	}

	encoder, ok := d.encoders[protocolName]
	if !ok {
		d.fail(ctx, cmd, entry, apperror.New(apperror.CodeUnsupportedCommand, "no encoder registered for protocol "+protocolName))
		return
	}

	wire, err := encoder.EncodeCommand(cmd)
	if err != nil {
		d.fail(ctx, cmd, entry, err)
		return
	}

	if err := d.links.Write(uniqueID, []byte(wire)); err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) && appErr.Code == apperror.CodeLinkUnavailable {
			// Device offline: leave the command PENDING and reschedule a
			// later look (spec.md §4.7 "keep the command PENDING").
			d.reschedule(ctx, entry, now)
			return
		}
		d.fail(ctx, cmd, entry, err)
		return
	}

	cmd.WireString = wire
	if err := cmd.Transition(domain.CommandSent); err != nil {
		logger.Log.Error("dispatcher: unexpected transition rejection", "command_id", cmd.ID, "error", err)
		return
	}
	cmd.SentAt = &now
	if err := d.store.UpdateCommand(ctx, cmd); err != nil {
		logger.Log.Error("dispatcher: failed to persist SENT transition", "command_id", cmd.ID, "error", err)
		return
	}

	entry.Attempts++
	entry.LastAttempt = &now
	if err := d.store.UpdateQueueEntry(ctx, entry); err != nil {
		logger.Log.Warn("dispatcher: failed to persist queue entry update", "command_id", cmd.ID, "error", err)
	}

	d.publish(ctx, cmd, domain.EventQueuedCommandSent)
}

// reschedule bumps a still-PENDING entry's next look without touching its
// command status — used when the target device has no live link.
func (d *Dispatcher) reschedule(ctx context.Context, entry *domain.CommandQueueEntry, now time.Time) {
	next := now.Add(10 * time.Second)
	entry.NextAttempt = &next
	if err := d.store.UpdateQueueEntry(ctx, entry); err != nil {
		logger.Log.Warn("dispatcher: failed to reschedule offline-device entry", "entry_id", entry.ID, "error", err)
	}
}

func (d *Dispatcher) expire(ctx context.Context, cmd *domain.Command) {
	if err := cmd.Transition(domain.CommandExpired); err != nil {
		logger.Log.Error("dispatcher: unexpected transition rejection on expiry", "command_id", cmd.ID, "error", err)
		return
	}
	if err := d.store.UpdateCommand(ctx, cmd); err != nil {
		logger.Log.Error("dispatcher: failed to persist EXPIRED transition", "command_id", cmd.ID, "error", err)
		return
	}
	if err := d.store.DeactivateQueueEntry(ctx, cmd.ID); err != nil {
		logger.Log.Warn("dispatcher: failed to deactivate expired queue entry", "command_id", cmd.ID, "error", err)
	}
}

// fail drives a send failure through FAILED, then either back to PENDING
// with backoff (retries remain) or leaves it FAILED as a terminal state
// (spec.md §4.7: "FAILED --(retry_count < max)--> PENDING (else terminal)").
func (d *Dispatcher) fail(ctx context.Context, cmd *domain.Command, entry *domain.CommandQueueEntry, cause error) {
	logger.Log.Warn("dispatcher: send failed", "command_id", cmd.ID, "error", cause)

	if err := cmd.Transition(domain.CommandFailed); err != nil {
		logger.Log.Error("dispatcher: unexpected transition rejection on send failure", "command_id", cmd.ID, "error", err)
		return
	}
	errMsg := cause.Error()
	cmd.Error = errMsg
	failedAt := time.Now()
	cmd.FailedAt = &failedAt

	maxRetries := cmd.MaxRetries
	if maxRetries <= 0 {
		maxRetries = d.cfg.DefaultMaxRetry
	}

	if cmd.RetryCount < maxRetries {
		cmd.RetryCount++
		if err := cmd.Transition(domain.CommandPending); err != nil {
			logger.Log.Error("dispatcher: unexpected transition rejection back to pending", "command_id", cmd.ID, "error", err)
			return
		}
		if err := d.store.UpdateCommand(ctx, cmd); err != nil {
			logger.Log.Error("dispatcher: failed to persist retry transition", "command_id", cmd.ID, "error", err)
			return
		}

		backoff := RetryBackoff(cmd.RetryCount, d.cfg.MaxBackoff)
		next := time.Now().Add(backoff)
		entry.NextAttempt = &next
		if err := d.store.UpdateQueueEntry(ctx, entry); err != nil {
			logger.Log.Warn("dispatcher: failed to persist retry backoff", "command_id", cmd.ID, "error", err)
		}
		return
	}

	if err := d.store.UpdateCommand(ctx, cmd); err != nil {
		logger.Log.Error("dispatcher: failed to persist terminal FAILED state", "command_id", cmd.ID, "error", err)
		return
	}
	if err := d.store.DeactivateQueueEntry(ctx, cmd.ID); err != nil {
		logger.Log.Warn("dispatcher: failed to deactivate exhausted queue entry", "command_id", cmd.ID, "error", err)
	}
}

// RetryBackoff implements spec.md §4.7's `min(2^retry_count, 300s)` rule.
// maxBackoff overrides the 300s cap when positive (config.CommandConfig).
func RetryBackoff(retryCount int, maxBackoff time.Duration) time.Duration {
	ceiling := 300 * time.Second
	if maxBackoff > 0 {
		ceiling = maxBackoff
	}
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 30 { // guard against overflow in the exponent
		retryCount = 30
	}
	backoff := time.Duration(math.Pow(2, float64(retryCount))) * time.Second
	if backoff > ceiling || backoff <= 0 {
		return ceiling
	}
	return backoff
}

func (d *Dispatcher) publish(ctx context.Context, cmd *domain.Command, eventType domain.EventType) {
	if d.publisher == nil {
		return
	}
	ev := &domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		EventTime: time.Now(),
		DeviceID:  cmd.DeviceID,
		Attributes: map[string]any{
			"command_id":   cmd.ID,
			"command_type": string(cmd.Type),
		},
	}
	if err := d.publisher.PublishEvent(ctx, ev); err != nil {
		logger.Log.Warn("dispatcher: failed to publish command event", "command_id", cmd.ID, "error", err)
	}
}
