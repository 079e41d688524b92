package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fleettrack/internal/domain"
	"fleettrack/pkg/apperror"
	"fleettrack/pkg/database"
	"fleettrack/pkg/telemetry"
)

// CommandRepository is the Postgres-backed command.Store, minus DeviceRef
// (already satisfied by DeviceRepository — the composition root embeds
// both to build a complete command.Store).
type CommandRepository struct {
	db database.DB
}

// NewCommandRepository builds a CommandRepository.
func NewCommandRepository(db database.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

const commandColumns = `
	id, device_id, issued_by, type, priority, status, params, wire_string,
	retry_count, max_retries, expires_at, response, error, created_at,
	sent_at, delivered_at, executed_at, failed_at
`

func scanCommand(row pgx.Row) (*domain.Command, error) {
	var c domain.Command
	var params []byte
	err := row.Scan(
		&c.ID, &c.DeviceID, &c.IssuedBy, &c.Type, &c.Priority, &c.Status, &params, &c.WireString,
		&c.RetryCount, &c.MaxRetries, &c.ExpiresAt, &c.Response, &c.Error, &c.CreatedAt,
		&c.SentAt, &c.DeliveredAt, &c.ExecutedAt, &c.FailedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.ErrCommandNotFound
		}
		return nil, fmt.Errorf("scan command: %w", err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &c.Params); err != nil {
			return nil, fmt.Errorf("unmarshal command params: %w", err)
		}
	}
	return &c, nil
}

// CreateCommand persists a new Command and its queue entry in one
// transaction, so a command can never exist without a matching queue row
// while it's non-terminal.
func (r *CommandRepository) CreateCommand(ctx context.Context, cmd *domain.Command, entry *domain.CommandQueueEntry) error {
	ctx, span := telemetry.StartSpan(ctx, "CommandRepository.CreateCommand")
	defer span.End()

	params, err := json.Marshal(cmd.Params)
	if err != nil {
		return fmt.Errorf("marshal command params: %w", err)
	}

	err = database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO commands (
				id, device_id, issued_by, type, priority, status, params, wire_string,
				retry_count, max_retries, expires_at, response, error, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, cmd.ID, cmd.DeviceID, cmd.IssuedBy, string(cmd.Type), cmd.Priority, string(cmd.Status), params,
			cmd.WireString, cmd.RetryCount, cmd.MaxRetries, cmd.ExpiresAt, cmd.Response, cmd.Error, cmd.CreatedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO command_queue (id, command_id, priority, earliest_at, attempts, last_attempt, next_attempt, active, enqueued_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, entry.ID, entry.CommandID, entry.Priority, entry.EarliestAt, entry.Attempts,
			entry.LastAttempt, entry.NextAttempt, entry.Active, entry.EnqueuedAt)
		return err
	})
	if err != nil {
		return classifyWriteErr(err)
	}
	return nil
}

// GetCommand looks a command up by ID.
func (r *CommandRepository) GetCommand(ctx context.Context, id string) (*domain.Command, error) {
	ctx, span := telemetry.StartSpan(ctx, "CommandRepository.GetCommand")
	defer span.End()

	row := r.db.QueryRow(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = $1`, id)
	return scanCommand(row)
}

// ListCommands returns a device's command history, most recent first.
func (r *CommandRepository) ListCommands(ctx context.Context, deviceID string) ([]*domain.Command, error) {
	ctx, span := telemetry.StartSpan(ctx, "CommandRepository.ListCommands")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT `+commandColumns+` FROM commands WHERE device_id = $1 ORDER BY created_at DESC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var out []*domain.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCommand persists a command's state machine transition and
// whichever timestamp/response/error fields moved with it.
func (r *CommandRepository) UpdateCommand(ctx context.Context, cmd *domain.Command) error {
	ctx, span := telemetry.StartSpan(ctx, "CommandRepository.UpdateCommand")
	defer span.End()

	tag, err := r.db.Exec(ctx, `
		UPDATE commands SET
			status = $1, retry_count = $2, response = $3, error = $4,
			sent_at = $5, delivered_at = $6, executed_at = $7, failed_at = $8
		WHERE id = $9
	`, string(cmd.Status), cmd.RetryCount, cmd.Response, cmd.Error,
		cmd.SentAt, cmd.DeliveredAt, cmd.ExecutedAt, cmd.FailedAt, cmd.ID)
	if err != nil {
		return classifyWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrCommandNotFound
	}
	return nil
}

func scanQueueEntry(row pgx.Row) (*domain.CommandQueueEntry, error) {
	var e domain.CommandQueueEntry
	err := row.Scan(&e.ID, &e.CommandID, &e.Priority, &e.EarliestAt, &e.Attempts,
		&e.LastAttempt, &e.NextAttempt, &e.Active, &e.EnqueuedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ReadyEntries returns up to limit active queue entries visible at now,
// ordered by priority desc then enqueued_at asc — the dispatcher's pick
// order (spec.md §4.7).
func (r *CommandRepository) ReadyEntries(ctx context.Context, now time.Time, limit int) ([]*domain.CommandQueueEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "CommandRepository.ReadyEntries")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT id, command_id, priority, earliest_at, attempts, last_attempt, next_attempt, active, enqueued_at
		FROM command_queue
		WHERE active = true AND (earliest_at IS NULL OR earliest_at <= $1)
		ORDER BY priority DESC, enqueued_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list ready queue entries: %w", err)
	}
	defer rows.Close()

	var out []*domain.CommandQueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateQueueEntry persists an attempt, its timestamps, and (when the
// dispatcher is done with it) active=false.
func (r *CommandRepository) UpdateQueueEntry(ctx context.Context, entry *domain.CommandQueueEntry) error {
	ctx, span := telemetry.StartSpan(ctx, "CommandRepository.UpdateQueueEntry")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		UPDATE command_queue SET
			attempts = $1, last_attempt = $2, next_attempt = $3, active = $4
		WHERE id = $5
	`, entry.Attempts, entry.LastAttempt, entry.NextAttempt, entry.Active, entry.ID)
	if err != nil {
		return classifyWriteErr(err)
	}
	return nil
}

// GetQueueEntryByCommand looks up the queue entry backing a command, used
// by the timeout sweeper to apply the same retry bookkeeping the
// dispatcher's fail() does.
func (r *CommandRepository) GetQueueEntryByCommand(ctx context.Context, commandID string) (*domain.CommandQueueEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "CommandRepository.GetQueueEntryByCommand")
	defer span.End()

	row := r.db.QueryRow(ctx, `
		SELECT id, command_id, priority, earliest_at, attempts, last_attempt, next_attempt, active, enqueued_at
		FROM command_queue WHERE command_id = $1
	`, commandID)
	e, err := scanQueueEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.ErrCommandNotFound
		}
		return nil, fmt.Errorf("get queue entry by command: %w", err)
	}
	return e, nil
}

// DeactivateQueueEntry retires a command's queue row once it reaches a
// terminal status.
func (r *CommandRepository) DeactivateQueueEntry(ctx context.Context, commandID string) error {
	ctx, span := telemetry.StartSpan(ctx, "CommandRepository.DeactivateQueueEntry")
	defer span.End()

	_, err := r.db.Exec(ctx, `UPDATE command_queue SET active = false WHERE command_id = $1`, commandID)
	if err != nil {
		return classifyWriteErr(err)
	}
	return nil
}

// SentBefore returns commands still SENT whose send happened before
// cutoff — the timeout sweeper's delivery-ack deadline.
func (r *CommandRepository) SentBefore(ctx context.Context, cutoff time.Time) ([]*domain.Command, error) {
	ctx, span := telemetry.StartSpan(ctx, "CommandRepository.SentBefore")
	defer span.End()
	return r.queryByStatusBefore(ctx, domain.CommandSent, "sent_at", cutoff)
}

// DeliveredBefore returns commands still DELIVERED whose delivery
// happened before cutoff — the timeout sweeper's execution-ack deadline.
func (r *CommandRepository) DeliveredBefore(ctx context.Context, cutoff time.Time) ([]*domain.Command, error) {
	ctx, span := telemetry.StartSpan(ctx, "CommandRepository.DeliveredBefore")
	defer span.End()
	return r.queryByStatusBefore(ctx, domain.CommandDelivered, "delivered_at", cutoff)
}

func (r *CommandRepository) queryByStatusBefore(ctx context.Context, status domain.CommandStatus, column string, cutoff time.Time) ([]*domain.Command, error) {
	rows, err := r.db.Query(ctx, `SELECT `+commandColumns+` FROM commands WHERE status = $1 AND `+column+` < $2`, string(status), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list commands by status: %w", err)
	}
	defer rows.Close()

	var out []*domain.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
