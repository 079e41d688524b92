package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fleettrack/internal/domain"
	"fleettrack/pkg/database"
	"fleettrack/pkg/telemetry"
)

// ScheduleRepository is the Postgres-backed command.ScheduleStore.
type ScheduleRepository struct {
	db database.DB
}

// NewScheduleRepository builds a ScheduleRepository.
func NewScheduleRepository(db database.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `
	id, device_id, template_id, overrides, earliest_at, repeat_interval,
	max_repeats, repeats_fired, active
`

func scanSchedule(row pgx.Row) (*domain.ScheduledCommand, error) {
	var s domain.ScheduledCommand
	var overrides []byte
	var repeatIntervalNanos int64
	err := row.Scan(&s.ID, &s.DeviceID, &s.TemplateID, &overrides, &s.EarliestAt,
		&repeatIntervalNanos, &s.MaxRepeats, &s.RepeatsFired, &s.Active)
	if err != nil {
		return nil, fmt.Errorf("scan scheduled command: %w", err)
	}
	s.RepeatInterval = time.Duration(repeatIntervalNanos)
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &s.Overrides); err != nil {
			return nil, fmt.Errorf("unmarshal schedule overrides: %w", err)
		}
	}
	return &s, nil
}

// CreateSchedule persists a scheduled command definition.
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, sched *domain.ScheduledCommand) error {
	ctx, span := telemetry.StartSpan(ctx, "ScheduleRepository.CreateSchedule")
	defer span.End()

	overrides, err := json.Marshal(sched.Overrides)
	if err != nil {
		return fmt.Errorf("marshal schedule overrides: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO scheduled_commands (
			id, device_id, template_id, overrides, earliest_at, repeat_interval,
			max_repeats, repeats_fired, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, true)
	`, sched.ID, sched.DeviceID, sched.TemplateID, overrides, sched.EarliestAt,
		int64(sched.RepeatInterval), sched.MaxRepeats)
	if err != nil {
		return classifyWriteErr(err)
	}
	return nil
}

// DueSchedules returns active schedules whose earliest_at has passed.
func (r *ScheduleRepository) DueSchedules(ctx context.Context, now time.Time) ([]*domain.ScheduledCommand, error) {
	ctx, span := telemetry.StartSpan(ctx, "ScheduleRepository.DueSchedules")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT `+scheduleColumns+` FROM scheduled_commands
		WHERE active = true AND earliest_at <= $1
		ORDER BY earliest_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScheduledCommand
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateSchedule persists a fired repeat (repeats_fired, earliest_at
// advanced to the next occurrence) or its retirement (active=false once
// max_repeats is reached).
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, sched *domain.ScheduledCommand) error {
	ctx, span := telemetry.StartSpan(ctx, "ScheduleRepository.UpdateSchedule")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		UPDATE scheduled_commands SET
			earliest_at = $1, repeats_fired = $2, active = $3
		WHERE id = $4
	`, sched.EarliestAt, sched.RepeatsFired, sched.Active, sched.ID)
	if err != nil {
		return classifyWriteErr(err)
	}
	return nil
}
