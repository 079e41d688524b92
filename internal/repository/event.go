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

// EventRepository is the Postgres-backed read side of the events table;
// writes happen inside PositionRepository.CommitFrame's transaction, not
// here, so a position and its derived events never diverge.
type EventRepository struct {
	db database.DB
}

// NewEventRepository builds an EventRepository.
func NewEventRepository(db database.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, type, event_time, device_id, position_id, geofence_id, attributes`

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	var attrs []byte
	var positionID, geofenceID *string
	err := row.Scan(&e.ID, &e.Type, &e.EventTime, &e.DeviceID, &positionID, &geofenceID, &attrs)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if positionID != nil {
		e.PositionID = *positionID
	}
	if geofenceID != nil {
		e.GeofenceID = *geofenceID
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal event attributes: %w", err)
		}
	}
	return &e, nil
}

// ListByDevice returns a device's events, most recent first, for the
// operator history API.
func (r *EventRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "EventRepository.ListByDevice")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT `+eventColumns+` FROM events WHERE device_id = $1 ORDER BY event_time DESC LIMIT $2
	`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CompactOlderThan deletes events older than cutoff. Satisfies the
// persistence facade's retention job (spec.md §4.9 last bullet).
func (r *EventRepository) CompactOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "EventRepository.CompactOlderThan")
	defer span.End()

	tag, err := r.db.Exec(ctx, `DELETE FROM events WHERE event_time < $1`, cutoff)
	if err != nil {
		return 0, classifyWriteErr(err)
	}
	return tag.RowsAffected(), nil
}
