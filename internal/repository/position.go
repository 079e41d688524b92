package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fleettrack/internal/domain"
	"fleettrack/internal/pipeline"
	"fleettrack/pkg/database"
	"fleettrack/pkg/telemetry"
)

// PositionRepository is the Postgres-backed pipeline.Store: the previous-
// position read the pipeline falls back to on a cache miss, and the
// single transactional commit that writes a position, its derived events,
// and the owning device's summary together (spec.md §4.9's
// "update_device_summary ... transactional").
type PositionRepository struct {
	db database.DB
}

// NewPositionRepository builds a PositionRepository.
func NewPositionRepository(db database.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// PreviousPosition returns a device's most recent fix, if any. Satisfies
// internal/pipeline.Store.
func (r *PositionRepository) PreviousPosition(ctx context.Context, deviceID string) (*domain.Position, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "PositionRepository.PreviousPosition")
	defer span.End()

	row := r.db.QueryRow(ctx, `
		SELECT id, device_id, protocol, server_time, device_time, fix_time, valid,
			latitude, longitude, altitude, speed_knots, course, accuracy, attributes
		FROM positions
		WHERE device_id = $1
		ORDER BY fix_time DESC
		LIMIT 1
	`, deviceID)

	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return pos, true, nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var attrs []byte
	err := row.Scan(
		&p.ID, &p.DeviceID, &p.Protocol, &p.ServerTime, &p.DeviceTime, &p.FixTime, &p.Valid,
		&p.Latitude, &p.Longitude, &p.Altitude, &p.SpeedKnots, &p.Course, &p.Accuracy, &attrs,
	)
	if err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal position attributes: %w", err)
		}
	}
	return &p, nil
}

// CommitFrame persists a processed position, its derived events, and the
// owning device's refreshed summary in one transaction. Satisfies
// internal/pipeline.Store. The position insert is idempotent on its
// logical key (spec.md R2): a re-ingested frame is a silent no-op rather
// than a duplicate row or an error.
func (r *PositionRepository) CommitFrame(ctx context.Context, result *pipeline.FrameResult) error {
	ctx, span := telemetry.StartSpan(ctx, "PositionRepository.CommitFrame")
	defer span.End()

	err := database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		posAttrs, err := json.Marshal(result.Position.Attributes)
		if err != nil {
			return fmt.Errorf("marshal position attributes: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO positions (
				id, device_id, protocol, server_time, device_time, fix_time, valid,
				latitude, longitude, altitude, speed_knots, course, accuracy, attributes, logical_key
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (logical_key) DO NOTHING
		`,
			result.Position.ID, result.Position.DeviceID, result.Position.Protocol,
			result.Position.ServerTime, result.Position.DeviceTime, result.Position.FixTime, result.Position.Valid,
			result.Position.Latitude, result.Position.Longitude, result.Position.Altitude,
			result.Position.SpeedKnots, result.Position.Course, result.Position.Accuracy,
			posAttrs, result.Position.LogicalKey(),
		)
		if err != nil {
			return err
		}

		for _, ev := range result.Events {
			evAttrs, err := json.Marshal(ev.Attributes)
			if err != nil {
				return fmt.Errorf("marshal event attributes: %w", err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO events (id, type, event_time, device_id, position_id, geofence_id, attributes)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, ev.ID, string(ev.Type), ev.EventTime, ev.DeviceID, nullable(ev.PositionID), nullable(ev.GeofenceID), evAttrs)
			if err != nil {
				return err
			}
		}

		dev := result.Device
		_, err = tx.Exec(ctx, `
			UPDATE devices SET
				status = $1, last_position_id = $2, last_seen_at = $3,
				total_distance_m = $4, engine_seconds = $5, motion = $6, overspeed = $7,
				updated_at = now()
			WHERE id = $8
		`, dev.Status, dev.LastPositionID, dev.LastSeen, dev.TotalDistanceM, dev.EngineSeconds, dev.Motion, dev.Overspeed, dev.ID)
		return err
	})
	if err != nil {
		return classifyWriteErr(err)
	}
	return nil
}

// CompactOlderThan deletes positions older than cutoff. Events that
// referenced them are kept; their position_id is set to NULL by the
// events.position_id ON DELETE SET NULL foreign key.
// Satisfies the persistence facade's retention job (spec.md §4.9 last bullet).
func (r *PositionRepository) CompactOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PositionRepository.CompactOlderThan")
	defer span.End()

	tag, err := r.db.Exec(ctx, `DELETE FROM positions WHERE fix_time < $1`, cutoff)
	if err != nil {
		return 0, classifyWriteErr(err)
	}
	return tag.RowsAffected(), nil
}
