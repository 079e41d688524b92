package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fleettrack/internal/domain"
	"fleettrack/pkg/apperror"
	"fleettrack/pkg/database"
	"fleettrack/pkg/telemetry"
)

// DeviceRepository is the Postgres-backed DeviceStore: resolver lookups,
// dispatcher wire references, the online/offline sweeper's tracked-device
// scan, and the pipeline's per-frame summary update all read and write
// through this one narrow type (spec.md §4.9's "update_device_summary").
type DeviceRepository struct {
	db database.DB
}

// NewDeviceRepository builds a DeviceRepository over an existing pool.
func NewDeviceRepository(db database.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

const deviceColumns = `
	id, identifier, name, protocol, status, speed_limit_kmh, attributes,
	last_position_id, last_seen_at, total_distance_m, engine_seconds,
	motion, overspeed, group_id, expires_at, created_at, updated_at
`

func scanDevice(row pgx.Row) (*domain.Device, error) {
	var d domain.Device
	var speedLimitKmh *float64
	var attrs []byte
	var groupID *string
	var lastPositionID *string

	err := row.Scan(
		&d.ID, &d.UniqueID, &d.Name, &d.Protocol, &d.Status, &speedLimitKmh, &attrs,
		&lastPositionID, &d.LastSeen, &d.TotalDistanceM, &d.EngineSeconds,
		&d.Motion, &d.Overspeed, &groupID, &d.ExpiresAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("scan device: %w", err)
	}

	if speedLimitKmh != nil {
		d.SpeedLimitKnots = *speedLimitKmh * domain.KnotsPerKmh
	}
	if groupID != nil {
		d.GroupID = *groupID
	}
	if lastPositionID != nil {
		d.LastPositionID = *lastPositionID
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &d.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal device attributes: %w", err)
		}
	}
	return &d, nil
}

// GetByUniqueID looks a device up by its protocol-reported identifier.
// Satisfies internal/resolver.DeviceStore.
func (r *DeviceRepository) GetByUniqueID(ctx context.Context, uniqueID string) (*domain.Device, error) {
	ctx, span := telemetry.StartSpan(ctx, "DeviceRepository.GetByUniqueID")
	defer span.End()

	row := r.db.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE identifier = $1`, uniqueID)
	return scanDevice(row)
}

// GetByID looks a device up by its internal ID.
func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	ctx, span := telemetry.StartSpan(ctx, "DeviceRepository.GetByID")
	defer span.End()

	row := r.db.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
	return scanDevice(row)
}

// Create inserts a newly registered device.
func (r *DeviceRepository) Create(ctx context.Context, d *domain.Device) error {
	ctx, span := telemetry.StartSpan(ctx, "DeviceRepository.Create")
	defer span.End()

	attrs, err := json.Marshal(d.Attributes)
	if err != nil {
		return fmt.Errorf("marshal device attributes: %w", err)
	}

	var speedLimitKmh *float64
	if d.SpeedLimitKnots > 0 {
		kmh := d.SpeedLimitKnots / domain.KnotsPerKmh
		speedLimitKmh = &kmh
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO devices (id, identifier, name, protocol, status, speed_limit_kmh, attributes, group_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.UniqueID, d.Name, d.Protocol, d.Status, speedLimitKmh, attrs, nullable(d.GroupID), d.ExpiresAt)
	if err != nil {
		return classifyWriteErr(err)
	}
	return nil
}

// ListTracked returns every device the online/offline sweeper should
// consider. Satisfies internal/events.Store.
func (r *DeviceRepository) ListTracked(ctx context.Context) ([]*domain.Device, error) {
	ctx, span := telemetry.StartSpan(ctx, "DeviceRepository.ListTracked")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT `+deviceColumns+` FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("list tracked devices: %w", err)
	}
	defer rows.Close()

	var out []*domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a device's connectivity status without
// touching its position-derived accumulators. Satisfies
// internal/events.Store (the online/offline sweeper).
func (r *DeviceRepository) UpdateStatus(ctx context.Context, deviceID string, status domain.DeviceStatus) error {
	ctx, span := telemetry.StartSpan(ctx, "DeviceRepository.UpdateStatus")
	defer span.End()

	tag, err := r.db.Exec(ctx, `UPDATE devices SET status = $1, updated_at = now() WHERE id = $2`, status, deviceID)
	if err != nil {
		return classifyWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrDeviceNotFound
	}
	return nil
}

// DeviceRef resolves a device's (unique_id, protocol) for the command
// dispatcher's wire encode+send step. Satisfies internal/command.Store.
func (r *DeviceRepository) DeviceRef(ctx context.Context, deviceID string) (string, string, error) {
	ctx, span := telemetry.StartSpan(ctx, "DeviceRepository.DeviceRef")
	defer span.End()

	var uniqueID, protocol string
	err := r.db.QueryRow(ctx, `SELECT identifier, protocol FROM devices WHERE id = $1`, deviceID).Scan(&uniqueID, &protocol)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", apperror.ErrDeviceNotFound
		}
		return "", "", fmt.Errorf("device ref: %w", err)
	}
	return uniqueID, protocol, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
