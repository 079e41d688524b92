package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"fleettrack/internal/domain"
	"fleettrack/pkg/database"
	"fleettrack/pkg/telemetry"
)

// UnknownDeviceRepository is the Postgres-backed UnknownDeviceStore: one
// row per (identifier, protocol), upserted on every frame from an
// unregistered tracker (spec.md §4.3).
type UnknownDeviceRepository struct {
	db database.DB
}

// NewUnknownDeviceRepository builds an UnknownDeviceRepository.
func NewUnknownDeviceRepository(db database.DB) *UnknownDeviceRepository {
	return &UnknownDeviceRepository{db: db}
}

// Upsert records a sighting of uniqueID on protocol, creating the
// placeholder row on first contact and bumping its counters and last-seen
// detail on every subsequent one. Satisfies internal/resolver.UnknownDeviceStore.
func (r *UnknownDeviceRepository) Upsert(ctx context.Context, uniqueID, protocol, rawFrame string, parsed map[string]any) (*domain.UnknownDevice, error) {
	ctx, span := telemetry.StartSpan(ctx, "UnknownDeviceRepository.Upsert")
	defer span.End()

	parsedJSON, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("marshal parsed frame: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO unknown_devices (id, identifier, protocol, last_raw_frame, last_parsed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identifier, protocol) DO UPDATE SET
			last_seen_at = now(),
			connection_count = unknown_devices.connection_count + 1,
			last_raw_frame = EXCLUDED.last_raw_frame,
			last_parsed = EXCLUDED.last_parsed
		RETURNING id, identifier, protocol, listener_port, first_seen_at, last_seen_at,
			connection_count, last_raw_frame, last_parsed, registered, adopted_device_id
	`, uuid.New().String(), uniqueID, protocol, rawFrame, parsedJSON)

	var ud domain.UnknownDevice
	var lastParsed []byte
	var adoptedDeviceID *string
	if err := row.Scan(
		&ud.ID, &ud.UniqueID, &ud.Protocol, &ud.ListenerPort, &ud.FirstSeen, &ud.LastSeen,
		&ud.ConnectionCount, &ud.LastRawFrame, &lastParsed, &ud.Registered, &adoptedDeviceID,
	); err != nil {
		return nil, classifyWriteErr(err)
	}

	if adoptedDeviceID != nil {
		ud.AdoptedDeviceID = *adoptedDeviceID
	}
	if len(lastParsed) > 0 {
		if err := json.Unmarshal(lastParsed, &ud.LastParsed); err != nil {
			return nil, fmt.Errorf("unmarshal parsed frame: %w", err)
		}
	}
	return &ud, nil
}

// Adopt marks an unknown device as registered against a newly created
// device record, so future sightings resolve to the device directly.
func (r *UnknownDeviceRepository) Adopt(ctx context.Context, unknownID, deviceID string) error {
	ctx, span := telemetry.StartSpan(ctx, "UnknownDeviceRepository.Adopt")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		UPDATE unknown_devices SET registered = true, adopted_device_id = $1 WHERE id = $2
	`, deviceID, unknownID)
	if err != nil {
		return classifyWriteErr(err)
	}
	return nil
}
