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

// GeofenceRepository is the Postgres-backed geofence.Store, plus the CRUD
// the operator API needs around it (spec.md §4.9's "list_active_geofences").
type GeofenceRepository struct {
	db database.DB
}

// NewGeofenceRepository builds a GeofenceRepository.
func NewGeofenceRepository(db database.DB) *GeofenceRepository {
	return &GeofenceRepository{db: db}
}

const geofenceColumns = `
	id, name, description, geometry, polygon, center_lat, center_lon,
	radius_m, polyline, buffer_m, disabled, calendar_id, attributes, version
`

func scanGeofence(row pgx.Row) (*domain.Geofence, error) {
	var g domain.Geofence
	var polygon, polyline, attrs []byte
	var centerLat, centerLon, radiusM *float64
	var calendarID *string

	err := row.Scan(
		&g.ID, &g.Name, &g.Description, &g.Geometry, &polygon, &centerLat, &centerLon,
		&radiusM, &polyline, &g.BufferM, &g.Disabled, &calendarID, &attrs, &g.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.ErrGeofenceNotFound
		}
		return nil, fmt.Errorf("scan geofence: %w", err)
	}

	if len(polygon) > 0 {
		if err := json.Unmarshal(polygon, &g.Polygon); err != nil {
			return nil, fmt.Errorf("unmarshal polygon: %w", err)
		}
	}
	if len(polyline) > 0 {
		if err := json.Unmarshal(polyline, &g.Polyline); err != nil {
			return nil, fmt.Errorf("unmarshal polyline: %w", err)
		}
	}
	if centerLat != nil {
		g.Center.Lat = *centerLat
	}
	if centerLon != nil {
		g.Center.Lon = *centerLon
	}
	if radiusM != nil {
		g.RadiusM = *radiusM
	}
	if calendarID != nil {
		g.CalendarID = *calendarID
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &g.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal geofence attributes: %w", err)
		}
	}
	return &g, nil
}

// Versions returns every enabled geofence's (name, version) pair.
// Satisfies internal/geofence.Store.
func (r *GeofenceRepository) Versions(ctx context.Context) (map[string]int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "GeofenceRepository.Versions")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT name, version FROM geofences WHERE disabled = false`)
	if err != nil {
		return nil, fmt.Errorf("list geofence versions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var version int64
		if err := rows.Scan(&name, &version); err != nil {
			return nil, err
		}
		out[name] = version
	}
	return out, rows.Err()
}

// ListEnabled returns every enabled geofence. Satisfies internal/geofence.Store.
func (r *GeofenceRepository) ListEnabled(ctx context.Context) ([]*domain.Geofence, error) {
	ctx, span := telemetry.StartSpan(ctx, "GeofenceRepository.ListEnabled")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT `+geofenceColumns+` FROM geofences WHERE disabled = false`)
	if err != nil {
		return nil, fmt.Errorf("list enabled geofences: %w", err)
	}
	defer rows.Close()

	var out []*domain.Geofence
	for rows.Next() {
		g, err := scanGeofence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Get looks a geofence up by ID.
func (r *GeofenceRepository) Get(ctx context.Context, id string) (*domain.Geofence, error) {
	ctx, span := telemetry.StartSpan(ctx, "GeofenceRepository.Get")
	defer span.End()

	row := r.db.QueryRow(ctx, `SELECT `+geofenceColumns+` FROM geofences WHERE id = $1`, id)
	return scanGeofence(row)
}

// List returns every geofence, enabled or not.
func (r *GeofenceRepository) List(ctx context.Context) ([]*domain.Geofence, error) {
	ctx, span := telemetry.StartSpan(ctx, "GeofenceRepository.List")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT `+geofenceColumns+` FROM geofences ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list geofences: %w", err)
	}
	defer rows.Close()

	var out []*domain.Geofence
	for rows.Next() {
		g, err := scanGeofence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Create inserts a new geofence at version 1.
func (r *GeofenceRepository) Create(ctx context.Context, g *domain.Geofence) error {
	ctx, span := telemetry.StartSpan(ctx, "GeofenceRepository.Create")
	defer span.End()

	if err := g.Validate(); err != nil {
		return apperror.Wrap(err, apperror.CodeInvalidArgument, "invalid geofence geometry")
	}

	polygon, polyline, attrs, err := marshalGeofenceBlobs(g)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO geofences (
			id, name, description, geometry, polygon, center_lat, center_lon,
			radius_m, polyline, buffer_m, disabled, calendar_id, attributes, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
	`, g.ID, g.Name, g.Description, string(g.Geometry), polygon,
		centerPtr(g.Center.Lat, g.Geometry), centerPtr(g.Center.Lon, g.Geometry),
		radiusPtr(g.RadiusM, g.Geometry), polyline, g.BufferM, g.Disabled, nullable(g.CalendarID), attrs)
	if err != nil {
		return classifyWriteErr(err)
	}
	g.Version = 1
	return nil
}

// Update overwrites a geofence's fields and bumps its version, so the
// loader's snapshot cache invalidates on the next rebuild.
func (r *GeofenceRepository) Update(ctx context.Context, g *domain.Geofence) error {
	ctx, span := telemetry.StartSpan(ctx, "GeofenceRepository.Update")
	defer span.End()

	if err := g.Validate(); err != nil {
		return apperror.Wrap(err, apperror.CodeInvalidArgument, "invalid geofence geometry")
	}

	polygon, polyline, attrs, err := marshalGeofenceBlobs(g)
	if err != nil {
		return err
	}

	row := r.db.QueryRow(ctx, `
		UPDATE geofences SET
			name = $1, description = $2, geometry = $3, polygon = $4,
			center_lat = $5, center_lon = $6, radius_m = $7, polyline = $8,
			buffer_m = $9, disabled = $10, calendar_id = $11, attributes = $12,
			version = version + 1, updated_at = now()
		WHERE id = $13
		RETURNING version
	`, g.Name, g.Description, string(g.Geometry), polygon,
		centerPtr(g.Center.Lat, g.Geometry), centerPtr(g.Center.Lon, g.Geometry),
		radiusPtr(g.RadiusM, g.Geometry), polyline, g.BufferM, g.Disabled, nullable(g.CalendarID), attrs, g.ID)

	if err := row.Scan(&g.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.ErrGeofenceNotFound
		}
		return classifyWriteErr(err)
	}
	return nil
}

// Delete removes a geofence outright.
func (r *GeofenceRepository) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "GeofenceRepository.Delete")
	defer span.End()

	tag, err := r.db.Exec(ctx, `DELETE FROM geofences WHERE id = $1`, id)
	if err != nil {
		return classifyWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrGeofenceNotFound
	}
	return nil
}

func marshalGeofenceBlobs(g *domain.Geofence) (polygon, polyline, attrs []byte, err error) {
	polygon, err = json.Marshal(g.Polygon)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal polygon: %w", err)
	}
	polyline, err = json.Marshal(g.Polyline)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal polyline: %w", err)
	}
	attrs, err = json.Marshal(g.Attributes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal geofence attributes: %w", err)
	}
	return polygon, polyline, attrs, nil
}

func centerPtr(v float64, geometry domain.GeometryType) *float64 {
	if geometry != domain.GeometryCircle {
		return nil
	}
	return &v
}

func radiusPtr(v float64, geometry domain.GeometryType) *float64 {
	if geometry != domain.GeometryCircle {
		return nil
	}
	return &v
}
