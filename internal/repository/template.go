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

// TemplateRepository is the Postgres-backed command.TemplateStore.
type TemplateRepository struct {
	db database.DB
}

// NewTemplateRepository builds a TemplateRepository.
func NewTemplateRepository(db database.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `id, name, type, priority, params, max_retries, channel, usage_count`

func scanTemplate(row pgx.Row) (*domain.CommandTemplate, error) {
	var t domain.CommandTemplate
	var params []byte
	err := row.Scan(&t.ID, &t.Name, &t.Type, &t.Priority, &params, &t.MaxRetries, &t.Channel, &t.UsageCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("scan command template: %w", err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &t.Params); err != nil {
			return nil, fmt.Errorf("unmarshal template params: %w", err)
		}
	}
	return &t, nil
}

// CreateTemplate persists a reusable command shape.
func (r *TemplateRepository) CreateTemplate(ctx context.Context, tmpl *domain.CommandTemplate) error {
	ctx, span := telemetry.StartSpan(ctx, "TemplateRepository.CreateTemplate")
	defer span.End()

	params, err := json.Marshal(tmpl.Params)
	if err != nil {
		return fmt.Errorf("marshal template params: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO command_templates (id, name, type, priority, params, max_retries, channel, usage_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
	`, tmpl.ID, tmpl.Name, string(tmpl.Type), tmpl.Priority, params, tmpl.MaxRetries, tmpl.Channel)
	if err != nil {
		return classifyWriteErr(err)
	}
	return nil
}

// GetTemplate looks a template up by ID.
func (r *TemplateRepository) GetTemplate(ctx context.Context, id string) (*domain.CommandTemplate, error) {
	ctx, span := telemetry.StartSpan(ctx, "TemplateRepository.GetTemplate")
	defer span.End()

	row := r.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM command_templates WHERE id = $1`, id)
	return scanTemplate(row)
}

// ListTemplates returns every template.
func (r *TemplateRepository) ListTemplates(ctx context.Context) ([]*domain.CommandTemplate, error) {
	ctx, span := telemetry.StartSpan(ctx, "TemplateRepository.ListTemplates")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT `+templateColumns+` FROM command_templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list command templates: %w", err)
	}
	defer rows.Close()

	var out []*domain.CommandTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// IncrementUsage bumps a template's usage counter on every command issued
// from it.
func (r *TemplateRepository) IncrementUsage(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "TemplateRepository.IncrementUsage")
	defer span.End()

	tag, err := r.db.Exec(ctx, `UPDATE command_templates SET usage_count = usage_count + 1 WHERE id = $1`, id)
	if err != nil {
		return classifyWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrTemplateNotFound
	}
	return nil
}
