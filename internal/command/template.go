package command

import (
	"context"

	"fleettrack/internal/domain"
)

// Templates exposes the template half of spec.md §4.7's external API:
// recording a reusable command shape and composing one into a concrete
// enqueue request, bumping the template's usage counter on every use.
type Templates struct {
	store TemplateStore
	queue *Queue
}

// NewTemplates builds a Templates helper bound to a Queue so "use template"
// can enqueue directly.
func NewTemplates(store TemplateStore, queue *Queue) *Templates {
	return &Templates{store: store, queue: queue}
}

// Create persists a new template.
func (t *Templates) Create(ctx context.Context, tmpl *domain.CommandTemplate) error {
	return t.store.CreateTemplate(ctx, tmpl)
}

// List returns every known template.
func (t *Templates) List(ctx context.Context) ([]*domain.CommandTemplate, error) {
	return t.store.ListTemplates(ctx)
}

// UseInput describes one "use template" request: the template to apply,
// the target device, and any per-call parameter overrides layered on top
// of the template's own params.
type UseInput struct {
	TemplateID string
	DeviceID   string
	IssuedBy   string
	Overrides  map[string]any
}

// Use composes a Command from a template plus overrides, enqueues it, and
// increments the template's usage counter.
func (t *Templates) Use(ctx context.Context, in UseInput) (*domain.Command, error) {
	tmpl, err := t.store.GetTemplate(ctx, in.TemplateID)
	if err != nil {
		return nil, err
	}

	params := mergeParams(tmpl.Params, in.Overrides)

	cmd, err := t.queue.Enqueue(ctx, EnqueueInput{
		DeviceID:   in.DeviceID,
		IssuedBy:   in.IssuedBy,
		Type:       tmpl.Type,
		Priority:   tmpl.Priority,
		Params:     params,
		MaxRetries: tmpl.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	if err := t.store.IncrementUsage(ctx, tmpl.ID); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// mergeParams layers overrides on top of a template's base params without
// mutating either input map.
func mergeParams(base, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
