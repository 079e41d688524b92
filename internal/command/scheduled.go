package command

import (
	"context"
	"time"

	"fleettrack/internal/domain"
	"fleettrack/pkg/logger"
)

// Scheduler fires due ScheduledCommands, enqueueing a fresh Command on each
// fire and re-arming the schedule when repeat_interval/max_repeats allow
// (spec.md §4.7's external scheduled-command API).
type Scheduler struct {
	store     ScheduleStore
	templates TemplateStore
	queue     *Queue
	interval  time.Duration
}

// NewScheduler builds a Scheduler. sweepInterval <= 0 defaults to 30s.
func NewScheduler(store ScheduleStore, templates TemplateStore, queue *Queue, sweepInterval time.Duration) *Scheduler {
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	return &Scheduler{store: store, templates: templates, queue: queue, interval: sweepInterval}
}

// Store exposes the underlying ScheduleStore so the Command API's
// ScheduleCommand RPC can create a schedule without duplicating this
// package's store wiring.
func (s *Scheduler) Store() ScheduleStore {
	return s.store
}

// Run blocks, checking for due schedules on every tick until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				logger.Log.Error("scheduled command sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce fires every schedule whose earliest_at has arrived.
func (s *Scheduler) SweepOnce(ctx context.Context) error {
	due, err := s.store.DueSchedules(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, sched := range due {
		s.fire(ctx, sched)
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, sched *domain.ScheduledCommand) {
	tmpl, err := s.templates.GetTemplate(ctx, sched.TemplateID)
	if err != nil {
		logger.Log.Warn("scheduler: template lookup failed", "schedule_id", sched.ID, "error", err)
		return
	}

	params := mergeParams(tmpl.Params, sched.Overrides)
	if _, err := s.queue.Enqueue(ctx, EnqueueInput{
		DeviceID:   sched.DeviceID,
		Type:       tmpl.Type,
		Priority:   tmpl.Priority,
		Params:     params,
		MaxRetries: tmpl.MaxRetries,
	}); err != nil {
		logger.Log.Warn("scheduler: failed to enqueue fired command", "schedule_id", sched.ID, "error", err)
		return
	}
	if err := s.templates.IncrementUsage(ctx, tmpl.ID); err != nil {
		logger.Log.Warn("scheduler: failed to bump template usage", "schedule_id", sched.ID, "error", err)
	}

	sched.RepeatsFired++
	if sched.RepeatInterval > 0 && (sched.MaxRepeats <= 0 || sched.RepeatsFired < sched.MaxRepeats) {
		sched.EarliestAt = time.Now().Add(sched.RepeatInterval)
	} else {
		sched.Active = false
	}

	if err := s.store.UpdateSchedule(ctx, sched); err != nil {
		logger.Log.Warn("scheduler: failed to persist schedule advance", "schedule_id", sched.ID, "error", err)
	}
}
