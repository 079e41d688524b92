package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"fleettrack/internal/domain"
)

type fakeScheduleStore struct {
	mu        sync.Mutex
	schedules map[string]*domain.ScheduledCommand
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{schedules: make(map[string]*domain.ScheduledCommand)}
}

func (s *fakeScheduleStore) CreateSchedule(_ context.Context, sched *domain.ScheduledCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = sched
	return nil
}

func (s *fakeScheduleStore) DueSchedules(_ context.Context, now time.Time) ([]*domain.ScheduledCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ScheduledCommand
	for _, sched := range s.schedules {
		if sched.Active && !sched.EarliestAt.After(now) {
			out = append(out, sched)
		}
	}
	return out, nil
}

func (s *fakeScheduleStore) UpdateSchedule(_ context.Context, sched *domain.ScheduledCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = sched
	return nil
}

func TestScheduler_FiresDueScheduleAndRearms(t *testing.T) {
	store := newFakeCommandStore()
	store.devices["d1"] = [2]string{"907126119", "suntech"}
	templateStore := newFakeTemplateStore()
	templateStore.templates["tmpl-1"] = &domain.CommandTemplate{
		ID: "tmpl-1", Type: domain.CommandRequestStatus, Priority: domain.PriorityNormal,
	}
	scheduleStore := newFakeScheduleStore()
	scheduleStore.schedules["s1"] = &domain.ScheduledCommand{
		ID:             "s1",
		DeviceID:       "d1",
		TemplateID:     "tmpl-1",
		EarliestAt:     time.Now().Add(-time.Minute),
		RepeatInterval: time.Hour,
		MaxRepeats:     3,
		Active:         true,
	}

	queue := NewQueue(store, nil)
	scheduler := NewScheduler(scheduleStore, templateStore, queue, time.Second)

	if err := scheduler.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	sched := scheduleStore.schedules["s1"]
	if sched.RepeatsFired != 1 {
		t.Errorf("expected one repeat fired, got %d", sched.RepeatsFired)
	}
	if !sched.Active {
		t.Error("expected schedule to remain active under max_repeats")
	}
	if sched.EarliestAt.Before(time.Now().Add(50 * time.Minute)) {
		t.Error("expected earliest_at to advance by repeat_interval")
	}

	cmds, _ := store.ListCommands(context.Background(), "d1")
	if len(cmds) != 1 {
		t.Fatalf("expected one enqueued command, got %d", len(cmds))
	}
}

func TestScheduler_StopsAfterMaxRepeats(t *testing.T) {
	store := newFakeCommandStore()
	store.devices["d1"] = [2]string{"907126119", "suntech"}
	templateStore := newFakeTemplateStore()
	templateStore.templates["tmpl-1"] = &domain.CommandTemplate{
		ID: "tmpl-1", Type: domain.CommandRequestStatus, Priority: domain.PriorityNormal,
	}
	scheduleStore := newFakeScheduleStore()
	scheduleStore.schedules["s1"] = &domain.ScheduledCommand{
		ID:             "s1",
		DeviceID:       "d1",
		TemplateID:     "tmpl-1",
		EarliestAt:     time.Now().Add(-time.Minute),
		RepeatInterval: time.Hour,
		MaxRepeats:     1,
		RepeatsFired:   0,
		Active:         true,
	}

	queue := NewQueue(store, nil)
	scheduler := NewScheduler(scheduleStore, templateStore, queue, time.Second)

	if err := scheduler.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if scheduleStore.schedules["s1"].Active {
		t.Error("expected schedule to deactivate once max_repeats is reached")
	}
}
