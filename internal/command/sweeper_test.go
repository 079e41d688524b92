package command

import (
	"context"
	"testing"
	"time"

	"fleettrack/internal/domain"
	"fleettrack/pkg/config"
)

func TestTimeoutSweeper_TimesOutStaleSent(t *testing.T) {
	store := newFakeCommandStore()
	sentAt := time.Now().Add(-10 * time.Minute)
	cmd := &domain.Command{ID: "c1", Status: domain.CommandSent, SentAt: &sentAt}
	store.commands[cmd.ID] = cmd
	store.entries["e1"] = &domain.CommandQueueEntry{ID: "e1", CommandID: cmd.ID, Active: true}

	sweeper := NewTimeoutSweeper(store, config.CommandConfig{AckTimeout: 5 * time.Minute})
	if err := sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	got, _ := store.GetCommand(context.Background(), cmd.ID)
	if got.Status != domain.CommandTimeout {
		t.Errorf("expected TIMEOUT, got %s", got.Status)
	}
	if store.entries["e1"].Active {
		t.Error("expected queue entry deactivated after timeout")
	}
}

func TestTimeoutSweeper_RetriesBeforeTerminal(t *testing.T) {
	store := newFakeCommandStore()
	sentAt := time.Now().Add(-10 * time.Minute)
	cmd := &domain.Command{ID: "c1", Status: domain.CommandSent, SentAt: &sentAt, MaxRetries: 2}
	store.commands[cmd.ID] = cmd
	entry := &domain.CommandQueueEntry{ID: "e1", CommandID: cmd.ID, Active: true, Attempts: 1}
	store.entries["e1"] = entry

	sweeper := NewTimeoutSweeper(store, config.CommandConfig{AckTimeout: 5 * time.Minute})
	if err := sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	got, _ := store.GetCommand(context.Background(), cmd.ID)
	if got.Status != domain.CommandPending {
		t.Errorf("expected PENDING after an ack timeout with retries remaining, got %s", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("expected RetryCount to be incremented to 1, got %d", got.RetryCount)
	}
	if !entry.Active {
		t.Error("expected the queue entry to remain active while retries remain")
	}
	if entry.NextAttempt == nil || !entry.NextAttempt.After(time.Now()) {
		t.Error("expected a future NextAttempt to be scheduled for the retry")
	}
}

func TestTimeoutSweeper_LeavesRecentSentAlone(t *testing.T) {
	store := newFakeCommandStore()
	sentAt := time.Now()
	cmd := &domain.Command{ID: "c1", Status: domain.CommandSent, SentAt: &sentAt}
	store.commands[cmd.ID] = cmd

	sweeper := NewTimeoutSweeper(store, config.CommandConfig{AckTimeout: 5 * time.Minute})
	if err := sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	got, _ := store.GetCommand(context.Background(), cmd.ID)
	if got.Status != domain.CommandSent {
		t.Errorf("expected SENT to remain, got %s", got.Status)
	}
}
