package command

import (
	"context"
	"time"

	"fleettrack/internal/domain"
	"fleettrack/pkg/config"
	"fleettrack/pkg/logger"
)

// TimeoutSweeper scans SENT commands past T_ack and DELIVERED commands past
// T_exec, transitioning each to TIMEOUT and, while retries remain, back to
// PENDING (spec.md §4.7's "a timeout sweeper scans SENT commands older than
// 5 minutes").
type TimeoutSweeper struct {
	store Store
	cfg   config.CommandConfig
}

// NewTimeoutSweeper builds a sweeper.
func NewTimeoutSweeper(store Store, cfg config.CommandConfig) *TimeoutSweeper {
	return &TimeoutSweeper{store: store, cfg: cfg}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *TimeoutSweeper) Run(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				logger.Log.Error("command timeout sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce runs a single ack-timeout and exec-timeout pass.
func (s *TimeoutSweeper) SweepOnce(ctx context.Context) error {
	ackTimeout := s.cfg.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = 5 * time.Minute
	}
	execTimeout := s.cfg.ExecTimeout
	if execTimeout <= 0 {
		execTimeout = 10 * time.Minute
	}
	now := time.Now()

	sent, err := s.store.SentBefore(ctx, now.Add(-ackTimeout))
	if err != nil {
		return err
	}
	for _, cmd := range sent {
		s.timeout(ctx, cmd)
	}

	delivered, err := s.store.DeliveredBefore(ctx, now.Add(-execTimeout))
	if err != nil {
		return err
	}
	for _, cmd := range delivered {
		s.timeout(ctx, cmd)
	}
	return nil
}

// timeout drives an ack/exec timeout through TIMEOUT, then either back to
// PENDING with backoff (retries remain) or leaves it TIMEOUT as the
// terminal state — the same retry-then-terminal shape as the dispatcher's
// fail() (spec.md §7: "Command ack timeout … Retry until max_retries, else
// TIMEOUT").
func (s *TimeoutSweeper) timeout(ctx context.Context, cmd *domain.Command) {
	entry, err := s.store.GetQueueEntryByCommand(ctx, cmd.ID)
	if err != nil {
		logger.Log.Error("sweeper: queue entry lookup failed", "command_id", cmd.ID, "error", err)
		return
	}

	if err := cmd.Transition(domain.CommandTimeout); err != nil {
		logger.Log.Error("sweeper: unexpected transition rejection", "command_id", cmd.ID, "error", err)
		return
	}

	maxRetries := cmd.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.DefaultMaxRetry
	}

	if cmd.RetryCount < maxRetries {
		cmd.RetryCount++
		if err := cmd.Transition(domain.CommandPending); err != nil {
			logger.Log.Error("sweeper: unexpected transition rejection back to pending", "command_id", cmd.ID, "error", err)
			return
		}
		if err := s.store.UpdateCommand(ctx, cmd); err != nil {
			logger.Log.Error("sweeper: failed to persist retry transition", "command_id", cmd.ID, "error", err)
			return
		}

		backoff := RetryBackoff(cmd.RetryCount, s.cfg.MaxBackoff)
		next := time.Now().Add(backoff)
		entry.NextAttempt = &next
		if err := s.store.UpdateQueueEntry(ctx, entry); err != nil {
			logger.Log.Warn("sweeper: failed to persist retry backoff", "command_id", cmd.ID, "error", err)
		}
		return
	}

	if err := s.store.UpdateCommand(ctx, cmd); err != nil {
		logger.Log.Error("sweeper: failed to persist TIMEOUT transition", "command_id", cmd.ID, "error", err)
		return
	}
	if err := s.store.DeactivateQueueEntry(ctx, cmd.ID); err != nil {
		logger.Log.Warn("sweeper: failed to deactivate timed-out queue entry", "command_id", cmd.ID, "error", err)
	}
}
