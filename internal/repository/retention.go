package repository

import (
	"context"
	"time"

	"fleettrack/pkg/logger"
)

// compactor is the narrow delete-before-cutoff op both position and event
// storage expose.
type compactor interface {
	CompactOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob periodically deletes positions and events older than a
// fixed retention window (spec.md §4.9: "Bulk compaction jobs: delete
// positions/events older than retention N days"), on the same
// ticker-driven cooperative-timer shape as internal/events.OnlineOfflineSweeper.
type RetentionJob struct {
	interval  time.Duration
	retention time.Duration

	positions compactor
	events    compactor
}

// NewRetentionJob builds a RetentionJob. A zero interval defaults to once
// a day; a zero retention defaults to 30 days.
func NewRetentionJob(interval, retention time.Duration, positions, events compactor) *RetentionJob {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &RetentionJob{interval: interval, retention: retention, positions: positions, events: events}
}

// Run blocks, compacting on every tick until ctx is cancelled.
func (j *RetentionJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *RetentionJob) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(-j.retention)

	if n, err := j.positions.CompactOlderThan(ctx, cutoff); err != nil {
		logger.Log.Error("retention: compact positions failed", "error", err)
	} else if n > 0 {
		logger.Log.Info("retention: compacted positions", "deleted", n, "cutoff", cutoff)
	}

	if n, err := j.events.CompactOlderThan(ctx, cutoff); err != nil {
		logger.Log.Error("retention: compact events failed", "error", err)
	} else if n > 0 {
		logger.Log.Info("retention: compacted events", "deleted", n, "cutoff", cutoff)
	}
}
