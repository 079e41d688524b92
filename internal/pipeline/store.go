package pipeline

import (
	"context"

	"fleettrack/internal/domain"
)

// FrameResult is everything one processed frame produces, committed
// atomically so a device's accumulators never drift from its positions and
// events (spec.md §4.4 step 6, §5 "one transaction per summary update").
type FrameResult struct {
	Position *domain.Position
	Events   []*domain.Event
	Device   *domain.Device // carries the updated last_position/last_seen/status/accumulators
}

// Store is the narrow persistence facade the pipeline needs. Implemented
// by internal/repository.
type Store interface {
	// PreviousPosition returns the device's last recorded position, if
	// any. Used as the cache-miss fallback for step 2.
	PreviousPosition(ctx context.Context, deviceID string) (*domain.Position, bool, error)
	// CommitFrame persists the position, its derived events, and the
	// updated device row in one transaction.
	CommitFrame(ctx context.Context, result *FrameResult) error
}
