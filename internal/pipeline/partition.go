package pipeline

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"fleettrack/internal/domain"
	"fleettrack/internal/events"
	"fleettrack/internal/geofence"
	"fleettrack/internal/resolver"
	"fleettrack/pkg/apperror"
	"fleettrack/pkg/cache"
	"fleettrack/pkg/config"
	"fleettrack/pkg/logger"
)

// partition is one single-consumer shard: everything arriving on input is
// processed strictly in order, giving per-device total order as long as
// every frame for a given device hashes to the same partition.
type partition struct {
	input  chan job
	worker *worker
}

func newPartition(buffer int, w *worker) *partition {
	return &partition{
		input:  make(chan job, buffer),
		worker: w,
	}
}

// run processes the partition's jobs in arrival order until ctx is
// cancelled or the channel is closed; jobs still buffered when ctx is
// cancelled are not processed. A decode or
// validation failure never stops the loop (spec.md §4.4 "never poison the
// partition").
func (p *partition) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.input:
			if !ok {
				return
			}
			p.worker.process(ctx, j)
		}
	}
}

// worker holds every collaborator a frame needs to become a persisted
// position, accumulator update, and set of derived events.
type worker struct {
	resolver   *resolver.Resolver
	geoIndex   *geofence.Index
	engine     *events.Engine
	store      Store
	posCache   *cache.SnapshotCache
	publisher  Publisher
	retry      config.RetryConfig
	deadLetter func(reason string, j job, err error)
}

func (w *worker) process(ctx context.Context, j job) {
	frame := j.frame

	// Step 1: validate and canonicalize. An invalid fix is still worth
	// resolving (so an unregistered tracker still gets its "observed"
	// bookkeeping), but it never reaches distance/geofence/event logic.
	pos := frame.ToPosition()

	resolution, err := w.resolver.Resolve(ctx, frame.SourceID, j.protocolName, string(frame.Raw), frame.Attributes)
	if err != nil {
		logger.Log.Warn("frame dropped: resolver error", "source_id", frame.SourceID, "error", err)
		return
	}

	if resolution.IsUnknown {
		// The resolver already recorded the observation; there is no
		// registered device to accumulate distance/events against.
		return
	}

	dev := resolution.Device
	pos.DeviceID = dev.ID

	if !pos.Valid {
		logger.Log.Warn("frame dropped: invalid fix", "device_id", dev.ID)
		return
	}

	prev, err := w.previousPosition(ctx, dev.ID)
	if err != nil {
		logger.Log.Warn("failed to fetch previous position, proceeding without it",
			"device_id", dev.ID, "error", err)
	}

	pos.ID = uuid.New().String()

	// Step 3: distance & time accumulators.
	updated := *dev
	if prev != nil && prev.Valid {
		distance := geofence.HaversineMeters(
			domain.Point{Lat: prev.Latitude, Lon: prev.Longitude},
			domain.Point{Lat: pos.Latitude, Lon: pos.Longitude},
		)
		updated.TotalDistanceM += distance

		if prev.Ignition() && pos.Ignition() {
			updated.EngineSeconds += pos.DeviceTime.Sub(prev.DeviceTime).Seconds()
		}
	}
	updated.LastSeen = pos.ServerTime
	updated.LastPositionID = pos.ID
	updated.Status = domain.DeviceStatusOnline
	updated.Motion = pos.SpeedKnots > 0

	// Step 4: geofence evaluation.
	var deltas []geofence.Transition
	if snap := w.geoIndex.Snapshot(); snap != nil {
		curMembership := snap.Membership(domain.Point{Lat: pos.Latitude, Lon: pos.Longitude})
		var prevMembership map[string]bool
		if prev != nil && prev.Valid {
			prevMembership = snap.Membership(domain.Point{Lat: prev.Latitude, Lon: prev.Longitude})
		}
		deltas = geofence.Diff(prevMembership, curMembership)
	}

	// Step 5: event derivation.
	derived := w.engine.Derive(prev, pos, &updated, deltas)
	if updated.SpeedLimitKnots > 0 {
		for _, ev := range derived {
			if ev.Type == domain.EventDeviceOverspeed {
				updated.Overspeed = true
			}
		}
	}

	result := &FrameResult{Position: pos, Events: derived, Device: &updated}

	// Step 6: persist, with bounded exponential backoff on retryable
	// failures. A frame that still fails after the cap is spilled to the
	// dead-letter log rather than poisoning the partition.
	if err := w.commitWithRetry(ctx, result); err != nil {
		w.deadLetter("persist failed", j, err)
		return
	}

	if w.posCache != nil {
		cached := &cache.CachedPosition{
			DeviceID:   dev.ID,
			Latitude:   pos.Latitude,
			Longitude:  pos.Longitude,
			SpeedKnots: pos.SpeedKnots,
			Course:     pos.Course,
			FixTime:    pos.FixTime,
			Ignition:   pos.Ignition(),
		}
		if err := w.posCache.SetPosition(ctx, cached, 0); err != nil {
			logger.Log.Warn("failed to refresh position cache", "device_id", dev.ID, "error", err)
		}
	}

	// Step 7: fan out.
	w.publish(ctx, result)
}

func (w *worker) previousPosition(ctx context.Context, deviceID string) (*domain.Position, error) {
	if w.posCache != nil {
		if cached, found, err := w.posCache.GetPosition(ctx, deviceID); err == nil && found {
			return &domain.Position{
				DeviceID:   deviceID,
				Latitude:   cached.Latitude,
				Longitude:  cached.Longitude,
				SpeedKnots: cached.SpeedKnots,
				Course:     cached.Course,
				FixTime:    cached.FixTime,
				DeviceTime: cached.FixTime,
				Valid:      true,
				Attributes: map[string]any{"ignition": cached.Ignition},
			}, nil
		}
	}

	pos, found, err := w.store.PreviousPosition(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return pos, nil
}

// commitWithRetry wraps Store.CommitFrame with the exponential backoff
// policy from config.RetryConfig, distinguishing retryable store errors
// (apperror.CodeRetryableStore) from fatal ones that should fail fast.
func (w *worker) commitWithRetry(ctx context.Context, result *FrameResult) error {
	b := backoff.NewExponentialBackOff()
	if w.retry.InitialBackoff > 0 {
		b.InitialInterval = w.retry.InitialBackoff
	}
	if w.retry.MaxBackoff > 0 {
		b.MaxInterval = w.retry.MaxBackoff
	}
	if w.retry.BackoffMultiplier > 0 {
		b.Multiplier = w.retry.BackoffMultiplier
	}

	maxTries := uint(w.retry.MaxAttempts)
	if maxTries == 0 {
		maxTries = 5
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		commitErr := w.store.CommitFrame(ctx, result)
		if commitErr == nil {
			return struct{}{}, nil
		}

		var appErr *apperror.Error
		if errors.As(commitErr, &appErr) && appErr.Code == apperror.CodeFatalStore {
			return struct{}{}, backoff.Permanent(commitErr)
		}
		return struct{}{}, commitErr
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxTries))

	return err
}

func (w *worker) publish(ctx context.Context, result *FrameResult) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishPosition(ctx, result.Position, result.Device); err != nil {
		logger.Log.Warn("failed to publish position fan-out", "device_id", result.Device.ID, "error", err)
	}
	for _, ev := range result.Events {
		if err := w.publisher.PublishEvent(ctx, ev); err != nil {
			logger.Log.Warn("failed to publish event", "device_id", result.Device.ID, "event_type", ev.Type, "error", err)
		}
	}
}
