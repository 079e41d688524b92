package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fleettrack/internal/domain"
	"fleettrack/pkg/logger"
)

// Store is the narrow device read/write the sweeper needs. Implemented by
// internal/repository.
type Store interface {
	ListTracked(ctx context.Context) ([]*domain.Device, error)
	UpdateStatus(ctx context.Context, deviceID string, status domain.DeviceStatus) error
}

// Publisher fans a derived event out to the Subscription Hub. Kept narrow
// (mirrors internal/resolver.Publisher) so this package does not import
// internal/hub.
type Publisher interface {
	PublishEvent(ctx context.Context, ev *domain.Event) error
}

// OnlineOfflineSweeper periodically walks every tracked device and flips its
// status based on staleness of its last frame, independent of the per-frame
// pipeline path (spec.md §4.6: "runs on a periodic timer in addition to the
// per-frame path").
type OnlineOfflineSweeper struct {
	interval      time.Duration
	onlineWindow  time.Duration
	offlineWindow time.Duration

	store     Store
	publisher Publisher
}

// NewSweeper builds a sweeper. publisher may be nil; failed publishes are
// logged and do not block the sweep. Zero durations fall back to the
// spec's defaults (1 minute tick, 5 minute online, 10 minute offline).
func NewSweeper(interval, onlineWindow, offlineWindow time.Duration, store Store, publisher Publisher) *OnlineOfflineSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if onlineWindow <= 0 {
		onlineWindow = 5 * time.Minute
	}
	if offlineWindow <= 0 {
		offlineWindow = 10 * time.Minute
	}
	return &OnlineOfflineSweeper{
		interval:      interval,
		onlineWindow:  onlineWindow,
		offlineWindow: offlineWindow,
		store:         store,
		publisher:     publisher,
	}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *OnlineOfflineSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweepOnce(ctx); err != nil {
				logger.Log.Error("online/offline sweep failed", "error", err)
			}
		}
	}
}

func (s *OnlineOfflineSweeper) sweepOnce(ctx context.Context) error {
	devices, err := s.store.ListTracked(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, dev := range devices {
		elapsed := now.Sub(dev.LastSeen)

		switch {
		case dev.Status != domain.DeviceStatusOffline && elapsed > s.offlineWindow:
			if err := s.transition(ctx, dev, domain.DeviceStatusOffline, domain.EventDeviceOffline, now); err != nil {
				logger.Log.Warn("failed to mark device offline", "device_id", dev.ID, "error", err)
			}
		case dev.Status != domain.DeviceStatusOnline && elapsed <= s.onlineWindow:
			if err := s.transition(ctx, dev, domain.DeviceStatusOnline, domain.EventDeviceOnline, now); err != nil {
				logger.Log.Warn("failed to mark device online", "device_id", dev.ID, "error", err)
			}
		}
	}
	return nil
}

func (s *OnlineOfflineSweeper) transition(ctx context.Context, dev *domain.Device, status domain.DeviceStatus, eventType domain.EventType, now time.Time) error {
	if err := s.store.UpdateStatus(ctx, dev.ID, status); err != nil {
		return err
	}
	if s.publisher == nil {
		return nil
	}
	ev := &domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		EventTime: now,
		DeviceID:  dev.ID,
	}
	if err := s.publisher.PublishEvent(ctx, ev); err != nil {
		logger.Log.Warn("failed to publish sweep event", "device_id", dev.ID, "error", err)
	}
	return nil
}
