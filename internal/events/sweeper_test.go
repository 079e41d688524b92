package events

import (
	"context"
	"testing"
	"time"

	"fleettrack/internal/domain"
)

type fakeDeviceStore struct {
	devices  []*domain.Device
	statuses map[string]domain.DeviceStatus
}

func (f *fakeDeviceStore) ListTracked(_ context.Context) ([]*domain.Device, error) {
	return f.devices, nil
}

func (f *fakeDeviceStore) UpdateStatus(_ context.Context, deviceID string, status domain.DeviceStatus) error {
	if f.statuses == nil {
		f.statuses = make(map[string]domain.DeviceStatus)
	}
	f.statuses[deviceID] = status
	return nil
}

type recordingPublisher struct {
	events []*domain.Event
}

func (p *recordingPublisher) PublishEvent(_ context.Context, ev *domain.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func TestSweeper_MarksStaleDeviceOffline(t *testing.T) {
	store := &fakeDeviceStore{devices: []*domain.Device{
		{ID: "dev-1", Status: domain.DeviceStatusOnline, LastSeen: time.Now().Add(-20 * time.Minute)},
	}}
	pub := &recordingPublisher{}
	sweeper := NewSweeper(time.Minute, 5*time.Minute, 10*time.Minute, store, pub)

	if err := sweeper.sweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if store.statuses["dev-1"] != domain.DeviceStatusOffline {
		t.Errorf("expected dev-1 marked offline, got %v", store.statuses["dev-1"])
	}
	if len(pub.events) != 1 || pub.events[0].Type != domain.EventDeviceOffline {
		t.Errorf("expected one deviceOffline event, got %+v", pub.events)
	}
}

func TestSweeper_LeavesRecentDeviceAlone(t *testing.T) {
	store := &fakeDeviceStore{devices: []*domain.Device{
		{ID: "dev-1", Status: domain.DeviceStatusOnline, LastSeen: time.Now()},
	}}
	pub := &recordingPublisher{}
	sweeper := NewSweeper(time.Minute, 5*time.Minute, 10*time.Minute, store, pub)

	if err := sweeper.sweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if _, touched := store.statuses["dev-1"]; touched {
		t.Error("did not expect a status update for a recently-seen device")
	}
	if len(pub.events) != 0 {
		t.Errorf("expected no events, got %+v", pub.events)
	}
}

func TestSweeper_MarksReconnectedDeviceOnline(t *testing.T) {
	store := &fakeDeviceStore{devices: []*domain.Device{
		{ID: "dev-1", Status: domain.DeviceStatusOffline, LastSeen: time.Now()},
	}}
	pub := &recordingPublisher{}
	sweeper := NewSweeper(time.Minute, 5*time.Minute, 10*time.Minute, store, pub)

	if err := sweeper.sweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if store.statuses["dev-1"] != domain.DeviceStatusOnline {
		t.Errorf("expected dev-1 marked online, got %v", store.statuses["dev-1"])
	}
}
