package pipeline

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"fleettrack/internal/domain"
	"fleettrack/internal/events"
	"fleettrack/internal/geofence"
	"fleettrack/internal/protocol"
	"fleettrack/internal/resolver"
	"fleettrack/pkg/apperror"
	"fleettrack/pkg/config"
)

type fakeDeviceStore struct {
	mu      sync.Mutex
	devices map[string]*domain.Device
}

func (f *fakeDeviceStore) GetByUniqueID(_ context.Context, uniqueID string) (*domain.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dev, ok := f.devices[uniqueID]; ok {
		return dev, nil
	}
	return nil, apperror.ErrDeviceNotFound
}

type fakeUnknownStore struct{}

func (f *fakeUnknownStore) Upsert(_ context.Context, uniqueID, protocolName, rawFrame string, parsed map[string]any) (*domain.UnknownDevice, error) {
	return &domain.UnknownDevice{UniqueID: uniqueID, Protocol: protocolName}, nil
}

type fakeFrameStore struct {
	mu      sync.Mutex
	last    map[string]*domain.Position
	commits int
}

func (f *fakeFrameStore) PreviousPosition(_ context.Context, deviceID string) (*domain.Position, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.last[deviceID]
	return pos, ok, nil
}

func (f *fakeFrameStore) CommitFrame(_ context.Context, result *FrameResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		f.last = make(map[string]*domain.Position)
	}
	f.last[result.Device.ID] = result.Position
	f.commits++
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	positions int
	events    []*domain.Event
}

func (p *fakePublisher) PublishPosition(_ context.Context, pos *domain.Position, dev *domain.Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions++
	return nil
}

func (p *fakePublisher) PublishEvent(_ context.Context, ev *domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions
}

func buildTestPipeline(devStore *fakeDeviceStore, store *fakeFrameStore, pub *fakePublisher) *Pipeline {
	res := resolver.New(devStore, &fakeUnknownStore{}, nil)
	idx := geofence.NewIndex()
	engine := events.NewEngine(config.EventsConfig{}, 80)
	cfg := config.PipelineConfig{Partitions: 1, PartitionBuffer: 16}
	return New(cfg, config.RetryConfig{MaxAttempts: 2}, res, idx, engine, store, nil, pub)
}

func TestPipeline_SubmitProcessesRegisteredDevice(t *testing.T) {
	devStore := &fakeDeviceStore{devices: map[string]*domain.Device{
		"dev-1": {ID: "d1", UniqueID: "dev-1", Status: domain.DeviceStatusOnline},
	}}
	store := &fakeFrameStore{}
	pub := &fakePublisher{}
	p := buildTestPipeline(devStore, store, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	frame := &protocol.Frame{
		SourceID:   "dev-1",
		Protocol:   "suntech",
		Kind:       protocol.FrameLocation,
		Timestamp:  time.Now(),
		Latitude:   51.5,
		Longitude:  -0.1,
		Valid:      true,
		Attributes: map[string]any{},
	}
	if err := p.Submit(ctx, "suntech", &net.TCPAddr{}, frame); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pub.count() != 1 {
		t.Fatalf("expected one published position, got %d", pub.count())
	}
	if store.commits != 1 {
		t.Fatalf("expected one committed frame, got %d", store.commits)
	}
}

func TestPipeline_UnknownDeviceSkipsPersistence(t *testing.T) {
	devStore := &fakeDeviceStore{devices: map[string]*domain.Device{}}
	store := &fakeFrameStore{}
	pub := &fakePublisher{}
	p := buildTestPipeline(devStore, store, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	frame := &protocol.Frame{
		SourceID:  "ghost",
		Protocol:  "suntech",
		Kind:      protocol.FrameLocation,
		Timestamp: time.Now(),
		Latitude:  51.5,
		Longitude: -0.1,
		Valid:     true,
	}
	if err := p.Submit(ctx, "suntech", &net.TCPAddr{}, frame); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if store.commits != 0 {
		t.Errorf("expected no commits for an unknown device, got %d", store.commits)
	}
}

func TestPipeline_PartitionForIsStableForSameSource(t *testing.T) {
	p := &Pipeline{partitions: make([]*partition, 8)}
	for i := range p.partitions {
		p.partitions[i] = &partition{}
	}

	first := p.partitionFor("dev-42")
	second := p.partitionFor("dev-42")
	if first != second {
		t.Error("expected the same source id to always hash to the same partition")
	}
}
