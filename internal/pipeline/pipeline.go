// Package pipeline implements the Position Pipeline (C4): a hash-partitioned
// worker pool that gives per-device total ordering while processing
// different devices in parallel (spec.md §4.4, §5).
package pipeline

import (
	"context"
	"hash/fnv"
	"net"
	"runtime"

	"fleettrack/internal/domain"
	"fleettrack/internal/events"
	"fleettrack/internal/geofence"
	"fleettrack/internal/protocol"
	"fleettrack/internal/resolver"
	"fleettrack/pkg/cache"
	"fleettrack/pkg/config"
	"fleettrack/pkg/logger"
)

// Publisher fans out a processed position and its derived events to the
// Subscription Hub (spec.md §4.4 step 7, §4.8). Kept narrow so this package
// does not import internal/hub; it embeds events.Publisher so the event
// engine and pipeline share one fan-out contract.
type Publisher interface {
	events.Publisher
	PublishPosition(ctx context.Context, pos *domain.Position, dev *domain.Device) error
}

// job is one decoded frame queued for a partition.
type job struct {
	protocolName string
	addr         net.Addr
	frame        *protocol.Frame
}

// Pipeline owns the partitioned worker pool. It implements
// internal/transport.FrameSink.
type Pipeline struct {
	partitions []*partition
	deadLetter func(reason string, j job, err error)
}

// New builds a Pipeline wired to the resolver, geofence index, event
// engine, persistence facade, position cache, and hub publisher. cfg.
// Partitions <= 0 defaults to runtime.NumCPU()*2 per spec.md §5.
func New(
	cfg config.PipelineConfig,
	retry config.RetryConfig,
	res *resolver.Resolver,
	geoIndex *geofence.Index,
	engine *events.Engine,
	store Store,
	posCache *cache.SnapshotCache,
	publisher Publisher,
) *Pipeline {
	partitionCount := cfg.Partitions
	if partitionCount <= 0 {
		partitionCount = runtime.NumCPU() * 2
	}
	buffer := cfg.PartitionBuffer
	if buffer <= 0 {
		buffer = 256
	}

	p := &Pipeline{
		deadLetter: func(reason string, j job, err error) {
			logger.Log.Error("dead_letter",
				"dead_letter", true,
				"reason", reason,
				"protocol", j.protocolName,
				"source_id", j.frame.SourceID,
				"error", err,
			)
		},
	}

	for i := 0; i < partitionCount; i++ {
		p.partitions = append(p.partitions, newPartition(buffer, &worker{
			resolver:   res,
			geoIndex:   geoIndex,
			engine:     engine,
			store:      store,
			posCache:   posCache,
			publisher:  publisher,
			retry:      retry,
			deadLetter: p.deadLetter,
		}))
	}
	return p
}

// Start launches one goroutine per partition and returns without waiting;
// the workers exit when ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	for _, part := range p.partitions {
		go part.run(ctx)
	}
}

// Submit hashes the frame's source identifier to a partition and enqueues
// it, giving per-device serial processing while different devices proceed
// in parallel (spec.md §4.4). It implements internal/transport.FrameSink.
func (p *Pipeline) Submit(ctx context.Context, protocolName string, addr net.Addr, frame *protocol.Frame) error {
	part := p.partitionFor(frame.SourceID)
	select {
	case part.input <- job{protocolName: protocolName, addr: addr, frame: frame}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) partitionFor(sourceID string) *partition {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sourceID))
	idx := int(h.Sum32()) % len(p.partitions)
	if idx < 0 {
		idx += len(p.partitions)
	}
	return p.partitions[idx]
}
