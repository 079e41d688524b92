package hub

import (
	"sync"
	"time"

	"fleettrack/internal/domain"
	"fleettrack/internal/rpc"
	"fleettrack/pkg/logger"
)

// Session is one operator's live Subscribe stream: a bounded outbound
// buffer drained by a dedicated writer goroutine, and the topic set it
// wants pushed (spec.md §4.8, §5 "one task per session").
type Session struct {
	id     string
	stream rpc.FleetService_SubscribeServer
	sub    *domain.Subscription

	outbound chan *rpc.PushEnvelope

	mu            sync.Mutex
	lastHeartbeat time.Time

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id string, stream rpc.FleetService_SubscribeServer, bufferSize int) *Session {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Session{
		id:            id,
		stream:        stream,
		sub:           domain.NewSubscription(id, id),
		outbound:      make(chan *rpc.PushEnvelope, bufferSize),
		lastHeartbeat: time.Now(),
		done:          make(chan struct{}),
	}
}

// touch records client activity (a subscribe/unsubscribe call or an
// explicit heartbeat) for the idle reaper.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastHeartbeat)
}

// send enqueues env without blocking. A full buffer means the session is
// not draining fast enough; per spec.md §4.8 the hub drops the session
// rather than stall the publisher.
func (s *Session) send(env *rpc.PushEnvelope) bool {
	select {
	case s.outbound <- env:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// close is idempotent: safe to call from the reaper, the overflow path, and
// the read loop's own exit.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// writeLoop drains outbound into the gRPC stream until the session closes
// or a send fails (dead client).
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case env, ok := <-s.outbound:
			if !ok {
				return
			}
			if err := s.stream.Send(env); err != nil {
				logger.Log.Warn("hub: session send failed, closing", "session_id", s.id, "error", err)
				s.close()
				return
			}
		}
	}
}
