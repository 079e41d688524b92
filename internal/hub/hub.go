// Package hub implements the Subscription Hub (C9): one goroutine per
// operator session, a bounded per-session outbound buffer, and a
// topic->sessions inverted index for fan-out (spec.md §4.8, §5).
package hub

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleettrack/internal/domain"
	"fleettrack/internal/rpc"
	"fleettrack/pkg/config"
	"fleettrack/pkg/logger"
)

// Hub fans out positions, events, and unknown-device deltas to subscribed
// sessions. The topic index is guarded by a single lock; publish takes a
// read lock just long enough to copy the matching session slice, then
// sends outside the lock (copy-on-write iteration, spec.md §5).
type Hub struct {
	cfg config.HubConfig

	mu       sync.RWMutex
	sessions map[string]*Session
	index    map[string]map[string]*Session // topic wire key -> session id -> session
}

// New builds an empty Hub.
func New(cfg config.HubConfig) *Hub {
	return &Hub{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		index:    make(map[string]map[string]*Session),
	}
}

// Subscribe implements rpc.FleetServiceServer's bidirectional stream: it
// registers a session, starts its writer, and processes subscribe/
// unsubscribe/heartbeat messages until the client disconnects or the
// session is dropped (overflow or idle reap).
func (h *Hub) Subscribe(stream rpc.FleetService_SubscribeServer) error {
	sess := newSession(uuid.New().String(), stream, h.cfg.OutboundBuffer)
	h.register(sess)
	go sess.writeLoop()
	defer h.dropSession(sess)

	sess.send(infoEnvelope("subscribed: " + sess.id))

	for {
		req, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		sess.touch()

		for _, raw := range req.Subscribe {
			t, perr := ParseTopic(raw)
			if perr != nil {
				logger.Log.Warn("hub: invalid subscribe topic", "session_id", sess.id, "topic", raw, "error", perr)
				sess.send(errorEnvelope(perr.Error()))
				continue
			}
			sess.sub.Subscribe(t)
			h.addTopic(sess, t)
		}
		for _, raw := range req.Unsubscribe {
			t, perr := ParseTopic(raw)
			if perr != nil {
				sess.send(errorEnvelope(perr.Error()))
				continue
			}
			sess.sub.Unsubscribe(t)
			h.removeTopic(sess, t)
		}

		select {
		case <-sess.done:
			return nil
		default:
		}
	}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

// dropSession removes a session from the registry and index and closes its
// channels. Idempotent: safe to call from overflow, idle reap, and the
// Subscribe loop's own deferred cleanup.
func (h *Hub) dropSession(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	for key := range s.sub.Topics {
		if m, ok := h.index[key]; ok {
			delete(m, s.id)
			if len(m) == 0 {
				delete(h.index, key)
			}
		}
	}
	h.mu.Unlock()
	s.close()
}

func (h *Hub) addTopic(s *Session, t domain.Topic) {
	key := t.String()
	h.mu.Lock()
	m, ok := h.index[key]
	if !ok {
		m = make(map[string]*Session)
		h.index[key] = m
	}
	m[s.id] = s
	h.mu.Unlock()
}

func (h *Hub) removeTopic(s *Session, t domain.Topic) {
	key := t.String()
	h.mu.Lock()
	if m, ok := h.index[key]; ok {
		delete(m, s.id)
		if len(m) == 0 {
			delete(h.index, key)
		}
	}
	h.mu.Unlock()
}

// publish fans env out to every session whose subscriptions match t,
// dropping any session whose outbound buffer is full.
func (h *Hub) publish(t domain.Topic, env *rpc.PushEnvelope) {
	keys := candidateKeys(t)

	h.mu.RLock()
	seen := make(map[string]bool, 4)
	var targets []*Session
	for _, key := range keys {
		for id, s := range h.index[key] {
			if seen[id] {
				continue
			}
			seen[id] = true
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.send(env) {
			logger.Log.Warn("hub: outbound buffer full, dropping session", "session_id", s.id)
			h.dropSession(s)
		}
	}
}

// PublishPosition fans a processed position out on its device's positions
// topic (and the positions:* / device:<id> bundle, via candidateKeys).
// Satisfies internal/pipeline.Publisher.
func (h *Hub) PublishPosition(_ context.Context, pos *domain.Position, dev *domain.Device) error {
	h.publish(domain.Topic{Kind: domain.TopicPositions, DeviceID: pos.DeviceID}, positionEnvelope(pos, dev))
	return nil
}

// PublishEvent fans a derived event out on its device's events topic,
// additionally mirroring geofence enter/exit onto geofence_alerts.
// Satisfies internal/events.Publisher, internal/command.Publisher, and
// internal/events.OnlineOfflineSweeper's Publisher.
func (h *Hub) PublishEvent(_ context.Context, ev *domain.Event) error {
	env := eventEnvelope(ev)
	h.publish(domain.Topic{Kind: domain.TopicEvents, DeviceID: ev.DeviceID}, env)
	if ev.Type == domain.EventGeofenceEnter || ev.Type == domain.EventGeofenceExit {
		h.publish(domain.Topic{Kind: domain.TopicGeofenceAlerts, DeviceID: ev.DeviceID}, env)
	}
	return nil
}

// PublishUnknownDeviceObserved fans an unregistered unique_id's sighting
// out on the unknown_devices topic. Satisfies internal/resolver.Publisher.
func (h *Hub) PublishUnknownDeviceObserved(_ context.Context, ud *domain.UnknownDevice) error {
	h.publish(domain.Topic{Kind: domain.TopicUnknownDevices}, unknownDeviceEnvelope(ud))
	return nil
}

// Run ticks the idle-session reaper until ctx is cancelled, mirroring
// internal/events.OnlineOfflineSweeper's ticker-loop shape.
func (h *Hub) Run(ctx context.Context) {
	window := h.cfg.IdleReap
	if window <= 0 {
		window = 5 * time.Minute
	}
	tick := h.cfg.HeartbeatPeriod
	if tick <= 0 {
		tick = window / 5
	}
	if tick <= 0 {
		tick = time.Minute
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reapOnce(window)
		}
	}
}

func (h *Hub) reapOnce(window time.Duration) {
	h.mu.RLock()
	var stale []*Session
	for _, s := range h.sessions {
		if s.idleSince() > window {
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		logger.Log.Info("hub: reaping idle session", "session_id", s.id)
		h.dropSession(s)
	}
}

// SessionCount reports the number of registered sessions, for diagnostics.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
