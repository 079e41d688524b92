// Package transport implements the Listeners (C2): the three transport
// flavors named in spec.md §4.2, all sharing the internal/protocol.Decoder
// interface, plus the device→link table used for outbound command
// dispatch.
package transport

import (
	"context"
	"net"
	"sync"

	"fleettrack/internal/protocol"
	"fleettrack/pkg/apperror"
)

// FrameSink receives successfully decoded frames from any listener and
// feeds them to the Position Pipeline input (spec.md §4.2, §4.4).
type FrameSink interface {
	Submit(ctx context.Context, protocolName string, addr net.Addr, frame *protocol.Frame) error
}

// LinkTable maps a resolved device's unique_id to its live stream
// connection, so the Command Dispatcher (C8) can push a wire string
// without re-resolving the transport layer (spec.md §4.2).
type LinkTable struct {
	mu    sync.RWMutex
	links map[string]net.Conn
}

// NewLinkTable builds an empty link table.
func NewLinkTable() *LinkTable {
	return &LinkTable{links: make(map[string]net.Conn)}
}

// Register associates uniqueID with conn, replacing any prior connection
// for the same device (e.g. after a reconnect).
func (t *LinkTable) Register(uniqueID string, conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.links[uniqueID] = conn
}

// Unregister drops the association for uniqueID, but only if it still
// points at conn — a newer connection for the same device must not be
// evicted by a stale one closing.
func (t *LinkTable) Unregister(uniqueID string, conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.links[uniqueID] == conn {
		delete(t.links, uniqueID)
	}
}

// Get returns the live connection for uniqueID, if any.
func (t *LinkTable) Get(uniqueID string) (net.Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conn, ok := t.links[uniqueID]
	return conn, ok
}

// Write pushes a wire string to uniqueID's live connection. Returns
// apperror.CodeLinkUnavailable when the device has no open connection —
// the Command Dispatcher treats that as retryable (spec.md §4.7).
func (t *LinkTable) Write(uniqueID string, payload []byte) error {
	conn, ok := t.Get(uniqueID)
	if !ok {
		return apperror.New(apperror.CodeLinkUnavailable, "no live connection for device "+uniqueID)
	}
	if _, err := conn.Write(payload); err != nil {
		return apperror.Wrap(err, apperror.CodeLinkUnavailable, "write to device connection failed")
	}
	return nil
}

// simpleAddr adapts a bare "host:port" string (as found in
// http.Request.RemoteAddr) to net.Addr so the request/response listener can
// hand the Decoder interface the same address shape stream/datagram
// listeners do.
type simpleAddr struct {
	network string
	address string
}

func (a simpleAddr) Network() string { return a.network }
func (a simpleAddr) String() string  { return a.address }
