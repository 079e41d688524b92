package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"fleettrack/internal/protocol"
	"fleettrack/pkg/logger"
)

// DatagramListener implements the connectionless transport flavor
// (spec.md §4.2): one socket binding, each datagram is one frame, read by
// a bounded pool of reader goroutines sharing the socket (spec.md §5)
// rather than the one-reader-per-connection shape StreamListener uses —
// there is no connection to own, only the shared PacketConn.
type DatagramListener struct {
	addr    string
	decoder protocol.Decoder
	sink    FrameSink
	links   *LinkTable
	bufSize int
	workers int
}

// NewDatagramListener builds a datagram listener for decoder over addr.
// links may be nil when outbound dispatch isn't needed. workers <= 0
// falls back to a default pool size.
func NewDatagramListener(addr string, decoder protocol.Decoder, sink FrameSink, links *LinkTable, workers int) *DatagramListener {
	if workers <= 0 {
		workers = 4
	}
	return &DatagramListener{addr: addr, decoder: decoder, sink: sink, links: links, bufSize: 4096, workers: workers}
}

// ListenAndServe reads datagrams until ctx is cancelled.
func (l *DatagramListener) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", l.addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	errCh := make(chan error, l.workers)
	for i := 0; i < l.workers; i++ {
		go func() { errCh <- l.readLoop(ctx, pc) }()
	}

	for i := 0; i < l.workers; i++ {
		if err := <-errCh; err != nil {
			return err
		}
	}
	return nil
}

func (l *DatagramListener) readLoop(ctx context.Context, pc net.PacketConn) error {
	buf := make([]byte, l.bufSize)
	for {
		n, peer, err := pc.ReadFrom(buf)
		if n > 0 {
			if decErr := l.handleDatagram(ctx, pc, peer, buf[:n]); decErr != nil {
				logger.Log.Warn("datagram decode failed", "remote", peer.String(), "error", decErr)
			}
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (l *DatagramListener) handleDatagram(ctx context.Context, pc net.PacketConn, peer net.Addr, raw []byte) error {
	frame, err := l.decoder.Decode(raw, peer)
	if err != nil {
		return err
	}

	if l.links != nil && frame.SourceID != "" {
		l.links.Register(frame.SourceID, &udpConn{pc: pc, peer: peer})
	}

	return l.sink.Submit(ctx, l.decoder.Protocol(), peer, frame)
}

// udpConn adapts a shared net.PacketConn plus a remembered peer address to
// the net.Conn shape LinkTable/Write expects, so the Command Dispatcher
// can push a wire payload back to a UDP device the same way it does for a
// stream one. Reads are never used — a datagram device's replies arrive
// as fresh inbound datagrams, decoded by handleDatagram above, not
// through this adapter.
type udpConn struct {
	pc   net.PacketConn
	peer net.Addr
}

func (c *udpConn) Read([]byte) (int, error)  { return 0, errors.New("udpConn: read not supported") }
func (c *udpConn) Write(b []byte) (int, error) {
	return c.pc.WriteTo(b, c.peer)
}
func (c *udpConn) Close() error                       { return nil }
func (c *udpConn) LocalAddr() net.Addr                { return c.pc.LocalAddr() }
func (c *udpConn) RemoteAddr() net.Addr               { return c.peer }
func (c *udpConn) SetDeadline(time.Time) error         { return nil }
func (c *udpConn) SetReadDeadline(time.Time) error     { return nil }
func (c *udpConn) SetWriteDeadline(time.Time) error    { return nil }
