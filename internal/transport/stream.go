package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"time"

	"fleettrack/internal/protocol"
	"fleettrack/pkg/logger"
)

// StreamListener implements the connection-oriented stream flavor
// (spec.md §4.2): accept loop, one reader goroutine per connection, frame
// boundaries found by newline delimiter scan. Used for Suntech on TCP.
type StreamListener struct {
	addr        string
	decoder     protocol.Decoder
	sink        FrameSink
	links       *LinkTable
	idleTimeout time.Duration
}

// NewStreamListener builds a stream listener for decoder over addr. links
// may be nil when outbound dispatch isn't needed (e.g. fleet-simulate's
// receive-only harness).
func NewStreamListener(addr string, decoder protocol.Decoder, sink FrameSink, links *LinkTable, idleTimeout time.Duration) *StreamListener {
	return &StreamListener{addr: addr, decoder: decoder, sink: sink, links: links, idleTimeout: idleTimeout}
}

// ListenAndServe accepts connections until ctx is cancelled.
func (l *StreamListener) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go l.handleConn(ctx, conn)
	}
}

// handleConn owns one connection end to end: it reads newline-delimited
// frames, decodes each, registers the resolved source in the link table,
// and forwards the frame to the pipeline. A decode error never tears the
// connection down — only read errors and an unsynchronizable buffer do
// (spec.md §4.2).
func (l *StreamListener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReaderSize(conn, 4096)
	var registered []string
	defer func() {
		for _, id := range registered {
			if l.links != nil {
				l.links.Unregister(id, conn)
			}
		}
	}()

	for {
		if l.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(l.idleTimeout))
		}

		// ReadSlice reports bufio.ErrBufferFull when no delimiter appears
		// within the buffer; its result aliases the reader's buffer, so it is
		// copied before the next read overwrites it.
		line, err := reader.ReadSlice('\n')
		line = append([]byte(nil), line...)
		if len(line) > 0 {
			if decErr := l.handleLine(ctx, conn, line, &registered); decErr != nil {
				logger.Log.Warn("suntech stream decode failed", "remote", conn.RemoteAddr().String(), "error", decErr)
			}
		}
		if err != nil {
			if errors.Is(err, bufio.ErrBufferFull) {
				// Unsynchronizable: a line longer than the buffer with no
				// delimiter in sight. Drop the connection rather than
				// spin forever re-reading partial frames.
				logger.Log.Error("suntech stream unsynchronizable, closing connection", "remote", conn.RemoteAddr().String())
			}
			return
		}
	}
}

func (l *StreamListener) handleLine(ctx context.Context, conn net.Conn, line []byte, registered *[]string) error {
	trimmed := bytes.TrimRight(line, "\r\n")
	if len(trimmed) == 0 {
		return nil
	}

	frame, err := l.decoder.Decode(trimmed, conn.RemoteAddr())
	if err != nil {
		return err
	}

	if l.links != nil && frame.SourceID != "" {
		l.links.Register(frame.SourceID, conn)
		*registered = append(*registered, frame.SourceID)
	}

	return l.sink.Submit(ctx, l.decoder.Protocol(), conn.RemoteAddr(), frame)
}
