package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"time"

	"fleettrack/internal/protocol"
	"fleettrack/pkg/apperror"
	"fleettrack/pkg/logger"
)

// RequestResponseListener implements the request/response transport flavor
// (spec.md §4.2): each HTTP request is one decode attempt, the connection
// is not retained for outbound. Used for OsmAnd on HTTP.
type RequestResponseListener struct {
	addr         string
	decoder      protocol.Decoder
	sink         FrameSink
	readTimeout  time.Duration
	writeTimeout time.Duration
	server       *http.Server
}

// NewRequestResponseListener builds a request/response listener for decoder
// over addr.
func NewRequestResponseListener(addr string, decoder protocol.Decoder, sink FrameSink, readTimeout, writeTimeout time.Duration) *RequestResponseListener {
	return &RequestResponseListener{
		addr:         addr,
		decoder:      decoder,
		sink:         sink,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (l *RequestResponseListener) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handle)

	l.server = &http.Server{
		Addr:         l.addr,
		Handler:      mux,
		ReadTimeout:  l.readTimeout,
		WriteTimeout: l.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- l.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return l.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handle decodes one request and replies "OK" on success, 4xx on decode
// error, 5xx on downstream (pipeline) failure (spec.md §4.2).
func (l *RequestResponseListener) handle(w http.ResponseWriter, r *http.Request) {
	raw, err := httputil.DumpRequest(r, true)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	addr := simpleAddr{network: "tcp", address: r.RemoteAddr}
	frame, err := l.decoder.Decode(raw, addr)
	if err != nil {
		logger.Log.Warn("osmand decode failed", "remote", r.RemoteAddr, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := l.sink.Submit(r.Context(), l.decoder.Protocol(), addr, frame); err != nil {
		logger.Log.Error("osmand pipeline submit failed", "remote", r.RemoteAddr, "error", err)
		status := http.StatusInternalServerError
		var appErr *apperror.Error
		if errors.As(err, &appErr) && appErr.Code == apperror.CodeRetryableStore {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "downstream failure", status)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}
