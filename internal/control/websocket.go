package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/soundstage/internal/protocol"
)

// shutdownTimeout bounds the graceful shutdown of the WebSocket listener.
const shutdownTimeout = 5 * time.Second

// WebSocket serves the protocol to one client at a time. Each text message
// carries one or more command lines; each response is sent as its own text
// message. A second client is rejected with 409 Conflict while one is
// connected. When a client disconnects the session is cleaned up; the next
// client starts from INIT.
type WebSocket struct {
	d    *protocol.Dispatcher
	path string

	busy     atomic.Bool
	quit     chan struct{}
	quitOnce sync.Once
}

// NewWebSocket returns a [WebSocket] endpoint for d mounted at path.
func NewWebSocket(d *protocol.Dispatcher, path string) *WebSocket {
	if path == "" {
		path = "/control"
	}
	return &WebSocket{d: d, path: path, quit: make(chan struct{})}
}

// Quit is closed after a client sent QUIT.
func (s *WebSocket) Quit() <-chan struct{} { return s.quit }

// Register mounts the endpoint on mux.
func (s *WebSocket) Register(mux *http.ServeMux) {
	mux.Handle("GET "+s.path, s)
}

// ServeHTTP upgrades the request and runs the protocol on it.
func (s *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.busy.CompareAndSwap(false, true) {
		slog.Warn("control: rejecting second websocket client", "remote", r.RemoteAddr)
		http.Error(w, "another control client is connected", http.StatusConflict)
		return
	}
	defer s.busy.Store(false)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("control: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	// Oversized messages are drained and answered in ReadLine.
	conn.SetReadLimit(-1)
	slog.Info("control: websocket client connected", "remote", r.RemoteAddr)

	err = protocol.Serve(r.Context(), &wsConn{conn: conn}, s.d)
	switch {
	case errors.Is(err, protocol.ErrQuit):
		s.quitOnce.Do(func() { close(s.quit) })
		conn.Close(websocket.StatusNormalClosure, "goodbye")
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		slog.Warn("control: websocket session ended", "remote", r.RemoteAddr, "err", err)
		conn.Close(websocket.StatusInternalError, "session ended")
	}
	slog.Info("control: websocket client disconnected", "remote", r.RemoteAddr)
}

// ListenAndServe serves the endpoint on addr until ctx is cancelled or a
// client sends QUIT, then shuts the listener down. It returns nil in both
// cases.
func (s *WebSocket) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.Register(mux)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", addr, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	slog.Info("control: websocket listening", "addr", ln.Addr().String(), "path", s.path)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control: serve: %w", err)
	case <-ctx.Done():
	case <-s.quit:
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control: shutdown: %w", err)
	}
	return nil
}

// wsConn adapts a WebSocket connection to [protocol.LineConn].
type wsConn struct {
	conn    *websocket.Conn
	pending []string
}

// ReadLine implements [protocol.LineConn]. A normal close by the peer is
// reported as [io.EOF]. A text message longer than maxLineBytes is drained and
// reported as [protocol.ErrLineTooLong]; the connection stays open.
func (c *wsConn) ReadLine(ctx context.Context) (string, error) {
	for len(c.pending) == 0 {
		typ, r, err := c.conn.Reader(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return "", io.EOF
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", err
		}
		if typ != websocket.MessageText {
			if _, err := io.Copy(io.Discard, r); err != nil {
				return "", err
			}
			continue
		}
		data, err := io.ReadAll(io.LimitReader(r, maxLineBytes+1))
		if err != nil {
			return "", err
		}
		if len(data) > maxLineBytes {
			if _, err := io.Copy(io.Discard, r); err != nil {
				return "", err
			}
			return "", protocol.ErrLineTooLong
		}
		c.pending = splitLines(string(data))
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

// WriteLine implements [protocol.LineConn].
func (c *wsConn) WriteLine(ctx context.Context, line string) error {
	return c.conn.Write(ctx, websocket.MessageText, []byte(line))
}
