package control_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/soundstage/internal/control"
	"github.com/MrWong99/soundstage/internal/manager"
	"github.com/MrWong99/soundstage/internal/observe"
	"github.com/MrWong99/soundstage/internal/protocol"
	"github.com/MrWong99/soundstage/pkg/audio/mock"
)

func newDispatcher(t *testing.T) (*protocol.Dispatcher, *mock.Engine) {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics() error: %v", err)
	}
	eng := &mock.Engine{}
	d := protocol.NewDispatcher(manager.New(eng), protocol.WithMetrics(m), protocol.WithLevel(new(slog.LevelVar)))
	t.Cleanup(d.Close)
	return d, eng
}

// ─── Stdio ───────────────────────────────────────────────────────────────────

func TestServeStdio(t *testing.T) {
	t.Parallel()
	d, eng := newDispatcher(t)

	in := strings.NewReader("INIT 4\r\n\nSTATUS\nDEBUG\nQUIT\nSTATUS\n")
	var out bytes.Buffer
	if err := control.ServeStdio(context.Background(), in, &out, d); err != nil {
		t.Fatalf("ServeStdio() error: %v", err)
	}

	want := "OK INITIALIZED channels=4 driver=0\nOK STATUS sources=0 []\nOK DEBUG OFF\nOK GOODBYE\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if eng.Session.CallCountClose != 1 {
		t.Errorf("session closed %d times, want 1", eng.Session.CallCountClose)
	}
}

func TestServeStdio_EndOfInput(t *testing.T) {
	t.Parallel()
	d, eng := newDispatcher(t)

	var out bytes.Buffer
	if err := control.ServeStdio(context.Background(), strings.NewReader("INIT"), &out, d); err != nil {
		t.Fatalf("ServeStdio() error: %v", err)
	}
	if out.String() != "OK INITIALIZED channels=64 driver=0\n" {
		t.Errorf("output = %q", out.String())
	}
	if eng.Session.CallCountClose != 1 {
		t.Errorf("session closed %d times, want 1", eng.Session.CallCountClose)
	}
}

func TestServeStdio_LineTooLong(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 70*1024)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "keeps serving after long line",
			in:   "INIT 4\nLOAD " + long + " f\nSTATUS\nQUIT\n",
			want: "OK INITIALIZED channels=4 driver=0\n" +
				"ERROR INVALID_ARGS line too long\n" +
				"OK STATUS sources=0 []\n" +
				"OK GOODBYE\n",
		},
		{
			name: "long final line without newline",
			in:   "INIT 4\nLOAD " + long,
			want: "OK INITIALIZED channels=4 driver=0\nERROR INVALID_ARGS line too long\n",
		},
		{
			name: "line at the limit is accepted",
			in:   "INIT 4\nX" + strings.Repeat(" ", 64*1024-1) + "\nSTATUS\n",
			want: "OK INITIALIZED channels=4 driver=0\n" +
				"ERROR UNKNOWN_COMMAND X\n" +
				"OK STATUS sources=0 []\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, _ := newDispatcher(t)

			var out bytes.Buffer
			if err := control.ServeStdio(context.Background(), strings.NewReader(tt.in), &out, d); err != nil {
				t.Fatalf("ServeStdio() error: %v", err)
			}
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestServeStdio_Cancel(t *testing.T) {
	t.Parallel()
	d, _ := newDispatcher(t)

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- control.ServeStdio(ctx, pr, io.Discard, d) }()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("ServeStdio() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeStdio did not return after cancel")
	}
}

// ─── WebSocket ───────────────────────────────────────────────────────────────

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/control"
}

func startWS(t *testing.T) (*control.WebSocket, *httptest.Server, *protocol.Dispatcher) {
	t.Helper()
	d, _ := newDispatcher(t)
	ws := control.NewWebSocket(d, "/control")
	mux := http.NewServeMux()
	ws.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return ws, srv, d
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	return conn
}

func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn, msg string, n int) []string {
	t.Helper()
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	out := make([]string, 0, n)
	for range n {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		out = append(out, string(data))
	}
	return out
}

func TestWebSocket_RoundTrip(t *testing.T) {
	t.Parallel()
	_, srv, d := startWS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	defer conn.CloseNow()

	got := roundTrip(t, ctx, conn, "INIT 8 0", 1)
	if got[0] != "OK INITIALIZED channels=8 driver=0" {
		t.Errorf("INIT -> %q", got[0])
	}

	got = roundTrip(t, ctx, conn, "STATUS\nbogus\r\n\nPAUSE", 3)
	want := []string{"OK STATUS sources=0 []", "ERROR UNKNOWN_COMMAND BOGUS", "OK PAUSED"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("response %d = %q, want %q", i, got[i], want[i])
		}
	}
	if !d.Ready() {
		t.Error("Ready() = false while the client holds a session")
	}
}

func TestWebSocket_MessageTooLong(t *testing.T) {
	t.Parallel()
	_, srv, _ := startWS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	defer conn.CloseNow()

	roundTrip(t, ctx, conn, "INIT 4", 1)
	got := roundTrip(t, ctx, conn, "LOAD "+strings.Repeat("x", 70*1024)+" f", 1)
	if got[0] != "ERROR INVALID_ARGS line too long" {
		t.Errorf("oversized message -> %q", got[0])
	}
	if got := roundTrip(t, ctx, conn, "STATUS", 1); got[0] != "OK STATUS sources=0 []" {
		t.Errorf("STATUS after oversized message -> %q", got[0])
	}
}

func TestWebSocket_SingleClient(t *testing.T) {
	t.Parallel()
	_, srv, d := startWS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := dial(t, ctx, srv)
	roundTrip(t, ctx, first, "INIT", 1)

	_, resp, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err == nil {
		t.Fatal("second Dial() succeeded, want rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("second Dial() response = %v, want 409", resp)
	}

	first.Close(websocket.StatusNormalClosure, "bye")

	// The session is torn down once the first client leaves.
	deadline := time.Now().Add(2 * time.Second)
	for d.Ready() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if d.Ready() {
		t.Fatal("session still open after client disconnected")
	}

	var second *websocket.Conn
	for time.Now().Before(deadline) {
		c, _, err := websocket.Dial(ctx, wsURL(srv), nil)
		if err == nil {
			second = c
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if second == nil {
		t.Fatal("could not reconnect after the first client left")
	}
	defer second.CloseNow()
	if got := roundTrip(t, ctx, second, "STATUS", 1); got[0] != "ERROR NOT_INITIALIZED" {
		t.Errorf("STATUS on fresh client -> %q, want ERROR NOT_INITIALIZED", got[0])
	}
}

func TestWebSocket_Quit(t *testing.T) {
	t.Parallel()
	ws, srv, _ := startWS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	defer conn.CloseNow()

	if got := roundTrip(t, ctx, conn, "QUIT", 1); got[0] != "OK GOODBYE" {
		t.Errorf("QUIT -> %q", got[0])
	}
	select {
	case <-ws.Quit():
	case <-time.After(2 * time.Second):
		t.Fatal("Quit channel not closed after QUIT")
	}
}

func TestWebSocket_ListenAndServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	d, _ := newDispatcher(t)
	ws := control.NewWebSocket(d, "")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- ws.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe() error: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}
