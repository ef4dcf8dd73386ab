// Package app wires the soundstage subsystems into a running controller.
//
// The App struct owns the full lifecycle: New builds the source manager and
// protocol dispatcher from the config, Run serves the control transport and
// the optional ops endpoints, and Shutdown tears everything down in order.
//
// For testing, inject the standard streams and telemetry sinks via functional
// options (WithStdio, WithMetrics, WithGatherer). When an option is not
// provided, New falls back to the process-wide defaults.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/soundstage/internal/config"
	"github.com/MrWong99/soundstage/internal/control"
	"github.com/MrWong99/soundstage/internal/health"
	"github.com/MrWong99/soundstage/internal/manager"
	"github.com/MrWong99/soundstage/internal/observe"
	"github.com/MrWong99/soundstage/internal/protocol"
	"github.com/MrWong99/soundstage/pkg/audio"
)

// opsShutdownTimeout bounds the graceful stop of the ops HTTP server.
const opsShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes of one controller process.
type App struct {
	cfg    *config.Config
	engine audio.Engine

	level    *slog.LevelVar
	metrics  *observe.Metrics
	gatherer prometheus.Gatherer
	stdin    io.Reader
	stdout   io.Writer

	// Subsystems, initialised in New and torn down in Shutdown.
	mgr  *manager.Manager
	disp *protocol.Dispatcher
	ops  http.Handler

	// serving is true while the control loop runs.
	serving atomic.Bool

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithLevel shares the process log level with the DEBUG command and config
// reloads.
func WithLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetrics records protocol and ops metrics on m instead of the global
// meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer serves g on /metrics instead of the default Prometheus
// registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// WithStdio replaces os.Stdin and os.Stdout for the stdio transport.
func WithStdio(r io.Reader, w io.Writer) Option {
	return func(a *App) {
		a.stdin = r
		a.stdout = w
	}
}

// New creates an App that drives engine according to cfg.
//
// New performs all initialisation synchronously. No audio session is opened
// until a client sends INIT.
func New(cfg *config.Config, engine audio.Engine, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is nil")
	}
	if engine == nil {
		return nil, errors.New("app: audio engine is nil")
	}

	a := &App{
		cfg:    cfg,
		engine: engine,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Level())
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.gatherer == nil {
		a.gatherer = prometheus.DefaultGatherer
	}

	// ── 1. Source manager ────────────────────────────────────────────────
	ec := cfg.Engine
	a.mgr = manager.New(engine,
		manager.WithLoadDistance(ec.MinDistance, ec.MaxDistance),
		manager.WithPlayDistance(ec.PlayMinDistance, ec.PlayMaxDistance),
	)

	// ── 2. Protocol dispatcher ───────────────────────────────────────────
	a.disp = protocol.NewDispatcher(a.mgr,
		protocol.WithMetrics(a.metrics),
		protocol.WithLevel(a.level),
		protocol.WithDefaults(protocol.Defaults{
			MaxChannels: ec.MaxChannels,
			Driver:      ec.Driver,
			Preload:     ec.PreloadEnabled(),
		}),
	)
	a.closers = append(a.closers, func() error {
		a.disp.Close()
		return nil
	})

	// ── 3. Ops endpoints ─────────────────────────────────────────────────
	a.ops = a.buildOps()

	slog.Debug("app: initialised",
		"backend", ec.Backend,
		"transport", cfg.Control.Transport,
		"drivers", len(engine.Drivers()),
	)
	return a, nil
}

// Handler returns the ops handler serving /metrics, /healthz and /readyz.
func (a *App) Handler() http.Handler { return a.ops }

// Dispatcher returns the protocol dispatcher shared by all transports.
func (a *App) Dispatcher() *protocol.Dispatcher { return a.disp }

func (a *App) buildOps() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	health.New(
		health.Flag("control", a.serving.Load, "control loop not running"),
		health.Flag("engine", a.disp.Ready, "audio session not initialised"),
	).Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the configured control transport and, when observe.listen_addr
// is set, the ops endpoints. It blocks until the control loop ends through
// QUIT or end of input, or until ctx is cancelled.
//
// Run returns nil when the control loop ended on its own and ctx.Err() (or
// the underlying failure) otherwise.
func (a *App) Run(ctx context.Context) error {
	var opsLn net.Listener
	if addr := a.cfg.Observe.ListenAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen ops %s: %w", addr, err)
		}
		opsLn = ln
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return a.serveControl(runCtx)
	})
	if opsLn != nil {
		g.Go(func() error { return a.serveOps(runCtx, opsLn) })
	}

	slog.Info("app: running",
		"transport", a.cfg.Control.Transport,
		"ops", a.cfg.Observe.ListenAddr,
	)
	return g.Wait()
}

func (a *App) serveControl(ctx context.Context) error {
	a.serving.Store(true)
	defer a.serving.Store(false)

	switch a.cfg.Control.Transport {
	case config.TransportWebSocket:
		ws := control.NewWebSocket(a.disp, a.cfg.Control.Path)
		return ws.ListenAndServe(ctx, a.cfg.Control.ListenAddr)
	default:
		return control.ServeStdio(ctx, a.stdin, a.stdout, a.disp)
	}
}

func (a *App) serveOps(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.ops,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("app: ops listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve ops: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), opsShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: shutdown ops: %w", err)
	}
	return nil
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a config change. The log
// level takes effect immediately; engine, control and observe changes are
// reported and wait for a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.RequiresRestart() {
		slog.Warn("app: config change requires restart",
			"engine", d.EngineChanged,
			"control", d.ControlChanged,
			"observe", d.ObserveChanged,
		)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases every subsystem in order. It is safe to call more than
// once; only the first call does any work.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}

		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}
