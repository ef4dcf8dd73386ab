// Command soundstage is the positional audio controller. It reads protocol
// commands on stdin (or a WebSocket) and answers each with one line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/soundstage/internal/app"
	"github.com/MrWong99/soundstage/internal/config"
	"github.com/MrWong99/soundstage/internal/observe"
	"github.com/MrWong99/soundstage/pkg/audio"
	"github.com/MrWong99/soundstage/pkg/audio/mock"
	"github.com/MrWong99/soundstage/pkg/audio/software"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "soundstage.yaml", "path to the YAML configuration file")
	debug := flag.Bool("debug", false, "start with debug logging")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "soundstage: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// stdout carries protocol responses, so logs always go to stderr.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	if *debug {
		level.Set(slog.LevelDebug)
	}
	slog.SetDefault(newLogger(os.Stderr, level))

	slog.Info("soundstage starting",
		"version", version,
		"config", *configPath,
		"backend", cfg.Engine.Backend,
		"transport", cfg.Control.Transport,
	)

	// ── Backend registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBackends(reg)

	engine, err := app.BuildEngine(reg, cfg.Engine)
	if err != nil {
		slog.Error("failed to create audio engine", "err", err, "available", reg.Names())
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Observe.ServiceName,
		ServiceVersion: version,
		Registerer:     promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(os.Stderr, cfg, engine)

	application, err := app.New(cfg, engine,
		app.WithLevel(level),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithGatherer(promReg),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if _, statErr := os.Stat(*configPath); statErr == nil {
		watcher, err := config.NewWatcher(*configPath)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			watchCtx, stopWatch := context.WithCancel(ctx)
			defer stopWatch()
			go watcher.Watch(watchCtx, application.ApplyConfig)
		}
	}

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Backend wiring ────────────────────────────────────────────────────────────

// registerBackends registers every audio backend that ships with soundstage.
func registerBackends(reg *config.Registry) {
	reg.RegisterEngine("software", func(ec config.EngineConfig) (audio.Engine, error) {
		opts := []software.Option{}
		if ec.SampleRate > 0 {
			opts = append(opts, software.WithSampleRate(ec.SampleRate))
		}
		if ec.BufferMS > 0 {
			opts = append(opts, software.WithBuffer(time.Duration(ec.BufferMS)*time.Millisecond))
		}
		return software.New(opts...), nil
	})
	reg.RegisterEngine("mock", func(config.EngineConfig) (audio.Engine, error) {
		return &mock.Engine{}, nil
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, engine audio.Engine) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║       soundstage startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	backends := append([]string{cfg.Engine.Backend}, cfg.Engine.Fallback...)
	printRow(w, "Backend", strings.Join(backends, ">"))
	printRow(w, "Drivers", strings.Join(engine.Drivers(), ","))
	printRow(w, "Channels", fmt.Sprint(cfg.Engine.MaxChannels))
	printRow(w, "Distance", fmt.Sprintf("%g-%g", cfg.Engine.MinDistance, cfg.Engine.MaxDistance))
	control := string(cfg.Control.Transport)
	if cfg.Control.Transport == config.TransportWebSocket {
		control = cfg.Control.ListenAddr + cfg.Control.Path
	}
	printRow(w, "Control", control)
	ops := cfg.Observe.ListenAddr
	if ops == "" {
		ops = "(disabled)"
	}
	printRow(w, "Ops", ops)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

// printRow writes one boxed row. fmt pads by runes, so value is cut on rune
// boundaries to keep the right border aligned.
func printRow(w io.Writer, key, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s   : %-19s ║\n", key, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
