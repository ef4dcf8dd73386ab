package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// KnownBackends lists the engine backends shipped with soundstage.
// Used by [Validate] to warn about unrecognised backend names.
var KnownBackends = []string{"software", "mock"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns [Default] when path is empty or the
// file does not exist. Any other failure is returned.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: file not found, using defaults", "path", path)
		return Default(), nil
	}
	return cfg, err
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Fields absent from the document keep their default.
// An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Engine
	e := cfg.Engine
	if e.Backend == "" {
		errs = append(errs, errors.New("engine.backend is required"))
	} else if !slices.Contains(KnownBackends, e.Backend) {
		slog.Warn("unknown engine backend, may be a typo or a third-party backend",
			"name", e.Backend,
			"known", KnownBackends,
		)
	}
	for i, name := range e.Fallback {
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("engine.fallback[%d] is empty", i))
		case name == e.Backend:
			errs = append(errs, fmt.Errorf("engine.fallback[%d] %q repeats the primary backend", i, name))
		case slices.Index(e.Fallback, name) != i:
			errs = append(errs, fmt.Errorf("engine.fallback[%d] %q is listed twice", i, name))
		}
	}
	if e.MaxChannels <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_channels %d must be positive", e.MaxChannels))
	}
	if e.Driver < 0 {
		errs = append(errs, fmt.Errorf("engine.driver %d must not be negative", e.Driver))
	}
	if e.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("engine.sample_rate %d must not be negative", e.SampleRate))
	}
	if e.BufferMS < 0 {
		errs = append(errs, fmt.Errorf("engine.buffer_ms %d must not be negative", e.BufferMS))
	}
	errs = append(errs, validateRange("engine.min_distance", e.MinDistance, e.MaxDistance)...)
	errs = append(errs, validateRange("engine.play_min_distance", e.PlayMinDistance, e.PlayMaxDistance)...)

	// Control
	c := cfg.Control
	if !c.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("control.transport %q is invalid; valid values: stdio, websocket", c.Transport))
	}
	if c.Transport == TransportWebSocket {
		if c.ListenAddr == "" {
			errs = append(errs, errors.New("control.listen_addr is required when transport is websocket"))
		}
		if !strings.HasPrefix(c.Path, "/") {
			errs = append(errs, fmt.Errorf("control.path %q must start with /", c.Path))
		}
	}
	if c.Transport == TransportWebSocket && c.ListenAddr != "" && c.ListenAddr == cfg.Observe.ListenAddr {
		errs = append(errs, fmt.Errorf("control.listen_addr and observe.listen_addr must differ, both are %q", c.ListenAddr))
	}

	return errors.Join(errs...)
}

// validateRange checks a min/max distance pair named by minKey.
func validateRange(minKey string, lo, hi float64) []error {
	var errs []error
	if lo <= 0 {
		errs = append(errs, fmt.Errorf("%s %.2f must be positive", minKey, lo))
	}
	if hi < lo {
		errs = append(errs, fmt.Errorf("%s %.2f exceeds the maximum %.2f", minKey, lo, hi))
	}
	return errs
}
