package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/soundstage/pkg/audio"
)

// ErrAllFailed is returned by [EngineFallback.Open] when no backend produced a
// session.
var ErrAllFailed = errors.New("resilience: all backends failed")

// FallbackConfig tunes the breaker kept for every backend.
type FallbackConfig struct {
	// Threshold is the number of consecutive failed opens that trip a
	// backend. Default: 3.
	Threshold int

	// Cooldown is how long a tripped backend is skipped before one open is
	// tried again. Default: 10s.
	Cooldown time.Duration
}

type backend struct {
	name    string
	engine  audio.Engine
	breaker *breaker
}

// EngineFallback implements [audio.Engine] by opening sessions on the first
// backend that succeeds, in registration order. Only Open fails over; a
// session stays on the backend that created it.
//
// AddFallback must not race with Open; register every backend before use.
type EngineFallback struct {
	cfg      FallbackConfig
	now      func() time.Time
	backends []backend
}

var _ audio.Engine = (*EngineFallback)(nil)

// NewEngineFallback creates an [EngineFallback] preferring primary.
func NewEngineFallback(primary audio.Engine, primaryName string, cfg FallbackConfig) *EngineFallback {
	f := &EngineFallback{cfg: cfg, now: time.Now}
	f.AddFallback(primaryName, primary)
	return f
}

// AddFallback registers engine to be tried after every earlier backend.
func (f *EngineFallback) AddFallback(name string, engine audio.Engine) {
	f.backends = append(f.backends, backend{
		name:    name,
		engine:  engine,
		breaker: newBreaker(name, f.cfg, func() time.Time { return f.now() }),
	})
}

// Backends returns the backend names in the order Open tries them.
func (f *EngineFallback) Backends() []string {
	names := make([]string, len(f.backends))
	for i, b := range f.backends {
		names[i] = b.name
	}
	return names
}

// Open implements [audio.Engine]. The error wraps [ErrAllFailed] and the last
// backend error, or [ErrCircuitOpen] when every backend was skipped.
func (f *EngineFallback) Open(cfg audio.SessionConfig) (audio.Session, error) {
	lastErr := ErrCircuitOpen
	for i, b := range f.backends {
		if !b.breaker.allow() {
			slog.Debug("resilience: skipping tripped backend", "backend", b.name)
			continue
		}
		sess, err := b.engine.Open(cfg)
		b.breaker.record(err)
		if err == nil {
			if i > 0 {
				slog.Info("resilience: using fallback", "backend", b.name)
			}
			return sess, nil
		}
		slog.Warn("resilience: backend failed, trying next", "backend", b.name, "err", err)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// Drivers implements [audio.Engine]. Driver indices refer to the primary
// backend.
func (f *EngineFallback) Drivers() []string { return f.backends[0].engine.Drivers() }
