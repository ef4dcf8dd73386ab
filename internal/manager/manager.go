// Package manager implements the audio source lifecycle: loading assets into
// named sources, the per-source playback state machine, the global transport
// (pause, resume, stop, master volume), the single listener, and the explicit
// maintenance tick.
//
// All state lives in one session context that INIT creates and Cleanup
// destroys. A [Manager] is not safe for concurrent use; it is owned by the
// single control loop that feeds it commands.
package manager

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/soundstage/internal/source"
	"github.com/MrWong99/soundstage/pkg/audio"
)

// Sentinel errors. Callers classify results with [errors.Is].
var (
	// ErrEngineNotReady is returned by every operation before Init.
	ErrEngineNotReady = errors.New("manager: engine not initialized")

	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("manager: already initialized")

	// ErrAssetNotFound is returned by Load when the file does not exist.
	ErrAssetNotFound = errors.New("manager: asset not found")

	// ErrLoadFailed wraps backend failures while creating a sound.
	ErrLoadFailed = errors.New("manager: load failed")

	// ErrNotLoaded is returned by Play for unknown source ids.
	ErrNotLoaded = errors.New("manager: source not loaded")

	// ErrNotFound is returned for unknown source ids.
	ErrNotFound = errors.New("manager: source not found")

	// ErrNotPlaying is returned by operations that need a live channel.
	ErrNotPlaying = errors.New("manager: source not playing")

	// ErrUnsupported3D is returned when panning a spatial source.
	ErrUnsupported3D = errors.New("manager: pan is not supported on 3D sources")

	// ErrPlaybackFailed is returned by Play when no channel could be started.
	ErrPlaybackFailed = errors.New("manager: playback failed")

	// ErrBackend wraps unexpected backend failures on a live channel.
	ErrBackend = errors.New("manager: backend error")
)

// Default distance ranges.
const (
	DefaultLoadMinDistance = 5.0
	DefaultLoadMaxDistance = 50.0
	DefaultPlayMinDistance = 1.0
	DefaultPlayMaxDistance = 20.0
)

// Option configures a [Manager].
type Option func(*Manager)

// WithLoadDistance sets the min/max distance given to new 3D sounds.
func WithLoadDistance(min, max float64) Option {
	return func(m *Manager) {
		m.loadMin, m.loadMax = min, max
	}
}

// WithPlayDistance sets the min/max distance Play uses when the caller does
// not pass one.
func WithPlayDistance(min, max float64) Option {
	return func(m *Manager) {
		m.playMin, m.playMax = min, max
	}
}

// Manager drives an [audio.Engine] on behalf of the command protocol.
type Manager struct {
	engine audio.Engine

	loadMin, loadMax float64
	playMin, playMax float64

	sess *session
}

// session is the context created by Init. Every component reads and
// mutates it; nothing else holds manager state.
type session struct {
	backend     audio.Session
	maxChannels int
	driver      int

	masterVolume float64
	paused       bool

	registry *source.Registry
	listener audio.ListenerAttributes
}

// New returns a [Manager] that opens sessions on engine.
func New(engine audio.Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:  engine,
		loadMin: DefaultLoadMinDistance,
		loadMax: DefaultLoadMaxDistance,
		playMin: DefaultPlayMinDistance,
		playMax: DefaultPlayMaxDistance,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Init opens a backend session with the given channel cap and driver index.
// An out-of-range driver falls back to driver 0 with a warning.
func (m *Manager) Init(maxChannels, driver int) error {
	if m.sess != nil {
		return ErrAlreadyInitialized
	}

	drivers := m.engine.Drivers()
	slog.Info("manager: audio drivers", "count", len(drivers))
	for i, name := range drivers {
		slog.Info("manager: driver", "index", i, "name", name)
	}
	if driver < 0 || driver >= len(drivers) {
		slog.Warn("manager: invalid driver, using default", "driver", driver)
		driver = 0
	}

	backend, err := m.engine.Open(audio.SessionConfig{MaxChannels: maxChannels, Driver: driver})
	if err != nil {
		return fmt.Errorf("manager: open engine: %w", err)
	}

	s := &session{
		backend:      backend,
		maxChannels:  maxChannels,
		driver:       backend.Driver(),
		masterVolume: 1,
		registry:     source.NewRegistry(),
		listener:     audio.DefaultListener(),
	}
	if err := backend.SetListener(s.listener); err != nil {
		slog.Warn("manager: failed to set default listener", "err", err)
	}
	m.sess = s

	name := ""
	if s.driver >= 0 && s.driver < len(drivers) {
		name = drivers[s.driver]
	}
	slog.Info("manager: initialized", "max_channels", maxChannels, "driver", s.driver, "driver_name", name)
	return nil
}

// Initialized reports whether Init succeeded and Cleanup has not run since.
func (m *Manager) Initialized() bool { return m.sess != nil }

// MasterVolume returns the current master volume, or 0 before Init.
func (m *Manager) MasterVolume() float64 {
	if m.sess == nil {
		return 0
	}
	return m.sess.masterVolume
}

// Paused reports whether the global pause is active.
func (m *Manager) Paused() bool { return m.sess != nil && m.sess.paused }

// Listener returns the stored listener attributes.
func (m *Manager) Listener() audio.ListenerAttributes {
	if m.sess == nil {
		return audio.DefaultListener()
	}
	return m.sess.listener
}

// SourceIDs returns the registered ids in a stable order.
func (m *Manager) SourceIDs() []string {
	if m.sess == nil {
		return nil
	}
	return m.sess.registry.IDs()
}

// SourceInfo returns a snapshot of the source registered under id.
func (m *Manager) SourceInfo(id string) (source.Info, error) {
	src, err := m.lookup(id)
	if err != nil {
		return source.Info{}, err
	}
	return src.Snapshot(), nil
}

// Stats returns the number of registered sources and of sources holding a
// live channel.
func (m *Manager) Stats() (sources, channels int) {
	if m.sess == nil {
		return 0, 0
	}
	for src := range m.sess.registry.All() {
		sources++
		if src.HasChannel() {
			channels++
		}
	}
	return sources, channels
}

// lookup resolves id, mapping registry misses to [ErrNotFound].
func (m *Manager) lookup(id string) (*source.Source, error) {
	if m.sess == nil {
		return nil, ErrEngineNotReady
	}
	src, err := m.sess.registry.Lookup(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return src, nil
}

// live resolves id and requires a live channel.
func (m *Manager) live(id string) (*source.Source, error) {
	src, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if !src.HasChannel() {
		return nil, fmt.Errorf("%w: %s", ErrNotPlaying, id)
	}
	return src, nil
}

func backendErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackend, op, err)
}
