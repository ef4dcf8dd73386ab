// Package software is a reference [audio.Engine] built on
// github.com/gopxl/beep/v2.
//
// Sounds are decoded with beep's wav, mp3, vorbis and flac decoders. Each
// playing [audio.Channel] is a voice in a [mixer.Mixer]: a decoder (or an
// in-memory buffer for preloaded sounds) behind a looper, a resampler that
// implements pitch, and a gain stage. 3D voices are panned and attenuated by
// a linear-rolloff spatializer that runs on [audio.Session.Update].
//
// Two drivers are available. "speaker" plays through the system audio device
// via beep/speaker; "null" renders nothing and lets the caller pull samples
// from the [Session] directly, which is what tests use.
package software

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/MrWong99/soundstage/pkg/audio"
	"github.com/MrWong99/soundstage/pkg/audio/mixer"
)

// Compile-time interface assertions.
var (
	_ audio.Engine  = (*Engine)(nil)
	_ audio.Session = (*Session)(nil)
	_ audio.Sound   = (*sound)(nil)
	_ audio.Channel = (*voice)(nil)
)

// Driver indices accepted in [audio.SessionConfig.Driver].
const (
	DriverSpeaker = iota
	DriverNull
)

var driverNames = []string{"speaker", "null"}

const (
	// DefaultSampleRate is the mix rate used when [WithSampleRate] is not given.
	DefaultSampleRate = 44100

	// DefaultBuffer is the speaker buffer length used when [WithBuffer] is not
	// given.
	DefaultBuffer = 100 * time.Millisecond

	defaultMaxChannels = 64
	resampleQuality    = 4
)

// Option configures an [Engine].
type Option func(*Engine)

// WithSampleRate sets the mix rate in Hz. Values below 1 are ignored.
func WithSampleRate(hz int) Option {
	return func(e *Engine) {
		if hz > 0 {
			e.sampleRate = beep.SampleRate(hz)
		}
	}
}

// WithBuffer sets the speaker buffer length. Values below 1ms are ignored.
func WithBuffer(d time.Duration) Option {
	return func(e *Engine) {
		if d >= time.Millisecond {
			e.buffer = d
		}
	}
}

// Engine opens software mixing sessions.
type Engine struct {
	sampleRate beep.SampleRate
	buffer     time.Duration
}

// New returns an [Engine] configured by opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		sampleRate: DefaultSampleRate,
		buffer:     DefaultBuffer,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SampleRate returns the rate sessions of e mix at.
func (e *Engine) SampleRate() int { return int(e.sampleRate) }

// Drivers implements [audio.Engine].
func (e *Engine) Drivers() []string { return slices.Clone(driverNames) }

// Open implements [audio.Engine]. An out-of-range driver index falls back to
// [DriverSpeaker] with a warning.
func (e *Engine) Open(cfg audio.SessionConfig) (audio.Session, error) {
	driver := cfg.Driver
	if driver < 0 || driver >= len(driverNames) {
		slog.Warn("software: unknown driver, using default",
			"driver", driver, "default", driverNames[DriverSpeaker])
		driver = DriverSpeaker
	}
	maxChannels := cfg.MaxChannels
	if maxChannels <= 0 {
		maxChannels = defaultMaxChannels
	}

	s := &Session{
		engine:   e,
		driver:   driver,
		listener: audio.DefaultListener(),
		voices:   make(map[uint64]*voice),
	}
	s.mix = mixer.New(mixer.WithMaxVoices(maxChannels), mixer.WithOnFinished(s.finished))

	if driver == DriverSpeaker {
		if err := attachSpeaker(e, s.mix); err != nil {
			return nil, fmt.Errorf("software: open speaker: %w", err)
		}
	}
	slog.Debug("software: session opened",
		"driver", driverNames[driver], "max_channels", maxChannels, "sample_rate", int(e.sampleRate))
	return s, nil
}

// ─── Speaker ─────────────────────────────────────────────────────────────────

// The speaker package drives a single process-wide device that can only be
// initialised once.
var (
	speakerMu   sync.Mutex
	speakerRate beep.SampleRate
)

func attachSpeaker(e *Engine, st beep.Streamer) error {
	speakerMu.Lock()
	defer speakerMu.Unlock()

	if speakerRate == 0 {
		if err := speaker.Init(e.sampleRate, e.sampleRate.N(e.buffer)); err != nil {
			return err
		}
		speakerRate = e.sampleRate
	}
	if speakerRate != e.sampleRate {
		st = beep.Resample(resampleQuality, e.sampleRate, speakerRate, st)
	}
	speaker.Play(st)
	return nil
}

func detachSpeaker() {
	speakerMu.Lock()
	defer speakerMu.Unlock()
	if speakerRate != 0 {
		speaker.Clear()
	}
}
