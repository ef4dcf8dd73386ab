// Package mixer sums any number of [beep.Streamer] voices into a single
// stereo stream that an output device can pull from.
//
// A [Mixer] owns the lock that guards every voice it plays. Code that mutates
// voice parameters (volume, pan, pause) runs those mutations through
// [Mixer.Do] so the output goroutine never observes half-applied changes.
package mixer

import (
	"errors"
	"sync"

	"github.com/gopxl/beep/v2"
)

// Compile-time interface assertion.
var _ beep.Streamer = (*Mixer)(nil)

var (
	// ErrFull is returned by [Mixer.Add] when the voice cap is reached.
	ErrFull = errors.New("mixer: voice limit reached")

	// ErrClosed is returned by [Mixer.Add] after [Mixer.Close].
	ErrClosed = errors.New("mixer: closed")
)

// defaultMaxVoices applies when no [WithMaxVoices] option is given.
const defaultMaxVoices = 64

// Option configures a [Mixer] during construction.
type Option func(*Mixer)

// WithMaxVoices caps the number of concurrently mixed voices. Values below 1
// are ignored.
func WithMaxVoices(n int) Option {
	return func(m *Mixer) {
		if n > 0 {
			m.maxVoices = n
		}
	}
}

// WithOnFinished registers fn to be called with the id of every voice that
// drains on its own. fn runs on the output goroutine with the mixer lock
// held; it must not call back into the mixer.
func WithOnFinished(fn func(id uint64)) Option {
	return func(m *Mixer) {
		m.onFinished = fn
	}
}

type slot struct {
	id    uint64
	voice beep.Streamer
}

// Mixer is a [beep.Streamer] that adds its voices sample by sample. It never
// drains on its own: with no voices it streams silence, so it can stay
// attached to an output device for the lifetime of a session.
//
// All exported methods are safe for concurrent use.
type Mixer struct {
	mu         sync.Mutex
	voices     []slot
	seq        uint64
	maxVoices  int
	onFinished func(id uint64)
	buf        [][2]float64
	closed     bool
}

// New creates an empty [Mixer].
func New(opts ...Option) *Mixer {
	m := &Mixer{maxVoices: defaultMaxVoices}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Add starts mixing v and returns the id used to remove it later.
func (m *Mixer) Add(v beep.Streamer) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	if len(m.voices) >= m.maxVoices {
		return 0, ErrFull
	}
	m.seq++
	m.voices = append(m.voices, slot{id: m.seq, voice: v})
	return m.seq, nil
}

// Remove stops mixing the voice with the given id. It reports whether the
// voice was still present.
func (m *Mixer) Remove(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.voices {
		if s.id == id {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of voices currently mixed.
func (m *Mixer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Do runs fn with the mixer lock held. Use it for every mutation of state a
// voice reads while streaming.
func (m *Mixer) Do(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

// Close drops every voice. Later calls to Stream report the mixer as
// drained. Close is idempotent and always returns nil.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.voices = nil
	return nil
}

// Stream implements [beep.Streamer]. It always fills samples completely until
// the mixer is closed.
func (m *Mixer) Stream(samples [][2]float64) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, false
	}

	clear(samples)
	if cap(m.buf) < len(samples) {
		m.buf = make([][2]float64, len(samples))
	}
	buf := m.buf[:len(samples)]

	kept := m.voices[:0]
	var finished []uint64
	for _, s := range m.voices {
		n, drained := fill(s.voice, buf)
		for i := range buf[:n] {
			samples[i][0] += buf[i][0]
			samples[i][1] += buf[i][1]
		}
		if drained {
			finished = append(finished, s.id)
			continue
		}
		kept = append(kept, s)
	}
	clear(m.voices[len(kept):])
	m.voices = kept

	if m.onFinished != nil {
		for _, id := range finished {
			m.onFinished(id)
		}
	}
	return len(samples), true
}

// Err implements [beep.Streamer]. The mixer itself never fails.
func (m *Mixer) Err() error { return nil }

// fill streams from v until buf is full or v drains.
func fill(v beep.Streamer, buf [][2]float64) (n int, drained bool) {
	for n < len(buf) {
		k, ok := v.Stream(buf[n:])
		n += k
		if !ok {
			return n, true
		}
		if k == 0 {
			break
		}
	}
	return n, false
}
