// Package audio defines the capability surface soundstage consumes from an
// audio rendering engine, plus the small value types shared across it.
//
// The abstractions mirror the lifetime of the handles a positional audio
// engine hands out:
//
//   - [Engine]: opens a [Session] on an output driver.
//   - [Session]: decodes assets into [Sound] handles, starts [Channel]
//     playbacks, owns the single listener, and commits batched 3D changes.
//   - [Sound]: a decoded (or streamable) asset. Released explicitly.
//   - [Channel]: a live playback of a Sound. Becomes invalid once it is
//     stopped or finishes; calls on an invalid channel return [ErrInvalidHandle].
//
// The spatial math (panning, distance attenuation, doppler) lives entirely
// behind these interfaces. Callers never compute it.
//
// This package lives under pkg/ because engine adapters outside this module
// are expected to implement [Engine] and friends.
package audio

import "errors"

// Sentinel errors returned by engine implementations. Callers should test for
// them with [errors.Is].
var (
	// ErrInvalidHandle is returned by operations on a [Channel] that was
	// stopped, finished playing, or belongs to a closed [Session].
	ErrInvalidHandle = errors.New("audio: invalid handle")

	// ErrChannelLimit is returned by [Session.PlaySound] when every channel
	// slot configured via [SessionConfig.MaxChannels] is in use.
	ErrChannelLimit = errors.New("audio: channel limit reached")

	// ErrUnsupportedFormat is returned by [Session.CreateSound] when the file
	// extension does not map to a known decoder.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")

	// ErrSessionClosed is returned by every [Session] method after Close.
	ErrSessionClosed = errors.New("audio: session closed")
)

// LoopForever is the loop count that makes a [Channel] repeat until stopped.
// A loop count of 0 plays the sound exactly once.
const LoopForever = -1

// SessionConfig configures [Engine.Open].
type SessionConfig struct {
	// MaxChannels caps the number of simultaneously live channels.
	MaxChannels int

	// Driver selects the output driver by index. Implementations fall back to
	// their default driver when the index is out of range.
	Driver int
}

// Engine is the entry point of an audio backend.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// Open initialises the output driver and returns a ready [Session].
	Open(cfg SessionConfig) (Session, error)

	// Drivers lists the names of the available output drivers, indexed the
	// same way as [SessionConfig.Driver].
	Drivers() []string
}

// Session is an open connection to the audio engine.
type Session interface {
	// CreateSound decodes or opens the asset at path. mode combines the
	// [Mode] flags; exactly one of [Mode2D] and [Mode3D] should be set.
	CreateSound(path string, mode Mode) (Sound, error)

	// PlaySound starts a new [Channel] for s. When paused is true the
	// channel is allocated but produces no output until SetPaused(false).
	PlaySound(s Sound, paused bool) (Channel, error)

	// SetListener replaces the listener attributes. Changes take effect on
	// the next [Session.Update].
	SetListener(l ListenerAttributes) error

	// Listener returns the attributes last passed to SetListener.
	Listener() ListenerAttributes

	// Update commits pending 3D changes (listener and channel positions,
	// distance ranges) and advances the engine clock.
	Update() error

	// Driver reports the index of the driver actually in use.
	Driver() int

	// Close stops every channel and releases the output driver. Close is
	// idempotent.
	Close() error
}

// Sound is a decoded asset owned by exactly one caller.
type Sound interface {
	// Set3DMinMaxDistance sets the default audible range of new channels
	// created from this sound.
	Set3DMinMaxDistance(min, max float64) error

	// Mode returns the flags the sound was created with.
	Mode() Mode

	// Release frees the asset. Channels already playing it become invalid.
	Release() error
}

// Channel is a live playback of a [Sound].
type Channel interface {
	Volume() (float64, error)
	SetVolume(v float64) error

	Pitch() (float64, error)
	SetPitch(p float64) error

	// SetPan positions a 2D channel in the stereo field, -1 (left) to 1 (right).
	SetPan(p float64) error

	// SetLoopCount sets how many additional times the channel repeats after
	// the first pass. [LoopForever] repeats until stopped.
	SetLoopCount(n int) error

	Set3DPosition(pos Vector) error
	Set3DMinMaxDistance(min, max float64) error

	Paused() (bool, error)
	SetPaused(paused bool) error

	// IsPlaying reports whether the channel is still producing audio. A
	// paused channel is still playing.
	IsPlaying() (bool, error)

	// SetPosition seeks to ms milliseconds from the start of the sound.
	SetPosition(ms int) error

	// Stop ends playback. The channel is invalid afterwards.
	Stop() error
}
