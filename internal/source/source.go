// Package source holds the audio source entity and the registry that maps
// caller-chosen identifiers to sources.
package source

import (
	"github.com/MrWong99/soundstage/pkg/audio"
)

// State is the playback state of a [Source].
type State int

const (
	// StateStopped means the source has no live channel.
	StateStopped State = iota
	// StatePlaying means the source has a running channel.
	StatePlaying
	// StatePaused means the source has a channel held by the global pause.
	StatePaused
)

// String returns the lower-case protocol name of s.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Source is a named audio emitter. Its Sound is owned exclusively by the
// source; its Channel is non-nil exactly while State is [StatePlaying] or
// [StatePaused].
type Source struct {
	ID       string
	Filename string
	Is3D     bool

	Position audio.Vector
	Volume   float64
	Looping  bool
	Pitch    float64
	Pan      float64

	MinDistance float64
	MaxDistance float64

	State   State
	Sound   audio.Sound
	Channel audio.Channel
}

// New returns a stopped source at the origin with full volume.
func New(id, filename string, is3D bool, snd audio.Sound) *Source {
	return &Source{
		ID:       id,
		Filename: filename,
		Is3D:     is3D,
		Volume:   1,
		Pitch:    1,
		State:    StateStopped,
		Sound:    snd,
	}
}

// HasChannel reports whether the source holds a live channel.
func (s *Source) HasChannel() bool { return s.Channel != nil }

// Detach drops the channel and marks the source stopped. It does not stop
// the channel.
func (s *Source) Detach() {
	s.Channel = nil
	s.State = StateStopped
}

// Info is a read-only snapshot of a [Source].
type Info struct {
	ID       string
	Filename string
	Is3D     bool
	Position audio.Vector
	Volume   float64
	Looping  bool
	State    State
}

// Snapshot returns the current [Info] of s.
func (s *Source) Snapshot() Info {
	return Info{
		ID:       s.ID,
		Filename: s.Filename,
		Is3D:     s.Is3D,
		Position: s.Position,
		Volume:   s.Volume,
		Looping:  s.Looping,
		State:    s.State,
	}
}
