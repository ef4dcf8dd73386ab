package software

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"github.com/MrWong99/soundstage/pkg/audio"
)

// voice is one playing channel. It is mixed by the session's mixer, so all of
// its fields are guarded by the mixer lock.
type voice struct {
	session *Session
	sound   *sound
	id      uint64

	loop      *looper
	closer    io.Closer
	resampler *beep.Resampler
	pan       *effects.Pan // nil for 3D voices
	head      beep.Streamer
	baseRatio float64

	volume   float64
	pitch    float64
	panValue float64
	paused   bool

	position         audio.Vector
	minDist, maxDist float64
	left, right      float64

	// done is set once the voice produces no more audio. stopped
	// additionally marks the handle invalid.
	done    bool
	stopped bool
}

// Stream implements [beep.Streamer].
func (v *voice) Stream(samples [][2]float64) (int, bool) {
	if v.done {
		return 0, false
	}
	if v.paused {
		clear(samples)
		return len(samples), true
	}
	n, ok := v.head.Stream(samples)
	gl, gr := v.volume, v.volume
	if v.pan == nil {
		gl *= v.left
		gr *= v.right
	}
	for i := range samples[:n] {
		samples[i][0] *= gl
		samples[i][1] *= gr
	}
	if !ok {
		v.finish()
	}
	return n, ok
}

// Err implements [beep.Streamer].
func (v *voice) Err() error { return v.loop.err }

// finish marks the voice done and closes a streamed source.
func (v *voice) finish() {
	v.done = true
	v.closeSource()
}

func (v *voice) closeSource() {
	if v.closer != nil {
		_ = v.closer.Close()
		v.closer = nil
	}
}

// do runs fn under the mixer lock after checking that the handle is valid.
func (v *voice) do(fn func() error) error {
	var err error
	v.session.mix.Do(func() {
		if v.stopped || v.sound.released || v.session.closed {
			err = audio.ErrInvalidHandle
			return
		}
		err = fn()
	})
	return err
}

func (v *voice) Volume() (float64, error) {
	var vol float64
	err := v.do(func() error {
		vol = v.volume
		return nil
	})
	return vol, err
}

func (v *voice) SetVolume(vol float64) error {
	return v.do(func() error {
		v.volume = audio.ClampVolume(vol)
		return nil
	})
}

func (v *voice) Pitch() (float64, error) {
	var p float64
	err := v.do(func() error {
		p = v.pitch
		return nil
	})
	return p, err
}

// SetPitch changes playback speed by scaling the resampling ratio.
func (v *voice) SetPitch(p float64) error {
	if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return fmt.Errorf("software: pitch must be positive, got %v", p)
	}
	return v.do(func() error {
		v.pitch = p
		v.resampler.SetRatio(v.baseRatio * p)
		return nil
	})
}

func (v *voice) SetPan(p float64) error {
	return v.do(func() error {
		v.panValue = audio.ClampPan(p)
		if v.pan != nil {
			v.pan.Pan = v.panValue
		}
		return nil
	})
}

func (v *voice) SetLoopCount(n int) error {
	return v.do(func() error {
		v.loop.count = n
		return nil
	})
}

// Set3DPosition stores the voice position. It is heard after the next
// [Session.Update].
func (v *voice) Set3DPosition(pos audio.Vector) error {
	return v.do(func() error {
		v.position = pos
		return nil
	})
}

func (v *voice) Set3DMinMaxDistance(min, max float64) error {
	if err := checkRange(min, max); err != nil {
		return err
	}
	return v.do(func() error {
		v.minDist, v.maxDist = min, max
		return nil
	})
}

func (v *voice) Paused() (bool, error) {
	var p bool
	err := v.do(func() error {
		p = v.paused
		return nil
	})
	return p, err
}

func (v *voice) SetPaused(paused bool) error {
	return v.do(func() error {
		v.paused = paused
		return nil
	})
}

// IsPlaying reports false once the voice has drained.
func (v *voice) IsPlaying() (bool, error) {
	var playing bool
	err := v.do(func() error {
		playing = !v.done
		return nil
	})
	return playing, err
}

// SetPosition seeks the source. Positions past the end are clamped.
func (v *voice) SetPosition(ms int) error {
	return v.do(func() error {
		if v.done {
			return audio.ErrInvalidHandle
		}
		p := v.sound.format.SampleRate.N(time.Duration(ms) * time.Millisecond)
		p = max(0, min(p, v.loop.src.Len()))
		if err := v.loop.src.Seek(p); err != nil {
			return fmt.Errorf("software: seek: %w", err)
		}
		return nil
	})
}

func (v *voice) Stop() error {
	err := v.do(func() error {
		v.stopped = true
		v.finish()
		delete(v.session.voices, v.id)
		return nil
	})
	if err != nil {
		return err
	}
	v.session.mix.Remove(v.id)
	return nil
}

// ─── Looping ─────────────────────────────────────────────────────────────────

// looper replays src from the start while count is non-zero. A negative
// count loops forever.
type looper struct {
	src   beep.StreamSeeker
	count int
	err   error
}

func (l *looper) Stream(samples [][2]float64) (n int, ok bool) {
	if l.err != nil {
		return 0, false
	}
	for len(samples) > 0 {
		sn, sok := l.src.Stream(samples)
		n += sn
		samples = samples[sn:]
		if sok && sn > 0 {
			continue
		}
		if err := l.src.Err(); err != nil {
			l.err = err
			return n, n > 0
		}
		if l.count == 0 || l.src.Len() == 0 {
			return n, n > 0
		}
		if l.count > 0 {
			l.count--
		}
		if err := l.src.Seek(0); err != nil {
			l.err = err
			return n, n > 0
		}
	}
	return n, true
}

func (l *looper) Err() error { return l.err }
