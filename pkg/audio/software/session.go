package software

import (
	"errors"
	"fmt"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"github.com/MrWong99/soundstage/pkg/audio"
	"github.com/MrWong99/soundstage/pkg/audio/mixer"
)

// Session is an open software mixing session. It is a [beep.Streamer]: with
// the null driver, pulling from it renders the mix.
//
// Every field below except engine and driver is guarded by the mixer lock,
// reached through mix.Do.
type Session struct {
	engine *Engine
	driver int
	mix    *mixer.Mixer

	listener audio.ListenerAttributes
	voices   map[uint64]*voice
	closed   bool
}

// Stream implements [beep.Streamer].
func (s *Session) Stream(samples [][2]float64) (int, bool) { return s.mix.Stream(samples) }

// Err implements [beep.Streamer].
func (s *Session) Err() error { return nil }

// Driver implements [audio.Session].
func (s *Session) Driver() int { return s.driver }

// CreateSound implements [audio.Session]. Unless mode contains
// [audio.ModeCreateStream], the whole asset is decoded into memory now.
func (s *Session) CreateSound(path string, mode audio.Mode) (audio.Sound, error) {
	if s.isClosed() {
		return nil, audio.ErrSessionClosed
	}

	dec, format, err := openFile(path)
	if err != nil {
		return nil, fmt.Errorf("software: create sound: %w", err)
	}
	defer dec.Close()

	snd := &sound{
		session: s,
		path:    path,
		mode:    mode,
		format:  format,
		minDist: 1,
		maxDist: 10000,
	}
	if !mode.Has(audio.ModeCreateStream) {
		buf := beep.NewBuffer(format)
		buf.Append(dec)
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("software: decode %s: %w", path, err)
		}
		snd.buf = buf
	}
	return snd, nil
}

// PlaySound implements [audio.Session]. It returns [audio.ErrChannelLimit]
// when the mixer is full.
func (s *Session) PlaySound(as audio.Sound, paused bool) (audio.Channel, error) {
	snd, ok := as.(*sound)
	if !ok || snd.session != s {
		return nil, fmt.Errorf("software: play sound: %w", audio.ErrInvalidHandle)
	}

	var (
		closed, released bool
		minD, maxD       float64
		listener         audio.ListenerAttributes
	)
	s.mix.Do(func() {
		closed, released = s.closed, snd.released
		minD, maxD = snd.minDist, snd.maxDist
		listener = s.listener
	})
	if closed {
		return nil, audio.ErrSessionClosed
	}
	if released {
		return nil, fmt.Errorf("software: play sound: %w", audio.ErrInvalidHandle)
	}

	src, closer, err := snd.open()
	if err != nil {
		return nil, fmt.Errorf("software: play sound: %w", err)
	}

	v := &voice{
		session: s,
		sound:   snd,
		closer:  closer,
		loop:    &looper{src: src},
		volume:  1,
		pitch:   1,
		paused:  paused,
		minDist: minD,
		maxDist: maxD,
		left:    1,
		right:   1,
	}
	v.baseRatio = float64(snd.format.SampleRate) / float64(s.engine.sampleRate)
	v.resampler = beep.Resample(resampleQuality, snd.format.SampleRate, s.engine.sampleRate, v.loop)
	v.head = v.resampler
	if snd.mode.Has(audio.Mode3D) {
		v.left, v.right = spatialize(listener, v.position, v.minDist, v.maxDist)
	} else {
		v.pan = &effects.Pan{Streamer: v.resampler}
		v.head = v.pan
	}

	id, err := s.mix.Add(v)
	if err != nil {
		v.closeSource()
		if errors.Is(err, mixer.ErrFull) {
			return nil, audio.ErrChannelLimit
		}
		return nil, audio.ErrSessionClosed
	}
	s.mix.Do(func() {
		v.id = id
		if !v.done {
			s.voices[id] = v
		}
	})
	return v, nil
}

// SetListener implements [audio.Session].
func (s *Session) SetListener(l audio.ListenerAttributes) error {
	var err error
	s.mix.Do(func() {
		if s.closed {
			err = audio.ErrSessionClosed
			return
		}
		s.listener = l
	})
	return err
}

// Listener implements [audio.Session].
func (s *Session) Listener() audio.ListenerAttributes {
	var l audio.ListenerAttributes
	s.mix.Do(func() { l = s.listener })
	return l
}

// Update implements [audio.Session]. It recomputes the gains of every 3D
// voice from the current listener and forgets voices that have finished.
func (s *Session) Update() error {
	var err error
	s.mix.Do(func() {
		if s.closed {
			err = audio.ErrSessionClosed
			return
		}
		for id, v := range s.voices {
			if v.done {
				delete(s.voices, id)
				continue
			}
			if v.sound.mode.Has(audio.Mode3D) {
				v.left, v.right = spatialize(s.listener, v.position, v.minDist, v.maxDist)
			}
		}
	})
	return err
}

// Close implements [audio.Session]. It is idempotent.
func (s *Session) Close() error {
	var already bool
	s.mix.Do(func() {
		already = s.closed
		if already {
			return
		}
		s.closed = true
		for id, v := range s.voices {
			v.stopped = true
			v.finish()
			delete(s.voices, id)
		}
	})
	if already {
		return nil
	}
	if s.driver == DriverSpeaker {
		detachSpeaker()
	}
	return s.mix.Close()
}

// finished runs on the output goroutine with the mixer lock held.
func (s *Session) finished(id uint64) {
	delete(s.voices, id)
}

func (s *Session) isClosed() bool {
	var closed bool
	s.mix.Do(func() { closed = s.closed })
	return closed
}

// release stops every voice of snd and removes them from the mix.
func (s *Session) release(snd *sound) error {
	var (
		err     error
		removed []uint64
	)
	s.mix.Do(func() {
		if snd.released {
			err = audio.ErrInvalidHandle
			return
		}
		snd.released = true
		snd.buf = nil
		for id, v := range s.voices {
			if v.sound == snd {
				v.stopped = true
				v.finish()
				delete(s.voices, id)
				removed = append(removed, id)
			}
		}
	})
	for _, id := range removed {
		s.mix.Remove(id)
	}
	return err
}
