// Package mock provides in-memory implementations of [audio.Engine],
// [audio.Session], [audio.Sound] and [audio.Channel] for use in unit tests.
//
// All mocks are safe for concurrent use. They record the state every setter
// leaves behind so that tests can assert on it, and they expose exported
// error fields that the test can set to make a specific call fail.
//
// Typical usage:
//
//	eng := &mock.Engine{}
//	sess, _ := eng.Open(audio.SessionConfig{MaxChannels: 8})
//	eng.Session.PlaySoundError = audio.ErrChannelLimit
//
// Stopped channels behave like a real engine's: every later call returns
// [audio.ErrInvalidHandle]. [Channel.Finish] simulates a non-looping sound
// reaching its end.
package mock

import (
	"sync"

	"github.com/MrWong99/soundstage/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Engine  = (*Engine)(nil)
	_ audio.Session = (*Session)(nil)
	_ audio.Sound   = (*Sound)(nil)
	_ audio.Channel = (*Channel)(nil)
)

// ─── Engine ───────────────────────────────────────────────────────────────────

// Engine is a mock implementation of [audio.Engine].
type Engine struct {
	mu sync.Mutex

	// OpenError is returned by [Engine.Open].
	OpenError error

	// DriverNames is returned by [Engine.Drivers]. Defaults to a single
	// "mock" driver when nil.
	DriverNames []string

	// Session is returned by Open. When nil, Open creates a fresh one.
	Session *Session

	// OpenCalls records the config of every Open invocation.
	OpenCalls []audio.SessionConfig
}

// Open implements [audio.Engine].
func (e *Engine) Open(cfg audio.SessionConfig) (audio.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.OpenCalls = append(e.OpenCalls, cfg)
	if e.OpenError != nil {
		return nil, e.OpenError
	}
	if e.Session == nil {
		e.Session = &Session{}
	}
	e.Session.mu.Lock()
	e.Session.Config = cfg
	e.Session.listener = audio.DefaultListener()
	e.Session.mu.Unlock()
	return e.Session, nil
}

// Drivers implements [audio.Engine].
func (e *Engine) Drivers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.DriverNames == nil {
		return []string{"mock"}
	}
	return e.DriverNames
}

// ─── Session ──────────────────────────────────────────────────────────────────

// Session is a mock implementation of [audio.Session].
type Session struct {
	mu sync.Mutex

	// Config is the configuration the session was opened with.
	Config audio.SessionConfig

	// CreateSoundError is returned by [Session.CreateSound].
	CreateSoundError error

	// PlaySoundError is returned by [Session.PlaySound].
	PlaySoundError error

	// SetListenerError is returned by [Session.SetListener].
	SetListenerError error

	// UpdateError is returned by [Session.Update].
	UpdateError error

	// CloseError is returned by [Session.Close].
	CloseError error

	// Hook, when set, is called with the operation name at the start of
	// every Session and Channel method. Tests use it to inject panics.
	Hook func(op string)

	// Sounds records every sound created, in order.
	Sounds []*Sound

	// Channels records every channel started, in order.
	Channels []*Channel

	// ListenerCalls records the attributes passed to SetListener.
	ListenerCalls []audio.ListenerAttributes

	// CallCountUpdate records how many times Update was called.
	CallCountUpdate int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	listener audio.ListenerAttributes
}

func (s *Session) hook(op string) {
	s.mu.Lock()
	h := s.Hook
	s.mu.Unlock()
	if h != nil {
		h(op)
	}
}

// CreateSound implements [audio.Session].
func (s *Session) CreateSound(path string, mode audio.Mode) (audio.Sound, error) {
	s.hook("CreateSound")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateSoundError != nil {
		return nil, s.CreateSoundError
	}
	snd := &Sound{Path: path, CreatedMode: mode}
	s.Sounds = append(s.Sounds, snd)
	return snd, nil
}

// PlaySound implements [audio.Session].
func (s *Session) PlaySound(snd audio.Sound, paused bool) (audio.Channel, error) {
	s.hook("PlaySound")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PlaySoundError != nil {
		return nil, s.PlaySoundError
	}
	ms, _ := snd.(*Sound)
	ch := &Channel{
		session:       s,
		Sound:         ms,
		CurrentVolume: 1,
		CurrentPitch:  1,
		IsPaused:      paused,
	}
	if ms != nil {
		ms.mu.Lock()
		ch.MinDistance, ch.MaxDistance = ms.MinDistance, ms.MaxDistance
		ms.mu.Unlock()
	}
	s.Channels = append(s.Channels, ch)
	return ch, nil
}

// SetListener implements [audio.Session].
func (s *Session) SetListener(l audio.ListenerAttributes) error {
	s.hook("SetListener")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListenerCalls = append(s.ListenerCalls, l)
	if s.SetListenerError != nil {
		return s.SetListenerError
	}
	s.listener = l
	return nil
}

// Listener implements [audio.Session].
func (s *Session) Listener() audio.ListenerAttributes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener
}

// Update implements [audio.Session].
func (s *Session) Update() error {
	s.hook("Update")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountUpdate++
	return s.UpdateError
}

// Driver implements [audio.Session].
func (s *Session) Driver() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Config.Driver
}

// Close implements [audio.Session].
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// LiveChannels returns the channels that have not been stopped.
func (s *Session) LiveChannels() []*Channel {
	s.mu.Lock()
	chans := make([]*Channel, len(s.Channels))
	copy(chans, s.Channels)
	s.mu.Unlock()

	var live []*Channel
	for _, ch := range chans {
		ch.mu.Lock()
		stopped := ch.Stopped
		ch.mu.Unlock()
		if !stopped {
			live = append(live, ch)
		}
	}
	return live
}

// ─── Sound ────────────────────────────────────────────────────────────────────

// Sound is a mock implementation of [audio.Sound].
type Sound struct {
	mu sync.Mutex

	// Path and CreatedMode are the CreateSound arguments.
	Path        string
	CreatedMode audio.Mode

	// MinDistance and MaxDistance hold the last Set3DMinMaxDistance values.
	MinDistance float64
	MaxDistance float64

	// ReleaseError is returned by [Sound.Release].
	ReleaseError error

	// CallCountRelease records how many times Release was called.
	CallCountRelease int
}

// Set3DMinMaxDistance implements [audio.Sound].
func (s *Sound) Set3DMinMaxDistance(min, max float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MinDistance, s.MaxDistance = min, max
	return nil
}

// Mode implements [audio.Sound].
func (s *Sound) Mode() audio.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CreatedMode
}

// Release implements [audio.Sound].
func (s *Sound) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountRelease++
	return s.ReleaseError
}

// Released reports whether Release was called at least once.
func (s *Sound) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountRelease > 0
}

// ─── Channel ──────────────────────────────────────────────────────────────────

// Channel is a mock implementation of [audio.Channel]. The exported Current*
// fields hold the state the last successful setter left behind.
type Channel struct {
	mu      sync.Mutex
	session *Session

	// Sound is the sound this channel plays.
	Sound *Sound

	CurrentVolume float64
	CurrentPitch  float64
	CurrentPan    float64
	LoopCount     int
	Position      audio.Vector
	MinDistance   float64
	MaxDistance   float64
	IsPaused      bool
	SeekMs        int

	// Stopped is set by Stop. A stopped channel rejects every call with
	// [audio.ErrInvalidHandle].
	Stopped bool

	// Finished makes IsPlaying report false, as if the sound ended.
	Finished bool

	// Err, when set, is returned by every setter and by IsPlaying.
	Err error

	// StopError is returned by Stop (the channel is still marked stopped).
	StopError error

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Finish simulates the sound reaching its natural end.
func (c *Channel) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Finished = true
}

// Invalidate makes every later call fail with [audio.ErrInvalidHandle], as if
// the engine reclaimed the channel behind the caller's back.
func (c *Channel) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Stopped = true
}

// begin runs the session hook and validates the handle. The caller must
// unlock c.mu when err is nil.
func (c *Channel) begin(op string) error {
	if c.session != nil {
		c.session.hook(op)
	}
	c.mu.Lock()
	if c.Stopped {
		c.mu.Unlock()
		return audio.ErrInvalidHandle
	}
	if c.Err != nil {
		err := c.Err
		c.mu.Unlock()
		return err
	}
	return nil
}

// Volume implements [audio.Channel].
func (c *Channel) Volume() (float64, error) {
	if err := c.begin("Volume"); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	return c.CurrentVolume, nil
}

// SetVolume implements [audio.Channel].
func (c *Channel) SetVolume(v float64) error {
	if err := c.begin("SetVolume"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.CurrentVolume = v
	return nil
}

// Pitch implements [audio.Channel].
func (c *Channel) Pitch() (float64, error) {
	if err := c.begin("Pitch"); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	return c.CurrentPitch, nil
}

// SetPitch implements [audio.Channel].
func (c *Channel) SetPitch(p float64) error {
	if err := c.begin("SetPitch"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.CurrentPitch = p
	return nil
}

// SetPan implements [audio.Channel].
func (c *Channel) SetPan(p float64) error {
	if err := c.begin("SetPan"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.CurrentPan = p
	return nil
}

// SetLoopCount implements [audio.Channel].
func (c *Channel) SetLoopCount(n int) error {
	if err := c.begin("SetLoopCount"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.LoopCount = n
	return nil
}

// Set3DPosition implements [audio.Channel].
func (c *Channel) Set3DPosition(pos audio.Vector) error {
	if err := c.begin("Set3DPosition"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.Position = pos
	return nil
}

// Set3DMinMaxDistance implements [audio.Channel].
func (c *Channel) Set3DMinMaxDistance(min, max float64) error {
	if err := c.begin("Set3DMinMaxDistance"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.MinDistance, c.MaxDistance = min, max
	return nil
}

// Paused implements [audio.Channel].
func (c *Channel) Paused() (bool, error) {
	if err := c.begin("Paused"); err != nil {
		return false, err
	}
	defer c.mu.Unlock()
	return c.IsPaused, nil
}

// SetPaused implements [audio.Channel].
func (c *Channel) SetPaused(paused bool) error {
	if err := c.begin("SetPaused"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.IsPaused = paused
	return nil
}

// IsPlaying implements [audio.Channel].
func (c *Channel) IsPlaying() (bool, error) {
	if err := c.begin("IsPlaying"); err != nil {
		return false, err
	}
	defer c.mu.Unlock()
	return !c.Finished, nil
}

// SetPosition implements [audio.Channel].
func (c *Channel) SetPosition(ms int) error {
	if err := c.begin("SetPosition"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.SeekMs = ms
	return nil
}

// Stop implements [audio.Channel].
func (c *Channel) Stop() error {
	if c.session != nil {
		c.session.hook("Stop")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStop++
	if c.Stopped {
		return audio.ErrInvalidHandle
	}
	c.Stopped = true
	return c.StopError
}
