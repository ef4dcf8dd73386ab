package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/MrWong99/soundstage/internal/source"
	"github.com/MrWong99/soundstage/pkg/audio"
)

// PlayParams are the arguments of [Manager.Play]. Zero MinDistance and
// MaxDistance select the configured defaults.
type PlayParams struct {
	Position    audio.Vector
	Volume      float64
	Looping     bool
	MinDistance float64
	MaxDistance float64
}

// Load creates the source id from filename. Loading an id that already exists
// succeeds without touching the existing source.
func (m *Manager) Load(id, filename string, is3D, preload bool) error {
	if m.sess == nil {
		return ErrEngineNotReady
	}
	if _, err := m.sess.registry.Lookup(id); err == nil {
		slog.Debug("manager: source already loaded", "id", id)
		return nil
	}
	if _, err := os.Stat(filename); err != nil {
		slog.Error("manager: audio file not found", "id", id, "file", filename)
		return fmt.Errorf("%w: %s", ErrAssetNotFound, filename)
	}

	mode := audio.Mode2D
	if is3D {
		mode = audio.Mode3D | audio.ModeLinearRolloff
	}
	mode |= audio.ModeLoopNormal
	if !preload {
		mode |= audio.ModeCreateStream
	}

	snd, err := m.sess.backend.CreateSound(filename, mode)
	if err != nil {
		slog.Error("manager: failed to load audio", "id", id, "file", filename, "err", err)
		return fmt.Errorf("%w: %s: %w", ErrLoadFailed, id, err)
	}
	if is3D {
		if err := snd.Set3DMinMaxDistance(m.loadMin, m.loadMax); err != nil {
			_ = snd.Release()
			return fmt.Errorf("%w: %s: %w", ErrLoadFailed, id, err)
		}
	}

	src := source.New(id, filename, is3D, snd)
	if is3D {
		src.MinDistance, src.MaxDistance = m.loadMin, m.loadMax
	}
	if err := m.sess.registry.Register(src); err != nil {
		_ = snd.Release()
		return fmt.Errorf("%w: %s: %w", ErrLoadFailed, id, err)
	}
	slog.Info("manager: loaded audio", "id", id, "file", filename, "3d", is3D, "mode", mode)
	return nil
}

// Play restarts id from the beginning on a fresh channel. The channel starts
// paused when the global pause is active. On success the source is PLAYING,
// or PAUSED under the global pause.
func (m *Manager) Play(id string, p PlayParams) error {
	if m.sess == nil {
		return ErrEngineNotReady
	}
	src, err := m.sess.registry.Lookup(id)
	if err != nil {
		slog.Error("manager: source not loaded", "id", id)
		return fmt.Errorf("%w: %s", ErrNotLoaded, id)
	}

	if src.HasChannel() {
		if err := src.Channel.Stop(); err != nil {
			slog.Debug("manager: previous channel already gone", "id", id, "err", err)
		}
		src.Detach()
	}

	paused := m.sess.paused
	ch, err := m.sess.backend.PlaySound(src.Sound, paused)
	if err != nil {
		slog.Error("manager: failed to get channel", "id", id, "err", err)
		return fmt.Errorf("%w: %s: %w", ErrPlaybackFailed, id, err)
	}

	vol := audio.ClampVolume(p.Volume)
	minD, maxD := p.MinDistance, p.MaxDistance
	if minD == 0 && maxD == 0 {
		minD, maxD = m.playMin, m.playMax
	}
	if err := m.configure(src, ch, vol, p.Looping, p.Position, minD, maxD); err != nil {
		_ = ch.Stop()
		slog.Error("manager: failed to configure channel", "id", id, "err", err)
		return err
	}

	src.Channel = ch
	src.Position = p.Position
	src.Volume = vol
	src.Looping = p.Looping
	src.Pitch = 1
	src.Pan = 0
	if src.Is3D {
		src.MinDistance, src.MaxDistance = minD, maxD
	}
	src.State = source.StatePlaying
	if paused {
		src.State = source.StatePaused
	}

	if err := m.sess.backend.Update(); err != nil {
		slog.Warn("manager: commit after play failed", "id", id, "err", err)
	}
	slog.Info("manager: playing", "id", id, "pos", p.Position, "vol", vol, "loop", p.Looping, "state", src.State)
	return nil
}

func (m *Manager) configure(src *source.Source, ch audio.Channel, vol float64, looping bool, pos audio.Vector, minD, maxD float64) error {
	if err := ch.SetVolume(vol * m.sess.masterVolume); err != nil {
		return backendErr("set volume", err)
	}
	loops := 0
	if looping {
		loops = audio.LoopForever
	}
	if err := ch.SetLoopCount(loops); err != nil {
		return backendErr("set loop count", err)
	}
	if !src.Is3D {
		return nil
	}
	if err := ch.Set3DPosition(pos); err != nil {
		return backendErr("set position", err)
	}
	if err := ch.Set3DMinMaxDistance(minD, maxD); err != nil {
		return backendErr("set distance", err)
	}
	return nil
}

// Stop ends playback of id. It returns [ErrNotPlaying] when there is no
// channel to stop. A channel the backend already invalidated counts as
// stopped.
func (m *Manager) Stop(id string) error {
	src, err := m.lookup(id)
	if err != nil {
		return err
	}
	if !src.HasChannel() {
		return fmt.Errorf("%w: %s", ErrNotPlaying, id)
	}
	if err := src.Channel.Stop(); err != nil {
		if errors.Is(err, audio.ErrInvalidHandle) {
			slog.Debug("manager: channel already stopped", "id", id)
		} else {
			slog.Debug("manager: stop failed, discarding channel", "id", id, "err", err)
		}
	}
	src.Detach()
	slog.Debug("manager: stopped", "id", id)
	return nil
}

// SetPitch sets the playback speed multiplier of a live source.
func (m *Manager) SetPitch(id string, pitch float64) error {
	src, err := m.live(id)
	if err != nil {
		return err
	}
	if err := src.Channel.SetPitch(pitch); err != nil {
		return backendErr("set pitch", err)
	}
	src.Pitch = pitch
	slog.Debug("manager: pitch set", "id", id, "pitch", pitch)
	return nil
}

// SetVolume sets the source volume of a live source and returns the clamped
// value stored. The channel receives it scaled by the master volume.
func (m *Manager) SetVolume(id string, vol float64) (float64, error) {
	src, err := m.live(id)
	if err != nil {
		return 0, err
	}
	vol = audio.ClampVolume(vol)
	if err := src.Channel.SetVolume(vol * m.sess.masterVolume); err != nil {
		return 0, backendErr("set volume", err)
	}
	src.Volume = vol
	slog.Debug("manager: volume set", "id", id, "vol", vol)
	return vol, nil
}

// SetPan pans a live 2D source and returns the clamped value applied.
func (m *Manager) SetPan(id string, pan float64) (float64, error) {
	src, err := m.lookup(id)
	if err != nil {
		return 0, err
	}
	if src.Is3D {
		slog.Warn("manager: cannot pan a 3D source", "id", id)
		return 0, fmt.Errorf("%w: %s", ErrUnsupported3D, id)
	}
	if !src.HasChannel() {
		return 0, fmt.Errorf("%w: %s", ErrNotPlaying, id)
	}
	pan = audio.ClampPan(pan)
	if err := src.Channel.SetPan(pan); err != nil {
		return 0, backendErr("set pan", err)
	}
	src.Pan = pan
	slog.Debug("manager: pan set", "id", id, "pan", pan)
	return pan, nil
}

// Seek moves a live source to ms milliseconds from its start.
func (m *Manager) Seek(id string, ms int) error {
	src, err := m.live(id)
	if err != nil {
		return err
	}
	if err := src.Channel.SetPosition(ms); err != nil {
		return backendErr("seek", err)
	}
	slog.Debug("manager: seeked", "id", id, "ms", ms)
	return nil
}

// UpdatePosition moves a live 3D source. It reports false for unknown ids,
// sources without a channel, 2D sources and backend failures. The change is
// heard after the next commit.
func (m *Manager) UpdatePosition(id string, pos audio.Vector) bool {
	src, err := m.lookup(id)
	if err != nil || !src.HasChannel() || !src.Is3D {
		return false
	}
	if err := src.Channel.Set3DPosition(pos); err != nil {
		slog.Error("manager: failed to update position", "id", id, "err", err)
		return false
	}
	src.Position = pos
	slog.Debug("manager: position updated", "id", id, "pos", pos)
	return true
}
