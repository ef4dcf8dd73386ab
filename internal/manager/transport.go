package manager

import (
	"log/slog"

	"github.com/MrWong99/soundstage/internal/source"
	"github.com/MrWong99/soundstage/pkg/audio"
)

// PauseAll sets the global pause and pauses every PLAYING source. Sources
// that fail to pause are logged and left as they are.
func (m *Manager) PauseAll() {
	if m.sess == nil {
		return
	}
	m.sess.paused = true
	for src := range m.sess.registry.All() {
		if !src.HasChannel() || src.State != source.StatePlaying {
			continue
		}
		if err := src.Channel.SetPaused(true); err != nil {
			slog.Error("manager: failed to pause", "id", src.ID, "err", err)
			continue
		}
		src.State = source.StatePaused
	}
	slog.Info("manager: all audio paused")
}

// ResumeAll clears the global pause and resumes every PAUSED source.
func (m *Manager) ResumeAll() {
	if m.sess == nil {
		return
	}
	m.sess.paused = false
	for src := range m.sess.registry.All() {
		if !src.HasChannel() || src.State != source.StatePaused {
			continue
		}
		if err := src.Channel.SetPaused(false); err != nil {
			slog.Error("manager: failed to resume", "id", src.ID, "err", err)
			continue
		}
		src.State = source.StatePlaying
	}
	slog.Info("manager: all audio resumed")
}

// StopAll stops every registered source. Sources without a channel are
// skipped.
func (m *Manager) StopAll() {
	if m.sess == nil {
		return
	}
	for _, id := range m.sess.registry.IDs() {
		if err := m.Stop(id); err != nil {
			slog.Debug("manager: stop skipped", "id", id, "err", err)
		}
	}
	slog.Info("manager: all audio stopped")
}

// SetMasterVolume clamps and stores v, then re-applies the effective volume
// of every source holding a channel. It returns the stored value.
func (m *Manager) SetMasterVolume(v float64) float64 {
	v = audio.ClampVolume(v)
	if m.sess == nil {
		return v
	}
	m.sess.masterVolume = v
	for src := range m.sess.registry.All() {
		if !src.HasChannel() {
			continue
		}
		if err := src.Channel.SetVolume(src.Volume * v); err != nil {
			slog.Debug("manager: failed to apply master volume", "id", src.ID, "err", err)
		}
	}
	slog.Info("manager: master volume set", "vol", v)
	return v
}

// ReleaseAllSounds releases every sound and empties the registry. Channels
// of released sounds are invalid afterwards. The session stays open.
func (m *Manager) ReleaseAllSounds() {
	if m.sess == nil {
		return
	}
	for src := range m.sess.registry.All() {
		if src.Sound != nil {
			if err := src.Sound.Release(); err != nil {
				slog.Debug("manager: failed to release sound", "id", src.ID, "err", err)
			}
			src.Sound = nil
		}
		src.Detach()
	}
	m.sess.registry.Clear()
	slog.Info("manager: all sounds released")
}
