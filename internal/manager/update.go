package manager

import (
	"log/slog"
)

// Tick commits pending 3D changes and reclaims the channels of sources that
// finished on their own. It returns the number of sources moved to STOPPED.
// When the commit fails nothing is reclaimed.
func (m *Manager) Tick() (int, error) {
	if m.sess == nil {
		return 0, ErrEngineNotReady
	}
	if err := m.sess.backend.Update(); err != nil {
		slog.Error("manager: update failed", "err", err)
		return 0, backendErr("update", err)
	}

	reclaimed := 0
	for src := range m.sess.registry.All() {
		if !src.HasChannel() {
			continue
		}
		playing, err := src.Channel.IsPlaying()
		if err == nil && playing {
			continue
		}
		slog.Debug("manager: reclaimed finished channel", "id", src.ID, "err", err)
		src.Detach()
		reclaimed++
	}
	return reclaimed, nil
}

// Cleanup stops everything, releases every sound, and closes the backend
// session. It is safe to call more than once.
func (m *Manager) Cleanup() {
	if m.sess == nil {
		return
	}
	slog.Info("manager: cleaning up")

	m.StopAll()
	for src := range m.sess.registry.All() {
		if src.HasChannel() {
			if err := src.Channel.Stop(); err != nil {
				slog.Error("manager: failed to stop channel", "id", src.ID, "err", err)
			}
			src.Detach()
		}
		if src.Sound != nil {
			if err := src.Sound.Release(); err != nil {
				slog.Error("manager: failed to release sound", "id", src.ID, "err", err)
			}
			src.Sound = nil
		}
	}
	m.sess.registry.Clear()

	if err := m.sess.backend.Close(); err != nil {
		slog.Error("manager: failed to close engine", "err", err)
	}
	m.sess = nil
	slog.Info("manager: engine closed")
}
