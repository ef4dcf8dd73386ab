package manager

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/soundstage/pkg/audio"
)

// SetListenerPosition moves the listener and commits. Orientation keeps its
// stored value.
func (m *Manager) SetListenerPosition(pos audio.Vector) error {
	if m.sess == nil {
		return ErrEngineNotReady
	}
	m.sess.listener.Position = pos
	if err := m.pushListener(); err != nil {
		slog.Error("manager: failed to update listener position", "err", err)
		return err
	}
	slog.Debug("manager: listener position updated", "pos", pos)
	return nil
}

// SetListenerOrientation turns the listener and commits. Position keeps its
// stored value.
func (m *Manager) SetListenerOrientation(forward, up audio.Vector) error {
	if m.sess == nil {
		return ErrEngineNotReady
	}
	m.sess.listener.Forward = forward
	m.sess.listener.Up = up
	if err := m.pushListener(); err != nil {
		slog.Error("manager: failed to update listener orientation", "err", err)
		return err
	}
	slog.Debug("manager: listener orientation updated", "forward", forward, "up", up)
	return nil
}

func (m *Manager) pushListener() error {
	m.sess.listener.Velocity = audio.Vector{}
	if err := m.sess.backend.SetListener(m.sess.listener); err != nil {
		return backendErr("set listener", err)
	}
	if err := m.sess.backend.Update(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrBackend, err)
	}
	return nil
}
