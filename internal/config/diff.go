package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only the log level is applied without a restart; the other flags let the
// caller warn that a change needs one.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	EngineChanged  bool
	ControlChanged bool
	ObserveChanged bool
}

// RequiresRestart reports whether d contains changes that only take effect
// after a restart.
func (d ConfigDiff) RequiresRestart() bool {
	return d.EngineChanged || d.ControlChanged || d.ObserveChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.EngineChanged = !engineEqual(old.Engine, new.Engine)
	d.ControlChanged = old.Control != new.Control
	d.ObserveChanged = old.Observe != new.Observe
	return d
}

// engineEqual compares two engine sections, treating a nil Preload as true
// and a nil Fallback as empty.
func engineEqual(a, b EngineConfig) bool {
	if a.PreloadEnabled() != b.PreloadEnabled() || !slices.Equal(a.Fallback, b.Fallback) {
		return false
	}
	a.Preload, b.Preload = nil, nil
	a.Fallback, b.Fallback = nil, nil
	return reflect.DeepEqual(a, b)
}
