// Package config provides the configuration schema, loader, and backend
// registry for the soundstage audio controller.
package config

import "log/slog"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its [slog.Level]. Unknown and empty values map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Transport selects how protocol commands reach the controller.
type Transport string

const (
	// TransportStdio reads commands from stdin and answers on stdout.
	TransportStdio Transport = "stdio"

	// TransportWebSocket serves the protocol to one WebSocket client at a time.
	TransportWebSocket Transport = "websocket"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportWebSocket
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Control ControlConfig `yaml:"control"`
	Observe ObserveConfig `yaml:"observe"`
}

// ServerConfig holds process-wide settings.
type ServerConfig struct {
	// LogLevel controls verbosity. It can be changed at runtime by editing
	// the file or with the DEBUG command.
	LogLevel LogLevel `yaml:"log_level"`
}

// EngineConfig selects and tunes the audio backend.
type EngineConfig struct {
	// Backend selects the registered engine implementation
	// (e.g., "software", "mock").
	Backend string `yaml:"backend"`

	// Fallback lists backends tried in order when the primary fails to open
	// a session at INIT.
	Fallback []string `yaml:"fallback"`

	// MaxChannels is the channel cap used when INIT omits it.
	MaxChannels int `yaml:"max_channels"`

	// Driver is the output driver index used when INIT omits it.
	Driver int `yaml:"driver"`

	// SampleRate is the mixing rate in Hz of the software backend.
	SampleRate int `yaml:"sample_rate"`

	// BufferMS is the output buffer length in milliseconds of the software
	// backend.
	BufferMS int `yaml:"buffer_ms"`

	// Preload decodes sounds fully at LOAD. When false every sound streams
	// from disk. Nil means true.
	Preload *bool `yaml:"preload"`

	// MinDistance and MaxDistance are the attenuation range given to 3D
	// sounds at LOAD.
	MinDistance float64 `yaml:"min_distance"`
	MaxDistance float64 `yaml:"max_distance"`

	// PlayMinDistance and PlayMaxDistance are the attenuation range pushed to
	// a 3D channel when PLAY omits it.
	PlayMinDistance float64 `yaml:"play_min_distance"`
	PlayMaxDistance float64 `yaml:"play_max_distance"`
}

// PreloadEnabled reports whether sounds are decoded fully at LOAD.
func (e EngineConfig) PreloadEnabled() bool {
	return e.Preload == nil || *e.Preload
}

// ControlConfig selects the control channel.
type ControlConfig struct {
	// Transport is "stdio" or "websocket".
	Transport Transport `yaml:"transport"`

	// ListenAddr is the TCP address of the WebSocket endpoint (e.g., ":7070").
	// Required when Transport is "websocket".
	ListenAddr string `yaml:"listen_addr"`

	// Path is the HTTP path of the WebSocket endpoint. Default: "/control".
	Path string `yaml:"path"`
}

// ObserveConfig configures the ops HTTP server.
type ObserveConfig struct {
	// ListenAddr is the address serving /metrics, /healthz and /readyz.
	// Empty disables the ops server.
	ListenAddr string `yaml:"listen_addr"`

	// ServiceName is reported in telemetry. Default: "soundstage".
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Engine: EngineConfig{
			Backend:         "software",
			MaxChannels:     64,
			Driver:          0,
			SampleRate:      44100,
			BufferMS:        100,
			MinDistance:     5,
			MaxDistance:     50,
			PlayMinDistance: 1,
			PlayMaxDistance: 20,
		},
		Control: ControlConfig{
			Transport: TransportStdio,
			Path:      "/control",
		},
		Observe: ObserveConfig{ServiceName: "soundstage"},
	}
}
