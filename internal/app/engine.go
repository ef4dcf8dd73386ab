package app

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/soundstage/internal/config"
	"github.com/MrWong99/soundstage/internal/resilience"
	"github.com/MrWong99/soundstage/pkg/audio"
)

// BuildEngine creates the engine named by ec.Backend from reg. When
// ec.Fallback lists further backends, the result opens sessions on the first
// of them that succeeds.
func BuildEngine(reg *config.Registry, ec config.EngineConfig) (audio.Engine, error) {
	primary, err := reg.CreateEngine(ec)
	if err != nil {
		return nil, fmt.Errorf("app: create backend %q: %w", ec.Backend, err)
	}
	if len(ec.Fallback) == 0 {
		return primary, nil
	}

	f := resilience.NewEngineFallback(primary, ec.Backend, resilience.FallbackConfig{})
	for _, name := range ec.Fallback {
		fc := ec
		fc.Backend = name
		eng, err := reg.CreateEngine(fc)
		if err != nil {
			return nil, fmt.Errorf("app: create fallback backend %q: %w", name, err)
		}
		f.AddFallback(name, eng)
	}
	slog.Debug("app: engine fallback enabled", "order", f.Backends())
	return f, nil
}
