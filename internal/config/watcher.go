package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// defaultPollInterval is how often [Watcher.Watch] looks at the file.
const defaultPollInterval = 5 * time.Second

// fileStamp identifies one version of the config file on disk.
type fileStamp struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher keeps the last valid config loaded from a file and reloads it when
// the file changes. An edit that fails to parse or validate is logged and the
// previous config stays current.
type Watcher struct {
	path     string
	interval time.Duration

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval used by [Watcher.Watch]. Non-positive
// values keep the default of 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path, which must hold a valid config.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: defaultPollInterval}
	for _, opt := range opts {
		opt(w)
	}
	cfg, stamp, err := readStamped(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.stamp = cfg, stamp
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Watch polls the file until ctx is cancelled and calls apply with the
// previous and the new config after every accepted change. apply runs on the
// Watch goroutine.
func (w *Watcher) Watch(ctx context.Context, apply func(old, new *Config)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		old, cfg, err := w.Reload()
		switch {
		case err != nil:
			slog.Warn("config: reload rejected, keeping previous config", "path", w.path, "err", err)
		case cfg != nil && apply != nil:
			apply(old, cfg)
		}
	}
}

// Reload checks the file once. It returns the replaced and the new config
// when the content changed and is valid, and two nils when nothing changed.
// Touching the file without editing it is not a change.
func (w *Watcher) Reload() (old, cfg *Config, err error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, nil, fmt.Errorf("config: stat %s: %w", w.path, err)
	}
	w.mu.Lock()
	seen := w.stamp
	w.mu.Unlock()
	if info.ModTime().Equal(seen.mtime) {
		return nil, nil, nil
	}

	next, stamp, err := readStamped(w.path)
	if err != nil {
		return nil, nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if stamp.sum == w.stamp.sum {
		w.stamp.mtime = stamp.mtime
		return nil, nil, nil
	}
	old = w.current
	w.current, w.stamp = next, stamp
	slog.Info("config: reloaded", "path", w.path)
	return old, next, nil
}

// readStamped loads and validates path and stamps the bytes it read.
func readStamped(path string) (*Config, fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
