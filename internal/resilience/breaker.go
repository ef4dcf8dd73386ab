// Package resilience fails INIT over to secondary audio backends.
//
// [EngineFallback] tries each configured backend in order. Every backend sits
// behind a breaker that stops retrying a device after repeated failed opens
// and lets a single attempt through again once a cooldown has passed.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is reported for a backend skipped because it failed too
// often in a row and its cooldown has not elapsed.
var ErrCircuitOpen = errors.New("resilience: backend circuit is open")

const (
	defaultThreshold = 3
	defaultCooldown  = 10 * time.Second
)

// breaker counts consecutive failures of one backend. After threshold of them
// it rejects calls until cooldown has passed, then admits one trial call whose
// outcome closes or re-opens it.
type breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	failures  int
	openUntil time.Time
	trial     bool
}

func newBreaker(name string, cfg FallbackConfig, now func() time.Time) *breaker {
	b := &breaker{
		name:      name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		now:       now,
	}
	if b.threshold <= 0 {
		b.threshold = defaultThreshold
	}
	if b.cooldown <= 0 {
		b.cooldown = defaultCooldown
	}
	return b
}

// allow reports whether a call may go to the backend.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		return true
	}
	if b.trial || b.now().Before(b.openUntil) {
		return false
	}
	b.trial = true
	return true
}

// record feeds the outcome of an admitted call back into the breaker.
func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wasOpen := b.failures >= b.threshold
	b.trial = false
	if err == nil {
		if wasOpen {
			slog.Info("resilience: backend recovered", "backend", b.name)
		}
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = b.now().Add(b.cooldown)
		if !wasOpen {
			slog.Warn("resilience: backend tripped", "backend", b.name, "failures", b.failures, "cooldown", b.cooldown)
		}
	}
}
