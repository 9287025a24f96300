// Package ratelimit implements a per-client sliding-window rate limiter.
// Thread-safe. No background goroutines — windows are pruned lazily on each
// Allow call; idle clients can be dropped via PruneIdle.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client has exhausted its window.
var ErrRateLimited = errors.New("rate limit exceeded")

const (
	defaultMaxCommands = 10
	defaultWindow      = 5 * time.Minute
)

// Config configures the sliding-window rate limiter.
type Config struct {
	MaxCommands int           // Commands allowed per window. 0 = 10.
	Window      time.Duration // Window duration. 0 = 5 minutes.
}

// Limiter is a per-client sliding-window rate limiter. Each client gets an
// independent window; one client cannot exhaust another's quota. The window
// boundary moves continuously with wall-clock time, so a burst straddling a
// fixed boundary cannot double the effective rate.
type Limiter struct {
	mu      sync.Mutex
	clients map[string][]time.Time
	max     int
	window  time.Duration

	now func() time.Time // Injectable clock for tests.
}

// NewLimiter creates a rate limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	max := cfg.MaxCommands
	if max <= 0 {
		max = defaultMaxCommands
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}
	return &Limiter{
		clients: make(map[string][]time.Time),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// Allow checks whether the client may run another command. Records the call
// on success. Returns ErrRateLimited without recording when the window is
// full. The prune+check+append sequence is atomic per call.
func (l *Limiter) Allow(clientID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.clients[clientID][:0]
	for _, ts := range l.clients[clientID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.max {
		l.clients[clientID] = recent
		return ErrRateLimited
	}

	l.clients[clientID] = append(recent, now)
	return nil
}

// PruneIdle removes clients whose entire window has expired. Returns the
// number of clients dropped. Called periodically by the retention job so the
// map does not grow without bound across reconnects.
func (l *Limiter) PruneIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	dropped := 0
	for id, stamps := range l.clients {
		idle := true
		for _, ts := range stamps {
			if ts.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(l.clients, id)
			dropped++
		}
	}
	return dropped
}
