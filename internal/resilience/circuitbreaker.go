// Package resilience provides the circuit breaker guarding backend write
// paths.
//
// The proctoring photo loop runs for the whole interview; when the platform
// rejects uploads repeatedly the loop must keep capturing without hammering
// the backend. [Breaker] trips after a run of consecutive failures, suppresses
// calls for a cooldown, then lets a few probes through before closing again.
//
// Safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is suppressing calls.
var ErrOpen = errors.New("resilience: breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects calls with [ErrOpen] until the cooldown elapses.
	Open

	// Probing lets a limited number of calls through after the cooldown. The
	// breaker closes once enough of them succeed and re-opens on the first
	// failure.
	Probing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Probing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in log lines.
	Name string

	// Threshold is the run of consecutive failures that trips the breaker.
	// Default: 5.
	Threshold int

	// Cooldown is how long the breaker suppresses calls after tripping.
	// Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful calls required to close again after
	// the cooldown. Default: 3.
	Probes int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	probes    int
	log       *slog.Logger

	// now is replaced in tests.
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	trippedAt time.Time
	inFlight  int
	succeeded int
}

// NewBreaker builds a closed [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		probes:    cfg.Probes,
		log:       cfg.Logger,
		now:       time.Now,
	}
}

// Do runs fn unless the breaker is suppressing calls, in which case it
// returns [ErrOpen] without invoking fn. ctx is passed through to fn
// untouched; a ctx error returned by fn counts as a failure.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.settle(err == nil)
	return err
}

// admit decides whether a call may proceed and does the open→probing
// transition.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.trippedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = Probing
		b.inFlight = 0
		b.succeeded = 0
		b.log.Info("breaker probing", "name", b.name)
	case Probing:
		if b.inFlight+b.succeeded >= b.probes {
			return ErrOpen
		}
	}

	if b.state == Probing {
		b.inFlight++
	}
	return nil
}

// settle records the outcome of an admitted call.
func (b *Breaker) settle(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Probing:
		b.inFlight--
		if !ok {
			b.trip()
			return
		}
		b.succeeded++
		if b.succeeded >= b.probes {
			b.state = Closed
			b.failures = 0
			b.log.Info("breaker closed", "name", b.name)
		}

	case Closed:
		if !ok {
			b.failures++
			if b.failures >= b.threshold {
				b.trip()
			}
			return
		}
		b.failures = 0
	}
}

// trip moves to Open. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = Open
	b.trippedAt = b.now()
	b.log.Warn("breaker opened", "name", b.name, "failures", b.failures)
}

// State reports the current state. An open breaker whose cooldown has elapsed
// reports [Probing]; the stored transition happens on the next [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.trippedAt) >= b.cooldown {
		return Probing
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.inFlight = 0
	b.succeeded = 0
}
