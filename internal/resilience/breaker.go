// Package resilience provides the circuit breaker guarding outbound LLM
// calls. A dead API should fail fast instead of stalling every test on a
// two-minute timeout.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of the breaker
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the wrapped function while the breaker
// is open.
var ErrOpen = errors.New("circuit breaker is open")

// Config tunes the breaker. Zero values take the defaults below.
type Config struct {
	// Trip after this many consecutive failures in the closed state.
	FailureThreshold int
	// Stay open this long before probing with a half-open request.
	Cooldown time.Duration
	// Close again after this many consecutive half-open successes.
	ProbeSuccesses int
	// OnStateChange is called on every transition, outside the lock.
	OnStateChange func(from, to State)
}

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 30 * time.Second
	defaultProbeSuccesses   = 2
)

// Breaker implements a consecutive-failure circuit breaker.
type Breaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New creates a breaker, filling unset config fields with defaults.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.ProbeSuccesses <= 0 {
		cfg.ProbeSuccesses = defaultProbeSuccesses
	}
	return &Breaker{cfg: cfg}
}

// State returns the current state, applying the open-to-half-open timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}

// Do runs fn unless the breaker is open. Context cancellation is the
// caller's doing and never counts against the upstream service.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := fn(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	b.record(err == nil)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.currentState(time.Now()) == StateOpen {
		return ErrOpen
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.currentState(now)

	if success {
		switch state {
		case StateClosed:
			b.failures = 0
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.cfg.ProbeSuccesses {
				b.transition(StateClosed, now)
			}
		}
		return
	}

	switch state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		// one failed probe reopens immediately
		b.transition(StateOpen, now)
	}
}

// currentState must be called with the lock held.
func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transition(StateHalfOpen, now)
	}
	return b.state
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	if to == StateOpen {
		b.openedAt = now
	}

	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(from, to)
	}
}
