// Package resilience provides the circuit breaker guarding trntxt's
// third-party calls (the departure board source and the SMS gateway).
//
// The breaker is the classic three-state machine (closed → open →
// half-open). It never retries on behalf of the caller — a rejected or
// failed call stays failed; the breaker only stops a broken dependency from
// being hammered while every in-flight call pipeline times out against it.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when the breaker is open and the
// cool-off period has not yet elapsed.
var ErrOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed is the normal state; calls pass through.
	Closed State = iota

	// Open rejects calls immediately until the cool-off elapses.
	Open

	// HalfOpen lets a limited number of probe calls through to decide
	// whether the dependency has recovered.
	HalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name labels the breaker in log messages (e.g., "rail", "sms").
	Name string

	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 5.
	MaxFailures int

	// CoolOff is how long the breaker stays open before probing again.
	// Default: 30s.
	CoolOff time.Duration

	// ProbeBudget is how many half-open probes must succeed in a row to
	// close the breaker. Default: 2.
	ProbeBudget int
}

// Breaker implements the three-state circuit breaker pattern. Safe for
// concurrent use.
type Breaker struct {
	name        string
	maxFailures int
	coolOff     time.Duration
	probeBudget int

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probeLeft   int
}

// NewBreaker creates a [Breaker]; zero-value config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.CoolOff <= 0 {
		cfg.CoolOff = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 2
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		coolOff:     cfg.CoolOff,
		probeBudget: cfg.ProbeBudget,
		state:       Closed,
	}
}

// Do runs fn if the breaker allows it. In the open state it returns
// [ErrOpen] without calling fn; fn's own error is passed through otherwise.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
	return err
}

// admit decides whether a call may proceed, advancing open → half-open when
// the cool-off has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if time.Since(b.lastFailure) < b.coolOff {
			return ErrOpen
		}
		b.state = HalfOpen
		b.probeLeft = b.probeBudget
		slog.Info("circuit breaker probing", "name", b.name)
	}
	return nil
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.lastFailure = time.Now()

	if b.state == HalfOpen {
		// A failed probe re-opens immediately.
		b.state = Open
		b.failures = b.maxFailures
		slog.Warn("circuit breaker re-opened", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.maxFailures && b.state == Closed {
		b.state = Open
		slog.Warn("circuit breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	if b.state == HalfOpen {
		b.probeLeft--
		if b.probeLeft <= 0 {
			b.state = Closed
			b.failures = 0
			slog.Info("circuit breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State returns the breaker's current state. An open breaker whose cool-off
// has elapsed reports [HalfOpen]; the transition itself happens on the next
// [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open && time.Since(b.lastFailure) >= b.coolOff {
		return HalfOpen
	}
	return b.state
}
