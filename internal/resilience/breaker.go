// Package resilience guards calls to the remote recognizers with a circuit breaker and retries.
package resilience

import (
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
)

// State is the breaker state.
type State uint32

const (
	Closed   State = iota // calls flow
	Open                  // calls fail fast
	HalfOpen              // probing recovery
)

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

// ErrOpen is returned without calling the protected function while the breaker is open.
var ErrOpen = apperrors.New(apperrors.Unavailable, "circuit breaker open")

// Counts is a snapshot of the breaker's counters.
type Counts struct {
	ConsecutiveFailures int
	ProbeSuccesses      int
	Trips               int
}

// Breaker stops calling a failing scorer for a while so the detection loop does not stall on
// per-chunk timeouts. Errors rejected by Config.IsFailure (bad input, say) never trip it.
type Breaker struct {
	cfg Config

	mu         sync.Mutex
	state      State
	counts     Counts
	lastFailed time.Time
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Allow returns nil if a call may proceed. An open breaker whose reset timeout has passed
// moves to half-open and lets the call through as a probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return nil
	}
	if !b.lastFailed.IsZero() && b.cfg.Clock.Since(b.lastFailed) <= b.cfg.ResetTimeout {
		return ErrOpen
	}
	b.setState(HalfOpen)
	return nil
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		b.counts.ConsecutiveFailures = 0
	case HalfOpen:
		b.counts.ProbeSuccesses++
		if b.counts.ProbeSuccesses >= b.cfg.HalfOpenSuccesses {
			b.setState(Closed)
		}
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailed = b.cfg.Clock.Now()
	b.counts.ConsecutiveFailures++

	switch b.state {
	case HalfOpen:
		b.setState(Open)
	case Closed:
		if b.counts.ConsecutiveFailures >= b.cfg.Threshold {
			b.setState(Open)
		}
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) snapshot() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset forces the breaker closed, e.g. once the service reports it is serving again.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(Closed)
}

// setState must be called with mu held.
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.counts.ProbeSuccesses = 0

	log := slog.With("breaker", b.cfg.Name, "from", from, "to", to)
	switch to {
	case Closed:
		b.counts.ConsecutiveFailures = 0
		log.Info("circuit breaker closed")
	case Open:
		b.counts.Trips++
		log.Warn("circuit breaker opened", "failures", b.counts.ConsecutiveFailures, "retry_after", b.cfg.ResetTimeout)
	case HalfOpen:
		log.Info("circuit breaker probing")
	}
}

func (b *Breaker) record(err error) {
	switch {
	case err == nil:
		b.Success()
	case b.cfg.IsFailure(err):
		b.Failure()
	default:
		// The call reached the server, so the service itself is healthy.
		b.Success()
	}
}

// Execute runs fn under breaker protection.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// ExecuteWithResult is Execute for functions that return a value.
func ExecuteWithResult[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	result, err := fn()
	b.record(err)
	if err != nil {
		return zero, err
	}
	return result, nil
}
