package resilience

import (
	"time"

	"github.com/benbjohnson/clock"

	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
)

// The scorer is called once per chunk, roughly twelve times a second, so a short outage
// trips the breaker within a second and it probes again soon after.
const (
	ScorerThreshold         = 10
	ScorerResetTimeout      = 5 * time.Second
	ScorerHalfOpenSuccesses = 2
)

// Config holds circuit breaker settings. Zero fields take the scorer values.
type Config struct {
	Name              string
	Threshold         int           // consecutive failures before opening
	ResetTimeout      time.Duration // open period before a probe is let through
	HalfOpenSuccesses int           // probe successes needed to close again
	Clock             clock.Clock
	// IsFailure decides which errors count against the service. Nil counts every error.
	IsFailure func(error) bool
}

// ScorerConfig returns settings for the per-chunk scoring RPC. Rejected input does not trip it.
func ScorerConfig() Config {
	return Config{
		Name:              "scorer",
		Threshold:         ScorerThreshold,
		ResetTimeout:      ScorerResetTimeout,
		HalfOpenSuccesses: ScorerHalfOpenSuccesses,
		IsFailure:         apperrors.IsRetryable,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "breaker"
	}
	c.Threshold = positive(c.Threshold, ScorerThreshold)
	c.HalfOpenSuccesses = positive(c.HalfOpenSuccesses, ScorerHalfOpenSuccesses)
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = ScorerResetTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.IsFailure == nil {
		c.IsFailure = func(error) bool { return true }
	}
	return c
}

func positive(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
