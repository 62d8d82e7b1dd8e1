package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
	"github.com/GriffinCanCode/wake-listener/internal/trace"
)

// Readiness polling defaults. Model servers can take a while to load weights after start.
const (
	ReadyMaxRetries = 8
	ReadyBaseDelay  = 250 * time.Millisecond
	ReadyMaxDelay   = 5 * time.Second

	jitter   = 0.2
	maxShift = 6
)

// RetryConfig bounds a retry loop. MaxRetries counts retries after the first attempt.
type RetryConfig struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	IsRetryable func(error) bool // nil means Transient
	Clock       clock.Clock
}

// ReadyRetryConfig polls a recognizer until it has loaded its model.
func ReadyRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: ReadyMaxRetries,
		BaseDelay:  ReadyBaseDelay,
		MaxDelay:   ReadyMaxDelay,
	}
}

// Transient reports whether err is worth another attempt. App errors are judged by code and
// gRPC errors by status. Anything else, such as a dropped connection, is retried.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return apperrors.IsRetryable(appErr)
	}
	s, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// Retry calls fn until it succeeds, fails permanently, or the budget runs out. The last
// error is returned unchanged so callers can still inspect its code.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.normalize()
	log := trace.Logger(ctx)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		switch {
		case err == nil:
			return nil
		case attempt >= cfg.MaxRetries || !cfg.IsRetryable(err):
			return err
		}

		wait := cfg.delay(attempt)
		log.Debug("retrying", "attempt", attempt+1, "of", cfg.MaxRetries, "wait", wait, "error", err)
		if err := sleep(ctx, cfg.Clock, wait); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// delay doubles from BaseDelay, caps at MaxDelay and spreads by ±10%.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := min(c.BaseDelay<<min(attempt, maxShift), c.MaxDelay)
	spread := jitter * (rand.Float64() - 0.5)
	return d + time.Duration(float64(d)*spread)
}

func (c RetryConfig) normalize() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = ReadyBaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.IsRetryable == nil {
		c.IsRetryable = Transient
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}
