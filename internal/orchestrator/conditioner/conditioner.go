// Package conditioner prepares chunks for recognition: an optional noise gate followed by
// optional amplification, rate limited so a burst of chunks is not all processed.
package conditioner

import (
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/wake-listener/internal/audio"
	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
)

// Config for the conditioner.
type Config struct {
	SampleRate     int
	NoiseReduction bool
	Amplify        bool
	Gain           float64
	// MinInterval between conditioned chunks. Chunks arriving sooner pass through untouched.
	MinInterval time.Duration
}

// Conditioner is owned by the consumer goroutine.
type Conditioner struct {
	cfg     Config
	limiter *rate.Limiter
	gate    *noiseGate
}

// New creates a conditioner.
func New(cfg Config) *Conditioner {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &Conditioner{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		gate:    newNoiseGate(cfg.SampleRate),
	}
}

// Enabled reports whether any stage is on.
func (c *Conditioner) Enabled() bool {
	return c.cfg.NoiseReduction || c.cfg.Amplify
}

// Condition returns a conditioned copy of chunk. Length, format and sample rate never change.
// On failure the original chunk is returned together with the error.
func (c *Conditioner) Condition(now time.Time, chunk audio.Chunk) (audio.Chunk, error) {
	if chunk.Format != audio.F32 && chunk.Format != audio.S16 {
		return chunk, apperrors.Newf(apperrors.ConditionFailed, "unsupported sample format %s", chunk.Format)
	}
	if chunk.Len() == 0 {
		return chunk, apperrors.New(apperrors.ConditionFailed, "empty chunk")
	}
	if !c.Enabled() || !c.limiter.AllowN(now, 1) {
		return chunk, nil
	}

	var samples []float32
	if chunk.Format == audio.S16 {
		samples = audio.ToFloat32(chunk.Int16)
	} else {
		samples = append([]float32(nil), chunk.Float32...)
	}

	if c.cfg.NoiseReduction {
		c.gate.apply(samples)
	}
	if c.cfg.Amplify {
		amplify(samples, c.cfg.Gain)
	}

	out := chunk
	if chunk.Format == audio.S16 {
		out.Int16 = audio.ToInt16(samples)
	} else {
		out.Float32 = samples
	}
	return out, nil
}

// amplify scales samples in place, zeroing non-finite values and clamping to [-1, 1].
func amplify(samples []float32, gain float64) {
	for i, s := range samples {
		v := float64(s) * gain
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		samples[i] = float32(v)
	}
}
