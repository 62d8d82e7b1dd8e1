package conditioner

import (
	"math"

	"github.com/GriffinCanCode/wake-listener/internal/audio"
)

const (
	// gateRatio is how far above the noise floor a frame must be to open the gate.
	gateRatio = 2.0
	// attenuation applied to frames below the gate.
	attenuation = 0.1
	// floorRise is the per-second rate at which the floor follows louder input.
	floorRise = 0.05
	// frameDuration of one gate analysis frame, in seconds.
	frameDuration = 0.01
)

// noiseGate attenuates frames whose energy sits near a tracked noise floor. The floor drops
// immediately to quieter frames and rises slowly toward louder ones.
type noiseGate struct {
	frame int
	rise  float64
	floor float64
	init  bool
}

func newNoiseGate(sampleRate int) *noiseGate {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	frame := int(float64(sampleRate) * frameDuration)
	if frame < 1 {
		frame = 1
	}
	return &noiseGate{
		frame: frame,
		rise:  floorRise * frameDuration,
	}
}

// apply gates samples in place.
func (g *noiseGate) apply(samples []float32) {
	for start := 0; start < len(samples); start += g.frame {
		end := min(start+g.frame, len(samples))
		frame := samples[start:end]
		level := audio.RMS(frame)
		if math.IsNaN(level) || math.IsInf(level, 0) {
			continue
		}

		g.track(level)
		if level < g.floor*gateRatio {
			for i := range frame {
				frame[i] *= attenuation
			}
		}
	}
}

func (g *noiseGate) track(level float64) {
	switch {
	case !g.init:
		g.floor = level
		g.init = true
	case level < g.floor:
		g.floor = level
	default:
		g.floor += (level - g.floor) * g.rise
	}
}
