// Package audio captures PCM audio and moves it between the producer and the detection loop.
package audio

import (
	"time"

	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
)

// Format is the sample encoding of a chunk.
type Format int

const (
	// F32 samples are float32 in [-1, 1].
	F32 Format = iota
	// S16 samples are signed 16-bit integers.
	S16
)

func (f Format) String() string {
	switch f {
	case F32:
		return "f32"
	case S16:
		return "s16"
	default:
		return "unknown"
	}
}

// ParseFormat maps a config value ("f32", "s16") to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "f32", "float32":
		return F32, nil
	case "s16", "int16":
		return S16, nil
	default:
		return 0, apperrors.Newf(apperrors.AudioInvalid, "unsupported sample format %q", s)
	}
}

// Chunk is a fixed-length block of mono PCM samples. Exactly one of Float32 or Int16 is populated,
// matching Format. A chunk with Err set carries a producer fault instead of audio.
type Chunk struct {
	Format    Format
	Float32   []float32
	Int16     []int16
	Seq       uint64
	Timestamp time.Time
	Err       error
}

// Len returns the number of samples.
func (c Chunk) Len() int {
	if c.Format == S16 {
		return len(c.Int16)
	}
	return len(c.Float32)
}

// Faulted reports whether the chunk is a fault sentinel.
func (c Chunk) Faulted() bool { return c.Err != nil }

// Clone returns a deep copy so the caller may mutate samples freely.
func (c Chunk) Clone() Chunk {
	out := c
	if c.Float32 != nil {
		out.Float32 = append([]float32(nil), c.Float32...)
	}
	if c.Int16 != nil {
		out.Int16 = append([]int16(nil), c.Int16...)
	}
	return out
}

// Samples returns the chunk as float32 samples in [-1, 1] regardless of format.
func (c Chunk) Samples() []float32 {
	if c.Format == S16 {
		return ToFloat32(c.Int16)
	}
	return c.Float32
}

// FaultChunk builds a sentinel chunk that reports err to the consumer.
func FaultChunk(err error) Chunk {
	return Chunk{Err: err, Timestamp: time.Now()}
}
