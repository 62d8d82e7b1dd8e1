// Package recognition defines the engine contract shared by the continuous scorer and the
// streaming recognizers. Concrete engines live in subpackages.
package recognition

import (
	"context"
	"fmt"
	"math"

	"github.com/GriffinCanCode/wake-listener/internal/audio"
)

// Strategy tells the orchestrator how an engine reports.
type Strategy int

const (
	// Continuous engines emit one Score per chunk.
	Continuous Strategy = iota
	// Streaming engines emit Partial hypotheses and one Final per utterance.
	Streaming
)

func (s Strategy) String() string {
	if s == Streaming {
		return "streaming"
	}
	return "continuous"
}

// Kind distinguishes recognition outputs.
type Kind int

const (
	// None means the engine produced nothing for this chunk.
	None Kind = iota
	Partial
	Final
	Score
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Partial:
		return "partial"
	case Final:
		return "final"
	case Score:
		return "score"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// WordSpan is one recognized word. Missing numeric fields are NaN.
type WordSpan struct {
	Word       string
	Confidence float32
	Start      float32 // seconds from stream start
	End        float32
}

// Valid reports whether every numeric field is present and finite.
func (w WordSpan) Valid() bool {
	return finite(w.Confidence) && finite(w.Start) && finite(w.End)
}

// Duration returns End-Start, NaN if either is missing.
func (w WordSpan) Duration() float32 {
	return w.End - w.Start
}

// Output is what an engine returns for one chunk.
type Output struct {
	Kind  Kind
	Text  string
	Words []WordSpan // Final only
	Score float32    // Score only
}

// Engine turns audio chunks into recognition outputs. It is stateful and owned by a single goroutine.
type Engine interface {
	Name() string
	Kind() Strategy
	Feed(ctx context.Context, chunk audio.Chunk) (Output, error)
	Close() error
}

// Resetter is implemented by engines whose model state should be cleared after a detection.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Missing is the value used for absent numeric fields.
var Missing = float32(math.NaN())

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
