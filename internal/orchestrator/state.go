package orchestrator

import (
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/wake-listener/internal/orchestrator/scores"
)

// State is shared between the detection loop and the reporters.
type State struct {
	started    atomic.Int64 // unix nanos, 0 until listening
	detections atomic.Int64
	scores     *scores.Store
}

func newState(bufferSize int) *State {
	return &State{scores: scores.NewStore(bufferSize)}
}

func (s *State) markStarted(now time.Time) { s.started.Store(now.UnixNano()) }

// Uptime returns the time since listening began, zero before that.
func (s *State) Uptime(now time.Time) time.Duration {
	start := s.started.Load()
	if start == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, start))
}

// Detections returns the number of wake events fired.
func (s *State) Detections() int64 { return s.detections.Load() }

// Scores returns the rolling buffer of recent confidences.
func (s *State) Scores() *scores.Store { return s.scores }
