package audio

import (
	"context"
	"math"
	"sync"
	"time"
)

// SilenceRMS is the level below which a microphone is considered silent or muted.
const SilenceRMS = 0.001

// Levels summarizes captured audio.
type Levels struct {
	Chunks  int
	Samples int
	RMS     float64
	Peak    float64
}

// Silent reports whether the capture looks muted.
func (l Levels) Silent() bool { return l.RMS < SilenceRMS }

type levelSink struct {
	mu     sync.Mutex
	chunks int
	sumSq  float64
	n      int
	peak   float64
}

func (s *levelSink) Push(c Chunk) {
	if c.Faulted() {
		return
	}
	samples := c.Samples()
	rms := RMS(samples)
	peak := Peak(samples)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks++
	s.sumSq += rms * rms * float64(len(samples))
	s.n += len(samples)
	if peak > s.peak {
		s.peak = peak
	}
}

// MeasureLevels runs src for duration (or until it ends or ctx is cancelled) and reports
// the overall RMS and peak.
func MeasureLevels(ctx context.Context, src Source, duration time.Duration) (Levels, error) {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	sink := &levelSink{}
	if err := src.Start(ctx, sink); err != nil {
		return Levels{}, err
	}

	if d, ok := src.(Ender); ok {
		select {
		case <-ctx.Done():
		case <-d.Done():
		}
	} else {
		<-ctx.Done()
	}
	_ = src.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	l := Levels{Chunks: sink.chunks, Samples: sink.n, Peak: sink.peak}
	if sink.n > 0 {
		l.RMS = math.Sqrt(sink.sumSq / float64(sink.n))
	}
	return l, nil
}
