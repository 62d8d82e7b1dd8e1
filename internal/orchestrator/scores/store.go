// Package scores keeps the rolling window of recent recognition scores read by the reporters.
package scores

import (
	"math"

	"github.com/GriffinCanCode/wake-listener/internal/syncx"
)

// DefaultSize is the number of samples kept when no size is configured.
const DefaultSize = 100

// Stats summarizes the buffer at one instant.
type Stats struct {
	Average float64
	Maximum float64
	Count   int
}

type ring struct {
	values []float32
	next   int
	full   bool
}

// Store is a bounded rolling buffer of scores. The detection loop writes, reporters read.
type Store struct {
	buf *syncx.RWGuard[ring]
}

// NewStore creates a store holding the most recent size samples.
func NewStore(size int) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	return &Store{buf: syncx.NewGuard(ring{values: make([]float32, size)})}
}

// Add records a score. Non-finite values are ignored.
func (s *Store) Add(v float32) {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return
	}
	s.buf.Write(func(r *ring) {
		r.values[r.next] = v
		r.next = (r.next + 1) % len(r.values)
		if r.next == 0 {
			r.full = true
		}
	})
}

// Len returns the number of stored samples.
func (s *Store) Len() int {
	return syncx.View(s.buf, func(r ring) int { return r.len() })
}

// Values returns the stored samples oldest first.
func (s *Store) Values() []float32 {
	return syncx.View(s.buf, func(r ring) []float32 {
		out := make([]float32, 0, r.len())
		if r.full {
			out = append(out, r.values[r.next:]...)
		}
		return append(out, r.values[:r.next]...)
	})
}

// Stats returns average, maximum and count. All zero when empty.
func (s *Store) Stats() Stats {
	return syncx.View(s.buf, func(r ring) Stats {
		n := r.len()
		if n == 0 {
			return Stats{}
		}
		var sum float64
		peak := math.Inf(-1)
		for _, v := range r.values[:n] {
			f := float64(v)
			sum += f
			if f > peak {
				peak = f
			}
		}
		return Stats{Average: sum / float64(n), Maximum: peak, Count: n}
	})
}

func (r ring) len() int {
	if r.full {
		return len(r.values)
	}
	return r.next
}
