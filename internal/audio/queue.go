package audio

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueCapacity holds roughly 400ms of audio at 1280-sample chunks.
const DefaultQueueCapacity = 5

// Queue is a bounded FIFO between the audio producer and the detection loop.
// Push never blocks: when the queue is full the oldest chunk is evicted.
type Queue struct {
	ch      chan Chunk
	mu      sync.Mutex // serializes producers so evict+insert is atomic
	dropped atomic.Uint64
	seq     atomic.Uint64
}

// NewQueue creates a queue holding at most capacity chunks.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{ch: make(chan Chunk, capacity)}
}

// Push enqueues chunk, evicting the oldest entry if the queue is full.
// Chunks without a sequence number are stamped in push order.
func (q *Queue) Push(chunk Chunk) {
	if chunk.Seq == 0 {
		chunk.Seq = q.seq.Add(1)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		select {
		case q.ch <- chunk:
			return
		default:
		}

		select {
		case old := <-q.ch:
			n := q.dropped.Add(1)
			slog.Debug("audio queue full, dropped oldest chunk", "seq", old.Seq, "dropped_total", n)
		default:
			// consumer drained it between the two selects
		}
	}
}

// Pop waits up to timeout for a chunk. It returns false on timeout or cancellation.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Chunk, bool) {
	select {
	case c := <-q.ch:
		return c, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c := <-q.ch:
		return c, true
	case <-timer.C:
		return Chunk{}, false
	case <-ctx.Done():
		return Chunk{}, false
	}
}

// Len returns the number of queued chunks.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Dropped returns how many chunks have been evicted by overflow.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
