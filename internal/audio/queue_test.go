package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkWithSeq(seq uint64) Chunk {
	return Chunk{Format: F32, Float32: []float32{float32(seq)}, Seq: seq}
}

func TestQueueKeepsMostRecent(t *testing.T) {
	const capacity, extra = 5, 7
	q := NewQueue(capacity)

	for i := uint64(1); i <= capacity+extra; i++ {
		q.Push(chunkWithSeq(i))
	}

	assert.Equal(t, capacity, q.Len())
	assert.Equal(t, uint64(extra), q.Dropped())

	for want := uint64(extra + 1); want <= capacity+extra; want++ {
		c, ok := q.Pop(context.Background(), 10*time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, want, c.Seq, "chunks must come out in push order")
	}
}

func TestQueuePopTimeout(t *testing.T) {
	q := NewQueue(2)

	start := time.Now()
	_, ok := q.Pop(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestQueuePopCancelled(t *testing.T) {
	q := NewQueue(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Pop(ctx, time.Second)
	assert.False(t, ok)
}

func TestQueuePopWakesOnPush(t *testing.T) {
	q := NewQueue(2)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(chunkWithSeq(42))
	}()

	c, ok := q.Pop(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, uint64(42), c.Seq)
}

func TestQueueStampsSequence(t *testing.T) {
	q := NewQueue(3)
	q.Push(Chunk{})
	q.Push(Chunk{})

	a, _ := q.Pop(context.Background(), time.Millisecond)
	b, _ := q.Pop(context.Background(), time.Millisecond)
	assert.Less(t, a.Seq, b.Seq)
}

func TestQueueDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultQueueCapacity, NewQueue(0).Cap())
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue(4)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.Push(Chunk{})
			}
		}()
	}

	popped := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
loop:
	for {
		select {
		case <-done:
			break loop
		default:
			if _, ok := q.Pop(context.Background(), time.Millisecond); ok {
				popped++
			}
		}
	}
	popped += q.Len()

	assert.LessOrEqual(t, q.Len(), q.Cap())
	assert.Equal(t, uint64(1000), uint64(popped)+q.Dropped(), "every push is either delivered or counted as dropped")
}
