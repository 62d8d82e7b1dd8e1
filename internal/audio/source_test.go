package audio

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
)

type collectSink struct {
	mu     sync.Mutex
	chunks []Chunk
}

func (s *collectSink) Push(c Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, c)
}

func (s *collectSink) snapshot() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Chunk(nil), s.chunks...)
}

type failingReader struct{ after []byte }

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.after) > 0 {
		n := copy(p, r.after)
		r.after = r.after[n:]
		return n, nil
	}
	return 0, errors.New("device unplugged")
}

func waitDone(t *testing.T, src *ReaderSource) {
	t.Helper()
	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("reader source did not finish")
	}
}

func TestReaderSourceChunksAndPads(t *testing.T) {
	// 2.5 chunks of 4 samples
	data := Int16ToBytes([]int16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	src := NewReaderSource("stdin", bytes.NewReader(data), S16, 4)
	sink := &collectSink{}

	require.NoError(t, src.Start(context.Background(), sink))
	waitDone(t, src)

	chunks := sink.snapshot()
	require.Len(t, chunks, 3)
	assert.Equal(t, []int16{1, 2, 3, 4}, chunks[0].Int16)
	assert.Equal(t, []int16{9, 10, 0, 0}, chunks[2].Int16, "short final read is zero-padded")
	for _, c := range chunks {
		assert.Equal(t, 4, c.Len())
		assert.False(t, c.Timestamp.IsZero())
	}
}

func TestReaderSourceFault(t *testing.T) {
	src := NewReaderSource("mic", &failingReader{after: Float32ToBytes([]float32{0.1, 0.2})}, F32, 2)
	sink := &collectSink{}

	require.NoError(t, src.Start(context.Background(), sink))
	waitDone(t, src)

	chunks := sink.snapshot()
	require.Len(t, chunks, 2)
	assert.False(t, chunks[0].Faulted())
	assert.True(t, chunks[1].Faulted())
	assert.True(t, apperrors.IsCode(chunks[1].Err, apperrors.AudioFault))
}

func TestReaderSourceRejectsZeroChunk(t *testing.T) {
	src := NewReaderSource("stdin", bytes.NewReader(nil), F32, 0)
	err := src.Start(context.Background(), &collectSink{})
	assert.True(t, apperrors.IsCode(err, apperrors.SetupFailed))
}

func TestCommandSource(t *testing.T) {
	if _, err := exec.LookPath("head"); err != nil {
		t.Skip("head not available")
	}

	src := NewCommandSource("head -c 64 /dev/zero", S16, 8)
	assert.Equal(t, "command:head", src.Name())

	lv, err := MeasureLevels(context.Background(), src, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, lv.Chunks)
	assert.Equal(t, 32, lv.Samples)
	assert.True(t, lv.Silent())
	assert.NoError(t, src.Close())

	select {
	case <-src.Done():
	default:
		t.Error("Done should be closed once the recorder's output is exhausted")
	}
}

func TestCommandSourceMissingBinary(t *testing.T) {
	src := NewCommandSource("definitely-not-a-recorder-binary", S16, 8)
	err := src.Start(context.Background(), &collectSink{})
	assert.True(t, apperrors.IsCode(err, apperrors.SetupFailed))
	assert.NoError(t, src.Close())
}

func TestMeasureLevels(t *testing.T) {
	data := Float32ToBytes([]float32{0.5, -0.5, 0.5, -0.5, 0.25, -0.25, 0.25, -0.25})
	src := NewReaderSource("fixture", bytes.NewReader(data), F32, 4)

	lv, err := MeasureLevels(context.Background(), src, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, lv.Chunks)
	assert.InDelta(t, 0.5, lv.Peak, 1e-6)
	assert.InDelta(t, 0.3953, lv.RMS, 1e-3)
	assert.False(t, lv.Silent())
}
