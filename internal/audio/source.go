package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
)

// Sink receives chunks from a producer. Push must not block.
type Sink interface {
	Push(Chunk)
}

// Source produces fixed-size chunks into a Sink.
type Source interface {
	Name() string
	// Start launches the producer and returns once it is running.
	Start(ctx context.Context, sink Sink) error
	Close() error
}

// Ender is implemented by sources that can run out of audio on their own, such as a pipe reaching
// EOF or a recorder process exiting. Done is closed after the last chunk has been pushed.
type Ender interface {
	Done() <-chan struct{}
}

// ReaderSource reads raw little-endian PCM from an io.Reader.
type ReaderSource struct {
	name      string
	r         io.Reader
	format    Format
	chunkSize int

	done     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewReaderSource reads chunkSize samples of format per chunk from r.
func NewReaderSource(name string, r io.Reader, format Format, chunkSize int) *ReaderSource {
	return &ReaderSource{
		name:      name,
		r:         r,
		format:    format,
		chunkSize: chunkSize,
		done:      make(chan struct{}),
	}
}

// Name implements Source.
func (s *ReaderSource) Name() string { return s.name }

// Start implements Source.
func (s *ReaderSource) Start(ctx context.Context, sink Sink) error {
	if s.chunkSize <= 0 {
		return apperrors.Newf(apperrors.SetupFailed, "invalid chunk size %d", s.chunkSize)
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx, sink)
	return nil
}

func (s *ReaderSource) run(ctx context.Context, sink Sink) {
	defer close(s.done)

	buf := make([]byte, s.chunkSize*s.format.BytesPerSample())
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := io.ReadFull(s.r, buf)
		if n > 0 {
			if n < len(buf) {
				slog.Debug("short read, zero-padding chunk", "source", s.name, "bytes", n, "want", len(buf))
			}
			chunk := decodeChunk(s.format, buf[:n], s.chunkSize)
			chunk.Timestamp = time.Now()
			sink.Push(chunk)
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			slog.Info("audio source ended", "source", s.name)
			return
		case ctx.Err() != nil:
			return
		default:
			sink.Push(FaultChunk(apperrors.Wrapf(err, apperrors.AudioFault, "read from %s", s.name)))
			return
		}
	}
}

// Done implements Ender.
func (s *ReaderSource) Done() <-chan struct{} { return s.done }

// Close stops reading. A reader blocked in Read is released only if it is also an io.Closer.
func (s *ReaderSource) Close() error {
	var err error
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if c, ok := s.r.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
