package events

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
)

const (
	// DefaultBuffer is the number of messages held while the writer is busy.
	DefaultBuffer = 64
	// FlushTimeout bounds how long Close waits for a reader that has stopped reading.
	FlushTimeout = 2 * time.Second
)

// Channel delivers messages to a writer from its own goroutine. Emit never blocks.
type Channel struct {
	w      io.Writer
	encode Encoder
	out    chan Message
	done   chan struct{}
	flush  time.Duration

	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
	written atomic.Uint64
	broken  atomic.Bool
}

// NewChannel starts a channel writing to w. size <= 0 selects DefaultBuffer.
func NewChannel(w io.Writer, encode Encoder, size int) *Channel {
	if size <= 0 {
		size = DefaultBuffer
	}
	c := &Channel{
		w:      w,
		encode: encode,
		out:    make(chan Message, size),
		done:   make(chan struct{}),
		flush:  FlushTimeout,
	}
	go c.run()
	return c
}

// Emit queues a message. When the buffer is full the message is dropped and counted.
func (c *Channel) Emit(m Message) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.out <- m:
	default:
		n := c.dropped.Add(1)
		slog.Debug("event buffer full, message dropped", "type", m.Type, "dropped", n)
	}
}

func (c *Channel) run() {
	defer close(c.done)
	for m := range c.out {
		if c.broken.Load() {
			continue
		}
		line, ok, err := c.encode(m)
		if err != nil {
			slog.Error("failed to encode event", "type", m.Type, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if _, err := c.w.Write(line); err != nil {
			c.broken.Store(true)
			slog.Error("event channel broken, further messages are discarded",
				"error", apperrors.Wrap(err, apperrors.ChannelFailed, "write failed"))
			continue
		}
		c.written.Add(1)
	}
}

// Dropped returns the number of messages dropped on a full buffer.
func (c *Channel) Dropped() uint64 { return c.dropped.Load() }

// Written returns the number of lines written.
func (c *Channel) Written() uint64 { return c.written.Load() }

// Broken reports whether a write has failed.
func (c *Channel) Broken() bool { return c.broken.Load() }

// Close stops accepting messages and waits up to FlushTimeout for the buffered ones to be
// written. A writer still blocked after that is abandoned and the channel marked broken.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.out)
	c.mu.Unlock()

	timer := time.NewTimer(c.flush)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		c.broken.Store(true)
		return apperrors.Newf(apperrors.ChannelFailed, "event writer still blocked after %s", c.flush)
	}
	if c.broken.Load() {
		return apperrors.New(apperrors.ChannelFailed, "event channel broken")
	}
	return nil
}
