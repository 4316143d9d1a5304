package llm

import (
	"context"
	"errors"
	"time"
)

// ErrChunkTimeout is returned when no data is received within the timeout period
var ErrChunkTimeout = errors.New("stream chunk timeout: no data received")

// ErrOpenTimeout is returned when the first chunk does not arrive in time
var ErrOpenTimeout = errors.New("stream open timeout: backend did not respond")

// StreamGuard reads a chunk channel with two deadlines: one for the first
// chunk and one for every gap after that. The caller's context still cancels.
type StreamGuard struct {
	src          <-chan StreamChunk
	openTimeout  time.Duration
	chunkTimeout time.Duration
	started      bool
}

// NewStreamGuard wraps src. A zero timeout disables that check.
func NewStreamGuard(src <-chan StreamChunk, openTimeout, chunkTimeout time.Duration) *StreamGuard {
	return &StreamGuard{src: src, openTimeout: openTimeout, chunkTimeout: chunkTimeout}
}

// Next returns the next chunk. ok is false when the source is closed or an
// error (cancellation, open timeout, chunk timeout) ended the read.
func (g *StreamGuard) Next(ctx context.Context) (chunk StreamChunk, ok bool, err error) {
	timeout := g.chunkTimeout
	timeoutErr := ErrChunkTimeout
	if !g.started {
		timeout = g.openTimeout
		timeoutErr = ErrOpenTimeout
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case c, more := <-g.src:
		if !more {
			return StreamChunk{}, false, nil
		}
		g.started = true
		return c, true, nil
	case <-ctx.Done():
		return StreamChunk{}, false, ctx.Err()
	case <-timer:
		return StreamChunk{}, false, timeoutErr
	}
}

// Drain discards whatever the producer still sends so its goroutine can exit.
func (g *StreamGuard) Drain() {
	go func() {
		for range g.src {
		}
	}()
}

// IsTimeout reports whether err is one of the guard's timeouts or a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrChunkTimeout) || errors.Is(err, ErrOpenTimeout) || errors.Is(err, context.DeadlineExceeded)
}
