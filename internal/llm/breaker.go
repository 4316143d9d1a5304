package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
)

var errCircuitOpen = errors.New("too many consecutive failures, waiting before retrying")

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing, reject requests
	CircuitHalfOpen                     // One probe request allowed
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker stops sending requests to a provider that keeps failing.
// It is shared by every session that talks to the same provider.
type CircuitBreaker struct {
	mu sync.Mutex

	state       CircuitState
	failures    int
	lastFailure time.Time
	maxFailures int
	cooldown    time.Duration
	probing     bool

	now func() time.Time
}

// NewCircuitBreaker opens after maxFailures consecutive failures and lets a
// single probe through once cooldown has passed.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{maxFailures: maxFailures, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a request may be sent now
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) < cb.cooldown {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.probing = true
		return true
	case CircuitHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return true
}

// RecordSuccess closes the circuit
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.probing = false
}

// RecordFailure counts a failure. A failed probe reopens the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.now()
	cb.failures++
	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.probing = false
	}
}

// Release gives back a probe that ended without a verdict (cancelled)
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerClient wraps a Client so its stream outcomes feed a CircuitBreaker.
// While the circuit is open requests fail at once with a backend error.
type BreakerClient struct {
	inner    Client
	breaker  *CircuitBreaker
	provider string
}

// NewBreakerClient wraps inner with breaker
func NewBreakerClient(inner Client, breaker *CircuitBreaker, provider string) *BreakerClient {
	return &BreakerClient{inner: inner, breaker: breaker, provider: provider}
}

// Model returns the wrapped client's model
func (c *BreakerClient) Model() string {
	return c.inner.Model()
}

// ChatStream forwards the inner stream and records whether it ended in
// done or error. Cancellation counts as neither.
func (c *BreakerClient) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, systemPrompt string) <-chan StreamChunk {
	ch := make(chan StreamChunk, 100)
	if !c.breaker.Allow() {
		ch <- StreamChunk{Type: ChunkError, Error: skerrors.BackendUnavailable(c.provider, errCircuitOpen)}
		close(ch)
		return ch
	}

	go func() {
		defer close(ch)
		verdict := false
		for chunk := range c.inner.ChatStream(ctx, messages, tools, systemPrompt) {
			switch chunk.Type {
			case ChunkDone:
				c.breaker.RecordSuccess()
				verdict = true
			case ChunkError:
				if ctx.Err() == nil {
					c.breaker.RecordFailure()
					verdict = true
				}
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				if !verdict {
					c.breaker.Release()
				}
				return
			}
		}
		if !verdict {
			c.breaker.Release()
		}
	}()
	return ch
}
