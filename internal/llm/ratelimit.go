package llm

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
)

var rateLog = logger.WithPrefix("ratelimit")

// EstimateTokens approximates the token count of a string as chars/4 plus 20%.
func EstimateTokens(text string) int {
	return int(float64(len(text)/4) * 1.2)
}

// EstimateRequest approximates the prompt size of one request: message
// bodies, tool payloads, a per-message overhead and ~100 tokens per tool.
func EstimateRequest(messages []Message, tools []ToolDefinition, systemPrompt string) int {
	total := EstimateTokens(systemPrompt) + len(tools)*100
	for _, msg := range messages {
		total += 4 + EstimateTokens(msg.Content)
		for _, r := range msg.ToolResults {
			total += EstimateTokens(r.Content)
		}
	}
	return total
}

// TokenBucket paces requests by estimated prompt tokens
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket creates a bucket refilling tokensPerMinute with a burst of
// about ten seconds of budget.
func NewTokenBucket(tokensPerMinute int) *TokenBucket {
	burst := tokensPerMinute / 6
	if burst < 1000 {
		burst = 1000
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(float64(tokensPerMinute)/60.0), burst),
	}
}

// Wait blocks until tokens are available or ctx ends
func (tb *TokenBucket) Wait(ctx context.Context, tokens int) error {
	reservation := tb.limiter.ReserveN(time.Now(), tokens)
	if !reservation.OK() {
		rateLog.Debug("request of %d tokens exceeds burst, proceeding", tokens)
		return nil
	}

	delay := reservation.Delay()
	if delay <= 0 {
		return nil
	}
	rateLog.Debug("waiting %v for %d tokens", delay, tokens)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}

// RateLimitedClient paces any Client with a token bucket and retries
// requests that fail with 429 before producing any output.
type RateLimitedClient struct {
	inner  Client
	bucket *TokenBucket
	cfg    config.RateLimitConfig
}

// NewRateLimitedClient wraps inner
func NewRateLimitedClient(inner Client, cfg config.RateLimitConfig) *RateLimitedClient {
	return &RateLimitedClient{
		inner:  inner,
		bucket: NewTokenBucket(cfg.TokensPerMinute),
		cfg:    cfg,
	}
}

// Model returns the wrapped client's model
func (c *RateLimitedClient) Model() string {
	return c.inner.Model()
}

// ChatStream waits for budget, then forwards the inner stream
func (c *RateLimitedClient) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, systemPrompt string) <-chan StreamChunk {
	ch := make(chan StreamChunk, 100)

	go func() {
		defer close(ch)

		if c.cfg.EnableRateLimiting {
			if err := c.bucket.Wait(ctx, EstimateRequest(messages, tools, systemPrompt)); err != nil {
				ch <- StreamChunk{Type: ChunkError, Error: err}
				return
			}
		}

		var lastErr error
		for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
			if attempt > 0 {
				delay := c.calculateBackoff(attempt)
				rateLog.Warn("retry %d/%d in %v: %v", attempt, c.cfg.MaxRetries, delay, lastErr)
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					ch <- StreamChunk{Type: ChunkError, Error: ctx.Err()}
					return
				}
			}

			forwarded := false
			retry := false
			for chunk := range c.inner.ChatStream(ctx, messages, tools, systemPrompt) {
				if chunk.Type == ChunkError && !forwarded && isRateLimitError(chunk.Error) {
					lastErr = chunk.Error
					retry = true
					continue
				}
				if chunk.Type != ChunkUsage {
					forwarded = true
				}
				ch <- chunk
			}
			if !retry {
				return
			}
		}

		ch <- StreamChunk{Type: ChunkError, Error: skerrors.RateLimited(lastErr)}
	}()

	return ch
}

// calculateBackoff is baseDelay * 2^(attempt-1) plus up to 25% jitter, capped at MaxDelay
func (c *RateLimitedClient) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	backoff += backoff * 0.25 * rand.Float64()
	if backoff > float64(c.cfg.MaxDelay) {
		backoff = float64(c.cfg.MaxDelay)
	}
	return time.Duration(backoff)
}

// isRateLimitError checks if an error is a rate limit (429) error
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "resource_exhausted")
}
