package llm

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
)

// retryLLM retries transient provider failures with exponential backoff.
type retryLLM struct {
	next       CoreLLM
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	clock      clockwork.Clock
}

// RetryMiddleware retries up to maxRetries times after the first attempt.
// Only errors IsRetryable accepts are retried. A nil clock uses the real
// clock.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration, clock clockwork.Clock) Middleware {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
			clock:      clock,
		}
	}
}

func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		response, tokensIn, tokensOut, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return response, tokensIn, tokensOut, nil
		}
		lastErr = err

		if !IsRetryable(err) || ctx.Err() != nil {
			return "", 0, 0, err
		}
		if attempt == r.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-r.clock.After(r.delay(attempt)):
		}
	}

	return "", 0, 0, fmt.Errorf("request failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

// delay is baseDelay*2^attempt with jitter in [-25%, +25%], capped at
// maxDelay.
func (r *retryLLM) delay(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	d := r.baseDelay * time.Duration(1<<uint(attempt)) // #nosec G115 - bounded above
	// #nosec G404 - jitter does not need a secure source
	jitter := time.Duration(rand.Float64() * float64(d) * 0.5)
	d = d - d/4 + jitter
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

func (r *retryLLM) GetModel() string  { return r.next.GetModel() }
func (r *retryLLM) SetModel(m string) { r.next.SetModel(m) }
