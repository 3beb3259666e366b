package llm

import (
	"context"
	"fmt"
	"time"
)

// rateLimitRetryLLM re-sends requests rejected with HTTP 429.
type rateLimitRetryLLM struct {
	next        CoreLLM
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// RateLimitRetryMiddleware retries requests that fail with a rate-limit
// ProviderError, up to maxAttempts in total. The wait before retry n
// (counting from zero) is baseDelay*2^n, capped at maxDelay. Every other
// error is returned at once.
func RateLimitRetryMiddleware(maxAttempts int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &rateLimitRetryLLM{
			next:        next,
			maxAttempts: max(maxAttempts, 1),
			baseDelay:   baseDelay,
			maxDelay:    maxDelay,
			sleep:       sleepContext,
		}
	}
}

// DoRequest implements CoreLLM.
func (r *rateLimitRetryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error
	for attempt := range r.maxAttempts {
		response, tokensIn, tokensOut, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return response, tokensIn, tokensOut, nil
		}
		if !IsRateLimited(err) {
			return "", 0, 0, err
		}
		lastErr = err

		if attempt == r.maxAttempts-1 {
			break
		}
		if err := r.sleep(ctx, r.backoff(attempt)); err != nil {
			return "", 0, 0, err
		}
	}

	return "", 0, 0, fmt.Errorf("request failed after %d attempts: %w", r.maxAttempts, lastErr)
}

func (r *rateLimitRetryLLM) backoff(attempt int) time.Duration {
	delay := r.baseDelay << min(attempt, 30)
	if delay > r.maxDelay || delay <= 0 {
		return r.maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GetModel returns the model name from the wrapped implementation.
func (r *rateLimitRetryLLM) GetModel() string { return r.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (r *rateLimitRetryLLM) SetModel(m string) { r.next.SetModel(m) }
