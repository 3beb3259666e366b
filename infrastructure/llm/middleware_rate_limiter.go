package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-handoff/internal/ports"
)

// pacedLLM holds judge calls to the provider's request budget.
type pacedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// RateLimitMiddleware paces judge calls to limit per second with bursts of up
// to burst. The bucket is shared by every client built from the returned
// middleware, so a batch of concurrent judgments stays under the provider
// quota instead of tripping HTTP 429. A wait that cannot finish before the
// caller's deadline fails at once with ports.ErrTimeout; a cancelled caller
// gets its context error.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next CoreLLM) CoreLLM {
		return &pacedLLM{next: next, limiter: limiter}
	}
}

// DoRequest implements CoreLLM.
func (p *pacedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", 0, 0, fmt.Errorf("waiting for judge rate limit: %w", ctxErr)
		}
		return "", 0, 0, fmt.Errorf("waiting for judge rate limit: %w: %w", ports.ErrTimeout, err)
	}
	return p.next.DoRequest(ctx, prompt, opts)
}

// GetModel returns the judge model of the wrapped provider.
func (p *pacedLLM) GetModel() string { return p.next.GetModel() }

// SetModel changes the judge model of the wrapped provider.
func (p *pacedLLM) SetModel(m string) { p.next.SetModel(m) }
