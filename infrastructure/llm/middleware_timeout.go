package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-handoff/internal/ports"
)

// attemptTimeoutLLM gives every judge attempt its own deadline, independent
// of the caller's context.
type attemptTimeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

// TimeoutMiddleware bounds each judge attempt by timeout. It sits innermost in
// the judge chain, so a rate-limit retry starts a fresh deadline. When the
// attempt deadline fires while the caller is still waiting, the error matches
// ports.ErrTimeout and names the timeout. A non-positive timeout leaves
// attempts unbounded.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		if timeout <= 0 {
			return next
		}
		return &attemptTimeoutLLM{next: next, timeout: timeout}
	}
}

// DoRequest implements CoreLLM.
func (t *attemptTimeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	text, tokensIn, tokensOut, err := t.next.DoRequest(attemptCtx, prompt, opts)
	if err == nil {
		return text, tokensIn, tokensOut, nil
	}
	if ctx.Err() != nil || !errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return "", 0, 0, err
	}
	if !errors.Is(err, ports.ErrTimeout) {
		err = fmt.Errorf("%w: %w", ports.ErrTimeout, err)
	}
	return "", 0, 0, fmt.Errorf("judge attempt exceeded %s: %w", t.timeout, err)
}

// GetModel returns the judge model of the wrapped provider.
func (t *attemptTimeoutLLM) GetModel() string { return t.next.GetModel() }

// SetModel changes the judge model of the wrapped provider.
func (t *attemptTimeoutLLM) SetModel(m string) { t.next.SetModel(m) }
