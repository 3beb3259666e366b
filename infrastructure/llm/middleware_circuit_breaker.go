package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-handoff/internal/ports"
)

// ErrCircuitOpen is returned without contacting the provider while the
// breaker is open. It matches ports.ErrServiceUnavailable.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open: %w", ports.ErrServiceUnavailable)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	// CircuitClosed passes every request through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen lets one trial request through.
	CircuitHalfOpen
)

// String implements fmt.Stringer.
func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after maxFailures consecutive provider failures and
// tries again after cooldown. Caller cancellation does not count as a
// failure.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       CircuitState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	trialing    bool
	now         func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: max(maxFailures, 1),
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow reports whether a request may proceed, moving an expired open
// breaker to half-open. Only one trial runs at a time.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.trialing = true
		return true
	case CircuitHalfOpen:
		if cb.trialing {
			return false
		}
		cb.trialing = true
		return true
	default:
		return true
	}
}

// record updates the breaker with the outcome of an allowed request and
// reports whether it tripped.
func (cb *CircuitBreaker) record(err error) (tripped bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trialing = false
	if err == nil || errors.Is(err, context.Canceled) {
		if err == nil {
			cb.failures = 0
			cb.state = CircuitClosed
		} else if cb.state == CircuitHalfOpen {
			cb.state = CircuitOpen
		}
		return false
	}

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		tripped = cb.state != CircuitOpen
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
	return tripped
}

// circuitBreakerLLM guards a CoreLLM with a CircuitBreaker.
type circuitBreakerLLM struct {
	next     CoreLLM
	cb       *CircuitBreaker
	metrics  ports.MetricsCollector
	provider string
}

// CircuitBreakerMiddleware fails fast with ErrCircuitOpen once the provider
// has failed maxFailures times in a row. metrics may be nil.
func CircuitBreakerMiddleware(
	cb *CircuitBreaker, metrics ports.MetricsCollector, provider string,
) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakerLLM{next: next, cb: cb, metrics: metrics, provider: provider}
	}
}

// DoRequest implements CoreLLM.
func (c *circuitBreakerLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if !c.cb.allow() {
		return "", 0, 0, ErrCircuitOpen
	}

	response, tokensIn, tokensOut, err := c.next.DoRequest(ctx, prompt, opts)
	tripped := c.cb.record(err)

	if c.metrics != nil {
		labels := map[string]string{"provider": c.provider}
		if tripped {
			c.metrics.RecordCounter(ports.MetricLLMCircuitTrips, 1, labels)
		}
		c.metrics.RecordGauge(ports.MetricLLMCircuitState, float64(c.cb.State()), labels)
	}
	return response, tokensIn, tokensOut, err
}

// GetModel returns the model name from the wrapped implementation.
func (c *circuitBreakerLLM) GetModel() string { return c.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (c *circuitBreakerLLM) SetModel(m string) { c.next.SetModel(m) }
