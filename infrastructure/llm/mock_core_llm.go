package llm

import (
	"context"
	"sync"
	"time"
)

// MockCoreLLM is a scriptable CoreLLM for middleware tests.
type MockCoreLLM struct {
	mu sync.Mutex

	// Response is returned by successful calls.
	Response  string
	TokensIn  int
	TokensOut int
	Model     string

	// Errors are returned by the first len(Errors) calls, in order. A nil
	// entry makes that call succeed.
	Errors []error

	// ResponseDelay is waited out before answering, unless ctx ends first.
	ResponseDelay time.Duration

	calls    int
	prompts  []string
	opts     []map[string]any
	contexts []context.Context
	times    []time.Time
}

// NewMockCoreLLM creates a mock that always succeeds.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  "test response",
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

// DoRequest implements CoreLLM.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, opts)
	m.contexts = append(m.contexts, ctx)
	m.times = append(m.times, time.Now())
	delay := m.ResponseDelay
	var err error
	if idx < len(m.Errors) {
		err = m.Errors[idx]
	}
	response, tokensIn, tokensOut := m.Response, m.TokensIn, m.TokensOut
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}
	if err != nil {
		return "", 0, 0, err
	}
	return response, tokensIn, tokensOut, nil
}

// GetModel implements CoreLLM.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetModel implements CoreLLM.
func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

// CallCount returns the number of DoRequest calls.
func (m *MockCoreLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastOpts returns the options of the most recent call.
func (m *MockCoreLLM) LastOpts() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.opts) == 0 {
		return nil
	}
	return m.opts[len(m.opts)-1]
}

// LastPrompt returns the prompt of the most recent call.
func (m *MockCoreLLM) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// Contexts returns the contexts received so far.
func (m *MockCoreLLM) Contexts() []context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]context.Context(nil), m.contexts...)
}

// CallTimes returns when each call arrived.
func (m *MockCoreLLM) CallTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.times...)
}
