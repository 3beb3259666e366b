package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-handoff/internal/ports"
)

// withMockProvider registers a factory returning mock under a test-only name.
func withMockProvider(t *testing.T, mock *MockCoreLLM) string {
	t.Helper()
	name := "mock-" + t.Name()
	RegisterProviderFactory(name, func(ClientConfig) (CoreLLM, error) { return mock, nil })
	t.Cleanup(func() { delete(providerFactories, name) })
	return name
}

func TestNewClient(t *testing.T) {
	t.Run("requires an API key", func(t *testing.T) {
		_, err := NewClient(ProviderFireworks, ClientConfig{})
		assert.ErrorIs(t, err, ErrEmptyAPIKey)
	})

	t.Run("rejects unknown providers", func(t *testing.T) {
		_, err := NewClient("carrier-pigeon", ClientConfig{APIKey: "k"})
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})

	t.Run("built-in providers are registered", func(t *testing.T) {
		assert.Subset(t, Providers(), []string{ProviderAnthropic, ProviderFireworks, ProviderGoogle, ProviderOpenAI})
	})
}

func TestClient_MiddlewareOrder(t *testing.T) {
	// Given two middleware that log on entry
	var order []string
	trace := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return &funcLLM{next: next, before: func() { order = append(order, name) }}
		}
	}
	mock := NewMockCoreLLM()
	client, err := NewClient(withMockProvider(t, mock), ClientConfig{
		APIKey:     "k",
		Middleware: []Middleware{trace("outer"), trace("inner")},
	})
	require.NoError(t, err)

	// When a request is made
	_, _, _, err = client.Complete(context.Background(), "prompt", nil)

	// Then the first middleware runs first
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestClient_JudgeText(t *testing.T) {
	t.Run("maps the request onto options", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Response = `{"fidelity": 1}`
		client, err := NewClient(withMockProvider(t, mock), ClientConfig{APIKey: "k"})
		require.NoError(t, err)

		text, err := client.JudgeText(context.Background(), ports.JudgeRequest{
			System: "sys", User: "usr", Temperature: 0.2, MaxTokens: 512,
		})

		require.NoError(t, err)
		assert.Equal(t, `{"fidelity": 1}`, text)
		assert.Equal(t, "usr", mock.LastPrompt())
		assert.Equal(t, map[string]any{OptSystem: "sys", OptTemperature: 0.2, OptMaxTokens: 512}, mock.LastOpts())
	})

	t.Run("failures become judge errors", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Errors = []error{NewProviderError("mock", ErrorTypeTimeout, 504, "slow", nil)}
		client, err := NewClient(withMockProvider(t, mock), ClientConfig{APIKey: "k"})
		require.NoError(t, err)

		_, err = client.JudgeText(context.Background(), ports.JudgeRequest{User: "u"})

		var jerr *ports.JudgeError
		require.True(t, errors.As(err, &jerr))
		assert.Equal(t, "test-model", jerr.Model)
		assert.True(t, jerr.IsRetryable(), "timeouts are transient")
		assert.ErrorIs(t, err, ports.ErrTimeout)
	})
}

func TestParseRequestOptions(t *testing.T) {
	opts := ParseRequestOptions(map[string]any{
		OptModel:       "override",
		OptMaxTokens:   float64(300),
		OptTemperature: 7.0,
	}, "default")

	assert.Equal(t, "override", opts.Model)
	assert.Equal(t, 300, opts.MaxTokens)
	assert.Nil(t, opts.Temperature, "out-of-range temperature falls back to the provider default")

	defaults := ParseRequestOptions(nil, "default")
	assert.Equal(t, "default", defaults.Model)
	assert.Equal(t, DefaultMaxTokens, defaults.MaxTokens)
}

// funcLLM runs a hook before delegating.
type funcLLM struct {
	next   CoreLLM
	before func()
}

func (f *funcLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	f.before()
	return f.next.DoRequest(ctx, prompt, opts)
}

func (f *funcLLM) GetModel() string  { return f.next.GetModel() }
func (f *funcLLM) SetModel(m string) { f.next.SetModel(m) }
