package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-handoff/internal/ports"
)

func TestAnthropicProvider_DoRequest(t *testing.T) {
	// Given a Messages API endpoint
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ant-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         AnthropicDefaultModel,
			"content":       []map[string]any{{"type": "text", "text": `{"drift": 0.1}`}},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 42, "output_tokens": 7},
		})
	}))
	defer server.Close()

	provider, err := newAnthropicProvider(ClientConfig{APIKey: "ant-key", BaseURL: server.URL})
	require.NoError(t, err)

	// When sending a request with a system prompt and an out-of-range temperature
	response, tokensIn, tokensOut, err := provider.DoRequest(context.Background(), "user prompt", map[string]any{
		OptSystem:      "system prompt",
		OptTemperature: 1.5,
	})

	// Then text blocks are joined and parameters fit the API
	require.NoError(t, err)
	assert.Equal(t, `{"drift": 0.1}`, response)
	assert.Equal(t, 42, tokensIn)
	assert.Equal(t, 7, tokensOut)
	assert.Equal(t, float64(DefaultMaxTokens), captured["max_tokens"])
	assert.Equal(t, 1.0, captured["temperature"], "temperature is capped at 1")
	system := captured["system"].([]any)
	assert.Equal(t, "system prompt", system[0].(map[string]any)["text"])
}

func TestAnthropicProvider_RateLimit(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(t, w, http.StatusTooManyRequests, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer server.Close()

	provider, err := newAnthropicProvider(ClientConfig{APIKey: "ant-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, _, _, err = provider.DoRequest(context.Background(), "prompt", nil)

	assert.True(t, IsRateLimited(err))
	assert.ErrorIs(t, err, ports.ErrRateLimited)
	assert.Equal(t, 1, calls, "SDK retries are disabled")
}

func TestNewAnthropicProvider(t *testing.T) {
	_, err := newAnthropicProvider(ClientConfig{})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)

	provider, err := newAnthropicProvider(ClientConfig{APIKey: "k", Model: "claude-custom"})
	require.NoError(t, err)
	assert.Equal(t, "claude-custom", provider.GetModel())
}
