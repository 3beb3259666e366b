// Package llm sends judge prompts to hosted text-generation providers.
//
// Each provider (Fireworks, OpenAI, Anthropic, Google) implements CoreLLM.
// Cross-cutting behavior is layered on with Middleware: rate-limit retries,
// per-request timeouts, request pacing, circuit breaking, metrics and
// tracing. Client adapts the assembled chain to ports.TextJudge so the
// judge adapter never sees a provider SDK.
//
// Basic usage:
//
//	client, err := llm.NewClient(llm.ProviderFireworks, llm.ClientConfig{
//	    APIKey: os.Getenv("FIREWORKS_API_KEY"),
//	    Middleware: []llm.Middleware{
//	        llm.RateLimitRetryMiddleware(3, time.Second, 4*time.Second),
//	        llm.TimeoutMiddleware(30 * time.Second),
//	    },
//	})
//	text, err := client.JudgeText(ctx, ports.JudgeRequest{System: sys, User: user})
package llm

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/ahrav/go-handoff/internal/ports"
)

// Supported provider names.
const (
	ProviderFireworks = "fireworks"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// CoreLLM is the minimal contract a provider implements. Middleware wraps
// one CoreLLM in another.
type CoreLLM interface {
	// DoRequest sends prompt to the provider. opts carries the request
	// options understood by ParseRequestOptions.
	// Returns the response text, input token count, output token count, and any error.
	DoRequest(
		ctx context.Context,
		prompt string,
		opts map[string]any,
	) (
		response string,
		tokensIn, tokensOut int,
		err error,
	)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model used for subsequent requests.
	SetModel(model string)
}

// ClientConfig holds provider credentials and the middleware chain.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model overrides the provider's default model.
	Model string

	// BaseURL overrides the provider's default endpoint.
	BaseURL string

	// Timeout bounds the underlying HTTP exchange. Zero keeps the SDK
	// default.
	Timeout time.Duration

	// Middleware is applied in order; the first entry is the outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM to add behavior around each request.
type Middleware func(CoreLLM) CoreLLM

var _ ports.TextJudge = (*Client)(nil)

// Client is a ports.TextJudge backed by a provider and its middleware.
type Client struct {
	core     CoreLLM
	provider string
}

// NewClient creates a client for the named provider.
func NewClient(provider string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	factory, ok := providerFactories[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", provider, err)
	}

	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{core: core, provider: provider}, nil
}

// JudgeText implements ports.TextJudge. Failures are returned as
// *ports.JudgeError; provider errors inside match the ports sentinels
// (ErrRateLimited, ErrTimeout, ...) through errors.Is.
func (c *Client) JudgeText(ctx context.Context, req ports.JudgeRequest) (string, error) {
	opts := map[string]any{
		OptTemperature: req.Temperature,
	}
	if req.System != "" {
		opts[OptSystem] = req.System
	}
	if req.MaxTokens > 0 {
		opts[OptMaxTokens] = req.MaxTokens
	}

	text, _, _, err := c.core.DoRequest(ctx, req.User, opts)
	if err != nil {
		return "", ports.NewJudgeError(c.core.GetModel(), "judge_text", err)
	}
	return text, nil
}

// Complete sends a raw prompt and reports token usage.
func (c *Client) Complete(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, opts)
}

// Provider returns the provider name the client was built for.
func (c *Client) Provider() string { return c.provider }

// GetModel implements ports.TextJudge.
func (c *Client) GetModel() string { return c.core.GetModel() }

// ProviderFactory creates a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory makes a provider available to NewClient.
// It is not safe to call concurrently with NewClient.
func RegisterProviderFactory(provider string, factory ProviderFactory) {
	providerFactories[provider] = factory
}

// Providers lists the registered provider names in sorted order.
func Providers() []string {
	return slices.Sorted(maps.Keys(providerFactories))
}
