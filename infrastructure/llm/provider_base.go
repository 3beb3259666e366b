package llm

import (
	"fmt"
	"math"
	"net/url"
	"sync"
	"unicode/utf8"
)

// Request option keys understood by every provider.
const (
	OptModel       = "model"
	OptSystem      = "system"
	OptTemperature = "temperature"
	OptMaxTokens   = "max_tokens"
)

// DefaultMaxTokens bounds responses when the caller sets no limit.
const DefaultMaxTokens = 1024

// maxTemperature is the widest range any supported provider accepts.
const maxTemperature = 2.0

// BaseProvider holds the model name shared by providers.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model. It is safe for concurrent use.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel replaces the configured model. It is safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// RequestOptions are the parsed, provider-neutral request parameters.
type RequestOptions struct {
	Model     string
	System    string
	MaxTokens int
	// Temperature is nil when the provider default applies.
	Temperature *float64
}

// ParseRequestOptions reads the Opt* keys from opts. Missing, mistyped or
// out-of-range values fall back to defaults.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		Model:     defaultModel,
		MaxTokens: DefaultMaxTokens,
	}
	if s, ok := opts[OptModel].(string); ok && s != "" {
		options.Model = s
	}
	if s, ok := opts[OptSystem].(string); ok {
		options.System = s
	}
	if n, ok := optionInt(opts[OptMaxTokens]); ok && n > 0 {
		options.MaxTokens = n
	}
	if f, ok := optionFloat(opts[OptTemperature]); ok && f >= 0 && f <= maxTemperature {
		options.Temperature = &f
	}
	return options
}

func optionInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func optionFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, !math.IsNaN(f)
	case float32:
		return float64(f), !math.IsNaN(float64(f))
	case int:
		return float64(f), true
	default:
		return 0, false
	}
}

// validateBaseURL requires an absolute http(s) URL.
func validateBaseURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("base URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("base URL must include a host")
	}
	return parsed.String(), nil
}

// tokenCount prefers the provider-reported count and otherwise estimates
// about four runes per token.
func tokenCount(reported int64, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}
