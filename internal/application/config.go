package application

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ahrav/go-handoff/internal/domain"
	"github.com/ahrav/go-handoff/internal/judge"
	"github.com/ahrav/go-handoff/internal/ports"
	"github.com/ahrav/go-handoff/internal/scoring"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
// Nested keys join with underscores: HANDOFF_JUDGE_API_KEY sets judge.api_key.
const EnvPrefix = "HANDOFF"

// providerKeyEnv names the conventional credential variable of each judge
// provider, consulted when judge.api_key is empty.
var providerKeyEnv = map[string]string{
	"fireworks": "FIREWORKS_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

// Config is the complete runtime configuration of the evaluation engine.
// Use LoadConfig to obtain a validated instance; the zero value is not
// usable.
type Config struct {
	// Log controls logger verbosity and encoding.
	Log LogConfig `mapstructure:"log" yaml:"log"`
	// Store selects and configures the document store backend.
	Store StoreConfig `mapstructure:"store" yaml:"store"`
	// Scoring tunes the metric engine.
	Scoring ScoringConfig `mapstructure:"scoring" yaml:"scoring"`
	// Judge configures the optional LLM judge and its provider client.
	Judge JudgeConfig `mapstructure:"judge" yaml:"judge"`
	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	// Level is the minimum level emitted.
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	// Format selects the JSON or human-readable console encoder.
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json console"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is memory, sqlite or postgres.
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=memory sqlite postgres"`
	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	// PostgresDSN is the connection string used by the postgres driver.
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
	// HandoffCollection holds the append-only handoff records.
	HandoffCollection string `mapstructure:"handoff_collection" yaml:"handoff_collection" validate:"required"`
	// PipelineCollection holds one summary document per pipeline.
	PipelineCollection string `mapstructure:"pipeline_collection" yaml:"pipeline_collection" validate:"required"`
	// Timeout bounds connecting to the backend.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

// ScoringConfig tunes drift.
type ScoringConfig struct {
	// TopK is the number of frequent terms compared on each side.
	TopK int `mapstructure:"top_k" yaml:"top_k" validate:"min=1,max=1000"`
	// DriftBlend weighs (1 - fidelity) against top-term divergence.
	DriftBlend float64 `mapstructure:"drift_blend" yaml:"drift_blend" validate:"min=0,max=1"`
}

// JudgeConfig configures the LLM judge, its provider client and the
// middleware wrapped around it.
type JudgeConfig struct {
	// Enabled turns judge evaluation on. A disabled judge is never called.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Provider selects the provider implementation.
	Provider string `mapstructure:"provider" yaml:"provider" validate:"oneof=fireworks openai anthropic google"`
	// APIKey is the provider credential. When empty, the provider's
	// conventional environment variable is consulted. An enabled judge
	// without a credential still runs and returns heuristic judgments.
	APIKey string `mapstructure:"api_key" yaml:"-"`
	// Model overrides the provider's default model.
	Model string `mapstructure:"model" yaml:"model"`
	// BaseURL overrides the provider's default endpoint.
	BaseURL string `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	// Timeout bounds each provider request.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	// Temperature controls sampling randomness.
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"min=0,max=1"`
	// MaxTokens bounds the judge response.
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens" validate:"min=64,max=8192"`
	// MaxChars bounds each context embedded in the prompt.
	MaxChars int `mapstructure:"max_chars" yaml:"max_chars" validate:"min=100"`
	// ChainOfThought selects the step-by-step prompt.
	ChainOfThought bool `mapstructure:"chain_of_thought" yaml:"chain_of_thought"`
	// RateLimitRPS is the sustained request rate allowed to the provider.
	RateLimitRPS float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps" validate:"gt=0"`
	// RateLimitBurst is the token bucket size.
	RateLimitBurst int `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst" validate:"min=1"`
	// MaxAttempts is the total number of tries for a rate-limited request.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1,max=10"`
	// Backoff is the wait before the first retry; it doubles per attempt.
	Backoff time.Duration `mapstructure:"backoff" yaml:"backoff" validate:"gt=0"`
	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration `mapstructure:"max_backoff" yaml:"max_backoff" validate:"gtefield=Backoff"`
	// BreakerFailures is the number of consecutive provider failures that
	// open the circuit breaker. Zero disables the breaker.
	BreakerFailures int `mapstructure:"breaker_failures" yaml:"breaker_failures" validate:"min=0"`
	// BreakerCooldown is how long an open breaker rejects requests.
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown" validate:"gte=0"`
	// MaxConcurrency bounds simultaneous batch requests.
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency" validate:"min=1,max=32"`
	// Weights are the coefficients of the overall judgment score.
	Weights domain.ScoreWeights `mapstructure:"weights" yaml:"weights"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled exposes /metrics on Listen.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Listen is the address of the metrics server.
	Listen string `mapstructure:"listen" yaml:"listen" validate:"required_if=Enabled true"`
}

// AdapterConfig converts the judge section into the adapter configuration.
func (c JudgeConfig) AdapterConfig() judge.Config {
	cfg := judge.DefaultConfig()
	cfg.MaxChars = c.MaxChars
	cfg.ChainOfThought = c.ChainOfThought
	cfg.Temperature = c.Temperature
	cfg.MaxTokens = c.MaxTokens
	cfg.MaxConcurrency = c.MaxConcurrency
	cfg.Weights = c.Weights
	return cfg
}

// Engine converts the scoring section into a metric engine.
func (c ScoringConfig) Engine() scoring.Engine {
	return scoring.Engine{TopK: c.TopK, DriftBlend: c.DriftBlend}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.sqlite_path", "")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.handoff_collection", "eval_handoffs")
	v.SetDefault("store.pipeline_collection", "eval_pipelines")
	v.SetDefault("store.timeout", 5*time.Second)

	v.SetDefault("scoring.top_k", scoring.DefaultTopK)
	v.SetDefault("scoring.drift_blend", scoring.DefaultDriftBlend)

	v.SetDefault("judge.enabled", false)
	v.SetDefault("judge.provider", "fireworks")
	v.SetDefault("judge.api_key", "")
	v.SetDefault("judge.model", "")
	v.SetDefault("judge.base_url", "")
	v.SetDefault("judge.timeout", 30*time.Second)
	v.SetDefault("judge.temperature", judge.DefaultTemperature)
	v.SetDefault("judge.max_tokens", judge.DefaultMaxTokens)
	v.SetDefault("judge.max_chars", judge.DefaultMaxChars)
	v.SetDefault("judge.chain_of_thought", true)
	v.SetDefault("judge.rate_limit_rps", 2.0)
	v.SetDefault("judge.rate_limit_burst", 4)
	v.SetDefault("judge.max_attempts", 3)
	v.SetDefault("judge.backoff", time.Second)
	v.SetDefault("judge.max_backoff", 4*time.Second)
	v.SetDefault("judge.breaker_failures", 5)
	v.SetDefault("judge.breaker_cooldown", 30*time.Second)
	v.SetDefault("judge.max_concurrency", judge.DefaultMaxConcurrency)
	v.SetDefault("judge.weights.fidelity", domain.DefaultScoreWeights.Fidelity)
	v.SetDefault("judge.weights.drift", domain.DefaultScoreWeights.Drift)
	v.SetDefault("judge.weights.completeness", domain.DefaultScoreWeights.Completeness)
	v.SetDefault("judge.weights.consistency", domain.DefaultScoreWeights.Consistency)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")
}

// LoadConfig reads defaults, then the YAML file at path when path is not
// empty, then HANDOFF_* environment variables, and validates the result.
// A missing file is an error only when a path was given.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				return nil, ports.NewConfigError(path, ports.ErrConfigNotFound)
			}
			return nil, ports.NewConfigError(path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ports.NewConfigError("unmarshal", err)
	}

	if cfg.Judge.APIKey == "" {
		if env, ok := providerKeyEnv[cfg.Judge.Provider]; ok {
			cfg.Judge.APIKey = os.Getenv(env)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section, including the judge weight sum.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return ports.NewConfigError("validate", fmt.Errorf("invalid configuration: %w", err))
	}
	if err := c.Judge.Weights.Validate(); err != nil {
		return ports.NewConfigError("judge.weights", err)
	}
	return nil
}
