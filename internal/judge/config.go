package judge

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-handoff/internal/domain"
)

// Default configuration values.
const (
	DefaultMaxChars       = 3000
	DefaultTemperature    = 0.0
	DefaultMaxTokens      = 1024
	DefaultMaxConcurrency = 4

	// DefaultConsistencyPrior is the consistency assumed by the heuristic.
	DefaultConsistencyPrior = 0.7
)

// Config controls prompt construction, request parameters and scoring.
type Config struct {
	// MaxChars bounds each context embedded in the prompt.
	MaxChars int `yaml:"max_chars" json:"max_chars" mapstructure:"max_chars" validate:"min=100"`

	// ChainOfThought selects the step-by-step prompt over the terse one.
	ChainOfThought bool `yaml:"chain_of_thought" json:"chain_of_thought" mapstructure:"chain_of_thought"`

	// Temperature controls sampling randomness (0.0-1.0).
	Temperature float64 `yaml:"temperature" json:"temperature" mapstructure:"temperature" validate:"min=0,max=1"`

	// MaxTokens limits the length of the judge response.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" mapstructure:"max_tokens" validate:"min=64,max=8192"`

	// MaxConcurrency bounds the number of simultaneous batch requests.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" mapstructure:"max_concurrency" validate:"min=1,max=32"`

	// Weights are the coefficients of the overall score.
	Weights domain.ScoreWeights `yaml:"weights" json:"weights" mapstructure:"weights"`

	// ConsistencyPrior is the consistency reported by heuristic judgments.
	ConsistencyPrior float64 `yaml:"consistency_prior" json:"consistency_prior" mapstructure:"consistency_prior" validate:"min=0,max=1"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		MaxChars:         DefaultMaxChars,
		ChainOfThought:   true,
		Temperature:      DefaultTemperature,
		MaxTokens:        DefaultMaxTokens,
		MaxConcurrency:   DefaultMaxConcurrency,
		Weights:          domain.DefaultScoreWeights,
		ConsistencyPrior: DefaultConsistencyPrior,
	}
}

// Validate checks parameter ranges and the weight sum.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid judge config: %w", err)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid judge config: %w", err)
	}
	return nil
}
