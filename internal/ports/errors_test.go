package ports

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestJudgeError tests message formatting, unwrapping and retryable logic.
func TestJudgeError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := NewJudgeError("gpt-oss-20b", "JudgeText", ErrInvalidResponse)

		assert.Equal(t, "judge error: model=gpt-oss-20b, operation=JudgeText, err=invalid response", err.Error())
		assert.True(t, errors.Is(err, ErrInvalidResponse))
	})

	t.Run("retryable errors", func(t *testing.T) {
		for _, base := range []error{ErrRateLimited, ErrServiceUnavailable, ErrTimeout} {
			err := NewJudgeError("m", "JudgeText", fmt.Errorf("wrapped: %w", base))
			assert.True(t, err.IsRetryable(), "%v should be retryable", base)
		}

		for _, base := range []error{ErrInvalidResponse, ErrAuthenticationFailed} {
			err := NewJudgeError("m", "JudgeText", base)
			assert.False(t, err.IsRetryable(), "%v should not be retryable", base)
		}
	})
}

// TestStoreError tests the StoreError wrapper.
func TestStoreError(t *testing.T) {
	err := NewStoreError("eval_handoffs", "Insert", ErrStoreUnavailable)

	assert.Equal(t, "store error: operation=Insert, collection=eval_handoffs, err=document store unavailable", err.Error())
	assert.True(t, errors.Is(err, ErrStoreUnavailable))

	var target *StoreError
	assert.True(t, errors.As(fmt.Errorf("outer: %w", err), &target))
	assert.Equal(t, "Insert", target.Operation)
}

// TestConfigError tests the ConfigError wrapper.
func TestConfigError(t *testing.T) {
	err := NewConfigError("judge.api_key", ErrConfigNotFound)

	assert.Equal(t, "config error: key=judge.api_key, err=configuration not found", err.Error())
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}
