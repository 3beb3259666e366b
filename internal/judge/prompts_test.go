package judge

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmartTruncate(t *testing.T) {
	t.Run("short text is unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", SmartTruncate("hello", 10))
		assert.Equal(t, "hello", SmartTruncate("hello", 0), "non-positive budget disables truncation")
	})

	t.Run("cuts after a late sentence boundary", func(t *testing.T) {
		// Given a sentence end at rune 90 of a 100 rune budget
		text := strings.Repeat("a", 88) + ". " + strings.Repeat("b", 50)

		got := SmartTruncate(text, 100)

		assert.Equal(t, strings.Repeat("a", 88)+". "+TruncationMarker, got)
	})

	t.Run("ignores an early boundary", func(t *testing.T) {
		text := "Hi. " + strings.Repeat("c", 200)

		got := SmartTruncate(text, 100)

		assert.Equal(t, "Hi. "+strings.Repeat("c", 96)+TruncationMarker, got)
	})

	t.Run("closing brace is a boundary", func(t *testing.T) {
		text := `{"a":"` + strings.Repeat("x", 85) + `"}` + strings.Repeat("y", 50)

		got := SmartTruncate(text, 100)

		assert.True(t, strings.HasSuffix(got, `"}`+TruncationMarker), "got %q", got)
	})

	t.Run("never splits a multi-byte rune", func(t *testing.T) {
		text := strings.Repeat("日本語", 100)

		got := SmartTruncate(text, 50)

		require.True(t, utf8.ValidString(got))
		body := strings.TrimSuffix(got, TruncationMarker)
		assert.Equal(t, 50, utf8.RuneCountInString(body))
	})
}

func TestUserPrompt(t *testing.T) {
	sent := `{"profile": {"genres": ["Sci-Fi"]}}`
	received := "User enjoys Sci-Fi"

	t.Run("embeds both contexts", func(t *testing.T) {
		for _, cot := range []bool{true, false} {
			prompt, err := UserPrompt(sent, received, DefaultMaxChars, cot)

			require.NoError(t, err)
			assert.Contains(t, prompt, sent, "templates must not escape JSON")
			assert.Contains(t, prompt, received)
			for _, key := range []string{`"fidelity"`, `"drift"`, `"preserved"`, `"lost"`, `"added"`} {
				assert.Contains(t, prompt, key)
			}
		}
	})

	t.Run("chain of thought asks for steps", func(t *testing.T) {
		prompt, err := UserPrompt(sent, received, DefaultMaxChars, true)

		require.NoError(t, err)
		assert.Contains(t, prompt, "Think step-by-step")
	})

	t.Run("long contexts are truncated", func(t *testing.T) {
		prompt, err := UserPrompt(strings.Repeat("z", 5000), received, 200, false)

		require.NoError(t, err)
		assert.Contains(t, prompt, TruncationMarker)
		assert.NotContains(t, prompt, strings.Repeat("z", 201))
	})
}

func TestSystemPrompt(t *testing.T) {
	assert.Contains(t, SystemPrompt(), "ONLY valid JSON")
}
