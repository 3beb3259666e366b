package scoring

import (
	"errors"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestFidelity(t *testing.T) {
	t.Run("identical vectors score exactly one", func(t *testing.T) {
		vec := []float64{0.12, -0.7, 3.4, 0.0001}

		got, err := Fidelity("", "", vec, vec)

		require.NoError(t, err)
		assert.Equal(t, 1.0, got)
	})

	t.Run("opposite vectors score zero", func(t *testing.T) {
		got, err := Fidelity("", "", []float64{1, 2}, []float64{-1, -2})

		require.NoError(t, err)
		assert.InDelta(t, 0.0, got, 1e-12)
	})

	t.Run("orthogonal vectors map to one half", func(t *testing.T) {
		got, err := Fidelity("", "", []float64{1, 0}, []float64{0, 1})

		require.NoError(t, err)
		assert.Equal(t, 0.5, got)
	})

	t.Run("zero norm vector yields the midpoint of zero similarity", func(t *testing.T) {
		got, err := Fidelity("", "", []float64{0, 0}, []float64{1, 1})

		require.NoError(t, err)
		assert.Equal(t, 0.5, got, "similarity 0 maps to 0.5")
	})

	t.Run("mismatched vector shapes are rejected", func(t *testing.T) {
		_, err := Fidelity("", "", []float64{1, 2, 3}, []float64{1, 2})

		var merr *MetricError
		require.ErrorAs(t, err, &merr)
		assert.ErrorIs(t, err, ErrVectorShape)
		assert.Equal(t, "fidelity", merr.Metric)
	})

	t.Run("single vector falls back to text", func(t *testing.T) {
		got, err := Fidelity("same words here", "same words here", []float64{1}, nil)

		require.NoError(t, err)
		assert.Equal(t, 1.0, got)
	})

	t.Run("identical text scores exactly one", func(t *testing.T) {
		text := "Dune (2021) directed by Denis Villeneuve, Dune part two"

		got, err := Fidelity(text, strings.ToUpper(text), nil, nil)

		require.NoError(t, err)
		assert.Equal(t, 1.0, got, "tokenization is case-insensitive")
	})

	t.Run("disjoint text scores zero", func(t *testing.T) {
		got, err := Fidelity("alpha beta", "gamma delta", nil, nil)

		require.NoError(t, err)
		assert.Equal(t, 0.0, got)
	})

	t.Run("empty text scores zero", func(t *testing.T) {
		got, err := Fidelity("", "anything", nil, nil)

		require.NoError(t, err)
		assert.Equal(t, 0.0, got)
	})
}

func TestRelevanceDrift(t *testing.T) {
	t.Run("identical text has no drift", func(t *testing.T) {
		got, err := RelevanceDrift("space opera epic", "space opera epic", nil, nil, 0)

		require.NoError(t, err)
		assert.Equal(t, 0.0, got)
	})

	t.Run("disjoint text drifts fully", func(t *testing.T) {
		got, err := RelevanceDrift("space opera", "romantic comedy", nil, nil, 0)

		require.NoError(t, err)
		assert.Equal(t, 1.0, got)
	})

	t.Run("both sides empty falls back to base drift", func(t *testing.T) {
		got, err := RelevanceDrift("!!!", "...", nil, nil, 10)

		require.NoError(t, err)
		assert.Equal(t, 1.0, got, "fidelity of empty texts is 0, so base drift is 1")
	})

	t.Run("topical shift is penalized beyond fidelity", func(t *testing.T) {
		// Given a receiver that shares vocabulary but emphasises other terms
		sent := "space space space opera opera drama"
		received := "drama drama drama opera space romance"

		fidelity, err := Fidelity(sent, received, nil, nil)
		require.NoError(t, err)

		// When using a top-1 comparison
		drift, err := RelevanceDrift(sent, received, nil, nil, 1)
		require.NoError(t, err)

		// Then drift exceeds the fidelity complement
		assert.Greater(t, drift, 1-fidelity)
	})

	t.Run("vector mismatch propagates", func(t *testing.T) {
		_, err := RelevanceDrift("a", "b", []float64{1}, []float64{1, 2}, 0)
		assert.ErrorIs(t, err, ErrVectorShape)
	})
}

func TestCompressionEfficiency(t *testing.T) {
	tests := []struct {
		name    string
		before  int
		after   int
		want    float64
		wantErr bool
	}{
		{name: "reduction", before: 100, after: 60, want: 0.4},
		{name: "expansion is zero", before: 100, after: 120, want: 0},
		{name: "unchanged", before: 50, after: 50, want: 0},
		{name: "full reduction", before: 10, after: 0, want: 1},
		{name: "both zero", before: 0, after: 0, want: 0},
		{name: "negative before", before: -1, after: 0, wantErr: true},
		{name: "negative after", before: 10, after: -5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompressionEfficiency(tt.before, tt.after)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNegativeTokens)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTemporalCoherence(t *testing.T) {
	t.Run("absent without markers", func(t *testing.T) {
		assert.Nil(t, TemporalCoherence("no dates here", "none there either"))
	})

	t.Run("absent when only one side has markers", func(t *testing.T) {
		assert.Nil(t, TemporalCoherence("Released in 2020", "Remade recently"))
	})

	t.Run("different years are low", func(t *testing.T) {
		got := TemporalCoherence("Released in 2020", "Remade in 2021")

		require.NotNil(t, got)
		assert.Equal(t, 0.0, *got, "full years are compared, not centuries")
	})

	t.Run("same ISO date is high", func(t *testing.T) {
		got := TemporalCoherence("Released 2020-08-26", "That 2020-08-26 release")

		require.NotNil(t, got)
		assert.Equal(t, 1.0, *got)
	})

	t.Run("partial overlap", func(t *testing.T) {
		got := TemporalCoherence("from 1999 to 2004", "since 1999")

		require.NotNil(t, got)
		assert.Equal(t, 0.5, *got)
	})

	t.Run("years outside 19xx and 20xx are ignored", func(t *testing.T) {
		assert.Nil(t, TemporalCoherence("in 1850", "in 1850"))
	})
}

func TestResponseUtility(t *testing.T) {
	t.Run("absolute", func(t *testing.T) {
		got, err := ResponseUtility(0.5, 0.75, UtilityAbsolute)
		require.NoError(t, err)
		assert.Equal(t, 0.25, got)
	})

	t.Run("relative", func(t *testing.T) {
		got, err := ResponseUtility(0.5, 0.75, UtilityRelative)
		require.NoError(t, err)
		assert.Equal(t, 0.5, got)
	})

	t.Run("relative with zero baseline uses epsilon", func(t *testing.T) {
		got, err := ResponseUtility(0, 1e-8, UtilityRelative)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got, 1e-12)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := ResponseUtility(0, 1, UtilityMode("ratio"))
		assert.True(t, errors.Is(err, ErrUnknownUtilityMode))
	})
}

func TestEvaluateHandoff(t *testing.T) {
	t.Run("compression defaults to zero without token counts", func(t *testing.T) {
		got, err := EvaluateHandoff(HandoffInput{
			Sent:         "Dune 2021 sci-fi epic",
			Received:     "Dune sci-fi 2021",
			TokensBefore: intPtr(100),
		})

		require.NoError(t, err)
		assert.Equal(t, 0.0, got.Compression)
		require.NotNil(t, got.TemporalCoherence)
		assert.Equal(t, 1.0, *got.TemporalCoherence)
	})

	t.Run("matches the individual metrics", func(t *testing.T) {
		in := HandoffInput{
			Sent:         "The user loves Sci-Fi and Drama from 1999",
			Received:     "User likes Drama",
			TokensBefore: intPtr(9),
			TokensAfter:  intPtr(3),
		}

		got, err := EvaluateHandoff(in)
		require.NoError(t, err)

		fidelity, _ := Fidelity(in.Sent, in.Received, nil, nil)
		drift, _ := RelevanceDrift(in.Sent, in.Received, nil, nil, DefaultTopK)
		assert.Equal(t, fidelity, got.Fidelity)
		assert.Equal(t, drift, got.Drift)
		assert.InDelta(t, 6.0/9.0, got.Compression, 1e-12)
		assert.Nil(t, got.TemporalCoherence)
	})

	t.Run("negative tokens are a metric error", func(t *testing.T) {
		_, err := EvaluateHandoff(HandoffInput{TokensBefore: intPtr(-3), TokensAfter: intPtr(1)})
		assert.ErrorIs(t, err, ErrNegativeTokens)
	})
}

func TestEngineDriftBlend(t *testing.T) {
	// Given an engine that ignores term divergence entirely
	e := Engine{TopK: DefaultTopK, DriftBlend: 1}

	// When scoring a pair with partial overlap
	drift, err := e.RelevanceDrift("red green blue", "red yellow", nil, nil)
	require.NoError(t, err)
	fidelity, err := e.Fidelity("red green blue", "red yellow", nil, nil)
	require.NoError(t, err)

	// Then drift is exactly the fidelity complement
	assert.Equal(t, 1-fidelity, drift)
}

func TestScoresStayInUnitInterval(t *testing.T) {
	property := func(sent, received string, before, after uint16) bool {
		b, a := int(before), int(after)
		m, err := EvaluateHandoff(HandoffInput{
			Sent:         sent,
			Received:     received,
			TokensBefore: &b,
			TokensAfter:  &a,
		})
		if err != nil {
			return false
		}
		for _, v := range []float64{m.Fidelity, m.Drift, m.Compression} {
			if v < 0 || v > 1 {
				return false
			}
		}
		return m.TemporalCoherence == nil || (*m.TemporalCoherence >= 0 && *m.TemporalCoherence <= 1)
	}

	assert.NoError(t, quick.Check(property, &quick.Config{MaxCount: 1000}))
}

func TestVectorFidelityInUnitInterval(t *testing.T) {
	property := func(raw [8]int16, other [8]int16) bool {
		a := make([]float64, len(raw))
		b := make([]float64, len(other))
		for i := range raw {
			a[i] = float64(raw[i])
			b[i] = float64(other[i])
		}
		f, err := Fidelity("", "", a, b)
		return err == nil && f >= 0 && f <= 1
	}

	assert.NoError(t, quick.Check(property, &quick.Config{MaxCount: 1000}))
}
