package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvalScores(t *testing.T) {
	tests := []struct {
		name        string
		fidelity    float64
		drift       float64
		compression float64
		temporal    *float64
		utility     *float64
		wantErr     error
	}{
		{name: "all bounds inclusive", fidelity: 0, drift: 1, compression: 0.5},
		{name: "with optional fields", fidelity: 0.9, drift: 0.1, compression: 0.4, temporal: Float(0.5), utility: Float(-3.2)},
		{name: "fidelity above one", fidelity: 1.01, drift: 0.1, compression: 0.4, wantErr: ErrScoreOutOfRange},
		{name: "negative drift", fidelity: 0.5, drift: -0.01, compression: 0.4, wantErr: ErrScoreOutOfRange},
		{name: "compression above one", fidelity: 0.5, drift: 0.5, compression: 2, wantErr: ErrScoreOutOfRange},
		{name: "temporal above one", fidelity: 0.5, drift: 0.5, compression: 0.5, temporal: Float(1.5), wantErr: ErrScoreOutOfRange},
		{name: "NaN fidelity", fidelity: math.NaN(), drift: 0.5, compression: 0.5, wantErr: ErrScoreOutOfRange},
		{name: "infinite utility", fidelity: 0.5, drift: 0.5, compression: 0.5, utility: Float(math.Inf(1)), wantErr: ErrScoreOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, err := NewEvalScores(tt.fidelity, tt.drift, tt.compression, tt.temporal, tt.utility)

			if tt.wantErr != nil {
				require.Error(t, err, "out-of-range scores must be rejected")
				assert.True(t, errors.Is(err, tt.wantErr), "unexpected cause: %v", err)
				assert.Equal(t, EvalScores{}, scores, "rejected scores must not be returned")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.fidelity, scores.Fidelity, "values are stored, never clamped")
			assert.Equal(t, tt.temporal, scores.TemporalCoherence)
		})
	}
}

func TestEvalScores_ErrorNamesField(t *testing.T) {
	_, err := NewEvalScores(1.2, 0.1, 0.1, nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fidelity", "message should use the persisted field name")
}
