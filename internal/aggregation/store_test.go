package aggregation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ahrav/go-handoff/infrastructure/store"
	"github.com/ahrav/go-handoff/internal/domain"
	"github.com/ahrav/go-handoff/internal/ports"
	"github.com/ahrav/go-handoff/internal/testutils"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *testutils.FlakyStore) {
	t.Helper()
	docs := testutils.NewFlakyStore(store.NewMemoryStore())
	s := NewStore(docs, Config{
		Logger: zaptest.NewLogger(t),
		Now:    func() time.Time { return fixedNow },
	})
	return s, docs
}

func handoff(pipelineID, handoffID, format string, fidelity, drift, compression float64) *domain.HandoffEvaluation {
	return &domain.HandoffEvaluation{
		PipelineID:       pipelineID,
		HandoffID:        handoffID,
		AgentFrom:        "planner",
		AgentTo:          "writer",
		ContextSent:      "user 42 likes sci-fi",
		ContextReceived:  "user likes sci-fi",
		EvalScores:       domain.EvalScores{Fidelity: fidelity, Drift: drift, Compression: compression},
		KeyInfoPreserved: []string{"sci-fi"},
		Metadata:         domain.NewHandoffMetadata(format, domain.TokenCounts{Before: 4, After: 3}, map[string]any{"run": "a"}),
		Timestamp:        fixedNow,
	}
}

func TestStore_InsertAndReadHandoffs(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	// Given handoffs from two pipelines
	first := handoff("p1", "h1", "json", 0.9, 0.1, 0.5)
	other := handoff("p2", "h1", "json", 0.5, 0.5, 0.5)
	second := handoff("p1", "h2", "markdown", 0.8, 0.2, 0.4)
	for _, h := range []*domain.HandoffEvaluation{first, other, second} {
		id, err := s.InsertHandoff(ctx, h)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	// When reading one pipeline
	got, err := s.HandoffsByPipeline(ctx, "p1")

	// Then only its handoffs come back, in storage order, intact
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, *first, got[0])
	assert.Equal(t, *second, got[1])
}

func TestStore_HandoffsByPipelineUnknown(t *testing.T) {
	s, _ := newTestStore(t)

	got, err := s.HandoffsByPipeline(context.Background(), "nope")

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_InsertHandoffKeepsRepeatedID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	// Given the same handoff id inserted twice
	firstID, err := s.InsertHandoff(ctx, handoff("p1", "h1", "json", 0.9, 0.1, 0.5))
	require.NoError(t, err)
	secondID, err := s.InsertHandoff(ctx, handoff("p1", "h1", "json", 0.5, 0.1, 0.5))
	require.NoError(t, err)

	// Then both records are kept and both count toward the rollup
	assert.NotEqual(t, firstID, secondID)
	got, err := s.HandoffsByPipeline(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.7, s.ComputePipelineRollup(got).AvgFidelity)
}

func TestStore_InsertHandoffRejectsInvalidRecord(t *testing.T) {
	s, docs := newTestStore(t)

	h := handoff("p1", "h1", "json", 1.5, 0.1, 0.5)
	_, err := s.InsertHandoff(context.Background(), h)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, domain.ErrScoreOutOfRange)
	assert.Zero(t, docs.Calls(testutils.OpInsert), "invalid records must not reach the store")
}

func TestStore_StorageFailuresAreAggregationErrors(t *testing.T) {
	ctx := context.Background()
	unavailable := ports.NewStoreError("eval_handoffs", "x", ports.ErrStoreUnavailable)

	tests := []struct {
		name string
		op   string
		call func(s *Store) error
		want string
	}{
		{
			name: "insert handoff",
			op:   testutils.OpInsert,
			call: func(s *Store) error {
				_, err := s.InsertHandoff(ctx, handoff("p1", "h1", "json", 0.9, 0.1, 0.5))
				return err
			},
			want: "insert_handoff",
		},
		{
			name: "handoffs by pipeline",
			op:   testutils.OpFindMany,
			call: func(s *Store) error {
				_, err := s.HandoffsByPipeline(ctx, "p1")
				return err
			},
			want: "get_handoffs_by_pipeline",
		},
		{
			name: "upsert rollup",
			op:   testutils.OpUpsert,
			call: func(s *Store) error {
				_, err := s.UpsertPipelineRollup(ctx, "p1", domain.PipelineScore{}, nil)
				return err
			},
			want: "upsert_pipeline_rollup",
		},
		{
			name: "insert pipeline",
			op:   testutils.OpInsert,
			call: func(s *Store) error {
				_, err := s.InsertPipeline(ctx, &domain.PipelineEvaluation{PipelineID: "p1"})
				return err
			},
			want: "insert_pipeline",
		},
		{
			name: "pipeline summary",
			op:   testutils.OpFindMany,
			call: func(s *Store) error {
				_, err := s.PipelineSummary(ctx, "p1")
				return err
			},
			want: "pipeline_summary",
		},
		{
			name: "rollup by format",
			op:   testutils.OpGroupByAggregate,
			call: func(s *Store) error {
				_, err := s.RollupByFormat(ctx)
				return err
			},
			want: "rollup_by_format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, docs := newTestStore(t)
			docs.FailOn(tt.op, unavailable)

			err := tt.call(s)

			var aerr *AggregationError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, tt.want, aerr.Operation)
			assert.ErrorIs(t, err, ports.ErrStoreUnavailable)
		})
	}
}

func TestStore_CorruptDocumentIsAggregationError(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	s := NewStore(mem, Config{})

	_, err := mem.Insert(ctx, DefaultHandoffCollection, ports.Document{
		"pipeline_id": "p1",
		"eval_scores": "not an object",
	})
	require.NoError(t, err)

	_, err = s.HandoffsByPipeline(ctx, "p1")

	var aerr *AggregationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "get_handoffs_by_pipeline", aerr.Operation)
}

func TestStore_ComputePipelineRollup(t *testing.T) {
	s, _ := newTestStore(t)

	tests := []struct {
		name     string
		handoffs []domain.HandoffEvaluation
		want     domain.PipelineScore
	}{
		{
			name: "empty",
			want: domain.PipelineScore{},
		},
		{
			name: "three stages compound",
			handoffs: []domain.HandoffEvaluation{
				*handoff("p", "1", "json", 0.9, 0.1, 0.6),
				*handoff("p", "2", "json", 0.8, 0.2, 0.5),
				*handoff("p", "3", "json", 0.7, 0.3, 0.4),
			},
			want: domain.PipelineScore{AvgFidelity: 0.8, AvgDrift: 0.2, TotalCompression: 0.5, EndToEndFidelity: 0.7958},
		},
		{
			name: "a lost stage craters end to end",
			handoffs: []domain.HandoffEvaluation{
				*handoff("p", "1", "json", 1, 0, 0.5),
				*handoff("p", "2", "json", 0, 1, 0.5),
			},
			want: domain.PipelineScore{AvgFidelity: 0.5, AvgDrift: 0.5, TotalCompression: 0.5, EndToEndFidelity: 0.001},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ComputePipelineRollup(tt.handoffs)
			assert.InDelta(t, tt.want.AvgFidelity, got.AvgFidelity, 1e-9)
			assert.InDelta(t, tt.want.AvgDrift, got.AvgDrift, 1e-9)
			assert.InDelta(t, tt.want.TotalCompression, got.TotalCompression, 1e-9)
			assert.InDelta(t, tt.want.EndToEndFidelity, got.EndToEndFidelity, 1e-9)
		})
	}
}

func TestStore_UpsertPipelineRollupConverges(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	// Given a pipeline finalized after one handoff and again after two
	one := []domain.HandoffEvaluation{*handoff("p1", "h1", "json", 0.9, 0.1, 0.5)}
	_, err := s.UpsertPipelineRollup(ctx, "p1", s.ComputePipelineRollup(one), one)
	require.NoError(t, err)

	two := append(one, *handoff("p1", "h2", "json", 0.7, 0.3, 0.5))
	stored, err := s.UpsertPipelineRollup(ctx, "p1", s.ComputePipelineRollup(two), two)
	require.NoError(t, err)

	// When reading the summary back
	summary, err := s.PipelineSummary(ctx, "p1")

	// Then it reflects the latest state only
	require.NoError(t, err)
	assert.Equal(t, stored, summary)
	assert.Len(t, summary.Handoffs, 2)
	assert.InDelta(t, 0.8, summary.OverallPipelineScore.AvgFidelity, 1e-9)
	assert.Equal(t, fixedNow, summary.UpdatedAt)
}

func TestStore_UpsertEmptySnapshot(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.UpsertPipelineRollup(ctx, "p1", domain.PipelineScore{}, nil)
	require.NoError(t, err)

	summary, err := s.PipelineSummary(ctx, "p1")
	require.NoError(t, err)
	assert.NotNil(t, summary.Handoffs, "an empty snapshot should persist as an empty list")
	assert.Empty(t, summary.Handoffs)
}

func TestStore_PipelineSummaryNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.PipelineSummary(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrPipelineNotFound)
	var aerr *AggregationError
	assert.False(t, errors.As(err, &aerr), "not found is not a storage failure")
}

func TestStore_InsertPipelineLatestWins(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, fidelity := range []float64{0.4, 0.6} {
		_, err := s.InsertPipeline(ctx, &domain.PipelineEvaluation{
			PipelineID:           "p1",
			Handoffs:             []domain.HandoffEvaluation{},
			OverallPipelineScore: domain.PipelineScore{AvgFidelity: fidelity},
		})
		require.NoError(t, err)
	}

	summary, err := s.PipelineSummary(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0.6, summary.OverallPipelineScore.AvgFidelity)
}

func TestStore_RollupByFormat(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	s := NewStore(mem, Config{})

	// Given handoffs in three formats, where two formats tie on fidelity
	for _, h := range []*domain.HandoffEvaluation{
		handoff("p1", "h1", "text", 0.6, 0.4, 0.2),
		handoff("p1", "h2", "markdown", 0.9, 0.1, 0.5),
		handoff("p2", "h1", "json", 0.9, 0.3, 0.6),
		handoff("p2", "h2", "json", 0.9, 0.1, 0.4),
		handoff("p3", "h1", "markdown", 0.9, 0.2, 0.3),
	} {
		_, err := s.InsertHandoff(ctx, h)
		require.NoError(t, err)
	}
	// and a legacy record without a format
	_, err := mem.Insert(ctx, DefaultHandoffCollection, ports.Document{
		"pipeline_id": "legacy",
		"eval_scores": map[string]any{"fidelity": 1.0, "drift": 0.0, "compression": 1.0},
	})
	require.NoError(t, err)

	// When rolling up by format
	rollups, err := s.RollupByFormat(ctx)

	// Then groups are sorted by fidelity, ties by name, and unformatted
	// records are excluded
	require.NoError(t, err)
	require.Len(t, rollups, 3)

	assert.Equal(t, "json", rollups[0].Format)
	assert.InDelta(t, 0.9, rollups[0].AvgFidelity, 1e-9)
	assert.InDelta(t, 0.2, rollups[0].AvgDrift, 1e-9)
	assert.InDelta(t, 0.5, rollups[0].AvgCompression, 1e-9)
	assert.Equal(t, 2, rollups[0].Count)

	assert.Equal(t, "markdown", rollups[1].Format)
	assert.InDelta(t, 0.9, rollups[1].AvgFidelity, 1e-9)
	assert.Equal(t, 2, rollups[1].Count)

	assert.Equal(t, "text", rollups[2].Format)
	assert.Equal(t, 1, rollups[2].Count)
}

func TestStore_RollupByFormatEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	rollups, err := s.RollupByFormat(context.Background())

	require.NoError(t, err)
	assert.Empty(t, rollups)
}

func TestStore_CustomCollections(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	s := NewStore(mem, Config{HandoffCollection: "h", PipelineCollection: "p"})

	_, err := s.InsertHandoff(ctx, handoff("p1", "h1", "json", 0.9, 0.1, 0.5))
	require.NoError(t, err)
	_, err = s.UpsertPipelineRollup(ctx, "p1", domain.PipelineScore{}, nil)
	require.NoError(t, err)

	handoffs, err := mem.FindMany(ctx, "h", "pipeline_id", "p1")
	require.NoError(t, err)
	assert.Len(t, handoffs, 1)
	pipelines, err := mem.FindMany(ctx, "p", "pipeline_id", "p1")
	require.NoError(t, err)
	assert.Len(t, pipelines, 1)
}
