// Package aggregation persists handoff evaluations and derives
// pipeline-level and format-level rollups from them.
package aggregation

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/ahrav/go-handoff/internal/domain"
	"github.com/ahrav/go-handoff/internal/ports"
)

// Default collection names.
const (
	DefaultHandoffCollection  = "eval_handoffs"
	DefaultPipelineCollection = "eval_pipelines"
)

// Document field paths the store queries by.
const (
	fieldPipelineID  = "pipeline_id"
	fieldFormat      = "metadata.format"
	fieldFidelity    = "eval_scores.fidelity"
	fieldDrift       = "eval_scores.drift"
	fieldCompression = "eval_scores.compression"
)

// Config configures a Store. Zero values select the defaults.
type Config struct {
	HandoffCollection  string
	PipelineCollection string
	Logger             *zap.Logger
	// Now stamps pipeline summaries. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Store reads and writes evaluation records through a DocumentStore.
// Handoff records are append-only; pipeline summaries are replaced whole.
type Store struct {
	docs      ports.DocumentStore
	handoffs  string
	pipelines string
	logger    *zap.Logger
	now       func() time.Time
}

// NewStore creates a Store over docs.
func NewStore(docs ports.DocumentStore, cfg Config) *Store {
	s := &Store{
		docs:      docs,
		handoffs:  cmp.Or(cfg.HandoffCollection, DefaultHandoffCollection),
		pipelines: cmp.Or(cfg.PipelineCollection, DefaultPipelineCollection),
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// InsertHandoff validates h and appends it, returning the id assigned by
// the backing store. Schema failures are returned unwrapped.
//
// Keeping handoff_id unique within a pipeline is the caller's job; a repeated
// id is stored as a separate record and counted by every rollup.
func (s *Store) InsertHandoff(ctx context.Context, h *domain.HandoffEvaluation) (string, error) {
	if err := h.Validate(); err != nil {
		return "", err
	}

	doc, err := toDocument(h)
	if err != nil {
		return "", NewAggregationError("insert_handoff", err)
	}
	id, err := s.docs.Insert(ctx, s.handoffs, doc)
	if err != nil {
		s.logger.Error("failed to insert handoff",
			zap.String("pipeline_id", h.PipelineID),
			zap.String("handoff_id", h.HandoffID),
			zap.Error(err),
		)
		return "", NewAggregationError("insert_handoff", err)
	}
	return id, nil
}

// HandoffsByPipeline returns every handoff recorded for pipelineID in
// storage order.
func (s *Store) HandoffsByPipeline(ctx context.Context, pipelineID string) ([]domain.HandoffEvaluation, error) {
	docs, err := s.docs.FindMany(ctx, s.handoffs, fieldPipelineID, pipelineID)
	if err != nil {
		return nil, NewAggregationError("get_handoffs_by_pipeline", err)
	}

	handoffs := make([]domain.HandoffEvaluation, 0, len(docs))
	for _, doc := range docs {
		var h domain.HandoffEvaluation
		if err := fromDocument(doc, &h); err != nil {
			return nil, NewAggregationError("get_handoffs_by_pipeline", err)
		}
		handoffs = append(handoffs, h)
	}
	return handoffs, nil
}

// ComputePipelineRollup derives the pipeline score from handoffs.
func (s *Store) ComputePipelineRollup(handoffs []domain.HandoffEvaluation) domain.PipelineScore {
	return domain.ComputePipelineRollup(handoffs)
}

// InsertPipeline appends a pipeline summary without replacing earlier ones.
func (s *Store) InsertPipeline(ctx context.Context, p *domain.PipelineEvaluation) (string, error) {
	doc, err := toDocument(p)
	if err != nil {
		return "", NewAggregationError("insert_pipeline", err)
	}
	id, err := s.docs.Insert(ctx, s.pipelines, doc)
	if err != nil {
		return "", NewAggregationError("insert_pipeline", err)
	}
	return id, nil
}

// UpsertPipelineRollup replaces the summary of pipelineID, or creates it,
// and returns the stored summary. handoffs is stored as the snapshot the
// score was computed from.
func (s *Store) UpsertPipelineRollup(
	ctx context.Context,
	pipelineID string,
	score domain.PipelineScore,
	handoffs []domain.HandoffEvaluation,
) (*domain.PipelineEvaluation, error) {
	if handoffs == nil {
		handoffs = []domain.HandoffEvaluation{}
	}
	summary := &domain.PipelineEvaluation{
		PipelineID:           pipelineID,
		Handoffs:             handoffs,
		OverallPipelineScore: score,
		UpdatedAt:            s.now(),
	}

	doc, err := toDocument(summary)
	if err != nil {
		return nil, NewAggregationError("upsert_pipeline_rollup", err)
	}
	if err := s.docs.Upsert(ctx, s.pipelines, fieldPipelineID, pipelineID, doc); err != nil {
		s.logger.Error("failed to upsert pipeline rollup",
			zap.String("pipeline_id", pipelineID),
			zap.Error(err),
		)
		return nil, NewAggregationError("upsert_pipeline_rollup", err)
	}
	return summary, nil
}

// PipelineSummary returns the stored summary of pipelineID. It fails with
// domain.ErrPipelineNotFound when the pipeline was never finalized. When
// several summaries were inserted, the latest wins.
func (s *Store) PipelineSummary(ctx context.Context, pipelineID string) (*domain.PipelineEvaluation, error) {
	docs, err := s.docs.FindMany(ctx, s.pipelines, fieldPipelineID, pipelineID)
	if err != nil {
		return nil, NewAggregationError("pipeline_summary", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrPipelineNotFound, pipelineID)
	}

	var summary domain.PipelineEvaluation
	if err := fromDocument(docs[len(docs)-1], &summary); err != nil {
		return nil, NewAggregationError("pipeline_summary", err)
	}
	return &summary, nil
}

// RollupByFormat averages scores over all handoffs per metadata format,
// sorted by descending average fidelity with ties broken by format name.
func (s *Store) RollupByFormat(ctx context.Context) ([]domain.FormatRollup, error) {
	groups, err := s.docs.GroupByAggregate(ctx, s.handoffs, fieldFormat,
		[]string{fieldFidelity, fieldDrift, fieldCompression})
	if err != nil {
		return nil, NewAggregationError("rollup_by_format", err)
	}

	rollups := make([]domain.FormatRollup, 0, len(groups))
	for _, g := range groups {
		rollups = append(rollups, domain.FormatRollup{
			Format:         g.Key,
			AvgFidelity:    g.Averages[fieldFidelity],
			AvgDrift:       g.Averages[fieldDrift],
			AvgCompression: g.Averages[fieldCompression],
			Count:          g.Count,
		})
	}
	slices.SortFunc(rollups, func(a, b domain.FormatRollup) int {
		if c := cmp.Compare(b.AvgFidelity, a.AvgFidelity); c != 0 {
			return c
		}
		return cmp.Compare(a.Format, b.Format)
	})
	return rollups, nil
}

// toDocument converts v to its JSON object form.
func toDocument(v any) (ports.Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var doc ports.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return doc, nil
}

func fromDocument(doc ports.Document, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}
