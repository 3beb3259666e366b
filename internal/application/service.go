// Package application composes metric scoring, key-information extraction,
// the optional LLM judge and persistence into the evaluation service, and
// loads the runtime configuration that wires them together.
package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-handoff/infrastructure/telemetry"
	"github.com/ahrav/go-handoff/internal/aggregation"
	"github.com/ahrav/go-handoff/internal/domain"
	"github.com/ahrav/go-handoff/internal/judge"
	"github.com/ahrav/go-handoff/internal/keyunits"
	"github.com/ahrav/go-handoff/internal/ports"
	"github.com/ahrav/go-handoff/internal/scoring"
)

// DefaultFormat is recorded when a handoff names no context format.
const DefaultFormat = "text"

// Score metric labels.
const (
	scoreFidelity    = "fidelity"
	scoreDrift       = "drift"
	scoreCompression = "compression"
)

// HandoffRequest carries the raw material of one handoff evaluation.
type HandoffRequest struct {
	PipelineID      string
	HandoffID       string
	AgentFrom       string
	AgentTo         string
	ContextSent     string
	ContextReceived string

	// TokensBefore and TokensAfter default to whitespace token counts of
	// the sent and received contexts.
	TokensBefore *int
	TokensAfter  *int

	// Vectors are optional precomputed embeddings.
	Vectors *domain.VectorBundle

	// Metadata is stored alongside the record.
	Metadata map[string]any

	// Format names the context representation. When empty, a string
	// Metadata["format"] is used, then DefaultFormat.
	Format string
}

// ServiceOption configures an EvaluatorService.
type ServiceOption func(*EvaluatorService)

// WithJudge enables judge evaluation through adapter.
func WithJudge(adapter *judge.Adapter) ServiceOption {
	return func(s *EvaluatorService) { s.judge = adapter }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *EvaluatorService) { s.logger = logger }
}

// WithMetrics sets the collector receiving evaluation counters, score
// distributions and operation latencies.
func WithMetrics(metrics ports.MetricsCollector) ServiceOption {
	return func(s *EvaluatorService) { s.metrics = metrics }
}

// WithClock sets the source of handoff timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *EvaluatorService) { s.now = now }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(tracer trace.Tracer) ServiceOption {
	return func(s *EvaluatorService) { s.tracer = tracer }
}

// WithEngine replaces the default metric engine.
func WithEngine(engine scoring.Engine) ServiceOption {
	return func(s *EvaluatorService) { s.engine = engine }
}

// EvaluatorService scores handoffs, persists them and maintains pipeline
// rollups. It holds no mutable state besides the store and is safe for
// concurrent use.
type EvaluatorService struct {
	store     *aggregation.Store
	engine    scoring.Engine
	extractor *keyunits.Extractor
	judge     *judge.Adapter
	logger    *zap.Logger
	metrics   ports.MetricsCollector
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEvaluatorService creates a service persisting through store.
func NewEvaluatorService(store *aggregation.Store, opts ...ServiceOption) *EvaluatorService {
	s := &EvaluatorService{
		store:     store,
		engine:    scoring.DefaultEngine,
		extractor: keyunits.Default,
		logger:    zap.NewNop(),
		tracer:    telemetry.Tracer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// JudgeEnabled reports whether a judge is configured.
func (s *EvaluatorService) JudgeEnabled() bool { return s.judge != nil }

// EvaluateAndStoreHandoff scores one handoff, validates the resulting record
// and persists it. Exactly one record is written on success and none on
// failure. Metric and schema errors are returned as is; storage failures
// are wrapped in a ServiceError.
func (s *EvaluatorService) EvaluateAndStoreHandoff(
	ctx context.Context, req HandoffRequest,
) (_ *domain.HandoffEvaluation, err error) {
	format := resolveFormat(req)
	ctx, op := telemetry.StartOperation(ctx, s.tracer, s.metrics, "evaluate_handoff",
		attribute.String("pipeline.id", req.PipelineID),
		attribute.String("handoff.id", req.HandoffID),
		attribute.String("handoff.format", format),
	)
	defer func() { op.End(err) }()

	status := "ok"
	defer func() {
		s.count(ports.MetricHandoffEvaluations, map[string]string{"format": format, "status": status})
	}()

	before := tokenCountOr(req.TokensBefore, req.ContextSent)
	after := tokenCountOr(req.TokensAfter, req.ContextReceived)

	input := scoring.HandoffInput{
		Sent:         req.ContextSent,
		Received:     req.ContextReceived,
		TokensBefore: &before,
		TokensAfter:  &after,
	}
	if req.Vectors != nil {
		input.SentVec = req.Vectors.Sent
		input.ReceivedVec = req.Vectors.Received
	}

	scores, err := s.engine.EvaluateHandoff(input)
	if err != nil {
		status = "invalid"
		return nil, err
	}

	record := &domain.HandoffEvaluation{
		PipelineID:      req.PipelineID,
		HandoffID:       req.HandoffID,
		AgentFrom:       req.AgentFrom,
		AgentTo:         req.AgentTo,
		ContextSent:     req.ContextSent,
		ContextReceived: req.ContextReceived,
		EvalScores: domain.EvalScores{
			Fidelity:          scores.Fidelity,
			Drift:             scores.Drift,
			Compression:       scores.Compression,
			TemporalCoherence: scores.TemporalCoherence,
		},
		Vectors:          req.Vectors,
		KeyInfoPreserved: s.extractor.KeyInfoPreserved(req.ContextSent, req.ContextReceived, 0),
		Metadata: domain.NewHandoffMetadata(format,
			domain.TokenCounts{Before: before, After: after}, req.Metadata),
		Timestamp: s.now().UTC(),
	}

	if _, err := s.store.InsertHandoff(ctx, record); err != nil {
		var aerr *aggregation.AggregationError
		if errors.As(err, &aerr) {
			status = "store_error"
			s.logger.Error("failed to persist handoff evaluation",
				zap.String("pipeline_id", req.PipelineID),
				zap.String("handoff_id", req.HandoffID),
				zap.Error(err),
			)
			return nil, NewServiceError("evaluate_and_store_handoff", req.PipelineID, err)
		}
		status = "invalid"
		return nil, err
	}

	s.observeScores(format, record.EvalScores)
	s.logger.Debug("handoff evaluated",
		zap.String("pipeline_id", record.PipelineID),
		zap.String("handoff_id", record.HandoffID),
		zap.String("format", format),
		zap.Float64("fidelity", record.EvalScores.Fidelity),
		zap.Float64("drift", record.EvalScores.Drift),
		zap.Float64("compression", record.EvalScores.Compression),
		zap.Int("key_units_preserved", len(record.KeyInfoPreserved)),
	)
	return record, nil
}

// FinalizePipeline recomputes the rollup of pipelineID from every stored
// handoff and replaces the pipeline summary. It is idempotent. Every call
// reads its own snapshot under its own context; concurrent calls race and the
// last upsert wins.
func (s *EvaluatorService) FinalizePipeline(
	ctx context.Context, pipelineID string,
) (_ *domain.PipelineEvaluation, err error) {
	if pipelineID == "" {
		verr := domain.NewValidationError("PipelineEvaluation")
		verr.AddCause(domain.ErrMissingField, "pipeline_id is required")
		return nil, verr
	}

	ctx, op := telemetry.StartOperation(ctx, s.tracer, s.metrics, "finalize_pipeline",
		attribute.String("pipeline.id", pipelineID))
	defer func() { op.End(err) }()

	summary, err := s.finalize(ctx, pipelineID)

	status := "ok"
	if err != nil {
		status = "error"
	}
	s.count(ports.MetricPipelineFinalize, map[string]string{"status": status})
	if err != nil {
		return nil, err
	}
	op.SetAttributes(attribute.Int("pipeline.handoffs", len(summary.Handoffs)))
	return summary, nil
}

func (s *EvaluatorService) finalize(ctx context.Context, pipelineID string) (*domain.PipelineEvaluation, error) {
	handoffs, err := s.store.HandoffsByPipeline(ctx, pipelineID)
	if err != nil {
		return nil, NewServiceError("finalize_pipeline", pipelineID, err)
	}

	score := s.store.ComputePipelineRollup(handoffs)
	summary, err := s.store.UpsertPipelineRollup(ctx, pipelineID, score, handoffs)
	if err != nil {
		return nil, NewServiceError("finalize_pipeline", pipelineID, err)
	}

	s.logger.Info("pipeline finalized",
		zap.String("pipeline_id", pipelineID),
		zap.Int("handoffs", len(handoffs)),
		zap.Float64("avg_fidelity", score.AvgFidelity),
		zap.Float64("end_to_end_fidelity", score.EndToEndFidelity),
	)
	return summary, nil
}

// JudgeHandoff asks the configured judge to assess one handoff. The result
// always carries a judgment; its Kind tells whether it came from the
// provider or the heuristic. ErrJudgeDisabled is returned when no judge is
// configured.
func (s *EvaluatorService) JudgeHandoff(ctx context.Context, sent, received string) (judge.Result, error) {
	if s.judge == nil {
		return judge.Result{}, ErrJudgeDisabled
	}

	res := s.judge.Judge(ctx, sent, received)
	if res.Fallback() {
		s.logger.Warn("judge fell back to heuristic",
			zap.String("kind", res.Kind.String()),
			zap.Error(res.Err),
		)
	}
	return res, nil
}

// JudgeHandoffs judges several handoffs concurrently, preserving order.
func (s *EvaluatorService) JudgeHandoffs(ctx context.Context, pairs []judge.Pair) ([]judge.Result, error) {
	if s.judge == nil {
		return nil, ErrJudgeDisabled
	}
	return s.judge.JudgeBatch(ctx, pairs), nil
}

// PipelineStatus reports whether pipelineID has handoffs and whether its
// stored summary covers all of them.
func (s *EvaluatorService) PipelineStatus(ctx context.Context, pipelineID string) (domain.PipelineState, error) {
	handoffs, err := s.store.HandoffsByPipeline(ctx, pipelineID)
	if err != nil {
		return domain.PipelineEmpty, NewServiceError("pipeline_status", pipelineID, err)
	}
	if len(handoffs) == 0 {
		return domain.PipelineEmpty, nil
	}

	summary, err := s.store.PipelineSummary(ctx, pipelineID)
	switch {
	case errors.Is(err, domain.ErrPipelineNotFound):
		return domain.PipelineOpen, nil
	case err != nil:
		return domain.PipelineEmpty, NewServiceError("pipeline_status", pipelineID, err)
	case len(summary.Handoffs) < len(handoffs):
		return domain.PipelineOpen, nil
	default:
		return domain.PipelineFinalized, nil
	}
}

// PipelineSummary returns the stored summary of pipelineID.
func (s *EvaluatorService) PipelineSummary(ctx context.Context, pipelineID string) (*domain.PipelineEvaluation, error) {
	summary, err := s.store.PipelineSummary(ctx, pipelineID)
	if err != nil && !errors.Is(err, domain.ErrPipelineNotFound) {
		return nil, NewServiceError("pipeline_summary", pipelineID, err)
	}
	return summary, err
}

// RollupByFormat compares context formats across every stored handoff.
func (s *EvaluatorService) RollupByFormat(ctx context.Context) (_ []domain.FormatRollup, err error) {
	ctx, op := telemetry.StartOperation(ctx, s.tracer, s.metrics, "rollup_by_format")
	defer func() { op.End(err) }()

	rollups, err := s.store.RollupByFormat(ctx)
	if err != nil {
		return nil, NewServiceError("rollup_by_format", "", err)
	}
	return rollups, nil
}

func (s *EvaluatorService) count(metric string, labels map[string]string) {
	if s.metrics != nil {
		s.metrics.RecordCounter(metric, 1, labels)
	}
}

func (s *EvaluatorService) observeScores(format string, scores domain.EvalScores) {
	if s.metrics == nil {
		return
	}
	for name, v := range map[string]float64{
		scoreFidelity:    scores.Fidelity,
		scoreDrift:       scores.Drift,
		scoreCompression: scores.Compression,
	} {
		s.metrics.RecordHistogram(ports.MetricHandoffScore, v, map[string]string{"metric": name, "format": format})
	}
}

func resolveFormat(req HandoffRequest) string {
	if req.Format != "" {
		return req.Format
	}
	if f, ok := req.Metadata[domain.MetadataKeyFormat].(string); ok && f != "" {
		return f
	}
	return DefaultFormat
}

// tokenCountOr returns *n, or the whitespace token count of text when n is
// nil.
func tokenCountOr(n *int, text string) int {
	if n != nil {
		return *n
	}
	return len(strings.Fields(text))
}
