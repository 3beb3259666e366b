// Package judge obtains structured quality judgments of handoffs from an
// external text generator. The provider is treated as unreliable: it may be
// unconfigured, fail, or ignore formatting instructions. Every such failure
// degrades to a heuristic judgment instead of an error, so a flaky judge
// never blocks an evaluation run.
package judge

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-handoff/internal/ports"
)

// Adapter turns a TextJudge into a source of domain judgments.
// It is safe for concurrent use.
type Adapter struct {
	provider ports.TextJudge
	config   Config
	logger   *zap.Logger
	metrics  ports.MetricsCollector
	tracer   trace.Tracer
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger used to report fallbacks.
func WithLogger(l *zap.Logger) Option { return func(a *Adapter) { a.logger = l } }

// WithMetrics sets the collector that counts results by kind.
func WithMetrics(m ports.MetricsCollector) Option { return func(a *Adapter) { a.metrics = m } }

// WithTracer sets the tracer used for judge spans.
func WithTracer(t trace.Tracer) Option { return func(a *Adapter) { a.tracer = t } }

// Pair is one handoff submitted to JudgeBatch.
type Pair struct {
	Sent     string `json:"context_sent" yaml:"context_sent"`
	Received string `json:"context_received" yaml:"context_received"`
}

// New creates an Adapter. A nil provider models a judge without credentials:
// every call short-circuits to an Unavailable result with a heuristic
// judgment.
func New(provider ports.TextJudge, cfg Config, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Adapter{
		provider: provider,
		config:   cfg,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("github.com/ahrav/go-handoff/internal/judge"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Available reports whether a provider is configured.
func (a *Adapter) Available() bool { return a.provider != nil }

// Config returns the adapter configuration.
func (a *Adapter) Config() Config { return a.config }

// Judge evaluates one handoff. It never fails: provider errors, empty
// responses and unparseable text all yield a heuristic judgment tagged with
// the reason.
func (a *Adapter) Judge(ctx context.Context, sent, received string) Result {
	ctx, span := a.tracer.Start(ctx, "judge.Judge",
		trace.WithAttributes(
			attribute.Int("judge.sent_chars", len(sent)),
			attribute.Int("judge.received_chars", len(received)),
		))
	defer span.End()

	res := a.judge(ctx, sent, received)

	span.SetAttributes(
		attribute.String("judge.kind", res.Kind.String()),
		attribute.String("judge.grade", string(res.Judgment.Grade)),
		attribute.Float64("judge.overall_score", res.Judgment.OverallScore),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "judge provider failed")
	}
	if a.metrics != nil {
		a.metrics.RecordCounter(ports.MetricJudgeResults, 1, map[string]string{"kind": res.Kind.String()})
	}
	return res
}

func (a *Adapter) judge(ctx context.Context, sent, received string) Result {
	if a.provider == nil {
		return a.fallback(KindUnavailable, sent, received, "", nil)
	}

	user, err := UserPrompt(sent, received, a.config.MaxChars, a.config.ChainOfThought)
	if err != nil {
		return a.fallback(KindUnavailable, sent, received, "", err)
	}

	text, err := a.provider.JudgeText(ctx, ports.JudgeRequest{
		System:      SystemPrompt(),
		User:        user,
		Temperature: a.config.Temperature,
		MaxTokens:   a.config.MaxTokens,
	})
	if err != nil {
		return a.fallback(KindUnavailable, sent, received, "", err)
	}
	if strings.TrimSpace(text) == "" {
		return a.fallback(KindUnavailable, sent, received, "", nil)
	}

	obj, strategy, ok := extractObject(text)
	if !ok {
		return a.fallback(KindParseFailure, sent, received, text, nil)
	}
	judgment, err := normalize(obj, a.config.Weights)
	if err != nil {
		return a.fallback(KindParseFailure, sent, received, text, err)
	}

	a.logger.Debug("judge response parsed",
		zap.String("strategy", strategy),
		zap.String("model", a.provider.GetModel()),
		zap.Float64("fidelity", judgment.Fidelity),
		zap.Float64("drift", judgment.Drift),
		zap.String("grade", string(judgment.Grade)),
	)
	return Result{Kind: KindOK, Judgment: judgment}
}

func (a *Adapter) fallback(kind ResultKind, sent, received, raw string, err error) Result {
	fields := []zap.Field{zap.String("kind", kind.String())}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if raw != "" {
		fields = append(fields, zap.String("raw_preview", truncateRunes(raw, 200)))
	}
	a.logger.Warn("judge fell back to heuristic evaluation", fields...)

	return Result{
		Kind:     kind,
		Judgment: Heuristic(sent, received, a.config.Weights, a.config.ConsistencyPrior),
		Raw:      raw,
		Err:      err,
	}
}

// JudgeBatch evaluates pairs concurrently, bounded by MaxConcurrency.
// Results are returned in input order and each is independent of the
// others.
func (a *Adapter) JudgeBatch(ctx context.Context, pairs []Pair) []Result {
	results := make([]Result, len(pairs))

	var g errgroup.Group
	g.SetLimit(a.config.MaxConcurrency)
	for i, p := range pairs {
		g.Go(func() error {
			results[i] = a.Judge(ctx, p.Sent, p.Received)
			return nil
		})
	}
	_ = g.Wait()

	a.logger.Info("judged handoff batch", zap.Int("count", len(pairs)))
	return results
}
