package application

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-handoff/infrastructure/llm"
	"github.com/ahrav/go-handoff/infrastructure/store"
	"github.com/ahrav/go-handoff/infrastructure/telemetry"
	"github.com/ahrav/go-handoff/internal/aggregation"
	"github.com/ahrav/go-handoff/internal/judge"
	"github.com/ahrav/go-handoff/internal/ports"
)

// Runtime is a fully wired service together with the resources it owns.
type Runtime struct {
	Service *EvaluatorService
	Metrics *telemetry.PrometheusMetrics
	Logger  *zap.Logger

	docs ports.DocumentStore
}

// Close releases the document store.
func (r *Runtime) Close() error {
	if r.docs == nil {
		return nil
	}
	return r.docs.Close()
}

// Bootstrap opens the configured store, builds the judge when enabled and
// returns the composed service.
func Bootstrap(ctx context.Context, cfg *Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := telemetry.NewPrometheusMetrics()
	tracer := telemetry.Tracer()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
	defer cancel()
	docs, err := store.Open(connectCtx, store.Config{
		Driver:      cfg.Store.Driver,
		SQLitePath:  cfg.Store.SQLitePath,
		PostgresDSN: cfg.Store.PostgresDSN,
		Logger:      logger.Named("store"),
	})
	if err != nil {
		return nil, NewServiceError("bootstrap", "", err)
	}

	opts := []ServiceOption{
		WithLogger(logger.Named("service")),
		WithMetrics(metrics),
		WithTracer(tracer),
		WithEngine(cfg.Scoring.Engine()),
	}

	if cfg.Judge.Enabled {
		adapter, err := NewJudgeAdapter(cfg.Judge, logger.Named("judge"), metrics, tracer)
		if err != nil {
			return nil, errors.Join(NewServiceError("bootstrap", "", err), docs.Close())
		}
		opts = append(opts, WithJudge(adapter))
	}

	aggStore := aggregation.NewStore(docs, aggregation.Config{
		HandoffCollection:  cfg.Store.HandoffCollection,
		PipelineCollection: cfg.Store.PipelineCollection,
		Logger:             logger.Named("aggregation"),
	})

	return &Runtime{
		Service: NewEvaluatorService(aggStore, opts...),
		Metrics: metrics,
		Logger:  logger,
		docs:    docs,
	}, nil
}

// NewJudgeAdapter builds the judge adapter for cfg. Without a credential the
// adapter has no provider and returns heuristic judgments.
func NewJudgeAdapter(
	cfg JudgeConfig,
	logger *zap.Logger,
	metrics ports.MetricsCollector,
	tracer trace.Tracer,
) (*judge.Adapter, error) {
	var provider ports.TextJudge
	if cfg.APIKey != "" {
		client, err := NewJudgeClient(cfg, metrics, tracer)
		if err != nil {
			return nil, err
		}
		provider = client
		logger.Info("judge provider configured",
			zap.String("provider", client.Provider()),
			zap.String("model", client.GetModel()),
		)
	} else {
		logger.Warn("judge enabled without credentials; heuristic judgments only",
			zap.String("provider", cfg.Provider))
	}

	return judge.New(provider, cfg.AdapterConfig(),
		judge.WithLogger(logger),
		judge.WithMetrics(metrics),
		judge.WithTracer(tracer),
	)
}

// NewJudgeClient builds the provider client. Middleware runs outermost
// first: metrics, tracing, the circuit breaker when enabled, rate-limit
// retry, request pacing, then a timeout on each attempt.
func NewJudgeClient(cfg JudgeConfig, metrics ports.MetricsCollector, tracer trace.Tracer) (*llm.Client, error) {
	var middleware []llm.Middleware
	if metrics != nil {
		middleware = append(middleware, llm.MetricsMiddleware(metrics, cfg.Provider))
	}
	if tracer != nil {
		middleware = append(middleware, llm.TracingMiddleware(tracer, cfg.Provider))
	}
	if cfg.BreakerFailures > 0 {
		breaker := llm.NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerCooldown)
		middleware = append(middleware, llm.CircuitBreakerMiddleware(breaker, metrics, cfg.Provider))
	}
	middleware = append(middleware,
		llm.RateLimitRetryMiddleware(cfg.MaxAttempts, cfg.Backoff, cfg.MaxBackoff),
		llm.RateLimitMiddleware(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		llm.TimeoutMiddleware(cfg.Timeout),
	)

	return llm.NewClient(cfg.Provider, llm.ClientConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		Middleware: middleware,
	})
}
