// Package telemetry exports evaluation metrics to Prometheus and wraps
// service operations in OpenTelemetry spans.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/go-handoff/internal/ports"
)

// Metric names owned by this collector rather than by ports.
const (
	metricOperationDuration = "operation_duration_seconds"
	metricEvents            = "events_total"
	metricState             = "system_state"
)

// scoreBuckets cover the [0,1] range of every handoff score.
var scoreBuckets = prometheus.LinearBuckets(0.1, 0.1, 10)

// PrometheusMetrics implements ports.MetricsCollector on a private registry.
// Metrics named in ports get dedicated vectors; any other name is folded
// into a generic vector labelled by metric name.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	handoffEvaluations *prometheus.CounterVec
	handoffScore       *prometheus.HistogramVec
	pipelineFinalize   *prometheus.CounterVec
	judgeResults       *prometheus.CounterVec
	llmRequests        *prometheus.CounterVec
	llmLatency         *prometheus.HistogramVec
	llmTokens          *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	events             *prometheus.CounterVec
	histograms         *prometheus.HistogramVec
	state              *prometheus.GaugeVec
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the collector and registers its vectors,
// plus the Go runtime and process collectors, on a fresh registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		handoffEvaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricHandoffEvaluations,
				Help: "Handoff evaluations attempted, by context format and outcome.",
			},
			[]string{"format", "status"},
		),
		handoffScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    ports.MetricHandoffScore,
				Help:    "Distribution of handoff scores, by metric and context format.",
				Buckets: scoreBuckets,
			},
			[]string{"metric", "format"},
		),
		pipelineFinalize: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricPipelineFinalize,
				Help: "Pipeline rollups computed, by outcome.",
			},
			[]string{"status"},
		),
		judgeResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricJudgeResults,
				Help: "Judge results, by how the judgment was obtained.",
			},
			[]string{"kind"},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricLLMRequests,
				Help: "Requests sent to judge providers.",
			},
			[]string{"provider", "model", "status"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    ports.MetricLLMLatency,
				Help:    "Judge provider request latency.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricLLMTokens,
				Help: "Tokens consumed by judge requests.",
			},
			[]string{"provider", "model", "token_type"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricOperationDuration,
				Help:    "Duration of evaluation service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "status"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricEvents,
				Help: "Counters without a dedicated metric.",
			},
			[]string{"metric"},
		),
		histograms: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "observations",
				Help:    "Histograms without a dedicated metric.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
		state: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricState,
				Help: "Current values reported as gauges.",
			},
			[]string{"metric"},
		),
	}
}

// Registry returns the registry holding every metric of this collector.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{Registry: pm.registry})
}

// RecordLatency implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.operationDuration.WithLabelValues(operation, labelOr(labels, "status", "success")).Observe(duration.Seconds())
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricHandoffEvaluations:
		pm.handoffEvaluations.WithLabelValues(labelOr(labels, "format", "unknown"), labelOr(labels, "status", "ok")).Add(value)
	case ports.MetricPipelineFinalize:
		pm.pipelineFinalize.WithLabelValues(labelOr(labels, "status", "ok")).Add(value)
	case ports.MetricJudgeResults:
		pm.judgeResults.WithLabelValues(labelOr(labels, "kind", "unknown")).Add(value)
	case ports.MetricLLMRequests:
		pm.llmRequests.WithLabelValues(llmLabels(labels, "status")...).Add(value)
	case ports.MetricLLMTokens:
		pm.llmTokens.WithLabelValues(llmLabels(labels, "token_type")...).Add(value)
	default:
		pm.events.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	pm.state.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricHandoffScore:
		pm.handoffScore.WithLabelValues(labelOr(labels, "metric", "unknown"), labelOr(labels, "format", "unknown")).Observe(value)
	case ports.MetricLLMLatency:
		pm.llmLatency.WithLabelValues(llmLabels(labels, "status")...).Observe(value)
	default:
		pm.histograms.WithLabelValues(metric).Observe(value)
	}
}

func labelOr(labels map[string]string, key, fallback string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return fallback
}

func llmLabels(labels map[string]string, last string) []string {
	return []string{
		labelOr(labels, "provider", "unknown"),
		labelOr(labels, "model", "unknown"),
		labelOr(labels, last, "unknown"),
	}
}
