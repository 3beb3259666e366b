package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-handoff/internal/ports"
)

// metricsLLM records latency, outcome and token usage for each request.
type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
	provider  string
}

// MetricsMiddleware reports every request to collector under the
// llm_latency_seconds, llm_requests_total and llm_tokens_total metrics,
// labelled with provider, model and status.
func MetricsMiddleware(collector ports.MetricsCollector, provider string) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{next: next, collector: collector, provider: provider}
	}
}

// DoRequest implements CoreLLM.
func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	if m.collector == nil {
		return response, tokensIn, tokensOut, err
	}

	labels := map[string]string{
		"provider": m.provider,
		"model":    m.next.GetModel(),
		"status":   requestStatus(err),
	}
	m.collector.RecordHistogram(ports.MetricLLMLatency, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(ports.MetricLLMRequests, 1, labels)

	if err == nil {
		for tokenType, count := range map[string]int{"input": tokensIn, "output": tokensOut} {
			tokenLabels := map[string]string{
				"provider":   labels["provider"],
				"model":      labels["model"],
				"token_type": tokenType,
			}
			m.collector.RecordCounter(ports.MetricLLMTokens, float64(count), tokenLabels)
		}
	}

	return response, tokensIn, tokensOut, err
}

func requestStatus(err error) string {
	var perr *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &perr):
		return perr.Type.String()
	default:
		return "error"
	}
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
