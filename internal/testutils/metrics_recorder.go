package testutils

import (
	"sync"
	"time"

	"github.com/ahrav/go-handoff/internal/ports"
)

var _ ports.MetricsCollector = (*MetricsRecorder)(nil)

// RecordedMetric is one observation captured by MetricsRecorder.
type RecordedMetric struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// MetricsRecorder implements ports.MetricsCollector in memory.
type MetricsRecorder struct {
	mu         sync.Mutex
	counters   []RecordedMetric
	histograms []RecordedMetric
	gauges     map[string]float64
	latencies  map[string][]time.Duration
}

// NewMetricsRecorder creates an empty recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{
		gauges:    make(map[string]float64),
		latencies: make(map[string][]time.Duration),
	}
}

// RecordLatency implements ports.MetricsCollector.
func (m *MetricsRecorder) RecordLatency(operation string, d time.Duration, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies[operation] = append(m.latencies[operation], d)
}

// RecordCounter implements ports.MetricsCollector.
func (m *MetricsRecorder) RecordCounter(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, RecordedMetric{Name: metric, Value: value, Labels: copyLabels(labels)})
}

// RecordGauge implements ports.MetricsCollector.
func (m *MetricsRecorder) RecordGauge(metric string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metric] = value
}

// RecordHistogram implements ports.MetricsCollector.
func (m *MetricsRecorder) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, RecordedMetric{Name: metric, Value: value, Labels: copyLabels(labels)})
}

// CounterTotal sums a counter across observations whose labels include
// every pair in match.
func (m *MetricsRecorder) CounterTotal(metric string, match map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, c := range m.counters {
		if c.Name == metric && labelsMatch(c.Labels, match) {
			total += c.Value
		}
	}
	return total
}

// Histograms returns the observations recorded for metric.
func (m *MetricsRecorder) Histograms(metric string) []RecordedMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RecordedMetric
	for _, h := range m.histograms {
		if h.Name == metric {
			out = append(out, h)
		}
	}
	return out
}

// Gauge returns the last value set for metric.
func (m *MetricsRecorder) Gauge(metric string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.gauges[metric]
	return v, ok
}

// Latencies returns the durations recorded for operation.
func (m *MetricsRecorder) Latencies(operation string) []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.latencies[operation]...)
}

func copyLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func labelsMatch(labels, match map[string]string) bool {
	for k, v := range match {
		if labels[k] != v {
			return false
		}
	}
	return true
}
