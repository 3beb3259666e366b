package ports

import (
	"context"
	"time"
)

// JudgeRequest is a single prompt pair sent to an external text generator.
type JudgeRequest struct {
	// System is the instruction prompt.
	System string

	// User is the content prompt.
	User string

	// Temperature controls sampling randomness (0.0-1.0).
	Temperature float64

	// MaxTokens bounds the length of the generated text.
	MaxTokens int
}

// TextJudge is a dumb text-completion endpoint used to obtain quality
// judgments.
// The caller owns prompt construction and response parsing.
type TextJudge interface {
	// JudgeText returns the generated text for the request.
	// An empty string with a nil error means the provider produced no
	// content. Network and HTTP failures are returned as errors.
	JudgeText(ctx context.Context, req JudgeRequest) (string, error)

	// GetModel returns the model identifier being used by this judge.
	GetModel() string
}

// Document is a schemaless record held by a DocumentStore.
// Values are JSON-compatible; nested objects are map[string]any.
type Document map[string]any

// DocumentIDField is the key under which stores expose the id they assigned.
const DocumentIDField = "_id"

// GroupResult is one group produced by DocumentStore.GroupByAggregate.
type GroupResult struct {
	// Key is the distinct value of the grouping field.
	Key string

	// Averages maps each requested field path to its mean within the group.
	Averages map[string]float64

	// Count is the number of documents in the group.
	Count int
}

// DocumentStore is the persistence contract consumed by the evaluation
// engine.
// Field paths are dotted (e.g. "metadata.format"). Each call is atomic for a
// single document; no multi-document transactions are offered.
type DocumentStore interface {
	// Insert appends doc to the collection and returns the id the store
	// assigned to it. Stores enforce no uniqueness on document fields;
	// callers needing a unique natural key use Upsert.
	Insert(ctx context.Context, collection string, doc Document) (string, error)

	// FindMany returns every document whose field holds the string value,
	// in insertion order.
	FindMany(ctx context.Context, collection, field, value string) ([]Document, error)

	// Upsert replaces the document whose keyField equals keyValue, or
	// inserts doc when none exists.
	Upsert(ctx context.Context, collection, keyField, keyValue string, doc Document) error

	// GroupByAggregate groups the documents whose groupKey holds a string
	// and averages the numeric avgFields within each group. Missing or
	// non-numeric values are left out of an average; a field with no
	// numeric values averages to 0.
	GroupByAggregate(ctx context.Context, collection, groupKey string, avgFields []string) ([]GroupResult, error)

	// Close releases the underlying resources.
	Close() error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
