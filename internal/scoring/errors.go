package scoring

import (
	"errors"
	"fmt"
)

// Metric domain errors. They indicate invalid numeric input and are caller
// bugs rather than environmental failures.
var (
	// ErrVectorShape indicates that two embedding vectors differ in length.
	ErrVectorShape = errors.New("vector shapes must match")

	// ErrNegativeTokens indicates that a token count below zero was supplied.
	ErrNegativeTokens = errors.New("token counts must be non-negative")

	// ErrUnknownUtilityMode indicates an unsupported response utility mode.
	ErrUnknownUtilityMode = errors.New("unknown utility mode")
)

// MetricError reports a metric computation rejected because of its input.
type MetricError struct {
	// Metric is the name of the metric being computed.
	Metric string

	// Detail describes the offending input.
	Detail string

	// Err is the sentinel classifying the failure.
	Err error
}

// Error implements the error interface for MetricError.
func (e *MetricError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("metric %s: %v", e.Metric, e.Err)
	}
	return fmt.Sprintf("metric %s: %v: %s", e.Metric, e.Err, e.Detail)
}

// Unwrap returns the underlying sentinel.
func (e *MetricError) Unwrap() error { return e.Err }

func newMetricError(metric string, err error, format string, args ...any) *MetricError {
	return &MetricError{Metric: metric, Detail: fmt.Sprintf(format, args...), Err: err}
}
