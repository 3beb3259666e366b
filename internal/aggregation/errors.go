package aggregation

import "fmt"

// AggregationError is the single error type surfaced for persistence
// failures, whatever the backing store.
type AggregationError struct {
	// Operation names the store operation that failed.
	Operation string

	// Err is the underlying store or decode error.
	Err error
}

// Error implements the error interface.
func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation error: operation=%s, err=%v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *AggregationError) Unwrap() error { return e.Err }

// NewAggregationError creates a new AggregationError.
func NewAggregationError(operation string, err error) *AggregationError {
	return &AggregationError{Operation: operation, Err: err}
}
