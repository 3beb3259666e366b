package application

import (
	"errors"
	"fmt"
)

// ErrJudgeDisabled indicates that judge evaluation was requested from a
// service configured without a judge.
var ErrJudgeDisabled = errors.New("judge evaluation is disabled")

// ServiceError reports an environmental failure behind a service operation,
// such as an unavailable store. Caller mistakes (invalid metrics input or
// records that fail the schema) are returned without this wrapper.
type ServiceError struct {
	// Operation is the service operation that failed.
	Operation string

	// PipelineID identifies the pipeline involved, when there is one.
	PipelineID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.PipelineID == "" {
		return fmt.Sprintf("service error: operation=%s, err=%v", e.Operation, e.Err)
	}
	return fmt.Sprintf("service error: operation=%s, pipeline=%s, err=%v", e.Operation, e.PipelineID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error { return e.Err }

// NewServiceError creates a new ServiceError.
func NewServiceError(operation, pipelineID string, err error) *ServiceError {
	return &ServiceError{Operation: operation, PipelineID: pipelineID, Err: err}
}
