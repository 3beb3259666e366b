package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors raised when evaluation records violate the schema.
var (
	// ErrScoreOutOfRange indicates that a score fell outside its documented
	// range or was not a finite number.
	ErrScoreOutOfRange = errors.New("score out of range")

	// ErrEmptyVector indicates that an embedding vector was supplied but
	// contained no components.
	ErrEmptyVector = errors.New("empty embedding vector")

	// ErrMissingField indicates that a required field is empty.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidFormat indicates that the metadata format discriminator is
	// missing or not a lowercase token.
	ErrInvalidFormat = errors.New("invalid format discriminator")

	// ErrNegativeTokenCount indicates that a token count below zero was
	// recorded in handoff metadata.
	ErrNegativeTokenCount = errors.New("negative token count")

	// ErrInvalidWeights indicates that overall-score weights are negative or
	// do not sum to one.
	ErrInvalidWeights = errors.New("invalid score weights")

	// ErrPipelineNotFound indicates that no summary exists for a pipeline.
	ErrPipelineNotFound = errors.New("pipeline not found")
)

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures, each optionally tied to a
// sentinel cause so callers can match them with errors.Is.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string

	causes []error
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: [%s]", e.Entity, strings.Join(e.Errors, "; "))
}

// Unwrap exposes the sentinel causes recorded with AddCause.
func (e *ValidationError) Unwrap() []error { return e.causes }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// AddCause records a failure message together with the sentinel it maps to.
func (e *ValidationError) AddCause(cause error, msg string) {
	e.AddError(msg)
	for _, c := range e.causes {
		if c == cause {
			return
		}
	}
	e.causes = append(e.causes, cause)
}

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// ErrOrNil returns the receiver when it holds failures and nil otherwise.
func (e *ValidationError) ErrOrNil() error {
	if e == nil || !e.HasErrors() {
		return nil
	}
	return e
}

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
