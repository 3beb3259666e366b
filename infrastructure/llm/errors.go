package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ahrav/go-handoff/internal/ports"
)

// Errors returned while building clients or reading responses.
var (
	// ErrEmptyAPIKey indicates that no credential was configured.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrUnknownProvider indicates that no factory is registered under the name.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrNoResponseChoice indicates that the provider returned no candidates.
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType classifies provider failures.
type ErrorType int

const (
	// ErrorTypeUnknown indicates an unclassified failure.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeAuthentication indicates a rejected credential.
	ErrorTypeAuthentication
	// ErrorTypeRateLimit indicates HTTP 429. It is the only retried type.
	ErrorTypeRateLimit
	// ErrorTypeBadRequest indicates malformed parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound indicates an unknown model or endpoint.
	ErrorTypeNotFound
	// ErrorTypeServerError indicates a 5xx response.
	ErrorTypeServerError
	// ErrorTypeContentPolicy indicates a request blocked by safety filters.
	ErrorTypeContentPolicy
	// ErrorTypeNetwork indicates a cancelled or unreachable request.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates an exceeded deadline.
	ErrorTypeTimeout
)

// String returns the snake_case name used in messages and metric labels.
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeServerError:
		return "server_error"
	case ErrorTypeContentPolicy:
		return "content_policy"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ProviderError is a provider failure normalized across SDKs.
type ProviderError struct {
	// Type classifies the failure.
	Type ErrorType
	// Provider names the provider that failed.
	Provider string
	// StatusCode is the HTTP status, when there was one.
	StatusCode int
	// Message is the provider's description of the failure.
	Message string
	// WrappedError is the SDK error.
	WrappedError error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	base := e.Provider + " error"
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Type != ErrorTypeUnknown {
		base += fmt.Sprintf(" [%s]", e.Type)
	}
	if e.Message != "" {
		base += ": " + e.Message
	}
	if e.WrappedError != nil {
		base += fmt.Sprintf(": %v", e.WrappedError)
	}
	return base
}

// Unwrap returns the SDK error.
func (e *ProviderError) Unwrap() error { return e.WrappedError }

// Is matches the ports sentinel that corresponds to the error type, so
// callers above the ports boundary can test failures without importing
// this package.
func (e *ProviderError) Is(target error) bool {
	switch e.Type {
	case ErrorTypeRateLimit:
		return target == ports.ErrRateLimited
	case ErrorTypeAuthentication:
		return target == ports.ErrAuthenticationFailed
	case ErrorTypeServerError, ErrorTypeNetwork:
		return target == ports.ErrServiceUnavailable
	case ErrorTypeTimeout:
		return target == ports.ErrTimeout
	case ErrorTypeBadRequest, ErrorTypeContentPolicy:
		return target == ports.ErrInvalidResponse
	default:
		return false
	}
}

// IsRateLimit reports whether the failure was an HTTP 429.
func (e *ProviderError) IsRateLimit() bool { return e.Type == ErrorTypeRateLimit }

// NewProviderError creates a ProviderError.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:         errType,
		Provider:     provider,
		StatusCode:   statusCode,
		Message:      message,
		WrappedError: wrapped,
	}
}

// IsRateLimited reports whether err carries a rate-limit ProviderError.
func IsRateLimited(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.IsRateLimit()
}

// ErrorClassifier turns SDK failures into ProviderErrors for one provider.
type ErrorClassifier struct {
	// Provider is the provider name recorded on produced errors.
	Provider string
}

// ClassifyHTTPError classifies a failure by HTTP status code.
func (ec *ErrorClassifier) ClassifyHTTPError(statusCode int, message string, err error) *ProviderError {
	var errType ErrorType
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		errType = ErrorTypeAuthentication
		message = ec.Provider + " authentication failed"
	case statusCode == http.StatusTooManyRequests:
		errType = ErrorTypeRateLimit
		message = ec.Provider + " rate limit exceeded"
	case statusCode == http.StatusNotFound:
		errType = ErrorTypeNotFound
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		errType = ErrorTypeTimeout
	case statusCode >= 500:
		errType = ErrorTypeServerError
	case statusCode >= 400:
		errType = ErrorTypeBadRequest
	default:
		errType = ErrorTypeUnknown
	}
	return NewProviderError(ec.Provider, errType, statusCode, message, err)
}

// ClassifyContextError classifies cancellation and deadline failures.
func (ec *ErrorClassifier) ClassifyContextError(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "context deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "request canceled", err)
	default:
		return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "request failed", err)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
