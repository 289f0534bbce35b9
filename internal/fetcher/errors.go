package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error that occurred during an upstream exchange
type ErrorType string

const (
	// ErrorTypeNetwork indicates a network-level error (connection refused, DNS, etc.)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit indicates the request was rejected due to rate limiting (HTTP 429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeServer indicates a server error (HTTP 5xx)
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeClient indicates a client error (HTTP 4xx except 429)
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeValidation indicates the response was received but could not be decoded
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeTimeout indicates the request timed out or its context was cancelled
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeUnknown indicates an error of unknown type
	ErrorTypeUnknown ErrorType = "unknown"
)

var (
	// ErrEmptyResult is matched by every EmptyResultError.
	ErrEmptyResult = errors.New("no results")

	// ErrConfiguration is matched by every ConfigError.
	ErrConfiguration = errors.New("configuration error")
)

// TransportError is returned when a single HTTP exchange failed irrecoverably.
type TransportError struct {
	Type       ErrorType
	Retryable  bool
	StatusCode int
	URL        string
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	msg := e.Message
	if e.URL != "" {
		msg = fmt.Sprintf("%s: %s", e.URL, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewNetworkError creates a network error
func NewNetworkError(cause error) *TransportError {
	return &TransportError{
		Type:      ErrorTypeNetwork,
		Retryable: true,
		Message:   "network request failed",
		Cause:     cause,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(statusCode int) *TransportError {
	return &TransportError{
		Type:       ErrorTypeRateLimit,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "rate limit exceeded",
	}
}

// NewServerError creates a server error. Only 500, 502, 503 and 504 are retryable.
func NewServerError(statusCode int) *TransportError {
	return &TransportError{
		Type:       ErrorTypeServer,
		Retryable:  isTransientStatus(statusCode),
		StatusCode: statusCode,
		Message:    "server returned an error",
	}
}

// NewClientError creates a client error
func NewClientError(statusCode int, message string) *TransportError {
	return &TransportError{
		Type:       ErrorTypeClient,
		Retryable:  false,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *TransportError {
	return &TransportError{
		Type:      ErrorTypeValidation,
		Retryable: false,
		Message:   message,
		Cause:     cause,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(cause error) *TransportError {
	return &TransportError{
		Type:      ErrorTypeTimeout,
		Retryable: true,
		Message:   "request timed out",
		Cause:     cause,
	}
}

// NewCanceledError is returned when the caller's context ends mid-request.
// It is never retried.
func NewCanceledError(cause error) *TransportError {
	return &TransportError{
		Type:    ErrorTypeTimeout,
		Message: "request cancelled",
		Cause:   cause,
	}
}

// ClassifyHTTPError classifies an HTTP status code into an appropriate TransportError
func ClassifyHTTPError(statusCode int) *TransportError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(statusCode)
	case statusCode >= 500:
		return NewServerError(statusCode)
	case statusCode >= 400:
		return NewClientError(statusCode, fmt.Sprintf("client error: HTTP %d", statusCode))
	default:
		return &TransportError{
			Type:       ErrorTypeUnknown,
			Retryable:  false,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		}
	}
}

func isTransientStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// EmptyResultError reports that upstream returned no data for a key.
type EmptyResultError struct {
	Key string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no results for %s", e.Key)
}

func (e *EmptyResultError) Is(target error) bool {
	return target == ErrEmptyResult
}

// ConfigError is a fatal setup problem: the operation cannot start.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}
