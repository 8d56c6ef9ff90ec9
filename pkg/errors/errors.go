// Package errors defines the error taxonomy shared across the service and
// its mapping to HTTP status codes. Validation failures are rejected before
// any engine call; timeouts and unreachable-engine conditions are kept
// distinct so callers can apply different backoff policies.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks a client error caught before any external call
	// (oversized query, page window exceeded, malformed filters).
	ErrValidation = errors.New("validation failed")
	// ErrTimeout marks a search-engine request that exceeded its deadline
	// or that the engine itself reported as timed out.
	ErrTimeout = errors.New("search engine timed out")
	// ErrUnavailable marks an unreachable search engine (connection
	// refused/reset) or an open circuit.
	ErrUnavailable = errors.New("search engine unavailable")
	// ErrNotFound marks a missing record, index, or job.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a state conflict such as concurrent reindex
	// contention that could not be serialized.
	ErrConflict = errors.New("conflict")
	// ErrInternal marks an unexpected failure.
	ErrInternal = errors.New("internal error")
)

// AppError carries a sentinel, a human-readable message, and an HTTP status.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel with a status code and message.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Newf is New with Sprintf-style formatting.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Validationf builds a client-error AppError around ErrValidation.
func Validationf(format string, args ...any) *AppError {
	return Newf(ErrValidation, http.StatusBadRequest, format, args...)
}

// HTTPStatusCode maps an error to the HTTP status the API should return.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Is, As, and Unwrap re-export the standard helpers so callers only import
// one errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Unwrap(err error) error { return errors.Unwrap(err) }
