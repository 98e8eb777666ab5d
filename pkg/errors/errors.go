// Package errors defines the sentinel errors shared by the build pipeline and
// the searcher, plus an AppError wrapper that carries an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Build-time failures. Any of these aborts the build; there is no partial
// artifact.
var (
	ErrMalformedCorpus = errors.New("malformed corpus")
	ErrIDOverflow      = errors.New("scripture id space exhausted")
	ErrPackCapacity    = errors.New("pack capacity exceeded")
)

// Run-time failures.
var (
	ErrCorruptArtifact = errors.New("corrupt index artifact")
	ErrUnknownPath     = errors.New("verse path out of range")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrInternal        = errors.New("internal error")
	ErrTimeout         = errors.New("operation timed out")
	ErrUnavailable     = errors.New("dependency unavailable")
)

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

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error chain to the status the searcher API returns.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownPath):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsBuildFailure reports whether err is one of the fatal build-time errors.
func IsBuildFailure(err error) bool {
	return errors.Is(err, ErrMalformedCorpus) ||
		errors.Is(err, ErrIDOverflow) ||
		errors.Is(err, ErrPackCapacity)
}
