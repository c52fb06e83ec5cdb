// Package errors defines the error kinds surfaced by the retriever and maps
// them to HTTP status codes for the service layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotReady        = errors.New("retriever not ready: no corpus has been ingested")
	ErrIngestFailure   = errors.New("ingest failure")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInternal        = errors.New("internal error")
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

// IngestFailure wraps a loader error so that it matches both
// ErrIngestFailure and the original cause under errors.Is.
func IngestFailure(source string, cause error) error {
	return fmt.Errorf("%w: loading %s: %w", ErrIngestFailure, source, cause)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, ErrIngestFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
