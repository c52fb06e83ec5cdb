package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid argument", fmt.Errorf("query: %w", ErrInvalidArgument), http.StatusBadRequest},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"not ready", ErrNotReady, http.StatusConflict},
		{"ingest failure", IngestFailure("doc.md", fs.ErrNotExist), http.StatusBadGateway},
		{"app error wins", New(ErrNotReady, http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestIngestFailureKeepsCause(t *testing.T) {
	err := IngestFailure("missing.md", fs.ErrNotExist)
	assert.ErrorIs(t, err, ErrIngestFailure)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "missing.md")
}

func TestAppError(t *testing.T) {
	err := Newf(ErrInvalidArgument, http.StatusBadRequest, "top_k must be positive, got %d", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "invalid argument: top_k must be positive, got 0", err.Error())
}
