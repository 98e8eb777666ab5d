package errors

import (
	"errors"
	"fmt"
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
		{"app error wins", New(ErrCorruptArtifact, http.StatusBadGateway, "boom"), http.StatusBadGateway},
		{"wrapped invalid input", fmt.Errorf("parsing: %w", ErrInvalidInput), http.StatusBadRequest},
		{"unknown path", ErrUnknownPath, http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"corrupt artifact", fmt.Errorf("resolve: %w", ErrCorruptArtifact), http.StatusInternalServerError},
		{"plain error", errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "field %s", "q")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, "invalid input: field q", err.Error())
}

func TestIsBuildFailure(t *testing.T) {
	assert.True(t, IsBuildFailure(fmt.Errorf("verse 3: %w", ErrPackCapacity)))
	assert.True(t, IsBuildFailure(ErrIDOverflow))
	assert.True(t, IsBuildFailure(ErrMalformedCorpus))
	assert.False(t, IsBuildFailure(ErrCorruptArtifact))
}
