package faults

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"configuration", Configuration("register", "unknown site %q", "x"), ErrConfiguration},
		{"state", State("enable", "already capturing"), ErrState},
		{"shape", ShapeMismatch("normalize", "3 discarded"), ErrShapeMismatch},
		{"inference", Inference("forward", "empty input"), ErrInference},
		{"persistence", Persistence("save", "disk full"), ErrPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
		})
	}

	assert.False(t, errors.Is(State("x", "y"), ErrConfiguration))
}

func TestErrorMessage(t *testing.T) {
	err := Persistence("save", "write %s", "final_layer").
		With("dir", "/tmp/run").
		Wrap(io.ErrShortWrite)

	assert.Equal(t, "persistence: save: write final_layer [dir=/tmp/run]: short write", err.Error())
	assert.True(t, errors.Is(err, io.ErrShortWrite))

	var fe *Error
	require.True(t, errors.As(fmt.Errorf("wrap: %w", err), &fe))
	assert.Equal(t, KindPersistence, fe.Kind)
}
