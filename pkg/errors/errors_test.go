package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	base := errors.New("exit status 1")

	withCause := NewError(CodeEngineFailure, "cbc run failed", base)
	assert.Equal(t, "[ENGINE_FAILURE] cbc run failed: exit status 1", withCause.Error())
	assert.ErrorIs(t, withCause, base)

	bare := InvalidInput("expected %d lengths, got %d", 15, 14)
	assert.Equal(t, "[INVALID_INPUT] expected 15 lengths, got 14", bare.Error())
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		input         bool
		configuration bool
		correctness   bool
		code          string
	}{
		{name: "input", err: InvalidInput("empty"), input: true, code: CodeInvalidInput},
		{name: "unknown backend", err: NewError(CodeUnknownBackend, "nope", nil), configuration: true, code: CodeUnknownBackend},
		{name: "unavailable", err: Unavailable("cbc", errors.New("not found")), configuration: true, code: CodeEngineUnavailable},
		{name: "correctness", err: Correctness("overlap"), correctness: true, code: CodeCorrectness},
		{
			name:        "wrapped by scheduler",
			err:         NewError(CodeScheduling, "task 3 failed", fmt.Errorf("run: %w", Correctness("sum_a mismatch"))),
			correctness: true,
			code:        CodeScheduling,
		},
		{name: "plain", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.input, IsInput(tt.err))
			assert.Equal(t, tt.configuration, IsConfiguration(tt.err))
			assert.Equal(t, tt.correctness, IsCorrectness(tt.err))
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}
}
