package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(CodeNotFound, "period not found")

	assert.Equal(t, "period not found", err.Error())
	assert.True(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(err, CodeInternal))
}

func TestWrap(t *testing.T) {
	t.Run("wraps plain error with code", func(t *testing.T) {
		base := errors.New("connection refused")
		err := Wrap(base, CodeUnavailable, "store unavailable")

		assert.True(t, HasCode(err, CodeUnavailable))
		assert.ErrorIs(t, err, base)
		assert.Equal(t, "store unavailable", err.Error())
	})

	t.Run("preserves existing domain code", func(t *testing.T) {
		inner := New(CodeConflict, "version mismatch")
		err := Wrap(inner, CodeInternal, "failed to consume tokens")

		assert.True(t, HasCode(err, CodeConflict))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("preserves code through fmt wrapping", func(t *testing.T) {
		inner := New(CodeConflict, "version mismatch")
		err := fmt.Errorf("retry 3: %w", inner)

		assert.True(t, HasCode(err, CodeConflict))
	})
}

func TestIs(t *testing.T) {
	err := New(CodeUnavailable, "retry budget exhausted")

	assert.ErrorIs(t, err, &Error{Code: CodeUnavailable})
	assert.NotErrorIs(t, err, &Error{Code: CodeConflict})
	assert.NotErrorIs(t, err, errors.New("unavailable"))
}

func TestError_EmptyMessage(t *testing.T) {
	err := &Error{Code: CodeInternal}
	assert.Equal(t, "internal_error", err.Error())
}
