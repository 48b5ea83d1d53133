package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordError(t *testing.T) {
	t.Parallel()

	err := NewRecordError("Get", "scenario", "s-1", ErrScenarioNotFound)

	assert.Equal(t, "Get operation failed for scenario s-1: scenario not found", err.Error())
	assert.ErrorIs(t, err, ErrScenarioNotFound)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsAlreadyExists(err))

	wrapped := fmt.Errorf("service: %w", err)
	assert.True(t, IsNotFound(wrapped))

	var recordErr *RecordError
	assert.True(t, errors.As(wrapped, &recordErr))
	assert.Equal(t, "s-1", recordErr.ID)
}

func TestRecordError_WithoutID(t *testing.T) {
	t.Parallel()

	err := NewRecordError("List", "log entry", "", errors.New("boom"))

	assert.Equal(t, "List operation failed for log entry: boom", err.Error())
	assert.False(t, IsNotFound(err))
}

func TestIsAlreadyExists(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAlreadyExists(NewRecordError("Insert", "connection", "c-1", ErrAlreadyExists)))
	assert.False(t, IsAlreadyExists(ErrTokenNotFound))
}
