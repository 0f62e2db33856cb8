package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolations_EmptyIsNil(t *testing.T) {
	var v Violations
	assert.NoError(t, v.Err("wf"))
}

func TestViolations_SingleKeepsMessage(t *testing.T) {
	var v Violations
	v.Add("loop.children", "DUPLICATE_ID", "duplicate activity id %q", "loop")

	var we *WaypointError
	require.ErrorAs(t, v.Err("approval"), &we)
	assert.Equal(t, ErrCodeValidation, we.Code)
	assert.Equal(t, `workflow approval: duplicate activity id "loop"`, we.Message)
	assert.Equal(t, "approval", we.Details["workflow_id"])
	require.Len(t, we.Details["violations"], 1)
	assert.Equal(t, "DUPLICATE_ID", we.Details["violations"].([]Violation)[0].Rule)
}

func TestViolations_ManyAreListed(t *testing.T) {
	var v Violations
	v.Add("id", "REQUIRED", "workflow id is required")
	v.Add("root", "REQUIRED", "workflow root activity is required")

	var we *WaypointError
	require.ErrorAs(t, v.Err(""), &we)
	assert.Equal(t, "2 violations: workflow id is required; workflow root activity is required", we.Message)
}

func TestWaypointError_Format(t *testing.T) {
	err := NewErrorf(ErrCodeUnsupported, "operator %q", "~").WithActivity("loop")
	assert.Equal(t, `[UNSUPPORTED_CONFIGURATION] activity loop: operator "~"`, err.Error())
	assert.Equal(t, "[NOT_FOUND] gone", NewError(ErrCodeNotFound, "gone").Error())
}

func TestIsCode_WalksCauses(t *testing.T) {
	inner := NewError(ErrCodeConversion, "bad int")
	outer := NewError(ErrCodeFaulted, "activity faulted").WithCause(inner)
	wrapped := fmt.Errorf("resume: %w", outer)

	assert.True(t, IsCode(wrapped, ErrCodeFaulted))
	assert.True(t, IsCode(wrapped, ErrCodeConversion))
	assert.False(t, IsCode(wrapped, ErrCodeNotFound))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeNotFound))
	assert.False(t, IsCode(nil, ErrCodeNotFound))
}
