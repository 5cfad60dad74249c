package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobID(t *testing.T) {
	id, err := ParseJobID("42")
	require.NoError(t, err)
	assert.Equal(t, JobID(42), id)
	assert.Equal(t, "42", id.String())

	for _, s := range []string{"", "0", "-3", "abc", "1.5", "18446744073709551616"} {
		_, err := ParseJobID(s)
		assert.True(t, errors.Is(err, ErrInvalidJobID), "input %q: got %v", s, err)
	}
}

func TestJobState_IsValid(t *testing.T) {
	for _, s := range []JobState{StateReady, StateReserved, StateBuried} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, JobState("delayed").IsValid())
}

func TestJobStatus_Body(t *testing.T) {
	stats := &JobStatus{Stats: &JobStats{ID: 1, State: StateReady}}
	assert.False(t, stats.Completed())
	assert.Same(t, stats.Stats, stats.Body())

	done := &JobStatus{Result: &JobResult{ID: 1, Outcome: "abc", Payload: json.RawMessage(`{"x":1}`)}}
	assert.True(t, done.Completed())

	raw, err := json.Marshal(done.Body())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"outcome":"abc","payload":{"x":1},"completed_at":"0001-01-01T00:00:00Z"}`, string(raw))
}
