package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttempt_CanRetry(t *testing.T) {
	tests := []struct {
		name        string
		attempt     Attempt
		maxAttempts int
		want        bool
	}{
		{
			name:        "can retry when count below max",
			attempt:     Attempt{Count: 1, State: StateNavigating},
			maxAttempts: 3,
			want:        true,
		},
		{
			name:        "cannot retry when count at max",
			attempt:     Attempt{Count: 3, State: StateNavigating},
			maxAttempts: 3,
			want:        false,
		},
		{
			name:        "cannot retry when submitted",
			attempt:     Attempt{Count: 1, State: StateSubmitted},
			maxAttempts: 3,
			want:        false,
		},
		{
			name:        "can retry pending attempt",
			attempt:     Attempt{Count: 0, State: StatePending},
			maxAttempts: 3,
			want:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.attempt.CanRetry(tt.maxAttempts))
		})
	}
}

func TestAttemptState_Values(t *testing.T) {
	// Values are stored in the database.
	assert.Equal(t, AttemptState("pending"), StatePending)
	assert.Equal(t, AttemptState("submitted"), StateSubmitted)
	assert.Equal(t, AttemptState("pending_review"), StatePendingReview)
	assert.True(t, StatePendingReview.IsTerminal())
	assert.False(t, StatePreparedForReview.IsTerminal())
}

func TestAttempt_HistoryAndTail(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := &Attempt{StartedAt: start}

	a.Transition(StateNavigating, "navigate", start.Add(time.Second))
	a.RecordFailure(KindTimeout, errors.New("page load timed out"), start.Add(2*time.Second))
	a.Finish(StateFailed, start.Add(3*time.Second))

	require.Len(t, a.History, 3)
	assert.Equal(t, KindTimeout, a.LastKind)
	assert.Equal(t, 3*time.Second, a.Duration())
	assert.Equal(t, []string{"failed", "page load timed out"}, a.Tail(2))
}

func TestOutcome_Classification(t *testing.T) {
	assert.True(t, Outcome{State: StateSubmitted}.Success())
	assert.True(t, Outcome{State: StatePendingReview}.Success())
	assert.False(t, Outcome{State: StatePendingReview, Kind: KindChallenge}.Success())
	assert.True(t, Outcome{State: StatePendingReview, Kind: KindChallenge}.Blocked())
	assert.False(t, Outcome{State: StateFailed, Kind: KindNetwork}.Success())
}
