package domain

import "time"

// AttemptState is a node of the application state machine.
type AttemptState string

const (
	StatePending            AttemptState = "pending"
	StateNavigating         AttemptState = "navigating"
	StateFillingForm        AttemptState = "filling_form"
	StateAnsweringQuestions AttemptState = "answering_questions"
	StateSubmitting         AttemptState = "submitting"
	StatePreparedForReview  AttemptState = "prepared_for_review"
	StateSubmitted          AttemptState = "submitted"
	StateFailed             AttemptState = "failed"
	StateError              AttemptState = "error"
	StatePendingReview      AttemptState = "pending_review"
	StateSkipped            AttemptState = "skipped"
)

// IsTerminal reports whether no further transition happens without a human.
func (s AttemptState) IsTerminal() bool {
	switch s {
	case StateSubmitted, StateFailed, StateError, StatePendingReview, StateSkipped:
		return true
	}
	return false
}

// AttemptEvent is one entry of an attempt's history.
type AttemptEvent struct {
	At      time.Time
	State   AttemptState
	Kind    FailureKind
	Message string
}

// Attempt is one execution of the completion state machine against a work item.
type Attempt struct {
	ID                string
	ItemID            string
	Fingerprint       string
	Strategy          string
	Variant           string
	URL               string
	State             AttemptState
	Count             int
	StartedAt         time.Time
	UpdatedAt         time.Time
	EndedAt           time.Time
	LastKind          FailureKind
	LastError         string
	CumulativeBackoff time.Duration
	Evidence          string
	History           []AttemptEvent
}

// CanRetry returns true if another run of the machine is allowed.
func (a *Attempt) CanRetry(maxAttempts int) bool {
	return a.Count < maxAttempts && !a.State.IsTerminal()
}

// Transition moves the attempt to state and appends a history event.
func (a *Attempt) Transition(state AttemptState, msg string, now time.Time) {
	a.State = state
	a.UpdatedAt = now
	a.History = append(a.History, AttemptEvent{At: now, State: state, Message: msg})
}

// RecordFailure stores the error of the current run in the attempt history.
func (a *Attempt) RecordFailure(kind FailureKind, err error, now time.Time) {
	a.LastKind = kind
	a.LastError = err.Error()
	a.UpdatedAt = now
	a.History = append(a.History, AttemptEvent{At: now, State: a.State, Kind: kind, Message: err.Error()})
}

// Note appends a history event without changing state.
func (a *Attempt) Note(msg string, now time.Time) {
	a.UpdatedAt = now
	a.History = append(a.History, AttemptEvent{At: now, State: a.State, Message: msg})
}

// Finish sets a terminal state.
func (a *Attempt) Finish(state AttemptState, now time.Time) {
	a.Transition(state, string(state), now)
	a.EndedAt = now
}

// Duration is the elapsed time between start and end (or last update).
func (a *Attempt) Duration() time.Duration {
	end := a.EndedAt
	if end.IsZero() {
		end = a.UpdatedAt
	}
	if end.Before(a.StartedAt) {
		return 0
	}
	return end.Sub(a.StartedAt)
}

// Tail returns up to n most recent event messages, newest first.
func (a *Attempt) Tail(n int) []string {
	var out []string
	for i := len(a.History) - 1; i >= 0 && len(out) < n; i-- {
		if msg := a.History[i].Message; msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

// Outcome is the terminal result of an attempt, the only part that
// surfaces to the evaluator and the report.
type Outcome struct {
	Attempt  *Attempt
	Item     WorkItem
	State    AttemptState
	Kind     FailureKind
	Category FailureCategory
	Message  string
	Evidence Evidence
}

// Success reports whether the flow ran to completion: submitted, or
// prepared for review without hitting a challenge.
func (o Outcome) Success() bool {
	return o.State == StateSubmitted || (o.State == StatePendingReview && o.Kind == KindNone)
}

// Blocked reports whether the attempt was stopped by an anti-automation challenge.
func (o Outcome) Blocked() bool {
	return o.Kind == KindChallenge
}
