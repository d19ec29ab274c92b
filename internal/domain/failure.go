package domain

import (
	"errors"
	"fmt"
)

// FailureKind is the retry-relevant classification of an attempt error.
type FailureKind string

const (
	KindNone         FailureKind = ""
	KindValidation   FailureKind = "validation_error"
	KindNetwork      FailureKind = "network_error"
	KindTimeout      FailureKind = "timeout"
	KindRateLimited  FailureKind = "rate_limited"
	KindSubmitFailed FailureKind = "submit_failed"
	KindChallenge    FailureKind = "challenge_detected"
	KindConfirmation FailureKind = "confirmation_not_found"
	KindCancelled    FailureKind = "cancelled"
	KindUnknown      FailureKind = "unknown"
)

// Retryable reports whether the kind may be retried up to the policy maximum.
// Challenge is handled separately: one solver attempt, then review.
func (k FailureKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimited, KindSubmitFailed, KindUnknown:
		return true
	}
	return false
}

// FailureCategory is the FailureAnalyzer taxonomy.
type FailureCategory string

const (
	CategorySelectorNotFound     FailureCategory = "selector-not-found"
	CategoryNotClickable         FailureCategory = "not-clickable"
	CategoryValidation           FailureCategory = "validation"
	CategoryTimeout              FailureCategory = "timeout"
	CategoryChallenge            FailureCategory = "challenge"
	CategorySessionExpired       FailureCategory = "session-expired"
	CategoryConfirmationNotFound FailureCategory = "confirmation-not-found"
	CategoryUploadFailed         FailureCategory = "upload-failed"
	CategoryNavigationError      FailureCategory = "navigation-error"
	CategoryUnknown              FailureCategory = "unknown"
)

// Step names the state machine step that produced an error.
type Step string

const (
	StepNavigate Step = "navigate"
	StepFill     Step = "fill_form"
	StepAnswer   Step = "answer_questions"
	StepSubmit   Step = "submit"
	StepReview   Step = "review"
)

// AttemptError is a classified failure raised by a state machine step.
type AttemptError struct {
	Kind FailureKind
	Step Step
	Err  error
}

func (e *AttemptError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s during %s: %v", e.Kind, e.Step, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// NewAttemptError wraps err with a classification.
func NewAttemptError(kind FailureKind, step Step, err error) *AttemptError {
	return &AttemptError{Kind: kind, Step: step, Err: err}
}

// KindOf returns the kind carried by an *AttemptError in err's chain, or KindNone.
func KindOf(err error) FailureKind {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindNone
}
