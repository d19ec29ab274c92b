package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/strategy"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want domain.FailureCategory
	}{
		{"waiting for selector timed out", domain.CategorySelectorNotFound},
		{"Element not found: #submit", domain.CategorySelectorNotFound},
		{"click failed: element not interactable", domain.CategoryNotClickable},
		{"validation_error during answer_questions: required field missing: Email", domain.CategoryValidation},
		{"timeout during navigate: context deadline exceeded", domain.CategoryTimeout},
		{"challenge_detected during submit: challenge recaptcha", domain.CategoryChallenge},
		{"Your session has expired", domain.CategorySessionExpired},
		{"confirmation_not_found during submit: confirmation not found: no success indicator after submit", domain.CategoryConfirmationNotFound},
		{"resume upload failed", domain.CategoryUploadFailed},
		{"net::ERR_CONNECTION_RESET", domain.CategoryNavigationError},
		{"navigate: dial tcp: connection refused", domain.CategoryNavigationError},
		{"the moon is in the wrong phase", domain.CategoryUnknown},
		{"", domain.CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text))
		})
	}
}

func failedOutcome(strat, msg string) domain.Outcome {
	return domain.Outcome{
		Attempt: &domain.Attempt{ID: "a1", Strategy: strat},
		State:   domain.StateFailed,
		Kind:    domain.KindTimeout,
		Message: msg,
	}
}

func TestAnalyze_SelectorTimeoutRaisesPreActionWait(t *testing.T) {
	store := strategy.NewStore(strategy.Default())
	a := New(store, zap.NewNop())

	an := a.Analyze(failedOutcome("lever", "waiting for selector timed out"))

	assert.Equal(t, domain.CategorySelectorNotFound, an.Category)
	require.NotEmpty(t, an.Adjustments)
	assert.Equal(t, strategy.ParamPreActionWait, an.Adjustments[0].Parameter)
	assert.Equal(t, 3*time.Second, store.Get("lever").PreActionWait)
	assert.Equal(t, 5, store.Get("lever").FallbackCount)
	assert.InDelta(t, 0.7, an.Confidence, 0.001)

	// A second identical failure keeps raising the wait.
	a.Analyze(failedOutcome("lever", "waiting for selector timed out"))
	assert.Equal(t, 4*time.Second, store.Get("lever").PreActionWait)
	assert.Equal(t, 6, store.Get("lever").FallbackCount)

	assert.Len(t, a.History(), 2)
	assert.Len(t, store.History(), 4)
	assert.Equal(t, strategy.Default(), store.Get("greenhouse"))
}

func TestAnalyze_FallbackCountIsCapped(t *testing.T) {
	base := strategy.Default()
	base.FallbackCount = 10
	store := strategy.NewStore(base)
	a := New(store, zap.NewNop())

	a.Analyze(failedOutcome("s", "element not found"))
	assert.Equal(t, 10, store.Get("s").FallbackCount)
}

func TestAnalyze_Adjustments(t *testing.T) {
	tests := []struct {
		msg   string
		check func(t *testing.T, p strategy.Profile)
	}{
		{"element not visible", func(t *testing.T, p strategy.Profile) {
			assert.True(t, p.ScrollBeforeClick)
			assert.Equal(t, time.Second, p.PostAnimationWait)
		}},
		{"required field missing", func(t *testing.T, p strategy.Profile) {
			assert.True(t, p.RequiredFieldCheck)
		}},
		{"page load timeout", func(t *testing.T, p strategy.Profile) {
			assert.Equal(t, 2*time.Minute, p.PageLoadTimeout)
		}},
		{"hcaptcha shown", func(t *testing.T, p strategy.Profile) {
			assert.Equal(t, strategy.ChallengeHumanReview, p.ChallengeMode)
		}},
		{"401 unauthorized", func(t *testing.T, p strategy.Profile) {
			assert.True(t, p.FreshSession)
		}},
		{"could not confirm application", func(t *testing.T, p strategy.Profile) {
			assert.Equal(t, 10*time.Second, p.PostSubmitWait)
		}},
		{"no such host", func(t *testing.T, p strategy.Profile) {
			assert.Equal(t, 3*time.Second, p.BaseDelay)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			store := strategy.NewStore(strategy.Default())
			New(store, zap.NewNop()).Analyze(failedOutcome("x", tt.msg))
			tt.check(t, store.Get("x"))
		})
	}
}

func TestAnalyze_UnknownHasNoAdjustments(t *testing.T) {
	store := strategy.NewStore(strategy.Default())
	an := New(store, zap.NewNop()).Analyze(failedOutcome("x", "mysterious"))

	assert.Equal(t, domain.CategoryUnknown, an.Category)
	assert.Empty(t, an.Adjustments)
	assert.InDelta(t, 0.3, an.Confidence, 0.001)
	assert.Empty(t, store.History())
}

func TestAnalyze_KeepsPresetCategory(t *testing.T) {
	store := strategy.NewStore(strategy.Default())
	o := failedOutcome("x", "anything")
	o.Category = domain.CategoryConfirmationNotFound

	an := New(store, zap.NewNop()).Analyze(o)
	assert.Equal(t, domain.CategoryConfirmationNotFound, an.Category)
}

func TestAnalyze_EmptyEvidenceUsesHistoryTail(t *testing.T) {
	now := time.Now()
	att := &domain.Attempt{ID: "a1", Strategy: "x"}
	att.Transition(domain.StateNavigating, "https://example.org", now)
	att.Note("fill email: element not found", now)
	for i := 0; i < 5; i++ {
		att.Note("noise", now)
	}

	store := strategy.NewStore(strategy.Default())
	a := New(store, zap.NewNop())

	// Only the five newest events are considered.
	an := a.Analyze(domain.Outcome{Attempt: att, State: domain.StateFailed})
	assert.Equal(t, domain.CategoryUnknown, an.Category)

	att.Note("upload failed", now)
	an = a.Analyze(domain.Outcome{Attempt: att, State: domain.StateFailed})
	assert.Equal(t, domain.CategoryUploadFailed, an.Category)
	assert.Contains(t, an.Evidence, "upload failed")
}
