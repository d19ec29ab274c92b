package strategy

import (
	"time"

	"github.com/cwygoda/pitcher/internal/domain"
)

// ChallengeMode decides what happens when a verification challenge appears.
type ChallengeMode string

const (
	ChallengeAuto        ChallengeMode = "auto"
	ChallengeHumanReview ChallengeMode = "human-review"
)

// Profile holds the tunables of one strategy.
type Profile struct {
	PreActionWait      time.Duration `json:"pre_action_wait"`
	PostActionWait     time.Duration `json:"post_action_wait"`
	PostAnimationWait  time.Duration `json:"post_animation_wait"`
	PostSubmitWait     time.Duration `json:"post_submit_wait"`
	PageLoadTimeout    time.Duration `json:"page_load_timeout"`
	FallbackCount      int           `json:"fallback_count"`
	ScrollBeforeClick  bool          `json:"scroll_before_click"`
	RequiredFieldCheck bool          `json:"required_field_check"`
	FreshSession       bool          `json:"fresh_session"`
	ChallengeMode      ChallengeMode `json:"challenge_mode"`

	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	Exponent    float64       `json:"exponent"`
	MaxDelay    time.Duration `json:"max_delay"`
	JitterMax   time.Duration `json:"jitter_max"`
}

// Default returns the profile every strategy starts from.
func Default() Profile {
	return Profile{
		PreActionWait:     500 * time.Millisecond,
		PostActionWait:    500 * time.Millisecond,
		PostAnimationWait: 0,
		PostSubmitWait:    3 * time.Second,
		PageLoadTimeout:   30 * time.Second,
		FallbackCount:     3,
		ChallengeMode:     ChallengeAuto,
		MaxAttempts:       3,
		BaseDelay:         2 * time.Second,
		Exponent:          2,
		MaxDelay:          30 * time.Second,
		JitterMax:         time.Second,
	}
}

// DriverOptions translates the profile into driver session options.
func (p Profile) DriverOptions(stepDelay time.Duration) domain.DriverOptions {
	return domain.DriverOptions{
		PreActionWait:     p.PreActionWait,
		PostActionWait:    p.PostActionWait,
		PostAnimationWait: p.PostAnimationWait,
		FallbackSelectors: p.FallbackCount,
		ScrollBeforeClick: p.ScrollBeforeClick,
		FreshSession:      p.FreshSession,
		StepDelay:         stepDelay,
	}
}
