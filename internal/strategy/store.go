package strategy

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Parameter names accepted by Apply.
const (
	ParamPreActionWait      = "pre_action_wait"
	ParamPostActionWait     = "post_action_wait"
	ParamPostAnimationWait  = "post_animation_wait"
	ParamPostSubmitWait     = "post_submit_wait"
	ParamPageLoadTimeout    = "page_load_timeout"
	ParamFallbackCount      = "fallback_count"
	ParamScrollBeforeClick  = "scroll_before_click"
	ParamRequiredFieldCheck = "required_field_check"
	ParamFreshSession       = "fresh_session"
	ParamChallengeMode      = "challenge_mode"
	ParamBaseDelay          = "base_delay"
	ParamMaxDelay           = "max_delay"
	ParamMaxAttempts        = "max_attempts"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrInvalidValue     = errors.New("invalid parameter value")
)

// Adjustment is one proposed change to a strategy's profile.
type Adjustment struct {
	Strategy  string    `json:"strategy"`
	Parameter string    `json:"parameter"`
	Value     any       `json:"value"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// Store holds one Profile per strategy. Reads return copies.
type Store struct {
	mu       sync.RWMutex
	base     Profile
	profiles map[string]Profile
	history  []Adjustment
}

// NewStore creates a store whose strategies start from base.
func NewStore(base Profile) *Store {
	return &Store{base: base, profiles: make(map[string]Profile)}
}

// Get returns the current profile of strategy.
func (s *Store) Get(strategy string) Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[strategy]; ok {
		return p
	}
	return s.base
}

// Set replaces the profile of strategy.
func (s *Store) Set(strategy string, p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[strategy] = p
}

// Apply applies adjustments in order, so a later value for the same
// parameter wins. Invalid adjustments are skipped and reported together.
func (s *Store) Apply(adjs ...Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, a := range adjs {
		p, ok := s.profiles[a.Strategy]
		if !ok {
			p = s.base
		}
		if err := set(&p, a.Parameter, a.Value); err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", a.Strategy, a.Parameter, err))
			continue
		}
		s.profiles[a.Strategy] = p
		s.history = append(s.history, a)
	}
	return errors.Join(errs...)
}

// History returns every applied adjustment, oldest first.
func (s *Store) History() []Adjustment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Adjustment, len(s.history))
	copy(out, s.history)
	return out
}

// All returns the profiles of every strategy that diverged from the base.
func (s *Store) All() map[string]Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Profile, len(s.profiles))
	for k, v := range s.profiles {
		out[k] = v
	}
	return out
}

func set(p *Profile, param string, value any) error {
	switch param {
	case ParamPreActionWait:
		return setDuration(&p.PreActionWait, value)
	case ParamPostActionWait:
		return setDuration(&p.PostActionWait, value)
	case ParamPostAnimationWait:
		return setDuration(&p.PostAnimationWait, value)
	case ParamPostSubmitWait:
		return setDuration(&p.PostSubmitWait, value)
	case ParamPageLoadTimeout:
		return setDuration(&p.PageLoadTimeout, value)
	case ParamBaseDelay:
		return setDuration(&p.BaseDelay, value)
	case ParamMaxDelay:
		return setDuration(&p.MaxDelay, value)
	case ParamFallbackCount:
		return setInt(&p.FallbackCount, value)
	case ParamMaxAttempts:
		return setInt(&p.MaxAttempts, value)
	case ParamScrollBeforeClick:
		return setBool(&p.ScrollBeforeClick, value)
	case ParamRequiredFieldCheck:
		return setBool(&p.RequiredFieldCheck, value)
	case ParamFreshSession:
		return setBool(&p.FreshSession, value)
	case ParamChallengeMode:
		switch v := value.(type) {
		case ChallengeMode:
			p.ChallengeMode = v
		case string:
			p.ChallengeMode = ChallengeMode(v)
		default:
			return ErrInvalidValue
		}
		if p.ChallengeMode != ChallengeAuto && p.ChallengeMode != ChallengeHumanReview {
			return ErrInvalidValue
		}
		return nil
	}
	return ErrUnknownParameter
}

func setDuration(dst *time.Duration, value any) error {
	v, ok := value.(time.Duration)
	if !ok || v < 0 {
		return ErrInvalidValue
	}
	*dst = v
	return nil
}

func setInt(dst *int, value any) error {
	v, ok := value.(int)
	if !ok || v < 0 {
		return ErrInvalidValue
	}
	*dst = v
	return nil
}

func setBool(dst *bool, value any) error {
	v, ok := value.(bool)
	if !ok {
		return ErrInvalidValue
	}
	*dst = v
	return nil
}
