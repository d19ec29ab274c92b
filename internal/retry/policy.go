package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"regexp"
	"time"

	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/strategy"
)

// Decision is what the state machine does after a failed run.
type Decision string

const (
	// Retry restarts the attempt at Navigating after a backoff delay.
	Retry Decision = "retry"
	// Fail ends the attempt in Failed.
	Fail Decision = "fail"
	// Stop ends the attempt in Error without retrying.
	Stop Decision = "stop"
	// Challenge hands the attempt to the challenge solver once.
	Challenge Decision = "challenge"
)

type textRule struct {
	re   *regexp.Regexp
	kind domain.FailureKind
}

// Checked in order; the first match classifies an untyped error.
var textRules = []textRule{
	{regexp.MustCompile(`(?i)captcha|hcaptcha|turnstile|verify (that )?you are (a )?human|are you a robot|challenge`), domain.KindChallenge},
	{regexp.MustCompile(`(?i)\b429\b|rate.?limit|too many requests|throttl`), domain.KindRateLimited},
	{regexp.MustCompile(`(?i)validation|required field|is required|invalid (email|phone|format|value)|please (fill|enter|complete|select)`), domain.KindValidation},
	{regexp.MustCompile(`(?i)timeout|timed out|deadline exceeded`), domain.KindTimeout},
	{regexp.MustCompile(`(?i)connection (refused|reset|closed)|no such host|network|dns|net::err_|\beof\b|tls handshake|\b50[234]\b`), domain.KindNetwork},
	{regexp.MustCompile(`(?i)submi(t|ssion) (failed|error|button)|could not submit`), domain.KindSubmitFailed},
}

// Policy classifies attempt errors and computes backoff delays.
type Policy struct {
	jitter func(max time.Duration) time.Duration
}

// Option configures a Policy.
type Option func(*Policy)

// WithJitter replaces the random jitter source.
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(p *Policy) {
		p.jitter = fn
	}
}

// New creates a policy.
func New(opts ...Option) *Policy {
	p := &Policy{jitter: uniformJitter}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max + 1)
}

// Classify maps err to a FailureKind. A kind carried by *domain.AttemptError
// wins; context errors come next; otherwise the message is matched.
func (p *Policy) Classify(err error) domain.FailureKind {
	if err == nil {
		return domain.KindNone
	}
	if kind := domain.KindOf(err); kind != domain.KindNone {
		return kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return domain.KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return domain.KindTimeout
	}
	msg := err.Error()
	for _, r := range textRules {
		if r.re.MatchString(msg) {
			return r.kind
		}
	}
	return domain.KindUnknown
}

// Decide returns the next step for an attempt that failed its count-th run.
func (p *Policy) Decide(kind domain.FailureKind, count int, prof strategy.Profile) Decision {
	switch {
	case kind == domain.KindChallenge:
		return Challenge
	case kind == domain.KindCancelled, kind == domain.KindConfirmation:
		return Stop
	case kind.Retryable():
		if count < prof.MaxAttempts {
			return Retry
		}
		return Fail
	}
	return Fail
}

// Delay returns the backoff before run n+1, where n >= 1 is the number of
// runs already made: min(base * exponent^(n-1), max) + jitter(0, jitterMax).
func (p *Policy) Delay(n int, prof strategy.Profile) time.Duration {
	if n < 1 {
		n = 1
	}
	exp := prof.Exponent
	if exp < 1 {
		exp = 1
	}
	d := float64(prof.BaseDelay) * math.Pow(exp, float64(n-1))
	if prof.MaxDelay > 0 && d > float64(prof.MaxDelay) {
		d = float64(prof.MaxDelay)
	}
	if d > math.MaxInt64/2 {
		d = math.MaxInt64 / 2
	}
	return time.Duration(d) + p.jitter(prof.JitterMax)
}
