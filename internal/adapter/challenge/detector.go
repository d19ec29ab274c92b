// Package challenge recognises anti-automation verification pages.
//
// No solver here attempts to pass a challenge. Detected challenges are
// handed to a human through the pending review state.
package challenge

import (
	"context"
	"regexp"

	"github.com/cwygoda/pitcher/internal/domain"
)

const (
	TypeRecaptcha domain.ChallengeType = "recaptcha"
	TypeHCaptcha  domain.ChallengeType = "hcaptcha"
	TypeTurnstile domain.ChallengeType = "turnstile"
	TypeGeneric   domain.ChallengeType = "generic"
)

var patterns = []struct {
	re  *regexp.Regexp
	typ domain.ChallengeType
}{
	{regexp.MustCompile(`(?i)g-recaptcha|recaptcha/api|google\.com/recaptcha`), TypeRecaptcha},
	{regexp.MustCompile(`(?i)h-captcha|hcaptcha\.com`), TypeHCaptcha},
	{regexp.MustCompile(`(?i)cf-turnstile|challenges\.cloudflare\.com|checking your browser`), TypeTurnstile},
	{regexp.MustCompile(`(?i)verify (that )?you are (a )?human|are you a robot|captcha`), TypeGeneric},
}

// Detect returns the first challenge type whose pattern matches the
// evidence URL or text.
func Detect(ev domain.Evidence) (domain.ChallengeType, bool) {
	for _, p := range patterns {
		if p.re.MatchString(ev.URL) || p.re.MatchString(ev.Text) {
			return p.typ, true
		}
	}
	return "", false
}

// ReviewSolver detects challenges but never solves them, so every
// challenge ends in pending review.
type ReviewSolver struct{}

var _ domain.ChallengeSolver = ReviewSolver{}

func (ReviewSolver) Detect(_ context.Context, ev domain.Evidence) (domain.ChallengeType, bool) {
	return Detect(ev)
}

func (ReviewSolver) Solve(ctx context.Context, _ domain.ChallengeType) (string, bool, error) {
	return "", false, ctx.Err()
}
