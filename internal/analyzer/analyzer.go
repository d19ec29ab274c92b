package analyzer

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/strategy"
)

// tailEvents is how much attempt history stands in for missing evidence.
const tailEvents = 5

type rule struct {
	category domain.FailureCategory
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile("(?i)" + e)
	}
	return out
}

// Checked in order; the first category with a matching pattern wins.
// Selector patterns precede timeout so "waiting for selector timed out"
// is a selector problem.
var rules = []rule{
	{domain.CategorySelectorNotFound, compile(
		`element not found`,
		`waiting for selector`,
		`locator.*count.*0`,
		`unable to locate`,
		`selector.*failed`,
		`no such element`,
		`could not find (element|field|button)`,
	)},
	{domain.CategoryNotClickable, compile(
		`element not interactable`,
		`element not visible`,
		`element not enabled`,
		`click.*failed`,
		`intercepted`,
	)},
	{domain.CategoryValidation, compile(
		`validation.*error`,
		`required.*field`,
		`invalid.*input`,
		`please fill`,
		`error message`,
	)},
	{domain.CategoryTimeout, compile(
		`timeout`,
		`timed out`,
		`deadline exceeded`,
	)},
	{domain.CategoryChallenge, compile(
		`captcha`,
		`verify you are human`,
		`i'm not a robot`,
		`challenge`,
	)},
	{domain.CategorySessionExpired, compile(
		`session.*expired`,
		`please.*log ?in`,
		`authentication.*failed`,
		`unauthorized`,
	)},
	{domain.CategoryConfirmationNotFound, compile(
		`confirmation.*not found`,
		`success.*indicator`,
		`could not.*confirm`,
	)},
	{domain.CategoryUploadFailed, compile(
		`upload.*failed`,
		`file.*too.*large`,
		`invalid.*file.*type`,
	)},
	{domain.CategoryNavigationError, compile(
		`navigation.*failed`,
		`net::`,
		`err_`,
		`dial tcp`,
		`connection (refused|reset)`,
		`no such host`,
	)},
}

// Classify maps failure text onto a category.
func Classify(text string) domain.FailureCategory {
	if strings.TrimSpace(text) == "" {
		return domain.CategoryUnknown
	}
	for _, r := range rules {
		for _, p := range r.patterns {
			if p.MatchString(text) {
				return r.category
			}
		}
	}
	return domain.CategoryUnknown
}

// Analysis is the result of examining one failed attempt.
type Analysis struct {
	AttemptID    string                 `json:"attempt_id"`
	Strategy     string                 `json:"strategy"`
	Category     domain.FailureCategory `json:"category"`
	Evidence     string                 `json:"evidence"`
	SuggestedFix string                 `json:"suggested_fix"`
	Confidence   float64                `json:"confidence"`
	Adjustments  []strategy.Adjustment  `json:"adjustments"`
	At           time.Time              `json:"at"`
}

// Analyzer classifies failures and feeds strategy adjustments back into
// the profile store.
type Analyzer struct {
	store *strategy.Store
	log   *zap.Logger
	now   func() time.Time

	mu       sync.Mutex
	analyses []Analysis
}

// New creates an analyzer writing adjustments to store.
func New(store *strategy.Store, log *zap.Logger) *Analyzer {
	return &Analyzer{store: store, log: log, now: time.Now}
}

// Analyze classifies the outcome, derives adjustments from the strategy's
// current profile and applies them. An outcome that already carries a
// category keeps it.
func (a *Analyzer) Analyze(o domain.Outcome) Analysis {
	strat := o.Item.ID
	attemptID := ""
	if o.Attempt != nil {
		strat = o.Attempt.Strategy
		attemptID = o.Attempt.ID
	}

	evidence := evidenceText(o)
	category := o.Category
	if category == "" {
		category = Classify(evidence)
	}

	fix, confidence := suggest(category, evidence)
	an := Analysis{
		AttemptID:    attemptID,
		Strategy:     strat,
		Category:     category,
		Evidence:     evidence,
		SuggestedFix: fix,
		Confidence:   confidence,
		At:           a.now(),
	}
	an.Adjustments = adjustments(strat, category, a.store.Get(strat), an.At)

	if len(an.Adjustments) > 0 {
		if err := a.store.Apply(an.Adjustments...); err != nil {
			a.log.Error("apply adjustments", zap.String("strategy", strat), zap.Error(err))
		}
	}
	a.log.Info("failure analyzed",
		zap.String("attempt", attemptID),
		zap.String("strategy", strat),
		zap.String("category", string(category)),
		zap.Float64("confidence", confidence),
		zap.Int("adjustments", len(an.Adjustments)),
	)

	a.mu.Lock()
	a.analyses = append(a.analyses, an)
	a.mu.Unlock()
	return an
}

// History returns every analysis made, oldest first.
func (a *Analyzer) History() []Analysis {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Analysis, len(a.analyses))
	copy(out, a.analyses)
	return out
}

func evidenceText(o domain.Outcome) string {
	if strings.TrimSpace(o.Message) != "" {
		return o.Message
	}
	if strings.TrimSpace(o.Evidence.Text) != "" {
		return o.Evidence.Text
	}
	if o.Attempt != nil {
		return strings.Join(o.Attempt.Tail(tailEvents), "\n")
	}
	return ""
}

func suggest(c domain.FailureCategory, evidence string) (string, float64) {
	switch c {
	case domain.CategorySelectorNotFound:
		lower := strings.ToLower(evidence)
		switch {
		case strings.Contains(lower, "submit"):
			return "use alternative submit selectors and wait before clicking", 0.7
		case strings.Contains(lower, "next"):
			return "add next-button selector fallbacks and check visibility", 0.7
		}
		return "add selector fallbacks and increase wait time", 0.7
	case domain.CategoryNotClickable:
		return "scroll into view, wait for animations, check for overlays", 0.8
	case domain.CategoryValidation:
		return "fill all required fields and check validation rules", 0.9
	case domain.CategoryTimeout:
		return "increase page load timeout", 0.8
	case domain.CategoryChallenge:
		return "route challenges to human review", 0.95
	case domain.CategorySessionExpired:
		return "use a fresh browser session", 0.9
	case domain.CategoryConfirmationNotFound:
		return "wait longer after submit and verify success indicators", 0.6
	case domain.CategoryUploadFailed:
		return "check resume file size and type", 0.85
	case domain.CategoryNavigationError:
		return "check the URL and back off before retrying", 0.75
	}
	return "capture more evidence and review manually", 0.3
}

func adjustments(strat string, c domain.FailureCategory, p strategy.Profile, at time.Time) []strategy.Adjustment {
	adj := func(param string, v any, reason string) strategy.Adjustment {
		return strategy.Adjustment{Strategy: strat, Parameter: param, Value: v, Reason: reason, At: at}
	}
	switch c {
	case domain.CategorySelectorNotFound:
		return []strategy.Adjustment{
			adj(strategy.ParamPreActionWait, max(3*time.Second, p.PreActionWait+time.Second), "element may need more time to appear"),
			adj(strategy.ParamFallbackCount, min(10, max(5, p.FallbackCount+1)), "primary selector may have changed"),
		}
	case domain.CategoryNotClickable:
		return []strategy.Adjustment{
			adj(strategy.ParamScrollBeforeClick, true, "element may be off-screen or obscured"),
			adj(strategy.ParamPostAnimationWait, max(time.Second, p.PostAnimationWait), "wait for animations to complete"),
		}
	case domain.CategoryValidation:
		return []strategy.Adjustment{adj(strategy.ParamRequiredFieldCheck, true, "ensure all required fields are filled")}
	case domain.CategoryTimeout:
		return []strategy.Adjustment{adj(strategy.ParamPageLoadTimeout, max(2*time.Minute, p.PageLoadTimeout), "page loads slowly")}
	case domain.CategoryChallenge:
		return []strategy.Adjustment{adj(strategy.ParamChallengeMode, strategy.ChallengeHumanReview, "challenges cannot be solved automatically")}
	case domain.CategorySessionExpired:
		return []strategy.Adjustment{adj(strategy.ParamFreshSession, true, "session state expired")}
	case domain.CategoryConfirmationNotFound:
		return []strategy.Adjustment{adj(strategy.ParamPostSubmitWait, max(10*time.Second, p.PostSubmitWait), "confirmation may take longer to appear")}
	case domain.CategoryUploadFailed:
		return []strategy.Adjustment{adj(strategy.ParamRequiredFieldCheck, true, "upload left a required field empty")}
	case domain.CategoryNavigationError:
		next := p.BaseDelay + time.Second
		if p.MaxDelay > 0 {
			next = min(next, p.MaxDelay)
		}
		return []strategy.Adjustment{adj(strategy.ParamBaseDelay, next, "back off harder after navigation errors")}
	}
	return nil
}
