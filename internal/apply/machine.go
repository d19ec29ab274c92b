package apply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/retry"
	"github.com/cwygoda/pitcher/internal/speed"
	"github.com/cwygoda/pitcher/internal/strategy"
)

var (
	ErrNoConfirmation  = errors.New("confirmation not found: no success indicator after submit")
	ErrSubmitNotFound  = errors.New("could not submit: no submit control")
	ErrRequiredMissing = errors.New("required field missing")
)

// DefaultSuccessIndicators are matched case-insensitively against page text
// and URL after submit.
var DefaultSuccessIndicators = []string{
	"application submitted",
	"application received",
	"thank you for applying",
	"thank you for your application",
	"thanks for applying",
	"successfully submitted",
	"we have received",
}

// URLSuccessIndicators are matched against the URL only. In page text they
// also hit form labels such as "Email confirmation".
var URLSuccessIndicators = []string{
	"confirmation",
	"thank-you",
	"thankyou",
}

// Run is the input of one attempt.
type Run struct {
	AttemptID string
	Item      domain.WorkItem
	Strategy  string
	Variant   speed.Variant
}

// Machine drives one work item through the completion state machine.
type Machine struct {
	drivers    domain.DriverFactory
	solver     domain.ChallengeSolver
	policy     *retry.Policy
	profiles   *strategy.Store
	applicant  domain.Applicant
	log        *zap.Logger
	autoSubmit bool
	stepLimit  time.Duration
	solveLimit time.Duration
	indicators []string
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Machine.
type Option func(*Machine)

// WithSolver sets the challenge solver. Without one, every challenge ends
// in PendingReview.
func WithSolver(s domain.ChallengeSolver) Option {
	return func(m *Machine) { m.solver = s }
}

// WithAutoSubmit makes the machine click submit instead of stopping for review.
func WithAutoSubmit(v bool) Option {
	return func(m *Machine) { m.autoSubmit = v }
}

// WithStepTimeout bounds every step except navigation, which uses the
// strategy's page-load timeout.
func WithStepTimeout(d time.Duration) Option {
	return func(m *Machine) { m.stepLimit = d }
}

// WithSolveTimeout bounds a challenge solver call.
func WithSolveTimeout(d time.Duration) Option {
	return func(m *Machine) { m.solveLimit = d }
}

// WithSuccessIndicators replaces DefaultSuccessIndicators.
func WithSuccessIndicators(ind []string) Option {
	return func(m *Machine) { m.indicators = ind }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithSleeper replaces the context-aware sleep used for backoff and pauses.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Machine) { m.sleep = fn }
}

// New creates a machine.
func New(drivers domain.DriverFactory, policy *retry.Policy, profiles *strategy.Store, applicant domain.Applicant, log *zap.Logger, opts ...Option) *Machine {
	m := &Machine{
		drivers:    drivers,
		policy:     policy,
		profiles:   profiles,
		applicant:  applicant,
		log:        log,
		stepLimit:  45 * time.Second,
		solveLimit: 2 * time.Minute,
		indicators: DefaultSuccessIndicators,
		now:        time.Now,
		sleep:      sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs the attempt to a terminal state. Failed runs are retried
// from Navigating on a fresh driver session while the retry policy allows.
func (m *Machine) Execute(ctx context.Context, run Run) domain.Outcome {
	now := m.now()
	a := &domain.Attempt{
		ID:          run.AttemptID,
		ItemID:      run.Item.ID,
		Fingerprint: run.Item.Fingerprint,
		Strategy:    run.Strategy,
		Variant:     run.Variant.Name,
		URL:         run.Item.Target(),
		StartedAt:   now,
	}
	a.Transition(domain.StatePending, "admitted", now)
	log := m.log.With(
		zap.String("attempt", a.ID),
		zap.String("item", a.ItemID),
		zap.String("strategy", a.Strategy),
	)

	solverTried := false
	for {
		a.Count++
		prof := m.profiles.Get(run.Strategy)
		ev, err := m.runOnce(ctx, a, run, prof, &solverTried)
		if err == nil {
			log.Info("attempt finished", zap.String("state", string(a.State)), zap.Int("runs", a.Count))
			return m.outcome(a, run.Item, domain.KindNone, ev)
		}

		kind := m.policy.Classify(err)
		if ctx.Err() != nil {
			kind = domain.KindCancelled
		}
		a.RecordFailure(kind, err, m.now())
		log.Warn("run failed",
			zap.Int("run", a.Count),
			zap.String("state", string(a.State)),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)

		switch m.policy.Decide(kind, a.Count, prof) {
		case retry.Retry:
			d := m.policy.Delay(a.Count, prof)
			a.CumulativeBackoff += d
			a.Note(fmt.Sprintf("retrying in %s", d), m.now())
			if err := m.sleep(ctx, d); err != nil {
				a.RecordFailure(domain.KindCancelled, err, m.now())
				a.Finish(domain.StateError, m.now())
				return m.outcome(a, run.Item, domain.KindCancelled, ev)
			}
			continue
		case retry.Challenge:
			if !solverTried && a.Count < prof.MaxAttempts {
				solverTried = true
				if m.trySolve(ctx, a, prof, ev) {
					continue
				}
			}
			a.Finish(domain.StatePendingReview, m.now())
		case retry.Stop:
			a.Finish(domain.StateError, m.now())
		default:
			a.Finish(domain.StateFailed, m.now())
		}
		log.Info("attempt finished",
			zap.String("state", string(a.State)),
			zap.String("kind", string(kind)),
			zap.Int("runs", a.Count),
		)
		return m.outcome(a, run.Item, kind, ev)
	}
}

func (m *Machine) outcome(a *domain.Attempt, item domain.WorkItem, kind domain.FailureKind, ev domain.Evidence) domain.Outcome {
	o := domain.Outcome{
		Attempt:  a,
		Item:     item,
		State:    a.State,
		Kind:     kind,
		Evidence: ev,
	}
	if kind != domain.KindNone {
		o.Message = a.LastError
	}
	if kind == domain.KindConfirmation {
		o.Category = domain.CategoryConfirmationNotFound
	}
	return o
}

// runOnce makes one pass from Navigating to a terminal state. A nil error
// means the attempt reached Submitted or PendingReview.
func (m *Machine) runOnce(ctx context.Context, a *domain.Attempt, run Run, prof strategy.Profile, solverTried *bool) (domain.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return domain.Evidence{}, err
	}
	opts := prof.DriverOptions(run.Variant.BehaviorDelay(speed.BehaviorClick))
	if a.Count > 1 {
		opts.FreshSession = true
	}
	drv, err := m.drivers.Open(ctx, opts)
	if err != nil {
		return domain.Evidence{}, fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if err := drv.Close(); err != nil {
			m.log.Debug("close driver session", zap.String("attempt", a.ID), zap.Error(err))
		}
	}()

	a.Transition(domain.StateNavigating, a.URL, m.now())
	if err := m.step(ctx, domain.StepNavigate, prof.PageLoadTimeout, func(ctx context.Context) error {
		return drv.Navigate(ctx, a.URL)
	}); err != nil {
		return m.capture(ctx, drv), err
	}
	if ev, err := m.checkChallenge(ctx, drv, a, prof, domain.StepNavigate, solverTried); err != nil {
		return ev, err
	}
	m.pause(ctx, run.Variant, prof.PreActionWait)

	a.Transition(domain.StateFillingForm, "", m.now())
	var fields domain.FieldSet
	if err := m.step(ctx, domain.StepFill, 0, func(ctx context.Context) error {
		var err error
		fields, err = drv.DetectFields(ctx)
		return err
	}); err != nil {
		return m.capture(ctx, drv), err
	}
	filled := make(map[int]bool, len(fields))
	for i, f := range fields {
		v, ok := contactValue(f, m.applicant)
		if !ok {
			continue
		}
		if err := m.fill(ctx, drv, a, domain.StepFill, f, v); err != nil {
			if ctx.Err() != nil {
				return domain.Evidence{}, ctx.Err()
			}
			continue
		}
		filled[i] = true
	}

	a.Transition(domain.StateAnsweringQuestions, "", m.now())
	for i, f := range fields {
		if filled[i] {
			continue
		}
		v, ok := answerValue(f, m.applicant)
		if !ok {
			continue
		}
		if err := m.fill(ctx, drv, a, domain.StepAnswer, f, v); err != nil {
			if ctx.Err() != nil {
				return domain.Evidence{}, ctx.Err()
			}
			continue
		}
		filled[i] = true
	}
	if prof.RequiredFieldCheck {
		var missing []string
		for i, f := range fields {
			if f.Required && !filled[i] {
				missing = append(missing, fieldLabel(f))
			}
		}
		if len(missing) > 0 {
			err := fmt.Errorf("%w: %s", ErrRequiredMissing, strings.Join(missing, ", "))
			return m.capture(ctx, drv), domain.NewAttemptError(domain.KindValidation, domain.StepAnswer, err)
		}
	}
	m.pause(ctx, run.Variant, prof.PostActionWait)

	if !m.autoSubmit {
		a.Transition(domain.StatePreparedForReview, "", m.now())
		ev := m.capture(ctx, drv)
		a.Evidence = ev.Ref
		a.Finish(domain.StatePendingReview, m.now())
		return ev, nil
	}

	a.Transition(domain.StateSubmitting, "", m.now())
	var clicked bool
	if err := m.step(ctx, domain.StepSubmit, 0, func(ctx context.Context) error {
		var err error
		clicked, err = drv.Submit(ctx)
		return err
	}); err != nil {
		return m.capture(ctx, drv), err
	}
	if !clicked {
		return m.capture(ctx, drv), domain.NewAttemptError(domain.KindSubmitFailed, domain.StepSubmit, ErrSubmitNotFound)
	}
	if err := m.sleep(ctx, prof.PostSubmitWait); err != nil {
		return domain.Evidence{}, err
	}
	if ev, err := m.checkChallenge(ctx, drv, a, prof, domain.StepSubmit, solverTried); err != nil {
		return ev, err
	}

	ok, err := m.confirmed(ctx, drv)
	if err != nil {
		return m.capture(ctx, drv), err
	}
	ev := m.capture(ctx, drv)
	a.Evidence = ev.Ref
	if !ok {
		return ev, domain.NewAttemptError(domain.KindConfirmation, domain.StepSubmit, ErrNoConfirmation)
	}
	a.Finish(domain.StateSubmitted, m.now())
	return ev, nil
}

// step runs fn under a per-step deadline. Expiry of that deadline alone
// surfaces as Timeout; cancellation of ctx is returned unchanged.
func (m *Machine) step(ctx context.Context, s domain.Step, limit time.Duration, fn func(context.Context) error) error {
	if limit <= 0 {
		limit = m.stepLimit
	}
	sctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	err := fn(sctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(sctx.Err(), context.DeadlineExceeded) {
		return domain.NewAttemptError(domain.KindTimeout, s, err)
	}
	var ae *domain.AttemptError
	if errors.As(err, &ae) {
		return err
	}
	return fmt.Errorf("%s: %w", s, err)
}

// fill writes one field. Errors are noted in the history and skipped.
func (m *Machine) fill(ctx context.Context, drv domain.Driver, a *domain.Attempt, s domain.Step, f domain.Field, v string) error {
	err := m.step(ctx, s, 0, func(ctx context.Context) error {
		return drv.Fill(ctx, f, v)
	})
	if err != nil {
		a.Note(fmt.Sprintf("fill %s: %v", fieldLabel(f), err), m.now())
	}
	return err
}

func fieldLabel(f domain.Field) string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

func (m *Machine) pause(ctx context.Context, v speed.Variant, extra time.Duration) {
	_ = m.sleep(ctx, v.StepDelay()+extra)
}

func (m *Machine) checkChallenge(ctx context.Context, drv domain.Driver, a *domain.Attempt, prof strategy.Profile, s domain.Step, solverTried *bool) (domain.Evidence, error) {
	if m.solver == nil {
		return domain.Evidence{}, nil
	}
	ev := m.capture(ctx, drv)
	ct, found := m.solver.Detect(ctx, ev)
	if !found {
		return domain.Evidence{}, nil
	}
	a.Evidence = ev.Ref
	a.Note(fmt.Sprintf("challenge %s detected", ct), m.now())
	if !*solverTried && prof.ChallengeMode == strategy.ChallengeAuto {
		*solverTried = true
		if m.solve(ctx, a, ct) {
			return domain.Evidence{}, nil
		}
	}
	return ev, domain.NewAttemptError(domain.KindChallenge, s, fmt.Errorf("challenge %s", ct))
}

// trySolve gives a challenge that surfaced as an error its single solver
// attempt.
func (m *Machine) trySolve(ctx context.Context, a *domain.Attempt, prof strategy.Profile, ev domain.Evidence) bool {
	if m.solver == nil || prof.ChallengeMode != strategy.ChallengeAuto {
		return false
	}
	ct, found := m.solver.Detect(ctx, ev)
	if !found {
		ct = "unknown"
	}
	return m.solve(ctx, a, ct)
}

func (m *Machine) solve(ctx context.Context, a *domain.Attempt, ct domain.ChallengeType) bool {
	sctx, cancel := context.WithTimeout(ctx, m.solveLimit)
	defer cancel()
	_, ok, err := m.solver.Solve(sctx, ct)
	switch {
	case err != nil:
		a.Note(fmt.Sprintf("challenge solver: %v", err), m.now())
		return false
	case !ok:
		a.Note("challenge not solved", m.now())
		return false
	}
	a.Note("challenge solved", m.now())
	return true
}

func (m *Machine) confirmed(ctx context.Context, drv domain.Driver) (bool, error) {
	var text, url string
	err := m.step(ctx, domain.StepReview, 0, func(ctx context.Context) error {
		var err error
		if text, err = drv.PageText(ctx); err != nil {
			return err
		}
		url, err = drv.CurrentURL(ctx)
		return err
	})
	if err != nil {
		return false, err
	}
	hay := strings.ToLower(text + " " + url)
	for _, ind := range m.indicators {
		if strings.Contains(hay, strings.ToLower(ind)) {
			return true, nil
		}
	}
	lowerURL := strings.ToLower(url)
	for _, ind := range URLSuccessIndicators {
		if strings.Contains(lowerURL, ind) {
			return true, nil
		}
	}
	return false, nil
}

// capture takes best-effort evidence of the current page.
func (m *Machine) capture(ctx context.Context, drv domain.Driver) domain.Evidence {
	if ctx.Err() != nil {
		return domain.Evidence{}
	}
	cctx, cancel := context.WithTimeout(ctx, m.stepLimit)
	defer cancel()
	ev, err := drv.CaptureEvidence(cctx)
	if err != nil {
		m.log.Debug("capture evidence", zap.Error(err))
		return domain.Evidence{}
	}
	return ev
}
