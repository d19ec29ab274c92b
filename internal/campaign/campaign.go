// Package campaign runs one discovery-to-outcome pass over every service.
package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cwygoda/pitcher/internal/admission"
	"github.com/cwygoda/pitcher/internal/analyzer"
	"github.com/cwygoda/pitcher/internal/apply"
	"github.com/cwygoda/pitcher/internal/discovery"
	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/evaluator"
	"github.com/cwygoda/pitcher/internal/fingerprint"
	"github.com/cwygoda/pitcher/internal/router"
	"github.com/cwygoda/pitcher/internal/speed"
)

// Observer receives campaign events for metrics.
type Observer interface {
	ObserveOutcome(o domain.Outcome)
	ObserveVariant(variant string, success bool)
	ObserveAdjustment(strategy, parameter string)
	SetAdmission(inFlight, waiting int)
}

type nopObserver struct{}

func (nopObserver) ObserveOutcome(domain.Outcome)    {}
func (nopObserver) ObserveVariant(string, bool)      {}
func (nopObserver) ObserveAdjustment(string, string) {}
func (nopObserver) SetAdmission(int, int)            {}

// Services are the components a campaign drives.
type Services struct {
	Attempts   *domain.AttemptService
	Index      *fingerprint.Index
	Aggregator *discovery.Aggregator
	Router     *router.Router
	Quota      *router.Quota
	Scheduler  *admission.Scheduler
	Speed      *speed.Controller
	Machine    *apply.Machine
	Analyzer   *analyzer.Analyzer
	Evaluator  *evaluator.Evaluator
}

// Result summarises a finished run.
type Result struct {
	Backlog  *discovery.Backlog
	Admitted int
	Skipped  int
	Report   evaluator.Report
}

// Campaign is one run. It is not reusable.
type Campaign struct {
	id         string
	svc        Services
	log        *zap.Logger
	obs        Observer
	interval   time.Duration
	directOnly bool
	newID      func() string
	now        func() time.Time
}

// Option configures a Campaign.
type Option func(*Campaign)

// WithObserver reports events to obs.
func WithObserver(obs Observer) Option {
	return func(c *Campaign) { c.obs = obs }
}

// WithSnapshotInterval persists a snapshot every d. Zero disables periodic
// snapshots; a final one is always taken.
func WithSnapshotInterval(d time.Duration) Option {
	return func(c *Campaign) { c.interval = d }
}

// WithDirectOnly skips items whose target is not itself a completion form.
func WithDirectOnly(v bool) Option {
	return func(c *Campaign) { c.directOnly = v }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Campaign) { c.now = now }
}

// New creates a campaign run.
func New(id string, svc Services, log *zap.Logger, opts ...Option) *Campaign {
	c := &Campaign{
		id:    id,
		svc:   svc,
		log:   log.With(zap.String("campaign", id)),
		obs:   nopObserver{},
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run discovers the backlog and works it until every item reached a
// terminal state or ctx is cancelled. Discovery failing across all sources
// aborts the run; single items never do. On cancellation the partial
// result is returned with ctx's error.
func (c *Campaign) Run(ctx context.Context, q domain.Query) (*Result, error) {
	seen, err := c.svc.Attempts.Seen(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seen fingerprints: %w", err)
	}
	c.svc.Index.Seed(seen)
	c.log.Info("index seeded", zap.Int("keys", len(seen)))

	backlog, err := c.svc.Aggregator.Discover(ctx, q)
	if err != nil {
		return &Result{Backlog: backlog}, err
	}
	items := c.svc.Router.SortByPriority(backlog.Items)
	res := &Result{Backlog: backlog}

	stop := c.snapshotLoop(ctx)
	defer stop()

	var wg sync.WaitGroup
	for _, item := range items {
		strat := c.svc.Router.Route(item.Target())
		if reason, skip := c.skip(item, strat); skip {
			c.skipItem(ctx, item, strat, reason)
			res.Skipped++
			continue
		}

		tok, err := c.svc.Scheduler.Acquire(ctx)
		if err != nil {
			break
		}
		variant := c.svc.Speed.Assign(tok.Actor())
		if err := c.svc.Speed.Wait(ctx, variant.Name); err != nil {
			tok.Release()
			break
		}
		res.Admitted++
		c.obs.SetAdmission(c.svc.Scheduler.InFlight(), c.svc.Scheduler.Waiting())

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				tok.Release()
				c.obs.SetAdmission(c.svc.Scheduler.InFlight(), c.svc.Scheduler.Waiting())
			}()
			c.attempt(ctx, item, strat, variant)
		}()
	}
	wg.Wait()

	stop()
	c.persistSnapshot(context.WithoutCancel(ctx))
	res.Report = c.svc.Evaluator.Report()

	c.log.Info("campaign finished",
		zap.Int("admitted", res.Admitted),
		zap.Int("skipped", res.Skipped),
		zap.Int("successful", res.Report.Successful),
		zap.Int("failed", res.Report.Failed),
	)
	return res, ctx.Err()
}

func (c *Campaign) skip(item domain.WorkItem, strat string) (string, bool) {
	if c.directOnly && !c.svc.Router.IsDirectCompletionURL(item.Target()) {
		return "target is not a completion form", true
	}
	if c.svc.Quota != nil && !c.svc.Quota.Take(strat) {
		return fmt.Sprintf("quota reached for %s", strat), true
	}
	return "", false
}

func (c *Campaign) skipItem(ctx context.Context, item domain.WorkItem, strat, reason string) {
	now := c.now()
	a := &domain.Attempt{
		ID:          c.newID(),
		ItemID:      item.ID,
		Fingerprint: item.Fingerprint,
		Strategy:    strat,
		URL:         item.Target(),
		StartedAt:   now,
		LastError:   reason,
	}
	a.Finish(domain.StateSkipped, now)
	out := domain.Outcome{Attempt: a, Item: item, State: a.State, Message: reason}

	c.svc.Evaluator.RecordEnd(out)
	c.obs.ObserveOutcome(out)
	c.archive(ctx, a)
	c.log.Debug("item skipped", zap.String("item", item.ID), zap.String("strategy", strat), zap.String("reason", reason))
}

func (c *Campaign) attempt(ctx context.Context, item domain.WorkItem, strat string, variant speed.Variant) {
	id := c.newID()
	c.svc.Evaluator.RecordStart(id)

	out := c.svc.Machine.Execute(ctx, apply.Run{
		AttemptID: id,
		Item:      item,
		Strategy:  strat,
		Variant:   variant,
	})

	if out.Kind != domain.KindCancelled {
		if err := c.svc.Speed.Record(variant.Name, out.Success()); err != nil {
			c.log.Error("record variant", zap.String("variant", variant.Name), zap.Error(err))
		}
		c.obs.ObserveVariant(variant.Name, out.Success())

		if !out.Success() {
			an := c.svc.Analyzer.Analyze(out)
			out.Category = an.Category
			for _, adj := range an.Adjustments {
				c.obs.ObserveAdjustment(adj.Strategy, adj.Parameter)
			}
		}
	}

	c.svc.Evaluator.RecordEnd(out)
	c.obs.ObserveOutcome(out)
	c.archive(ctx, out.Attempt)
}

// archive outlives cancellation so interrupted attempts are still recorded.
func (c *Campaign) archive(ctx context.Context, a *domain.Attempt) {
	if err := c.svc.Attempts.Archive(context.WithoutCancel(ctx), a); err != nil {
		c.log.Error("archive attempt", zap.String("attempt", a.ID), zap.Error(err))
	}
}

// snapshotLoop persists snapshots until the returned stop is called.
// stop is idempotent and waits for the loop to exit.
func (c *Campaign) snapshotLoop(ctx context.Context) func() {
	if c.interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				c.persistSnapshot(ctx)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}

func (c *Campaign) persistSnapshot(ctx context.Context) {
	snap := c.svc.Evaluator.Snapshot()
	body, err := json.Marshal(snap)
	if err != nil {
		c.log.Error("encode snapshot", zap.Error(err))
		return
	}
	if err := c.svc.Attempts.SaveSnapshot(ctx, c.id, snap.At, body); err != nil {
		if !errors.Is(err, context.Canceled) {
			c.log.Error("save snapshot", zap.Error(err))
		}
		return
	}
	c.log.Debug("snapshot saved",
		zap.Int("completed", snap.Completed),
		zap.Float64("throughput_per_minute", snap.ThroughputPerMinute),
	)
}
