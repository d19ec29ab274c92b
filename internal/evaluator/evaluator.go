package evaluator

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cwygoda/pitcher/internal/domain"
)

// ThroughputWindow is the trailing window used for per-minute throughput.
const ThroughputWindow = 5 * time.Minute

// maxRecommendations caps the recommendation list of a report.
const maxRecommendations = 5

// Targets are the campaign goals the report is judged against. Rates are
// fractions in [0, 1].
type Targets struct {
	TargetCount       int     `toml:"target_count" json:"target_count" yaml:"target_count" validate:"gte=0"`
	MinSuccessRate    float64 `toml:"min_success_rate" json:"min_success_rate" yaml:"min_success_rate" validate:"gte=0,lte=1"`
	TargetSuccessRate float64 `toml:"target_success_rate" json:"target_success_rate" yaml:"target_success_rate" validate:"gte=0,lte=1"`
	MinThroughput     float64 `toml:"min_throughput" json:"min_throughput" yaml:"min_throughput" validate:"gte=0"`
	TargetThroughput  float64 `toml:"target_throughput" json:"target_throughput" yaml:"target_throughput" validate:"gte=0"`
	MaxRateLimited    float64 `toml:"max_rate_limited" json:"max_rate_limited" yaml:"max_rate_limited" validate:"gte=0,lte=1"`
	MaxBlocked        float64 `toml:"max_blocked" json:"max_blocked" yaml:"max_blocked" validate:"gte=0,lte=1"`
}

// DefaultTargets returns the stock campaign goals.
func DefaultTargets() Targets {
	return Targets{
		TargetCount:       1000,
		MinSuccessRate:    0.70,
		TargetSuccessRate: 0.85,
		MinThroughput:     10,
		TargetThroughput:  30,
		MaxRateLimited:    0.15,
		MaxBlocked:        0.05,
	}
}

// Snapshot is a point-in-time aggregate of the campaign.
type Snapshot struct {
	At                  time.Time `json:"at" yaml:"at"`
	Target              int       `json:"target" yaml:"target"`
	Completed           int       `json:"completed" yaml:"completed"`
	Successful          int       `json:"successful" yaml:"successful"`
	Failed              int       `json:"failed" yaml:"failed"`
	RateLimited         int       `json:"rate_limited" yaml:"rate_limited"`
	Blocked             int       `json:"blocked" yaml:"blocked"`
	PendingReview       int       `json:"pending_review" yaml:"pending_review"`
	Skipped             int       `json:"skipped" yaml:"skipped"`
	InFlight            int       `json:"in_flight" yaml:"in_flight"`
	ThroughputPerMinute float64   `json:"throughput_per_minute" yaml:"throughput_per_minute"`
	MeanDurationSeconds float64   `json:"mean_duration_seconds" yaml:"mean_duration_seconds"`
	SuccessRate         float64   `json:"success_rate" yaml:"success_rate"`
}

// StrategyStats are the rolling counters of one strategy.
type StrategyStats struct {
	Attempts      int     `json:"attempts" yaml:"attempts"`
	Successful    int     `json:"successful" yaml:"successful"`
	Failed        int     `json:"failed" yaml:"failed"`
	RateLimited   int     `json:"rate_limited" yaml:"rate_limited"`
	Blocked       int     `json:"blocked" yaml:"blocked"`
	PendingReview int     `json:"pending_review" yaml:"pending_review"`
	SuccessRate   float64 `json:"success_rate" yaml:"success_rate"`
}

// Report is the end-of-run evaluation.
type Report struct {
	CampaignID          string                   `json:"campaign_id" yaml:"campaign_id"`
	StartedAt           time.Time                `json:"started_at" yaml:"started_at"`
	EndedAt             time.Time                `json:"ended_at" yaml:"ended_at"`
	TargetCount         int                      `json:"target_count" yaml:"target_count"`
	Completed           int                      `json:"completed" yaml:"completed"`
	Successful          int                      `json:"successful" yaml:"successful"`
	Failed              int                      `json:"failed" yaml:"failed"`
	RateLimited         int                      `json:"rate_limited" yaml:"rate_limited"`
	Blocked             int                      `json:"blocked" yaml:"blocked"`
	PendingReview       int                      `json:"pending_review" yaml:"pending_review"`
	Skipped             int                      `json:"skipped" yaml:"skipped"`
	ThroughputPerMinute float64                  `json:"throughput_per_minute" yaml:"throughput_per_minute"`
	PeakThroughput      float64                  `json:"peak_throughput_per_minute" yaml:"peak_throughput_per_minute"`
	SuccessRate         float64                  `json:"success_rate" yaml:"success_rate"`
	MeanDurationSeconds float64                  `json:"mean_duration_seconds" yaml:"mean_duration_seconds"`
	PerStrategy         map[string]StrategyStats `json:"per_strategy_breakdown" yaml:"per_strategy_breakdown"`
	PerFailureCategory  map[string]int           `json:"per_failure_category_breakdown" yaml:"per_failure_category_breakdown"`
	WhatWorked          []string                 `json:"what_worked" yaml:"what_worked"`
	WhatDidntWork       []string                 `json:"what_didnt_work" yaml:"what_didnt_work"`
	Recommendations     []string                 `json:"recommendations" yaml:"recommendations"`
	Snapshots           []Snapshot               `json:"snapshots" yaml:"snapshots"`
}

// Evaluator keeps the campaign counters. All methods are safe for
// concurrent use.
type Evaluator struct {
	id      string
	targets Targets
	now     func() time.Time

	mu            sync.Mutex
	startedAt     time.Time
	starts        map[string]time.Time
	completions   []time.Time
	totalDuration time.Duration
	durations     int
	counts        Snapshot
	perStrategy   map[string]*StrategyStats
	perCategory   map[string]int
	snapshots     []Snapshot
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// New creates an evaluator for one campaign run.
func New(campaignID string, targets Targets, opts ...Option) *Evaluator {
	e := &Evaluator{
		id:          campaignID,
		targets:     targets,
		now:         time.Now,
		starts:      make(map[string]time.Time),
		perStrategy: make(map[string]*StrategyStats),
		perCategory: make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.startedAt = e.now()
	return e
}

// RecordStart marks an attempt as in flight.
func (e *Evaluator) RecordStart(attemptID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.starts[attemptID]; ok {
		return
	}
	e.starts[attemptID] = e.now()
	e.counts.InFlight++
}

// RecordEnd folds a terminal outcome into the counters. The duration is
// measured from the matching RecordStart.
func (e *Evaluator) RecordEnd(o domain.Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()

	if o.Attempt != nil {
		if start, ok := e.starts[o.Attempt.ID]; ok {
			delete(e.starts, o.Attempt.ID)
			e.counts.InFlight--
			e.totalDuration += now.Sub(start)
			e.durations++
		}
	}

	if o.State == domain.StateSkipped {
		e.counts.Skipped++
		return
	}

	strat := "unknown"
	if o.Attempt != nil && o.Attempt.Strategy != "" {
		strat = o.Attempt.Strategy
	}
	ss, ok := e.perStrategy[strat]
	if !ok {
		ss = &StrategyStats{}
		e.perStrategy[strat] = ss
	}

	e.counts.Completed++
	e.completions = append(e.completions, now)
	ss.Attempts++
	if o.State == domain.StatePendingReview {
		e.counts.PendingReview++
		ss.PendingReview++
	}
	switch {
	case o.Success():
		e.counts.Successful++
		ss.Successful++
	case o.Blocked():
		e.counts.Blocked++
		ss.Blocked++
	case o.Kind == domain.KindRateLimited:
		e.counts.RateLimited++
		ss.RateLimited++
	default:
		e.counts.Failed++
		ss.Failed++
	}
	ss.SuccessRate = ratio(ss.Successful, ss.Attempts)
	if !o.Success() && o.Category != "" {
		e.perCategory[string(o.Category)]++
	}
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Snapshot takes a consistent aggregate and appends it to the history.
func (e *Evaluator) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.snapshotLocked()
	e.snapshots = append(e.snapshots, s)
	return s
}

// Current returns the aggregate without recording it in the history.
func (e *Evaluator) Current() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Evaluator) snapshotLocked() Snapshot {
	now := e.now()
	s := e.counts
	s.At = now
	s.Target = e.targets.TargetCount
	s.SuccessRate = ratio(s.Successful, s.Completed)
	if e.durations > 0 {
		s.MeanDurationSeconds = (e.totalDuration / time.Duration(e.durations)).Seconds()
	}

	// Runs younger than the window are measured over their own age.
	window := min(ThroughputWindow, now.Sub(e.startedAt))
	if window > 0 {
		cutoff := now.Add(-window)
		recent := 0
		for i := len(e.completions) - 1; i >= 0 && !e.completions[i].Before(cutoff); i-- {
			recent++
		}
		s.ThroughputPerMinute = float64(recent) / window.Minutes()
	}
	return s
}

// Snapshots returns the snapshot history, oldest first.
func (e *Evaluator) Snapshots() []Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.snapshots)
}

// Report builds the evaluation of the run so far.
func (e *Evaluator) Report() Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	cur := e.snapshotLocked()
	r := Report{
		CampaignID:          e.id,
		StartedAt:           e.startedAt,
		EndedAt:             now,
		TargetCount:         e.targets.TargetCount,
		Completed:           cur.Completed,
		Successful:          cur.Successful,
		Failed:              cur.Failed,
		RateLimited:         cur.RateLimited,
		Blocked:             cur.Blocked,
		PendingReview:       cur.PendingReview,
		Skipped:             cur.Skipped,
		SuccessRate:         cur.SuccessRate,
		MeanDurationSeconds: cur.MeanDurationSeconds,
		PerStrategy:         make(map[string]StrategyStats, len(e.perStrategy)),
		PerFailureCategory:  make(map[string]int, len(e.perCategory)),
		Snapshots:           slices.Clone(e.snapshots),
	}
	if elapsed := now.Sub(e.startedAt); elapsed > 0 {
		r.ThroughputPerMinute = float64(cur.Completed) / elapsed.Minutes()
	}
	for _, s := range e.snapshots {
		r.PeakThroughput = max(r.PeakThroughput, s.ThroughputPerMinute)
	}
	r.PeakThroughput = max(r.PeakThroughput, cur.ThroughputPerMinute)
	for k, v := range e.perStrategy {
		r.PerStrategy[k] = *v
	}
	for k, v := range e.perCategory {
		r.PerFailureCategory[k] = v
	}
	r.WhatWorked, r.WhatDidntWork, r.Recommendations = e.judge(r)
	return r
}

func pct(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

// judge compares the report against the targets.
func (e *Evaluator) judge(r Report) (worked, didnt, recs []string) {
	t := e.targets
	worked, didnt, recs = []string{}, []string{}, []string{}

	names := make([]string, 0, len(r.PerStrategy))
	for k := range r.PerStrategy {
		names = append(names, k)
	}
	slices.Sort(names)
	best, worst := "", ""
	for _, n := range names {
		s := r.PerStrategy[n]
		if best == "" || s.SuccessRate > r.PerStrategy[best].SuccessRate {
			best = n
		}
		if s.Attempts > 10 && (worst == "" || s.SuccessRate < r.PerStrategy[worst].SuccessRate) {
			worst = n
		}
	}
	if best != "" && r.PerStrategy[best].SuccessRate >= t.MinSuccessRate {
		worked = append(worked, fmt.Sprintf("%s showed the highest success rate at %s", best, pct(r.PerStrategy[best].SuccessRate)))
	}
	if worst != "" && r.PerStrategy[worst].SuccessRate < 0.30 {
		didnt = append(didnt, fmt.Sprintf("%s had a poor success rate at %s", worst, pct(r.PerStrategy[worst].SuccessRate)))
		recs = append(recs, fmt.Sprintf("investigate %s failures and adjust its delays", worst))
	}

	if r.Completed > 0 {
		switch {
		case r.SuccessRate >= t.TargetSuccessRate:
			worked = append(worked, fmt.Sprintf("overall success rate of %s met the %s target", pct(r.SuccessRate), pct(t.TargetSuccessRate)))
		case r.SuccessRate < t.MinSuccessRate:
			didnt = append(didnt, fmt.Sprintf("overall success rate of %s is below the %s minimum", pct(r.SuccessRate), pct(t.MinSuccessRate)))
			recs = append(recs, "review form-filling accuracy and field mapping")
		}

		switch {
		case r.ThroughputPerMinute >= t.TargetThroughput:
			worked = append(worked, fmt.Sprintf("high throughput: %.1f per minute", r.ThroughputPerMinute))
		case r.ThroughputPerMinute < t.MinThroughput:
			didnt = append(didnt, fmt.Sprintf("low throughput: %.1f per minute", r.ThroughputPerMinute))
			recs = append(recs, "raise concurrency or choose a faster speed variant")
		}

		limited := ratio(r.RateLimited, r.Completed)
		switch {
		case limited > t.MaxRateLimited:
			didnt = append(didnt, fmt.Sprintf("high rate limiting: %d attempts (%s)", r.RateLimited, pct(limited)))
			recs = append(recs, "slow down pacing or choose a more conservative speed variant")
		case limited <= t.MaxRateLimited/3:
			worked = append(worked, fmt.Sprintf("good rate-limit avoidance: %s rate limited", pct(limited)))
		}

		if blocked := ratio(r.Blocked, r.Completed); blocked > t.MaxBlocked {
			didnt = append(didnt, fmt.Sprintf("significant blocking: %d attempts (%s)", r.Blocked, pct(blocked)))
			recs = append(recs, "route challenge-prone strategies to human review")
		}
	}

	if len(r.PerFailureCategory) > 0 {
		type kv struct {
			k string
			v int
		}
		var cats []kv
		for k, v := range r.PerFailureCategory {
			cats = append(cats, kv{k, v})
		}
		slices.SortFunc(cats, func(a, b kv) int {
			if c := cmp.Compare(b.v, a.v); c != 0 {
				return c
			}
			return cmp.Compare(a.k, b.k)
		})
		didnt = append(didnt, fmt.Sprintf("most common failure: %s (%d)", cats[0].k, cats[0].v))
		recs = append(recs, fmt.Sprintf("address %s failures first", cats[0].k))
	}

	if len(recs) < 3 {
		recs = append(recs,
			"keep monitoring per-strategy success rates",
			"keep comparing speed variants",
			"keep retrying transient failures with backoff",
		)
	}
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return worked, didnt, recs
}
