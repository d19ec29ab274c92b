// Package discovery fans discovery queries out to every configured source
// and merges the results into a deduplicated backlog.
package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/fingerprint"
)

// ErrAllSourcesFailed aborts a run: there is nothing to work on.
var ErrAllSourcesFailed = errors.New("discovery failed across all sources")

// ErrNoSources is returned when the aggregator has nothing to query.
var ErrNoSources = errors.New("no discovery sources configured")

// SourceReport describes one source's contribution to a discovery pass.
type SourceReport struct {
	Source   string        `json:"source"`
	Found    int           `json:"found"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Backlog is the deduplicated output of one discovery pass.
type Backlog struct {
	Items      []domain.WorkItem `json:"items"`
	Sources    []SourceReport    `json:"sources"`
	Total      int               `json:"total"`
	Duplicates int               `json:"duplicates"`
}

// Recorder receives per-source discovery counts.
type Recorder interface {
	ObserveDiscovery(source string, found int, err error)
}

// Aggregator queries sources concurrently and merges through the index.
type Aggregator struct {
	sources []domain.Source
	index   *fingerprint.Index
	timeout time.Duration
	log     *zap.Logger
	rec     Recorder
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithRecorder reports per-source counts to rec.
func WithRecorder(rec Recorder) Option {
	return func(a *Aggregator) { a.rec = rec }
}

// NewAggregator creates an aggregator. Source order is priority order:
// when two sources return the same item, the earlier source's copy is kept.
func NewAggregator(index *fingerprint.Index, timeout time.Duration, log *zap.Logger, sources []domain.Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		sources: sources,
		index:   index,
		timeout: timeout,
		log:     log,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Discover runs one discovery pass.
func (a *Aggregator) Discover(ctx context.Context, q domain.Query) (*Backlog, error) {
	if len(a.sources) == 0 {
		return nil, ErrNoSources
	}

	tasks := make([]Task[[]domain.WorkItem], len(a.sources))
	for i, src := range a.sources {
		tasks[i] = Task[[]domain.WorkItem]{
			Name: src.Name(),
			Call: func(ctx context.Context) ([]domain.WorkItem, error) {
				return src.Search(ctx, q)
			},
		}
	}

	results := Gather(ctx, a.timeout, tasks)

	var (
		all     []domain.WorkItem
		reports = make([]SourceReport, 0, len(results))
		errs    *multierror.Error
		ok      int
	)
	for _, r := range results {
		rep := SourceReport{Source: r.Name, Duration: r.Duration}
		if r.Err != nil {
			rep.Error = r.Err.Error()
			errs = multierror.Append(errs, r.Err)
			a.log.Warn("source failed", zap.String("source", r.Name), zap.Duration("duration", r.Duration), zap.Error(r.Err))
		} else {
			ok++
			rep.Found = len(r.Value)
			all = append(all, r.Value...)
			a.log.Info("source searched", zap.String("source", r.Name), zap.Int("found", len(r.Value)), zap.Duration("duration", r.Duration))
		}
		if a.rec != nil {
			a.rec.ObserveDiscovery(r.Name, rep.Found, r.Err)
		}
		reports = append(reports, rep)
	}

	if ok == 0 {
		return &Backlog{Sources: reports}, errors.Join(ErrAllSourcesFailed, errs.ErrorOrNil())
	}

	unique := a.index.FilterUnique(all)

	a.log.Info("discovery complete",
		zap.Int("total", len(all)),
		zap.Int("unique", len(unique)),
		zap.Int("sources_ok", ok),
		zap.Int("sources_failed", len(results)-ok))

	return &Backlog{
		Items:      unique,
		Sources:    reports,
		Total:      len(all),
		Duplicates: len(all) - len(unique),
	}, nil
}
