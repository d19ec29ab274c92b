package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/cwygoda/pitcher/internal/adapter/browser"
	"github.com/cwygoda/pitcher/internal/adapter/challenge"
	"github.com/cwygoda/pitcher/internal/adapter/source"
	"github.com/cwygoda/pitcher/internal/adapter/sqlite"
	"github.com/cwygoda/pitcher/internal/admission"
	"github.com/cwygoda/pitcher/internal/analyzer"
	"github.com/cwygoda/pitcher/internal/apply"
	"github.com/cwygoda/pitcher/internal/campaign"
	"github.com/cwygoda/pitcher/internal/config"
	"github.com/cwygoda/pitcher/internal/discovery"
	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/evaluator"
	"github.com/cwygoda/pitcher/internal/fingerprint"
	"github.com/cwygoda/pitcher/internal/metrics"
	"github.com/cwygoda/pitcher/internal/retry"
	"github.com/cwygoda/pitcher/internal/router"
	"github.com/cwygoda/pitcher/internal/speed"
	"github.com/cwygoda/pitcher/internal/strategy"
)

// app holds everything a campaign run needs. close releases the database
// and the browser.
type app struct {
	repo     *sqlite.Repository
	drivers  *browser.Factory
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	profiles *strategy.Store
	svc      campaign.Services
}

func (a *app) close() {
	if a.drivers != nil {
		if err := a.drivers.Close(); err != nil {
			logger.Warn("close browser", zap.Error(err))
		}
	}
	if err := a.repo.Close(); err != nil {
		logger.Warn("close database", zap.Error(err))
	}
}

func buildSources(cfg *config.Config, r *router.Router) ([]domain.Source, error) {
	client := source.NewClient(cfg.Discovery.HTTPTimeout)
	out := make([]domain.Source, 0, len(cfg.Sources))
	for i, s := range cfg.Sources {
		switch s.Type {
		case "greenhouse":
			out = append(out, source.NewGreenhouse(client, s.BaseURL, s.Boards))
		case "lever":
			out = append(out, source.NewLever(client, s.BaseURL, s.Boards))
		case "remotive":
			out = append(out, source.NewRemotive(client, s.BaseURL))
		case "rss":
			name := s.Name
			if name == "" {
				name = fmt.Sprintf("rss-%d", i)
			}
			out = append(out, source.NewFeed(client, name, s.URL))
		case "careers":
			pages := make([]source.Page, 0, len(s.Pages))
			for _, p := range s.Pages {
				pages = append(pages, source.Page{Organization: p.Organization, URL: p.URL})
			}
			out = append(out, source.NewCareers(client, r, pages))
		default:
			return nil, fmt.Errorf("source %d: unknown type %q", i, s.Type)
		}
	}
	return out, nil
}

// newAggregator builds discovery without a database, for dry runs.
func newAggregator(cfg *config.Config, index *fingerprint.Index, r *router.Router, rec discovery.Recorder) (*discovery.Aggregator, error) {
	sources, err := buildSources(cfg, r)
	if err != nil {
		return nil, err
	}
	var opts []discovery.Option
	if rec != nil {
		opts = append(opts, discovery.WithRecorder(rec))
	}
	return discovery.NewAggregator(index, cfg.Discovery.SourceTimeout, logger, sources, opts...), nil
}

func newApp(cfg *config.Config) (*app, error) {
	repo, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &app{repo: repo}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	r, err := cfg.Router()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("routes: %w", err)
	}
	index := fingerprint.NewIndex()
	agg, err := newAggregator(cfg, index, r, a.metrics)
	if err != nil {
		a.close()
		return nil, err
	}
	sched, err := admission.New(cfg.Campaign.Capacity)
	if err != nil {
		a.close()
		return nil, err
	}
	ctrl, err := speed.NewController(cfg.VariantSet(), cfg.Campaign.DefaultVariant)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("variants: %w", err)
	}

	a.profiles, err = cfg.ProfileStore()
	if err != nil {
		a.close()
		return nil, err
	}
	a.drivers = browser.NewFactory(cfg.Browser.Driver(), logger.Named("browser"))

	opts := []apply.Option{
		apply.WithAutoSubmit(cfg.Campaign.AutoSubmit),
		apply.WithStepTimeout(cfg.Campaign.StepTimeout),
		apply.WithSolveTimeout(cfg.Campaign.SolveTimeout),
		apply.WithSolver(challenge.ReviewSolver{}),
	}
	if len(cfg.Campaign.SuccessIndicators) > 0 {
		opts = append(opts, apply.WithSuccessIndicators(cfg.Campaign.SuccessIndicators))
	}
	machine := apply.New(a.drivers, retry.New(), a.profiles, cfg.Applicant.Domain(), logger.Named("apply"), opts...)

	a.svc = campaign.Services{
		Attempts:   domain.NewAttemptService(repo),
		Index:      index,
		Aggregator: agg,
		Router:     r,
		Quota:      router.NewQuota(cfg.Quotas()),
		Scheduler:  sched,
		Speed:      ctrl,
		Machine:    machine,
		Analyzer:   analyzer.New(a.profiles, logger.Named("analyzer")),
		Evaluator:  evaluator.New(cfg.Campaign.Name, cfg.Targets),
	}
	return a, nil
}
