package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpAdapter "github.com/cwygoda/pitcher/internal/adapter/http"
	"github.com/cwygoda/pitcher/internal/adapter/sqlite"
	"github.com/cwygoda/pitcher/internal/campaign"
	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/evaluator"
	"github.com/cwygoda/pitcher/internal/fingerprint"
)

var (
	capacity   int
	autoSubmit bool
	directOnly bool
	noServer   bool
	port       int
	format     string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Query every source and print the deduplicated backlog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		r, err := cfg.Router()
		if err != nil {
			return err
		}
		agg, err := newAggregator(cfg, fingerprint.NewIndex(), r, nil)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		backlog, err := agg.Discover(ctx, cfg.Discovery.Query())
		if backlog != nil {
			backlog.Items = r.SortByPriority(backlog.Items)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(backlog); encErr != nil {
				return encErr
			}
		}
		return err
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a campaign over the discovered backlog",
	Long: `Run discovers the backlog, then attempts every item under the configured
capacity. The status API serves snapshots, the report and Prometheus
metrics while the campaign runs. SIGINT or SIGTERM stop admission and
cancel in-flight attempts; the partial report is still written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("capacity") {
			cfg.Campaign.Capacity = capacity
		}
		if cmd.Flags().Changed("auto-submit") {
			cfg.Campaign.AutoSubmit = autoSubmit
		}
		if cmd.Flags().Changed("port") {
			cfg.HTTP.Port = port
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger.Info("starting pitcher",
			zap.String("campaign", cfg.Campaign.Name),
			zap.String("database", cfg.DBPath),
			zap.Int("capacity", cfg.Campaign.Capacity),
			zap.Bool("auto_submit", cfg.Campaign.AutoSubmit),
		)

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		// Graceful shutdown setup
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var srv *httpAdapter.Server
		if !noServer {
			addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
			srv = httpAdapter.NewServer(httpAdapter.Deps{
				Attempts:   a.svc.Attempts,
				Evaluator:  a.svc.Evaluator,
				Router:     a.svc.Router,
				Profiles:   a.profiles,
				Speed:      a.svc.Speed,
				Scheduler:  a.svc.Scheduler,
				Gatherer:   a.registry,
				MinSamples: cfg.Campaign.MinSamples,
			}, addr, logger.Named("http"))
			go func() {
				logger.Info("HTTP server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()
		}

		c := campaign.New(cfg.Campaign.Name, a.svc, logger,
			campaign.WithObserver(a.metrics),
			campaign.WithSnapshotInterval(cfg.Campaign.SnapshotInterval),
			campaign.WithDirectOnly(directOnly),
		)
		res, runErr := c.Run(ctx, cfg.Discovery.Query())
		if errors.Is(runErr, context.Canceled) {
			logger.Info("campaign interrupted")
			runErr = nil
		}

		if res != nil && res.Report.CampaignID != "" {
			if rec := a.svc.Speed.Recommend(cfg.Campaign.MinSamples); rec.Variant != "" {
				logger.Info("variant recommendation",
					zap.String("variant", rec.Variant),
					zap.String("reason", rec.Reason),
					zap.Float64("confidence", rec.Confidence),
				)
			}
			if err := evaluator.Render(cmd.OutOrStdout(), res.Report, format); err != nil {
				logger.Error("render report", zap.Error(err))
			}
		}

		if srv != nil {
			// Shutdown HTTP server with timeout
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", zap.Error(err))
			}
		}
		logger.Info("shutdown complete")
		return runErr
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [campaign]",
	Short: "Print the snapshots persisted for a campaign",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := cfg.Campaign.Name
		if len(args) == 1 {
			name = args[0]
		}
		repo, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer repo.Close()

		bodies, err := domain.NewAttemptService(repo).Snapshots(cmd.Context(), name)
		if err != nil {
			return err
		}
		if len(bodies) == 0 {
			return fmt.Errorf("no snapshots for campaign %q", name)
		}
		r, err := snapshotReport(name, bodies)
		if err != nil {
			return err
		}
		return evaluator.Render(cmd.OutOrStdout(), r, format)
	},
}

// snapshotReport rebuilds the counter part of a report from persisted
// snapshots. The last snapshot carries the final counters.
func snapshotReport(name string, bodies [][]byte) (evaluator.Report, error) {
	snaps := make([]evaluator.Snapshot, 0, len(bodies))
	for _, b := range bodies {
		var s evaluator.Snapshot
		if err := json.Unmarshal(b, &s); err != nil {
			return evaluator.Report{}, fmt.Errorf("decode snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	first, last := snaps[0], snaps[len(snaps)-1]
	r := evaluator.Report{
		CampaignID:          name,
		StartedAt:           first.At,
		EndedAt:             last.At,
		TargetCount:         last.Target,
		Completed:           last.Completed,
		Successful:          last.Successful,
		Failed:              last.Failed,
		RateLimited:         last.RateLimited,
		Blocked:             last.Blocked,
		PendingReview:       last.PendingReview,
		Skipped:             last.Skipped,
		ThroughputPerMinute: last.ThroughputPerMinute,
		SuccessRate:         last.SuccessRate,
		MeanDurationSeconds: last.MeanDurationSeconds,
		Snapshots:           snaps,
	}
	for _, s := range snaps {
		r.PeakThroughput = max(r.PeakThroughput, s.ThroughputPerMinute)
	}
	return r, nil
}

var routeCmd = &cobra.Command{
	Use:   "route <url>",
	Short: "Show the strategy a target URL is routed to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := cfg.Router()
		if err != nil {
			return err
		}
		s := r.Strategy(r.Route(args[0]))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "strategy:  %s\ncategory:  %s\npriority:  %d\nexpected:  %.0f%%\ndirect:    %t\n",
			s.ID, s.Category, s.Priority, s.ExpectedSuccess*100, r.IsDirectCompletionURL(args[0]))
		return err
	},
}

func init() {
	runCmd.Flags().IntVar(&capacity, "capacity", 0, "Maximum concurrent attempts")
	runCmd.Flags().BoolVar(&autoSubmit, "auto-submit", false, "Submit forms instead of parking them for review")
	runCmd.Flags().BoolVar(&directOnly, "direct-only", false, "Skip targets that are not completion forms")
	runCmd.Flags().BoolVar(&noServer, "no-server", false, "Do not start the status API")
	runCmd.Flags().IntVarP(&port, "port", "p", 0, "Status API port")

	for _, c := range []*cobra.Command{runCmd, reportCmd} {
		c.Flags().StringVarP(&format, "format", "f", "json", "Report format (json, yaml)")
	}
}
