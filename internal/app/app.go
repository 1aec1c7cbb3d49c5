// Package app wires the twelve components named in spec §4 into one
// running process, the way the teacher's cmd/webstalk main.go wires
// engine+fetcher+parser+pipeline+storage — just with this system's
// component graph instead.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rivalscope/corewatch/internal/analysis"
	"github.com/rivalscope/corewatch/internal/browser"
	"github.com/rivalscope/corewatch/internal/collector"
	"github.com/rivalscope/corewatch/internal/completeness"
	"github.com/rivalscope/corewatch/internal/config"
	"github.com/rivalscope/corewatch/internal/coordinator"
	"github.com/rivalscope/corewatch/internal/governor"
	"github.com/rivalscope/corewatch/internal/llm"
	"github.com/rivalscope/corewatch/internal/metrics"
	"github.com/rivalscope/corewatch/internal/project"
	"github.com/rivalscope/corewatch/internal/queue"
	"github.com/rivalscope/corewatch/internal/report"
	"github.com/rivalscope/corewatch/internal/resolution"
	"github.com/rivalscope/corewatch/internal/scheduler"
	"github.com/rivalscope/corewatch/internal/scraper"
	"github.com/rivalscope/corewatch/internal/status"
	"github.com/rivalscope/corewatch/internal/store"
	"github.com/rivalscope/corewatch/internal/validator"
)

// App holds every wired component plus the pieces that need explicit
// lifecycle management (the browser pool, the scheduler, the queue).
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Repo        store.Repository
	Browser     *browser.RodCollector
	Governor    *governor.Governor
	Validator   *validator.Validator
	Checker     *completeness.Checker
	Collector   *collector.Collector
	Resolution  *resolution.Cache
	Stage       *analysis.Stage
	Composer    *report.Composer
	Queue       queue.Queue
	Publisher   *status.Publisher
	Metrics     *metrics.Collector
	Coordinator *coordinator.Coordinator
	Scheduler   *scheduler.Scheduler
	Projects    *project.Creator
}

// New builds every component from cfg and wires the dependency graph,
// but starts nothing long-running (browser pool aside, which must
// exist before any capture can happen).
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	var repo store.Repository
	switch cfg.Storage.Type {
	case "mongo":
		mongoRepo, err := store.NewMongoRepository(cfg.Storage.MongoURI, cfg.Storage.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		repo = mongoRepo
	default:
		repo = store.NewMemoryRepository(logger)
	}

	rodCollector, err := browser.NewRodCollector(cfg.Governor.MaxConcurrentGlobal, logger)
	if err != nil {
		return nil, fmt.Errorf("start browser pool: %w", err)
	}

	gov := governor.New(cfg.Governor)
	worker := scraper.New(rodCollector, repo, cfg.Capture, logger)
	val := validator.New(repo, cfg.Freshness.FreshWindow)
	checker := completeness.New(repo)
	resCache := resolution.New(cfg.Cache.TTL, cfg.Cache.CleanupInterval)
	coll := collector.New(repo, gov, worker, resCache, logger)

	generator := llm.NewClient(llm.Config{
		Provider: llm.Provider(cfg.LLM.Provider),
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  cfg.LLM.Timeout,
	}, logger)
	stage := analysis.New(generator, logger)
	composer := report.New(cfg.Report.MinimumForFull)

	q := queue.NewInProcessQueue(cfg.Queue.DedupWindow)
	publisher := status.New()
	m := metrics.New()

	coord := coordinator.New(repo, checker, coll, stage, composer, publisher, m, q, coordinator.Config{
		MaxConcurrentProcessing: cfg.Coordinator.MaxConcurrentProcessing,
		ImmediateTimeout:        cfg.Coordinator.ImmediateTimeout,
		ImmediateReserve:        cfg.Coordinator.ImmediateReserve,
		FallbackToQueue:         cfg.Coordinator.FallbackToQueue,
		GracefulDegradation:     cfg.Coordinator.GracefulDegradation,
		QueueRetryAttempts:      cfg.Coordinator.QueueRetryAttempts,
		QueueRetryBackoff:       cfg.Coordinator.QueueRetryBackoff,
		QueueEstimatedSlot:      cfg.Coordinator.QueueEstimatedSlot,
		FallbackEnqueueDelay:    cfg.Coordinator.FallbackEnqueueDelay,
		MinimumForFull:          cfg.Report.MinimumForFull,
		CompletenessMinimum:     cfg.Completeness.MinimumScore,
		Features:                cfg.Features,
		CollectionOpts: collector.Options{
			FreshWindow:              cfg.Freshness.FreshWindow,
			SnapshotCaptureTimeout:   cfg.Collection.SnapshotCaptureTimeout,
			TotalGenerationTimeout:   cfg.Collection.TotalGenerationTimeout,
			AcceptOlderValidSnapshot: cfg.Collection.AcceptOlderValidSnapshot,
		},
		AnalysisConfig: analysis.Config{
			FocusAreas:             cfg.Analysis.FocusAreas,
			Depth:                  cfg.Analysis.Depth,
			IncludeRecommendations: cfg.Analysis.IncludeRecommendations,
			MaxRetries:             cfg.Analysis.MaxRetries,
			RetryBackoffBase:       cfg.Analysis.RetryBackoffBase,
		},
	}, logger)

	sched := scheduler.New(repo, &reportRefresher{coord: coord}, logger)
	projects := project.New(repo)

	return &App{
		Config: cfg, Logger: logger, Repo: repo, Browser: rodCollector, Governor: gov,
		Validator: val, Checker: checker, Collector: coll, Resolution: resCache, Stage: stage, Composer: composer,
		Queue: q, Publisher: publisher, Metrics: m, Coordinator: coord, Scheduler: sched, Projects: projects,
	}, nil
}

// Close releases resources that need explicit shutdown.
func (a *App) Close() error {
	a.Queue.Close()
	return a.Browser.Close()
}

// reportRefresher adapts the Coordinator into the scheduler's Refresher
// contract (§4.5): a scheduled firing requests a report the same way an
// on-demand call would, discarding the AsyncResult but surfacing a
// non-nil error on outright failure so the scheduler can count it
// toward ConsecutiveFailures (I3).
type reportRefresher struct {
	coord *coordinator.Coordinator
}

func (r *reportRefresher) Refresh(ctx context.Context, projectID string) error {
	result := r.coord.ProcessInitialReport(ctx, projectID, coordinator.Options{FallbackToQueue: true})
	if !result.Success {
		return fmt.Errorf("scheduled report generation failed: %s", result.Error)
	}
	return nil
}
