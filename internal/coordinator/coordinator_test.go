package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalscope/corewatch/internal/analysis"
	"github.com/rivalscope/corewatch/internal/browser"
	"github.com/rivalscope/corewatch/internal/collector"
	"github.com/rivalscope/corewatch/internal/completeness"
	"github.com/rivalscope/corewatch/internal/config"
	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/governor"
	"github.com/rivalscope/corewatch/internal/llm"
	"github.com/rivalscope/corewatch/internal/metrics"
	"github.com/rivalscope/corewatch/internal/queue"
	"github.com/rivalscope/corewatch/internal/report"
	"github.com/rivalscope/corewatch/internal/scraper"
	"github.com/rivalscope/corewatch/internal/status"
	"github.com/rivalscope/corewatch/internal/store"
)

// fakeBrowser always returns a usable capture instantly, so tests never
// touch a real headless browser.
type fakeBrowser struct {
	delay time.Duration
	fail  bool
}

func (f *fakeBrowser) Capture(ctx context.Context, url string, opts browser.Options) (*browser.Capture, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail {
		return nil, errors.New("fakeBrowser: capture failed")
	}
	return &browser.Capture{HTML: "<html>ok</html>", Title: "ok", HTTPStatus: 200, ContentLength: 128}, nil
}

func (f *fakeBrowser) Close() error { return nil }

// fakeGenerator returns a well-formed analysis response instantly.
type fakeGenerator struct{}

func (fakeGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: `{"overallPosition":"competitive","narrative":"steady","opportunityScore":60,"confidenceScore":70,"priorityScore":55,"keyFindings":["parity on pricing"],"recommendations":{"immediate":[],"shortTerm":[],"longTerm":[]}}`}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedProject(repo *store.MemoryRepository, projectID string, competitorCount int) {
	product := domain.Product{ID: projectID + "-product", ProjectID: projectID, Name: "Acme", Website: "https://acme.example.com", Positioning: "fast"}
	var competitors []domain.Competitor
	for i := 0; i < competitorCount; i++ {
		competitors = append(competitors, domain.Competitor{ID: projectID + "-comp", Name: "Rival", Website: "https://rival.example.com"})
	}
	repo.SeedProject(domain.Project{ID: projectID, Name: "Acme Watch", Status: domain.ProjectActive}, []domain.Product{product}, competitors)
}

func buildCoordinator(t *testing.T, bc browser.Collector, cfg Config) (*Coordinator, *store.MemoryRepository) {
	t.Helper()
	logger := discardLogger()
	repo := store.NewMemoryRepository(logger)
	gov := governor.New(config.GovernorConfig{MaxConcurrentPerProject: 10, MaxConcurrentGlobal: 10})
	worker := scraper.New(bc, repo, config.CaptureConfig{Timeout: time.Second, MaxRetries: 0}, logger)
	checker := completeness.New(repo)
	coll := collector.New(repo, gov, worker, nil, logger)
	stage := analysis.New(fakeGenerator{}, logger)
	composer := report.New(50)
	q := queue.NewInProcessQueue(0)
	publisher := status.New()
	m := metrics.New()

	if cfg.MinimumForFull == 0 {
		cfg.MinimumForFull = 50
	}
	cfg.Features.ComparativeReportsRollout = 100
	cfg.CollectionOpts.TotalGenerationTimeout = 5 * time.Second

	c := New(repo, checker, coll, stage, composer, publisher, m, q, cfg, logger)
	return c, repo
}

func TestProcessInitialReportHappyImmediatePath(t *testing.T) {
	seedRepoProject := "proj-happy"
	c, repo := buildCoordinator(t, &fakeBrowser{}, Config{ImmediateTimeout: 5 * time.Second, ImmediateReserve: time.Second})
	seedProject(repo, seedRepoProject, 1)

	result := c.ProcessInitialReport(context.Background(), seedRepoProject, Options{})

	require.True(t, result.Success)
	assert.Equal(t, MethodImmediate, result.ProcessingMethod)
	assert.NotEmpty(t, result.ReportID)
	assert.False(t, result.TimeoutExceeded)

	rep, err := repo.GetReport(context.Background(), result.ReportID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportCompleted, rep.Status)
}

func TestProcessInitialReportFallsBackToQueueOnTimeout(t *testing.T) {
	projectID := "proj-timeout"
	c, repo := buildCoordinator(t, &fakeBrowser{delay: time.Second}, Config{
		ImmediateTimeout: 50 * time.Millisecond, ImmediateReserve: 10 * time.Millisecond, FallbackToQueue: true,
		FallbackEnqueueDelay: time.Millisecond,
	})
	seedProject(repo, projectID, 1)

	result := c.ProcessInitialReport(context.Background(), projectID, Options{FallbackToQueue: true})

	require.True(t, result.Success)
	assert.Equal(t, MethodFallback, result.ProcessingMethod)
	assert.True(t, result.TimeoutExceeded)
	assert.True(t, result.FallbackUsed)
	assert.True(t, result.QueueScheduled)
	assert.NotEmpty(t, result.TaskID)
}

func TestProcessInitialReportFailsWithoutFallbackOnTimeout(t *testing.T) {
	projectID := "proj-timeout-no-fallback"
	c, repo := buildCoordinator(t, &fakeBrowser{delay: time.Second}, Config{
		ImmediateTimeout: 50 * time.Millisecond, ImmediateReserve: 10 * time.Millisecond, FallbackToQueue: false,
	})
	seedProject(repo, projectID, 1)

	result := c.ProcessInitialReport(context.Background(), projectID, Options{FallbackToQueue: false})

	assert.False(t, result.Success)
	assert.Equal(t, MethodFailed, result.ProcessingMethod)
	assert.True(t, result.TimeoutExceeded)
}

func TestProcessInitialReportRespectsConcurrencyCapViaGracefulDegradation(t *testing.T) {
	projectID := "proj-cap"
	c, repo := buildCoordinator(t, &fakeBrowser{delay: 200 * time.Millisecond}, Config{
		ImmediateTimeout: 2 * time.Second, ImmediateReserve: 100 * time.Millisecond,
		MaxConcurrentProcessing: 1, GracefulDegradation: true,
	})
	seedProject(repo, projectID, 1)

	var wg sync.WaitGroup
	results := make([]*AsyncResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.ProcessInitialReport(context.Background(), projectID, Options{})
		}(i)
		time.Sleep(5 * time.Millisecond) // stagger so the first call is admitted before the second is checked
	}
	wg.Wait()

	queuedOrFallback := 0
	for _, r := range results {
		require.True(t, r.Success)
		if r.ProcessingMethod == MethodQueued || r.ProcessingMethod == MethodFallback {
			queuedOrFallback++
		}
	}
	assert.GreaterOrEqual(t, queuedOrFallback, 1, "once MaxConcurrentProcessing is saturated, the second call must be diverted to the queue")
}

func TestProcessInitialReportProducesPartialReportOnBrokenCollection(t *testing.T) {
	projectID := "proj-partial"
	c, repo := buildCoordinator(t, &fakeBrowser{fail: true}, Config{ImmediateTimeout: 5 * time.Second, ImmediateReserve: time.Second})
	seedProject(repo, projectID, 1)

	result := c.ProcessInitialReport(context.Background(), projectID, Options{})

	require.True(t, result.Success)
	assert.Equal(t, MethodImmediate, result.ProcessingMethod)

	rep, err := repo.GetReport(context.Background(), result.ReportID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportCompleted, rep.Status)

	versions, err := repo.ListReportVersions(context.Background(), result.ReportID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.NotEmpty(t, versions[0].Content, "I1 requires non-empty content even for a partial/degraded report")
}
