// Package collector implements the Smart Data Collector (C7, §4.7): for
// a project, gather product form data directly and pick the freshest
// usable snapshot for each competitor, falling back through capture,
// an older valid snapshot, or bare metadata, all within a deadline.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/errkind"
	"github.com/rivalscope/corewatch/internal/governor"
	"github.com/rivalscope/corewatch/internal/resolution"
	"github.com/rivalscope/corewatch/internal/scraper"
	"github.com/rivalscope/corewatch/internal/store"
)

// DataSource tags where a competitor result's snapshot came from.
type DataSource string

const (
	SourceFreshSnapshot    DataSource = "fresh_snapshot"
	SourceExistingSnapshot DataSource = "existing_snapshot"
	SourceFastCollection   DataSource = "fast_collection"
	SourceBasicMetadata    DataSource = "basic_metadata"
)

// DataQuality tags a competitor result's reliability tier.
type DataQuality string

const (
	QualityHigh   DataQuality = "high"
	QualityMedium DataQuality = "medium"
	QualityLow    DataQuality = "low"
)

// DataFreshness summarizes the whole collection's freshness mix.
type DataFreshness string

const (
	FreshnessNew     DataFreshness = "new"
	FreshnessExisting DataFreshness = "existing"
	FreshnessMixed   DataFreshness = "mixed"
	FreshnessBasic   DataFreshness = "basic"
)

// CompetitorResult is one competitor's contribution to a CollectionResult.
type CompetitorResult struct {
	Competitor domain.Competitor
	Snapshot   *domain.Snapshot
	Source     DataSource
	Quality    DataQuality
}

// Result is C7's output, the assembled input to C8.
type Result struct {
	Product           domain.Product
	ProductSnapshot   *domain.Snapshot
	Competitors       []CompetitorResult
	CompletenessScore float64
	Freshness         DataFreshness
	Partial           bool // true if the deadline cut collection short
}

// Options configures one collection run.
type Options struct {
	FreshWindow              time.Duration // F in I4, default 24h
	SnapshotCaptureTimeout   time.Duration // default 30s
	TotalGenerationTimeout   time.Duration // default 60s
	AcceptOlderValidSnapshot bool
	Stealth                  bool
}

// Collector orchestrates C2-C4 for a project's competitors.
type Collector struct {
	repo       store.Repository
	governor   *governor.Governor
	worker     *scraper.Worker
	resolution *resolution.Cache
	logger     *slog.Logger
}

// New builds a Collector. resolutionCache may be nil, in which case
// resolution confidence is not recorded between runs.
func New(repo store.Repository, gov *governor.Governor, worker *scraper.Worker, resolutionCache *resolution.Cache, logger *slog.Logger) *Collector {
	return &Collector{repo: repo, governor: gov, worker: worker, resolution: resolutionCache, logger: logger.With("component", "smart_data_collector")}
}

// Collect assembles a Result for projectID, bounded by
// opts.TotalGenerationTimeout. If the deadline elapses before every
// competitor is resolved, the best partial result is returned rather
// than an error (§4.7).
func (c *Collector) Collect(ctx context.Context, projectID string, opts Options) (*Result, error) {
	freshWindow := opts.FreshWindow
	if freshWindow <= 0 {
		freshWindow = 24 * time.Hour
	}
	totalTimeout := opts.TotalGenerationTimeout
	if totalTimeout <= 0 {
		totalTimeout = 60 * time.Second
	}

	cctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	graph, err := c.repo.FindProjectWithGraph(cctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(graph.Products) == 0 {
		return nil, errkind.New("collector", errkind.KindValidation, "", errNoProduct)
	}
	product := graph.Products[0]

	productSnap, err := c.repo.LatestSnapshot(cctx, domain.NewProductOwner(product.ID))
	if err != nil {
		return nil, err
	}

	results := make([]CompetitorResult, len(graph.Competitors))
	var wg sync.WaitGroup
	partial := false
	var partialMu sync.Mutex

	for i, comp := range graph.Competitors {
		wg.Add(1)
		go func(i int, comp domain.Competitor) {
			defer wg.Done()
			res, wasPartial := c.resolveCompetitor(cctx, projectID, comp, freshWindow, opts)
			results[i] = res
			if wasPartial {
				partialMu.Lock()
				partial = true
				partialMu.Unlock()
			}
		}(i, comp)
	}
	wg.Wait()

	score, freshness := summarize(results)

	return &Result{
		Product: product, ProductSnapshot: productSnap, Competitors: results,
		CompletenessScore: score, Freshness: freshness, Partial: partial || cctx.Err() != nil,
	}, nil
}

// resolveCompetitor implements §4.7 step 2's fallback chain for one
// competitor. wasPartial is true if the deadline forced an early
// fallback rather than a genuine capture attempt.
func (c *Collector) resolveCompetitor(ctx context.Context, projectID string, comp domain.Competitor, freshWindow time.Duration, opts Options) (CompetitorResult, bool) {
	owner := domain.NewCompetitorOwner(comp.ID)

	latest, err := c.repo.LatestSnapshot(ctx, owner)
	if err == nil && store.Fresh(latest, freshWindow, time.Now()) {
		c.recordResolution(comp.ID, projectID, domain.ConfidenceHigh)
		return CompetitorResult{Competitor: comp, Snapshot: latest, Source: SourceFreshSnapshot, Quality: QualityHigh}, false
	}

	if ctx.Err() != nil {
		return c.fallback(comp, latest, opts), true
	}

	captureTimeout := opts.SnapshotCaptureTimeout
	if captureTimeout <= 0 {
		captureTimeout = 30 * time.Second
	}

	lease, err := c.governor.Acquire(ctx, projectID, comp.Website)
	if err != nil {
		c.logger.Warn("governor denied capture slot", "competitor_id", comp.ID, "error", err)
		return c.fallback(comp, latest, opts), false
	}
	defer c.governor.Release(lease)

	capCtx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	result, err := c.worker.CaptureAndRecord(capCtx, owner, projectID, comp.Website, "")
	success := err == nil && result != nil && result.Snapshot.CaptureSuccess
	c.governor.RecordOutcome(domainOf(comp.Website), success)

	if success {
		c.recordResolution(comp.ID, projectID, domain.ConfidenceHigh)
		return CompetitorResult{Competitor: comp, Snapshot: result.Snapshot, Source: SourceFastCollection, Quality: QualityHigh}, false
	}

	c.recordResolution(comp.ID, projectID, domain.ConfidenceLow)
	return c.fallback(comp, latest, opts), false
}

func (c *Collector) recordResolution(competitorID, projectID string, confidence domain.ResolutionConfidence) {
	if c.resolution != nil {
		c.resolution.Put(competitorID, projectID, confidence)
	}
}

// fallback implements the last two rungs of §4.7 step 2: an older
// valid snapshot if accepted, else basic metadata only.
func (c *Collector) fallback(comp domain.Competitor, latest *domain.Snapshot, opts Options) CompetitorResult {
	if opts.AcceptOlderValidSnapshot && latest != nil && latest.CaptureSuccess {
		return CompetitorResult{Competitor: comp, Snapshot: latest, Source: SourceExistingSnapshot, Quality: QualityMedium}
	}
	return CompetitorResult{Competitor: comp, Source: SourceBasicMetadata, Quality: QualityLow}
}

func domainOf(website string) string {
	d, err := governor.RegisteredDomain(website)
	if err != nil {
		return website
	}
	return d
}

// summarize computes §4.7's dataCompletenessScore and dataFreshness
// from the resolved per-competitor results.
func summarize(results []CompetitorResult) (float64, DataFreshness) {
	if len(results) == 0 {
		return 100, FreshnessNew
	}

	var score float64
	fresh, existing, basic := 0, 0, 0
	for _, r := range results {
		switch r.Source {
		case SourceFreshSnapshot, SourceFastCollection:
			score += 100
			fresh++
		case SourceExistingSnapshot:
			score += 70
			existing++
		case SourceBasicMetadata:
			score += 20
			basic++
		}
	}
	score /= float64(len(results))

	switch {
	case basic == len(results):
		return score, FreshnessBasic
	case fresh == len(results):
		return score, FreshnessNew
	case existing == len(results):
		return score, FreshnessExisting
	default:
		return score, FreshnessMixed
	}
}
