package collector

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalscope/corewatch/internal/browser"
	"github.com/rivalscope/corewatch/internal/config"
	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/errkind"
	"github.com/rivalscope/corewatch/internal/governor"
	"github.com/rivalscope/corewatch/internal/scraper"
	"github.com/rivalscope/corewatch/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCollector implements browser.Collector. When fail is true every
// capture returns a non-retryable error so the fallback chain engages.
type fakeCollector struct {
	fail bool
}

func (f *fakeCollector) Capture(ctx context.Context, url string, opts browser.Options) (*browser.Capture, error) {
	if f.fail {
		return nil, errkind.New("test", errkind.KindHTTP4xx, "", errCapture)
	}
	return &browser.Capture{HTML: "<html><title>Rival</title><body>hello</body></html>", HTTPStatus: 200, ContentLength: 64}, nil
}

func (f *fakeCollector) Close() error { return nil }

type testErr string

func (e testErr) Error() string { return string(e) }

const errCapture = testErr("capture failed")

func newCollector(t *testing.T, bc browser.Collector) (*Collector, *store.MemoryRepository) {
	t.Helper()
	logger := discardLogger()
	repo := store.NewMemoryRepository(logger)
	gov := governor.New(config.GovernorConfig{MaxConcurrentPerProject: 10, MaxConcurrentGlobal: 10})
	worker := scraper.New(bc, repo, config.CaptureConfig{Timeout: time.Second, MaxRetries: 0}, logger)
	return New(repo, gov, worker, nil, logger), repo
}

func seedCompetitors(repo *store.MemoryRepository, projectID string, n int) []domain.Competitor {
	product := domain.Product{ID: projectID + "-product", ProjectID: projectID, Name: "Acme", Website: "https://acme.example.com", Positioning: "fast"}
	var competitors []domain.Competitor
	var ids []string
	for i := 0; i < n; i++ {
		c := domain.Competitor{ID: projectID + "-comp-" + string(rune('a'+i)), Name: "Rival", Website: "https://rival.example.com"}
		competitors = append(competitors, c)
		ids = append(ids, c.ID)
	}
	repo.SeedProject(domain.Project{ID: projectID, Name: "Acme Watch", Status: domain.ProjectActive, CompetitorIDs: ids}, []domain.Product{product}, competitors)
	return competitors
}

func TestCollectTagsPreExistingFreshSnapshotAsFreshNotExisting(t *testing.T) {
	c, repo := newCollector(t, &fakeCollector{})
	competitors := seedCompetitors(repo, "proj-1", 1)

	_, err := repo.PutSnapshot(context.Background(), domain.NewCompetitorOwner(competitors[0].ID), "proj-1", domain.SnapshotMetadata{ContentLength: 200}, true, "")
	require.NoError(t, err)

	result, err := c.Collect(context.Background(), "proj-1", Options{FreshWindow: time.Hour})
	require.NoError(t, err)
	require.Len(t, result.Competitors, 1)

	assert.Equal(t, SourceFreshSnapshot, result.Competitors[0].Source, "a still-fresh pre-existing snapshot must be tagged fresh_snapshot, not existing_snapshot")
	assert.Equal(t, QualityHigh, result.Competitors[0].Quality)
	assert.Equal(t, 100.0, result.CompletenessScore)
	assert.Equal(t, FreshnessNew, result.Freshness)
}

func TestCollectThreeCompetitorsAllFreshMeetsScenarioOne(t *testing.T) {
	c, repo := newCollector(t, &fakeCollector{})
	competitors := seedCompetitors(repo, "proj-1", 3)

	for _, comp := range competitors {
		_, err := repo.PutSnapshot(context.Background(), domain.NewCompetitorOwner(comp.ID), "proj-1", domain.SnapshotMetadata{ContentLength: 200}, true, "")
		require.NoError(t, err)
	}

	result, err := c.Collect(context.Background(), "proj-1", Options{FreshWindow: time.Hour})
	require.NoError(t, err)
	require.Len(t, result.Competitors, 3)

	assert.GreaterOrEqual(t, result.CompletenessScore, 85.0)
	assert.Contains(t, []DataFreshness{FreshnessNew, FreshnessMixed}, result.Freshness)
}

func TestCollectCapturesFreshlyWhenNoExistingSnapshot(t *testing.T) {
	c, repo := newCollector(t, &fakeCollector{})
	competitors := seedCompetitors(repo, "proj-1", 1)

	result, err := c.Collect(context.Background(), "proj-1", Options{FreshWindow: time.Hour})
	require.NoError(t, err)
	require.Len(t, result.Competitors, 1)

	assert.Equal(t, SourceFastCollection, result.Competitors[0].Source)
	assert.Equal(t, QualityHigh, result.Competitors[0].Quality)
	_ = competitors
}

func TestCollectFallsBackToExistingSnapshotOnStaleCaptureFailure(t *testing.T) {
	c, repo := newCollector(t, &fakeCollector{fail: true})
	competitors := seedCompetitors(repo, "proj-1", 1)

	snap, err := repo.PutSnapshot(context.Background(), domain.NewCompetitorOwner(competitors[0].ID), "proj-1", domain.SnapshotMetadata{ContentLength: 200}, true, "")
	require.NoError(t, err)
	snap.CreatedAt = time.Now().Add(-48 * time.Hour)

	result, err := c.Collect(context.Background(), "proj-1", Options{FreshWindow: time.Hour, AcceptOlderValidSnapshot: true})
	require.NoError(t, err)
	require.Len(t, result.Competitors, 1)

	assert.Equal(t, SourceExistingSnapshot, result.Competitors[0].Source)
	assert.Equal(t, QualityMedium, result.Competitors[0].Quality)
}

func TestCollectFallsBackToBasicMetadataWhenNoSnapshotAcceptable(t *testing.T) {
	c, repo := newCollector(t, &fakeCollector{fail: true})
	seedCompetitors(repo, "proj-1", 1)

	result, err := c.Collect(context.Background(), "proj-1", Options{FreshWindow: time.Hour, AcceptOlderValidSnapshot: false})
	require.NoError(t, err)
	require.Len(t, result.Competitors, 1)

	assert.Equal(t, SourceBasicMetadata, result.Competitors[0].Source)
	assert.Equal(t, QualityLow, result.Competitors[0].Quality)
	assert.Equal(t, FreshnessBasic, result.Freshness)
}

func TestCollectReturnsErrorWhenProjectHasNoProduct(t *testing.T) {
	c, repo := newCollector(t, &fakeCollector{})
	repo.SeedProject(domain.Project{ID: "proj-empty", Name: "Empty", Status: domain.ProjectActive}, nil, nil)

	_, err := c.Collect(context.Background(), "proj-empty", Options{})
	require.Error(t, err)
	assert.Equal(t, errkind.KindValidation, errkind.As(err))
}
