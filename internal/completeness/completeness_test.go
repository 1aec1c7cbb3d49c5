package completeness

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/store"
)

func newRepo() *store.MemoryRepository {
	return store.NewMemoryRepository(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestScoreFullProjectGradesHigh(t *testing.T) {
	repo := newRepo()
	ctx := context.Background()

	product := domain.Product{ID: "prod-1", ProjectID: "proj-1", Name: "Acme", Website: "https://acme.example.com", Positioning: "best in class"}
	competitor := domain.Competitor{ID: "comp-1", Name: "Rival", Website: "https://rival.example.com"}
	repo.SeedProject(domain.Project{ID: "proj-1", Name: "Acme Watch", Status: domain.ProjectActive}, []domain.Product{product}, []domain.Competitor{competitor})

	_, err := repo.PutSnapshot(ctx, domain.NewProductOwner(product.ID), "proj-1", domain.SnapshotMetadata{
		Title: "Acme - Home", Text: sampleText(600), ContentLength: 2048,
	}, true, "")
	require.NoError(t, err)

	checker := New(repo)
	result, err := checker.Score(ctx, "proj-1", Options{MinimumScore: 70})
	require.NoError(t, err)

	assert.True(t, result.IsComplete)
	assert.Equal(t, 0, result.CriticalCount)
	assert.GreaterOrEqual(t, result.OverallScore, 70.0)
	assert.Equal(t, FreshnessFresh, result.Freshness)
}

func TestScoreMissingProductIsCritical(t *testing.T) {
	repo := newRepo()
	ctx := context.Background()
	repo.SeedProject(domain.Project{ID: "proj-1", Name: "Empty Co", Status: domain.ProjectActive}, nil, nil)

	checker := New(repo)
	result, err := checker.Score(ctx, "proj-1", Options{MinimumScore: 70})
	require.NoError(t, err)

	assert.False(t, result.IsComplete)
	assert.Greater(t, result.CriticalCount, 0, "a project with no product data must count as a critical gap")
}

func TestFreshnessFromAgeBands(t *testing.T) {
	now := time.Now()
	fresh := &domain.Snapshot{CreatedAt: now.Add(-30 * time.Minute)}
	recent := &domain.Snapshot{CreatedAt: now.Add(-12 * time.Hour)}
	stale := &domain.Snapshot{CreatedAt: now.Add(-3 * 24 * time.Hour)}
	veryStale := &domain.Snapshot{CreatedAt: now.Add(-30 * 24 * time.Hour)}

	assert.Equal(t, FreshnessFresh, freshnessFromAge(fresh))
	assert.Equal(t, FreshnessRecent, freshnessFromAge(recent))
	assert.Equal(t, FreshnessStale, freshnessFromAge(stale))
	assert.Equal(t, FreshnessVeryStale, freshnessFromAge(veryStale))
	assert.Equal(t, FreshnessVeryStale, freshnessFromAge(nil))
}

func sampleText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
