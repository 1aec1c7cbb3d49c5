// Package completeness implements the Data Completeness Checker (C6,
// §4.6): scores a project's readiness for report generation and
// derives the Quality Tier fed into C9's partial-data branch.
package completeness

import (
	"context"
	"time"

	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/store"
)

// Quality is the per-check quality band (§4.6).
type Quality string

const (
	QualityMissing   Quality = "missing"
	QualityPoor      Quality = "poor"
	QualityFair      Quality = "fair"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

// Freshness is the overall freshness band derived from the newest
// snapshot's age.
type Freshness string

const (
	FreshnessFresh     Freshness = "fresh"     // < 1h
	FreshnessRecent    Freshness = "recent"    // < 1d
	FreshnessStale     Freshness = "stale"     // < 7d
	FreshnessVeryStale Freshness = "very_stale"
)

// QualityTier gates which report variant C9 renders.
type QualityTier string

const (
	TierBasic    QualityTier = "basic"
	TierEnhanced QualityTier = "enhanced"
	TierFresh    QualityTier = "fresh"
	TierComplete QualityTier = "complete"
)

// Check is one named completeness check's result.
type Check struct {
	Name            string
	Score           float64
	Present         bool
	Quality         Quality
	Required        bool
	Details         string
	Recommendations []string
}

// Grade is the letter grade derived from OverallScore.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Result is the full output of Score.
type Result struct {
	Checks        []Check
	OverallScore  float64
	Grade         Grade
	Freshness     Freshness
	IsComplete    bool
	QualityTier   QualityTier
	CriticalCount int
}

// Options configures the scoring run; MinimumScore gates IsComplete.
type Options struct {
	MinimumScore float64
}

// Checker scores C1 project data against §4.6's weighted rubric.
type Checker struct {
	repo store.Repository
}

// New builds a Checker reading through repo.
func New(repo store.Repository) *Checker {
	return &Checker{repo: repo}
}

const (
	weightRequired = 100.0
	weightOptional = 50.0
)

// Score computes a CompletenessResult for projectID.
func (c *Checker) Score(ctx context.Context, projectID string, opts Options) (*Result, error) {
	graph, err := c.repo.FindProjectWithGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}

	checks := []Check{
		c.checkProjectBasics(graph.Project),
		c.checkProductData(graph.Products),
	}

	snapshotCheck, newest, err := c.checkSnapshotQuality(ctx, graph)
	if err != nil {
		return nil, err
	}
	checks = append(checks, snapshotCheck)

	checks = append(checks,
		c.checkCompetitors(graph.Competitors),
		c.checkFreshness(newest),
		c.checkConsistency(graph),
		c.checkMetadataRichness(ctx, graph),
	)

	weightedSum, weightTotal, critical := 0.0, 0.0, 0
	for _, chk := range checks {
		w := weightOptional
		if chk.Required {
			w = weightRequired
			if chk.Score < 50 {
				critical++
			}
		}
		weightedSum += chk.Score * w
		weightTotal += w
	}

	overall := 0.0
	if weightTotal > 0 {
		overall = weightedSum / weightTotal
	}

	minScore := opts.MinimumScore
	if minScore <= 0 {
		minScore = 70
	}

	freshness := freshnessFromAge(newest)

	return &Result{
		Checks:        checks,
		OverallScore:  overall,
		Grade:         gradeFromScore(overall),
		Freshness:     freshness,
		IsComplete:    overall >= minScore && critical == 0,
		QualityTier:   tierFrom(overall, freshness),
		CriticalCount: critical,
	}, nil
}

func (c *Checker) checkProjectBasics(p domain.Project) Check {
	present := p.Name != "" && p.Status == domain.ProjectActive
	score := 0.0
	if p.Name != "" {
		score += 60
	}
	if p.Status == domain.ProjectActive {
		score += 40
	}
	return Check{
		Name: "project_basics", Score: score, Present: present,
		Quality: qualityFromScore(score), Required: true,
	}
}

func (c *Checker) checkProductData(products []domain.Product) Check {
	if len(products) == 0 {
		return Check{
			Name: "product_data", Required: true, Quality: QualityMissing,
			Recommendations: []string{"add at least one product to the project"},
		}
	}
	score := 40.0
	p := products[0]
	if p.Website != "" {
		score += 30
	}
	if p.Positioning != "" || p.Problem != "" {
		score += 30
	}
	return Check{Name: "product_data", Score: score, Present: true, Quality: qualityFromScore(score), Required: true}
}

func (c *Checker) checkSnapshotQuality(ctx context.Context, graph *store.ProjectGraph) (Check, *domain.Snapshot, error) {
	var newest *domain.Snapshot
	validCount, total := 0, 0

	for _, p := range graph.Products {
		total++
		snap, err := c.repo.LatestSnapshot(ctx, domain.NewProductOwner(p.ID))
		if err != nil {
			return Check{}, nil, err
		}
		if snap == nil {
			continue
		}
		if snap.CaptureSuccess {
			validCount++
		}
		if newest == nil || snap.CreatedAt.After(newest.CreatedAt) {
			newest = snap
		}
	}

	if total == 0 {
		return Check{Name: "snapshot_quality", Required: true, Quality: QualityMissing}, nil, nil
	}

	score := 100.0 * float64(validCount) / float64(total)
	return Check{
		Name: "snapshot_quality", Score: score, Present: validCount > 0,
		Quality: qualityFromScore(score), Required: true,
		Details: "valid product snapshots over total products",
	}, newest, nil
}

func (c *Checker) checkCompetitors(competitors []domain.Competitor) Check {
	if len(competitors) == 0 {
		return Check{Name: "competitors", Quality: QualityMissing}
	}
	score := 50.0 + 50.0*float64(min(len(competitors), 5))/5.0
	return Check{Name: "competitors", Score: score, Present: true, Quality: qualityFromScore(score)}
}

func (c *Checker) checkFreshness(newest *domain.Snapshot) Check {
	if newest == nil {
		return Check{Name: "freshness", Quality: QualityMissing}
	}
	age := newest.Age(time.Now())
	var score float64
	switch {
	case age < time.Hour:
		score = 100
	case age < 24*time.Hour:
		score = 80
	case age < 7*24*time.Hour:
		score = 50
	default:
		score = 20
	}
	return Check{Name: "freshness", Score: score, Present: true, Quality: qualityFromScore(score)}
}

func (c *Checker) checkConsistency(graph *store.ProjectGraph) Check {
	score := 100.0
	if len(graph.Products) == 0 {
		score = 0
	}
	for _, p := range graph.Products {
		if p.ProjectID != graph.Project.ID {
			score = 0
		}
	}
	return Check{Name: "consistency", Score: score, Present: score > 0, Quality: qualityFromScore(score)}
}

func (c *Checker) checkMetadataRichness(ctx context.Context, graph *store.ProjectGraph) Check {
	if len(graph.Products) == 0 {
		return Check{Name: "metadata_richness", Quality: QualityMissing}
	}
	snap, err := c.repo.LatestSnapshot(ctx, domain.NewProductOwner(graph.Products[0].ID))
	if err != nil || snap == nil {
		return Check{Name: "metadata_richness", Quality: QualityMissing}
	}
	score := 0.0
	if snap.Metadata.Title != "" {
		score += 30
	}
	if len(snap.Metadata.Text) > 500 {
		score += 40
	}
	if snap.Metadata.ContentLength > 0 {
		score += 30
	}
	return Check{Name: "metadata_richness", Score: score, Present: score > 0, Quality: qualityFromScore(score)}
}

func qualityFromScore(score float64) Quality {
	switch {
	case score <= 0:
		return QualityMissing
	case score < 40:
		return QualityPoor
	case score < 70:
		return QualityFair
	case score < 90:
		return QualityGood
	default:
		return QualityExcellent
	}
}

func gradeFromScore(score float64) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

func freshnessFromAge(newest *domain.Snapshot) Freshness {
	if newest == nil {
		return FreshnessVeryStale
	}
	age := newest.Age(time.Now())
	switch {
	case age < time.Hour:
		return FreshnessFresh
	case age < 24*time.Hour:
		return FreshnessRecent
	case age < 7*24*time.Hour:
		return FreshnessStale
	default:
		return FreshnessVeryStale
	}
}

func tierFrom(overall float64, freshness Freshness) QualityTier {
	switch {
	case overall >= 90 && freshness == FreshnessFresh:
		return TierComplete
	case freshness == FreshnessFresh || freshness == FreshnessRecent:
		return TierFresh
	case overall >= 60:
		return TierEnhanced
	default:
		return TierBasic
	}
}
