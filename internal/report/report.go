// Package report implements the Report Composer (C9, §4.9): renders
// analysis findings into an ordered, sectioned artifact from a
// template, including the partial-data variant with limitation
// notices and confidence clamping.
package report

import (
	"fmt"
	"strings"

	"github.com/rivalscope/corewatch/internal/analysis"
	"github.com/rivalscope/corewatch/internal/collector"
	"github.com/rivalscope/corewatch/internal/completeness"
	"github.com/rivalscope/corewatch/internal/domain"
)

// ImpactLevel tags a data-completeness gap's severity in the final
// limitations section.
type ImpactLevel string

const (
	ImpactHigh   ImpactLevel = "high"
	ImpactMedium ImpactLevel = "medium"
	ImpactLow    ImpactLevel = "low"
)

// Gap is one data-completeness shortfall surfaced in the limitations section.
type Gap struct {
	Description    string
	Impact         ImpactLevel
	CanBeImproved  bool
	Recommendation string
}

// Rendered is C9's output.
type Rendered struct {
	Sections                []domain.ReportSection
	ExecutiveSummary        string
	KeyFindings             []string
	StrategicRecommendations analysis.Recommendations
	CompetitiveIntelligence string
	ConfidenceScore         float64 // clamped to CompletenessScore-10 when data is partial
	Metadata                domain.ReportVersionMetadata
	Format                  string
}

// SectionTemplate declares one ordered section and its placeholder body.
type SectionTemplate struct {
	Kind  string
	Title string
	Body  string // returned verbatim for kinds renderSection does not know; {{...}} placeholders in it are not substituted
}

// Template is an ordered list of section templates plus an id.
type Template struct {
	ID       string
	Sections []SectionTemplate
}

// StandardTemplate is the default comparative-report template
// (spec §6: default_template_id = standard_comparative_v1).
func StandardTemplate() Template {
	return Template{
		ID: "standard_comparative_v1",
		Sections: []SectionTemplate{
			{Kind: "executive_summary", Title: "Executive Summary", Body: "{{analysis.narrative}}"},
			{Kind: "feature_comparison", Title: "Feature Comparison", Body: "{{#competitors}}- {{name}} ({{source}}/{{quality}})\n{{/competitors}}"},
			{Kind: "strategic_recommendations", Title: "Strategic Recommendations", Body: "{{#immediate}}- {{.}}\n{{/immediate}}"},
		},
	}
}

// Composer renders Analysis + collector output into a Rendered report.
type Composer struct {
	minimumForFull float64
}

// New builds a Composer; minimumForFull gates the partial-data branch
// (default 70, §4.9).
func New(minimumForFull float64) *Composer {
	if minimumForFull <= 0 {
		minimumForFull = 70
	}
	return &Composer{minimumForFull: minimumForFull}
}

// Render produces a Rendered report. a may be nil, in which case (or
// when collection.CompletenessScore is below minimumForFull) the
// composer synthesizes a placeholder and appends limitation notices
// (§4.9).
func (c *Composer) Render(a *analysis.Analysis, collection *collector.Result, tmpl Template, format string) Rendered {
	if format == "" {
		format = "markdown"
	}

	partial := a == nil || collection.CompletenessScore < c.minimumForFull
	if partial {
		input := analysis.Input{Product: collection.Product, Competitors: collection.Competitors}
		a = analysis.Placeholder(input, collection.CompletenessScore)
	}

	confidence := a.ConfidenceScore
	if partial && confidence > collection.CompletenessScore-10 {
		confidence = collection.CompletenessScore - 10
		if confidence < 0 {
			confidence = 0
		}
	}

	sections := make([]domain.ReportSection, 0, len(tmpl.Sections)+1)
	for i, st := range tmpl.Sections {
		notices := []string{}
		if partial {
			if note := limitationNoticeFor(st.Kind, collection); note != "" {
				notices = append(notices, note)
			}
		}
		sections = append(sections, domain.ReportSection{
			ID:      fmt.Sprintf("section-%d", i),
			Title:   st.Title,
			Kind:    st.Kind,
			Body:    renderSection(st, a, collection),
			Notices: notices,
		})
	}

	qualityTier := string(completenessTier(collection.CompletenessScore))
	if partial {
		gaps := gapsFrom(collection)
		sections = append(sections, domain.ReportSection{
			ID:    "data-limitations",
			Title: "Data Completeness & Limitations",
			Kind:  "limitations",
			Body:  renderGaps(gaps),
		})
	}

	return Rendered{
		Sections:                sections,
		ExecutiveSummary:        a.Summary.Narrative,
		KeyFindings:             a.KeyFindings,
		StrategicRecommendations: a.Recommendations,
		CompetitiveIntelligence: renderCompetitiveIntelligence(collection),
		ConfidenceScore:         confidence,
		Metadata: domain.ReportVersionMetadata{
			CompletenessScore:  collection.CompletenessScore,
			Freshness:          string(collection.Freshness),
			QualityTier:        qualityTier,
			TemplateID:         tmpl.ID,
			HasDataLimitations: partial,
			Format:             format,
		},
		Format: format,
	}
}

func renderSection(st SectionTemplate, a *analysis.Analysis, collection *collector.Result) string {
	switch st.Kind {
	case "executive_summary":
		return a.Summary.Narrative
	case "feature_comparison":
		var b strings.Builder
		for _, c := range collection.Competitors {
			fmt.Fprintf(&b, "- %s (%s/%s)\n", c.Competitor.Name, c.Source, c.Quality)
		}
		return b.String()
	case "strategic_recommendations":
		var b strings.Builder
		for _, r := range a.Recommendations.Immediate {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		return b.String()
	default:
		return st.Body
	}
}

func limitationNoticeFor(kind string, collection *collector.Result) string {
	if kind != "feature_comparison" {
		return ""
	}
	for _, c := range collection.Competitors {
		if c.Quality != collector.QualityHigh {
			return "feature comparison built without fresh data for one or more competitors"
		}
	}
	return ""
}

func gapsFrom(collection *collector.Result) []Gap {
	var gaps []Gap
	for _, c := range collection.Competitors {
		switch c.Source {
		case collector.SourceBasicMetadata:
			gaps = append(gaps, Gap{
				Description:    fmt.Sprintf("%s: no usable snapshot captured", c.Competitor.Name),
				Impact:         ImpactHigh,
				CanBeImproved:  true,
				Recommendation: "retry capture once the competitor's site is reachable",
			})
		case collector.SourceExistingSnapshot:
			if c.Quality == collector.QualityMedium {
				gaps = append(gaps, Gap{
					Description:    fmt.Sprintf("%s: using a stale snapshot", c.Competitor.Name),
					Impact:         ImpactMedium,
					CanBeImproved:  true,
					Recommendation: "schedule a fresh capture",
				})
			}
		}
	}
	if collection.Partial {
		gaps = append(gaps, Gap{
			Description:    "collection deadline elapsed before all competitors were resolved",
			Impact:         ImpactLow,
			CanBeImproved:  true,
			Recommendation: "increase total_generation_timeout or retry",
		})
	}
	return gaps
}

func renderGaps(gaps []Gap) string {
	var b strings.Builder
	for _, g := range gaps {
		fmt.Fprintf(&b, "- [%s] %s (recommendation: %s)\n", g.Impact, g.Description, g.Recommendation)
	}
	return b.String()
}

func renderCompetitiveIntelligence(collection *collector.Result) string {
	var b strings.Builder
	for _, c := range collection.Competitors {
		fmt.Fprintf(&b, "%s: %s\n", c.Competitor.Name, c.Source)
	}
	return b.String()
}

// Content flattens a Rendered report into the single string persisted
// as ReportVersion.Content (§4.9's persistence requirement — I1 needs
// non-empty content, not structured sections, at the storage layer).
func Content(r Rendered) string {
	var b strings.Builder
	b.WriteString("# " + r.ExecutiveSummary + "\n\n")
	for _, s := range r.Sections {
		fmt.Fprintf(&b, "## %s\n", s.Title)
		for _, n := range s.Notices {
			fmt.Fprintf(&b, "> %s\n", n)
		}
		b.WriteString(s.Body)
		b.WriteString("\n\n")
	}
	return b.String()
}

func completenessTier(score float64) completeness.QualityTier {
	switch {
	case score >= 90:
		return completeness.TierComplete
	case score >= 70:
		return completeness.TierFresh
	case score >= 40:
		return completeness.TierEnhanced
	default:
		return completeness.TierBasic
	}
}
