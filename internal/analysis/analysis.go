// Package analysis implements the Analysis Stage (C8, §4.8): calls the
// LLM collaborator with assembled collector output and returns
// structured findings, degrading to a placeholder analysis on any
// failure rather than failing the report request.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rivalscope/corewatch/internal/collector"
	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/llm"
)

// Position is the product's overall standing against its competitors.
type Position string

const (
	PositionLeading    Position = "leading"
	PositionCompetitive Position = "competitive"
	PositionTrailing   Position = "trailing"
)

// Summary is the headline of an Analysis.
type Summary struct {
	OverallPosition Position
	Narrative       string
}

// Recommendations groups findings by time horizon; all three lists are
// always non-nil (§4.8).
type Recommendations struct {
	Immediate []string
	ShortTerm []string
	LongTerm  []string
}

// Analysis is C8's output, consumed by C9.
type Analysis struct {
	Summary          Summary
	OpportunityScore float64 // [0,100]
	ConfidenceScore  float64 // [0,100]
	PriorityScore    float64 // [0,100]
	Recommendations  Recommendations
	KeyFindings      []string
	Placeholder      bool
}

// Config controls the analysis request.
type Config struct {
	FocusAreas             []string
	Depth                  string
	IncludeRecommendations bool
	MaxRetries             int
	RetryBackoffBase       time.Duration
}

// Input is the assembled request to Analyze, built from a collector.Result.
type Input struct {
	Product     domain.Product
	Competitors []collector.CompetitorResult
	Config      Config
}

// Stage runs LLM-backed comparative analysis.
type Stage struct {
	generator llm.Generator
	logger    *slog.Logger
}

// New builds a Stage around an llm.Generator.
func New(generator llm.Generator, logger *slog.Logger) *Stage {
	return &Stage{generator: generator, logger: logger.With("component", "analysis_stage")}
}

// Analyze calls the LLM collaborator with input and parses its
// response into structured findings. Any error — timeout, malformed
// JSON, LLM unavailability — yields a Placeholder() result instead of
// an error, per §4.8: "On any error it returns a placeholder analysis
// rather than failing the report request."
func (s *Stage) Analyze(ctx context.Context, input Input) *Analysis {
	req := buildRequest(input)

	retries := input.Config.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := input.Config.RetryBackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		resp, err := s.generator.Generate(ctx, req)
		if err == nil {
			if a, parseErr := parseResponse(resp.Content); parseErr == nil {
				return a
			} else {
				lastErr = parseErr
			}
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			break
		}
		if attempt < retries {
			select {
			case <-ctx.Done():
			case <-time.After(backoff * time.Duration(1<<uint(attempt))):
			}
		}
	}

	s.logger.Warn("analysis falling back to placeholder", "error", lastErr)
	return Placeholder(input, 50)
}

func buildRequest(input Input) llm.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s (%s)\n", input.Product.Name, input.Product.Website)
	if input.Product.Positioning != "" {
		fmt.Fprintf(&b, "Positioning: %s\n", input.Product.Positioning)
	}
	b.WriteString("Competitors:\n")
	for _, c := range input.Competitors {
		fmt.Fprintf(&b, "- %s (%s) [source=%s quality=%s]\n", c.Competitor.Name, c.Competitor.Website, c.Source, c.Quality)
	}
	fmt.Fprintf(&b, "Focus areas: %s\n", strings.Join(input.Config.FocusAreas, ", "))
	fmt.Fprintf(&b, "Depth: %s\n", input.Config.Depth)
	b.WriteString(`Respond with JSON: {"overallPosition":"leading|competitive|trailing","narrative":"...","opportunityScore":0-100,"confidenceScore":0-100,"priorityScore":0-100,"keyFindings":["..."],"recommendations":{"immediate":["..."],"shortTerm":["..."],"longTerm":["..."]}}`)

	return llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "You are a competitive intelligence analyst. Respond with strict JSON only."},
			{Role: "user", Content: b.String()},
		},
		MaxTokens:   2048,
		Temperature: 0.2,
		TopP:        0.9,
	}
}

type rawAnalysis struct {
	OverallPosition  string   `json:"overallPosition"`
	Narrative        string   `json:"narrative"`
	OpportunityScore float64  `json:"opportunityScore"`
	ConfidenceScore  float64  `json:"confidenceScore"`
	PriorityScore    float64  `json:"priorityScore"`
	KeyFindings      []string `json:"keyFindings"`
	Recommendations  struct {
		Immediate []string `json:"immediate"`
		ShortTerm []string `json:"shortTerm"`
		LongTerm  []string `json:"longTerm"`
	} `json:"recommendations"`
}

func parseResponse(content string) (*Analysis, error) {
	jsonBody := extractJSON(content)
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(jsonBody), &raw); err != nil {
		return nil, fmt.Errorf("analysis: parse llm response: %w", err)
	}

	position := Position(raw.OverallPosition)
	switch position {
	case PositionLeading, PositionCompetitive, PositionTrailing:
	default:
		position = PositionCompetitive
	}

	return &Analysis{
		Summary:          Summary{OverallPosition: position, Narrative: raw.Narrative},
		OpportunityScore: clamp(raw.OpportunityScore),
		ConfidenceScore:  clamp(raw.ConfidenceScore),
		PriorityScore:    clamp(raw.PriorityScore),
		KeyFindings:      nonNil(raw.KeyFindings),
		Recommendations: Recommendations{
			Immediate: nonNil(raw.Recommendations.Immediate),
			ShortTerm: nonNil(raw.Recommendations.ShortTerm),
			LongTerm:  nonNil(raw.Recommendations.LongTerm),
		},
	}, nil
}

// Placeholder builds a conservative analysis bounded by completeness,
// used whenever the LLM path is unavailable or confidence must be
// capped (§4.9).
func Placeholder(input Input, completeness float64) *Analysis {
	bounded := clamp(completeness)
	return &Analysis{
		Summary:          Summary{OverallPosition: PositionCompetitive, Narrative: "Automated analysis unavailable; this is a conservative placeholder."},
		OpportunityScore: bounded * 0.5,
		ConfidenceScore:  bounded,
		PriorityScore:    bounded * 0.6,
		KeyFindings:      []string{},
		Recommendations:  Recommendations{Immediate: []string{}, ShortTerm: []string{}, LongTerm: []string{}},
		Placeholder:      true,
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return "{}"
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return "{}"
}
