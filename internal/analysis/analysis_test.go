package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/llm"
)

type fakeGenerator struct {
	responses []llm.Response
	errs      []error
	calls     int
}

func (f *fakeGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return &f.responses[i], nil
	}
	return nil, errors.New("fakeGenerator: no more scripted responses")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func basicInput() Input {
	return Input{
		Product: domain.Product{Name: "Acme", Website: "https://acme.example.com"},
		Config:  Config{MaxRetries: 1, RetryBackoffBase: 0},
	}
}

func TestAnalyzeParsesWellFormedResponse(t *testing.T) {
	gen := &fakeGenerator{responses: []llm.Response{{Content: `{"overallPosition":"leading","narrative":"ahead on pricing","opportunityScore":80,"confidenceScore":90,"priorityScore":70,"keyFindings":["cheaper plans"],"recommendations":{"immediate":["cut price"],"shortTerm":[],"longTerm":[]}}`}}}
	stage := New(gen, discardLogger())

	a := stage.Analyze(context.Background(), basicInput())

	require.NotNil(t, a)
	assert.False(t, a.Placeholder)
	assert.Equal(t, PositionLeading, a.Summary.OverallPosition)
	assert.Equal(t, 80.0, a.OpportunityScore)
	assert.Equal(t, []string{"cheaper plans"}, a.KeyFindings)
}

func TestAnalyzeFallsBackToPlaceholderOnRepeatedError(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("llm down"), errors.New("llm down"), errors.New("llm down")}}
	stage := New(gen, discardLogger())

	a := stage.Analyze(context.Background(), basicInput())

	require.NotNil(t, a)
	assert.True(t, a.Placeholder, "an LLM that fails on every retry must degrade to a placeholder, never an error")
}

func TestAnalyzeFallsBackToPlaceholderOnMalformedJSON(t *testing.T) {
	gen := &fakeGenerator{responses: []llm.Response{{Content: "not json"}, {Content: "not json"}, {Content: "not json"}}}
	stage := New(gen, discardLogger())

	a := stage.Analyze(context.Background(), basicInput())

	require.NotNil(t, a)
	assert.True(t, a.Placeholder)
}

func TestAnalyzeUnknownPositionDefaultsToCompetitive(t *testing.T) {
	gen := &fakeGenerator{responses: []llm.Response{{Content: `{"overallPosition":"dominant","narrative":"n"}`}}}
	stage := New(gen, discardLogger())

	a := stage.Analyze(context.Background(), basicInput())

	require.False(t, a.Placeholder)
	assert.Equal(t, PositionCompetitive, a.Summary.OverallPosition)
}

func TestPlaceholderBoundsScoresByCompleteness(t *testing.T) {
	a := Placeholder(basicInput(), 40)

	assert.True(t, a.Placeholder)
	assert.Equal(t, 40.0, a.ConfidenceScore)
	assert.Equal(t, 20.0, a.OpportunityScore)
	assert.NotNil(t, a.KeyFindings)
	assert.NotNil(t, a.Recommendations.Immediate)
}
