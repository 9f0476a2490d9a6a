package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/domain"
)

func newAssessor() *QualityAssessor {
	return NewQualityAssessor(analyzer.NewTokenizer(true), config.DefaultConfig().Adaptive)
}

func outcomeOf(intent domain.Intent, snippets ...domain.Snippet) domain.SearchOutcome {
	out := domain.Found(nil, snippets)
	out.Analysis = domain.QueryAnalysis{Intent: intent}
	out.UniqueSources = countSources(snippets)
	return out
}

func goodLookup() domain.SearchOutcome {
	return outcomeOf(domain.IntentLookup,
		domain.Snippet{SourcePath: "a.md", Snippet: "The budget forecast for 2026 is four million", Relevance: 0.9},
		domain.Snippet{SourcePath: "b.md", Snippet: "Budget forecast assumptions include hiring", Relevance: 0.85},
		domain.Snippet{SourcePath: "c.md", Snippet: "Forecast of budget by department", Relevance: 0.8},
	)
}

func poorLookup() domain.SearchOutcome {
	return outcomeOf(domain.IntentLookup,
		domain.Snippet{SourcePath: "x.md", Snippet: "Cafeteria menu lists soup", Relevance: 0.1},
	)
}

func TestAssess_NoEvidence(t *testing.T) {
	r := newAssessor().Assess("budget", domain.Empty("nothing"), "default")
	assert.Zero(t, r.QualityScore)
	assert.Zero(t, r.Confidence)
	assert.Equal(t, "default", r.Strategy)
}

func TestAssess_Listing(t *testing.T) {
	out := domain.Found(nil, nil)
	out.Listing = []domain.FolderGroup{{Folder: "finance", Files: []string{"finance/q1.md"}}}
	r := newAssessor().Assess("", out, "default")
	assert.Equal(t, 1.0, r.QualityScore)
}

func TestAssess_GoodLookup(t *testing.T) {
	r := newAssessor().Assess("budget forecast", goodLookup(), "default")
	assert.InDelta(t, 0.85, r.Relevance, 1e-9)
	assert.Equal(t, 1.0, r.Coverage)
	assert.Equal(t, 1.0, r.Sufficiency)
	assert.Equal(t, 1.0, r.Coherence)
	assert.GreaterOrEqual(t, r.QualityScore, 0.7)
}

func TestAssess_PoorLookup(t *testing.T) {
	r := newAssessor().Assess("budget forecast", poorLookup(), "default")
	assert.Zero(t, r.Coverage)
	assert.Less(t, r.QualityScore, 0.7)
}

func TestCoherence_PenalizesContradictions(t *testing.T) {
	snippets := []domain.Snippet{
		{Snippet: "Revenue increased in March."},
		{Snippet: "Revenue decreased in March."},
	}
	assert.InDelta(t, 0.8, coherence(snippets), 1e-9)
	assert.Equal(t, 1.0, coherence(snippets[:1]))
}

func TestDiversity_DuplicatesFromOneSource(t *testing.T) {
	a := newAssessor()
	snippets := []domain.Snippet{
		{SourcePath: "a.md", Snippet: "quarterly revenue grew"},
		{SourcePath: "a.md", Snippet: "quarterly revenue grew"},
	}
	assert.InDelta(t, 0.25, a.diversity(snippets, 1), 1e-9)
}

func TestConfidence(t *testing.T) {
	snippets := []domain.Snippet{{Relevance: 0.9}, {Relevance: 0.9}, {Relevance: 0.9}}
	assert.InDelta(t, 0.95, confidence(snippets, domain.IntentLookup), 1e-9)
	assert.Zero(t, confidence(nil, domain.IntentLookup))

	// Far from the synthesis target and spread out.
	spread := []domain.Snippet{{Relevance: 1}, {Relevance: 0}}
	assert.Less(t, confidence(spread, domain.IntentSynthesis), 0.5)
}

func TestWeights_Normalized(t *testing.T) {
	a := NewQualityAssessor(analyzer.NewTokenizer(true), config.AdaptiveConfig{})
	w := a.weights()
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.30, w[0], 1e-9)
}
