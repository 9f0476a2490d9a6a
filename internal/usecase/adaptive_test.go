package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/config"
	"docqa/internal/domain"
)

type scriptedRetriever struct {
	outcomes []domain.SearchOutcome
	calls    []domain.Strategy
}

func (s *scriptedRetriever) Search(_ context.Context, req domain.SearchRequest) domain.SearchOutcome {
	i := len(s.calls)
	s.calls = append(s.calls, req.Strategy)
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	return s.outcomes[i]
}

func (s *scriptedRetriever) DefaultStrategy() domain.Strategy {
	return domain.Strategy{Name: "default", CandidateK: 100, MaxChunksPerFile: 4, MaxResults: 10}
}

func newAdaptive(r StrategyRetriever) *AdaptiveRetrieveUseCase {
	cfg := config.DefaultConfig().Adaptive
	return NewAdaptiveRetrieveUseCase(r, newAssessor(), cfg, nil, nil)
}

func TestAdaptive_StopsWhenGoodEnough(t *testing.T) {
	r := &scriptedRetriever{outcomes: []domain.SearchOutcome{goodLookup()}}
	result := newAdaptive(r).Retrieve(context.Background(), domain.SearchRequest{Query: "budget forecast"})

	assert.Len(t, r.calls, 1)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, "default", result.Strategy)
	assert.GreaterOrEqual(t, result.QualityScore, 0.7)
}

func TestAdaptive_BoundedAndAdapts(t *testing.T) {
	r := &scriptedRetriever{outcomes: []domain.SearchOutcome{poorLookup()}}
	result := newAdaptive(r).Retrieve(context.Background(), domain.SearchRequest{Query: "budget forecast"})

	require.Len(t, r.calls, 3)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, "broadened", r.calls[1].Name)
	assert.Equal(t, 200, r.calls[1].CandidateK)
	assert.True(t, r.calls[1].ForceMultiQuery)
	assert.True(t, result.Outcome.HasEvidence())
}

func TestAdaptive_KeepsBestEvidence(t *testing.T) {
	r := &scriptedRetriever{outcomes: []domain.SearchOutcome{
		poorLookup(),
		domain.Failed(errors.New("embedding down")),
	}}
	result := newAdaptive(r).Retrieve(context.Background(), domain.SearchRequest{Query: "budget forecast"})

	assert.Len(t, r.calls, 2)
	assert.Equal(t, domain.OutcomeOK, result.Outcome.Status)
	assert.True(t, result.Outcome.HasEvidence())
	assert.Equal(t, "default", result.Strategy)
}

func TestAdaptive_EmptyAndErrorEndLoop(t *testing.T) {
	r := &scriptedRetriever{outcomes: []domain.SearchOutcome{domain.Empty("no documents found", "index first")}}
	result := newAdaptive(r).Retrieve(context.Background(), domain.SearchRequest{Query: "budget"})
	assert.Len(t, r.calls, 1)
	assert.Equal(t, domain.OutcomeEmpty, result.Outcome.Status)
	assert.Equal(t, []string{"index first"}, result.Outcome.Suggestions)

	r = &scriptedRetriever{outcomes: []domain.SearchOutcome{domain.Failed(domain.NewProviderError(domain.KindRateLimited, "reranker", errors.New("429")))}}
	result = newAdaptive(r).Retrieve(context.Background(), domain.SearchRequest{Query: "budget"})
	assert.Equal(t, domain.OutcomeError, result.Outcome.Status)
	assert.Equal(t, domain.KindRateLimited, result.Outcome.ErrorKind())
}

func TestAdaptive_DisabledRunsOnce(t *testing.T) {
	r := &scriptedRetriever{outcomes: []domain.SearchOutcome{poorLookup()}}
	cfg := config.DefaultConfig().Adaptive
	cfg.Enabled = false
	u := NewAdaptiveRetrieveUseCase(r, newAssessor(), cfg, nil, nil)
	result := u.Retrieve(context.Background(), domain.SearchRequest{Query: "budget forecast"})
	assert.Len(t, r.calls, 1)
	assert.Equal(t, 1, result.Iterations)
}

func TestAdapt_Diagnoses(t *testing.T) {
	base := domain.Strategy{Name: "default", CandidateK: 100, MaxChunksPerFile: 4, MaxResults: 10, CompressionEnabled: true}

	synthesis := domain.RetrievalResult{
		Coverage:  0.9,
		Diversity: 0.2,
		Outcome: domain.SearchOutcome{
			Analysis: domain.QueryAnalysis{Intent: domain.IntentSynthesis},
			Snippets: make([]domain.Snippet, 6),
		},
	}
	next := adapt(base, synthesis, 1)
	assert.Equal(t, "diversified", next.Name)
	assert.Equal(t, 2, next.MaxChunksPerFile)
	assert.Equal(t, 150, next.CandidateK)

	sparse := domain.RetrievalResult{
		Coverage:  1,
		Diversity: 1,
		Outcome:   domain.SearchOutcome{Snippets: make([]domain.Snippet, 1)},
	}
	next = adapt(base, sparse, 1)
	assert.Equal(t, "expanded", next.Name)
	assert.False(t, next.CompressionEnabled)
	assert.Equal(t, 15, next.MaxResults)

	fine := domain.RetrievalResult{
		Coverage:  1,
		Diversity: 1,
		Outcome:   domain.SearchOutcome{Snippets: make([]domain.Snippet, 5)},
	}
	assert.Equal(t, "alternative", adapt(base, fine, 1).Name)
	last := adapt(base, fine, 2)
	assert.Equal(t, "permissive", last.Name)
	assert.Equal(t, 300, last.CandidateK)
	assert.True(t, last.ForceMultiQuery)
}

func TestWiden_Capped(t *testing.T) {
	assert.Equal(t, maxCandidateK, widen(900, 3))
	assert.Equal(t, 200, widen(0, 2))
}
