package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/config"
	"docqa/internal/adapter/cache"
	"docqa/internal/agent"
	"docqa/internal/domain"
)

type fakeAnswerer struct {
	runs   int
	result agent.Result
}

func (f *fakeAnswerer) Run(_ context.Context, query string, history []domain.Turn) agent.Result {
	f.runs++
	r := f.result
	r.History = append(append([]domain.Turn(nil), history...), domain.UserTurn(query), domain.AssistantTurn(r.Answer))
	return r
}

type fixedClassifier struct{}

func (fixedClassifier) Classify(string) domain.QueryAnalysis {
	return domain.QueryAnalysis{Intent: domain.IntentLookup, Complexity: 0.5}
}

func newQueryCache() *cache.QueryCache {
	return cache.New(config.CacheConfig{
		MaxSize:       10,
		TTL:           time.Hour,
		MinConfidence: 0.7,
		MinPriority:   0.3,
	}, nil, nil, nil, nil)
}

func answered(confidence float64, outcome agent.Outcome) *fakeAnswerer {
	return &fakeAnswerer{result: agent.Result{
		Answer:     "Q1 revenue was 4.2M (finance/q1.md).",
		Outcome:    outcome,
		Iterations: 2,
		Confidence: confidence,
		Sources:    []string{"finance/q1.md"},
	}}
}

func TestQuery_SecondAskHitsCache(t *testing.T) {
	ctx := context.Background()
	a := answered(0.9, agent.OutcomeSuccess)
	svc := NewQueryService(newQueryCache(), a, fixedClassifier{}, nil, nil)

	first := svc.Query(ctx, "What was Q1 revenue?", nil)
	assert.True(t, first.Diagnostics.Stored)
	assert.False(t, first.Diagnostics.Cached)
	assert.NotEmpty(t, first.Diagnostics.RequestID)

	second := svc.Query(ctx, "what was q1 revenue", nil)
	assert.Equal(t, 1, a.runs)
	assert.True(t, second.Diagnostics.Cached)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, []string{"finance/q1.md"}, second.Diagnostics.Sources)
	require.Len(t, second.History, 2)
	assert.Equal(t, first.Answer, second.History[1].Text)
	assert.NotEqual(t, first.Diagnostics.RequestID, second.Diagnostics.RequestID)
}

func TestQuery_FollowUpBypassesCache(t *testing.T) {
	ctx := context.Background()
	a := answered(0.9, agent.OutcomeSuccess)
	svc := NewQueryService(newQueryCache(), a, fixedClassifier{}, nil, nil)

	history := []domain.Turn{domain.UserTurn("hi"), domain.AssistantTurn("hello")}
	res := svc.Query(ctx, "What was Q1 revenue?", history)
	assert.False(t, res.Diagnostics.Stored)
	assert.Len(t, res.History, 4)

	svc.Query(ctx, "What was Q1 revenue?", nil)
	svc.Query(ctx, "What was Q1 revenue?", history)
	assert.Equal(t, 3, a.runs)
}

func TestQuery_OnlyConfidentSuccessIsStored(t *testing.T) {
	ctx := context.Background()
	for _, a := range []*fakeAnswerer{
		answered(0.2, agent.OutcomeSuccess),
		answered(0.9, agent.OutcomeForced),
		answered(0.9, agent.OutcomeFailed),
	} {
		svc := NewQueryService(newQueryCache(), a, fixedClassifier{}, nil, nil)
		res := svc.Query(ctx, "What was Q1 revenue?", nil)
		assert.False(t, res.Diagnostics.Stored)
		svc.Query(ctx, "What was Q1 revenue?", nil)
		assert.Equal(t, 2, a.runs)
	}
}

func TestQuery_EmptyQuestion(t *testing.T) {
	a := answered(0.9, agent.OutcomeSuccess)
	svc := NewQueryService(nil, a, nil, nil, nil)
	res := svc.Query(context.Background(), "   ", nil)
	assert.NotEmpty(t, res.Answer)
	assert.Zero(t, a.runs)
}

func TestQuery_NoCache(t *testing.T) {
	a := answered(0.9, agent.OutcomeSuccess)
	svc := NewQueryService(nil, a, nil, nil, nil)
	res := svc.Query(context.Background(), "What was Q1 revenue?", nil)
	assert.Equal(t, a.result.Answer, res.Answer)
	assert.Equal(t, "success", res.Diagnostics.Outcome)
	assert.Equal(t, 2, res.Diagnostics.Iterations)
}
