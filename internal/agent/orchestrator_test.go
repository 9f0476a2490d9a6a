package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/config"
	"docqa/internal/domain"
	"docqa/internal/port"
)

// scriptedModel answers each turn with next(turn, request).
type scriptedModel struct {
	mu    sync.Mutex
	turns int
	reqs  []port.ChatRequest
	next  func(turn int, req port.ChatRequest) (port.ChatResponse, error)
}

func (m *scriptedModel) Chat(_ context.Context, req port.ChatRequest) (port.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns++
	m.reqs = append(m.reqs, req)
	return m.next(m.turns, req)
}

func (m *scriptedModel) ModelName() string { return "scripted" }

type countingRetriever struct {
	mu      sync.Mutex
	queries []string
	outcome func(req domain.SearchRequest) domain.SearchOutcome
}

func (r *countingRetriever) Retrieve(_ context.Context, req domain.SearchRequest) domain.RetrievalResult {
	r.mu.Lock()
	r.queries = append(r.queries, req.Query)
	r.mu.Unlock()
	out := r.outcome(req)
	return domain.RetrievalResult{Outcome: out, Confidence: 0.8, Strategy: "default"}
}

func evidenceFor(req domain.SearchRequest) domain.SearchOutcome {
	return domain.Found(nil, []domain.Snippet{{SourcePath: "finance/q1.md", Snippet: "Q1 revenue was 4.2M about " + req.Query, Relevance: 0.9}})
}

func ragCall(query string) port.ChatResponse {
	return port.ChatResponse{ToolCalls: []domain.ToolCall{{Name: ToolRagSearch, Arguments: fmt.Sprintf(`{"query":%q}`, query)}}}
}

func newTestOrchestrator(model port.ChatModel, r Retriever, live port.LiveSearcher) (*Orchestrator, *[]time.Duration) {
	cfg := config.DefaultConfig().Agent
	o := NewOrchestrator(model, NewToolbox(r, live, nil), cfg, nil, nil, nil)
	var slept []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return o, &slept
}

func lastToolText(req port.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == domain.RoleTool {
			return req.Messages[i].Text
		}
	}
	return ""
}

func TestRun_DirectAnswer(t *testing.T) {
	model := &scriptedModel{next: func(int, port.ChatRequest) (port.ChatResponse, error) {
		return port.ChatResponse{Text: "Hello."}, nil
	}}
	o, _ := newTestOrchestrator(model, &countingRetriever{outcome: evidenceFor}, nil)

	res := o.Run(context.Background(), "hi", nil)
	assert.Equal(t, "Hello.", res.Answer)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, res.Iterations)
	require.Len(t, res.History, 2)
	assert.Equal(t, domain.RoleUser, res.History[0].Role)
	assert.Zero(t, res.Confidence)
	assert.Len(t, model.reqs[0].Tools, 3)
}

func TestRun_ToolThenAnswer(t *testing.T) {
	r := &countingRetriever{outcome: evidenceFor}
	model := &scriptedModel{next: func(turn int, req port.ChatRequest) (port.ChatResponse, error) {
		if turn == 1 {
			return ragCall("q1 revenue"), nil
		}
		return port.ChatResponse{Text: "Q1 revenue was 4.2M (finance/q1.md)."}, nil
	}}
	o, _ := newTestOrchestrator(model, r, nil)

	res := o.Run(context.Background(), "What was Q1 revenue?", nil)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, []string{"q1 revenue"}, r.queries)
	assert.Equal(t, []string{"finance/q1.md"}, res.Sources)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)

	// user, assistant(tool call), tool, assistant(answer)
	require.Len(t, res.History, 4)
	assert.NotEmpty(t, res.History[1].ToolCalls[0].ID)
	assert.Equal(t, res.History[1].ToolCalls[0].ID, res.History[2].ToolCallID)
	assert.Contains(t, res.History[2].Text, `"source_path":"finance/q1.md"`)
}

func TestRun_DuplicateCallExecutesOnce(t *testing.T) {
	r := &countingRetriever{outcome: evidenceFor}
	model := &scriptedModel{next: func(turn int, req port.ChatRequest) (port.ChatResponse, error) {
		switch turn {
		case 1:
			return ragCall("Q1 revenue"), nil
		case 2:
			return ragCall("q1   revenue"), nil
		}
		return port.ChatResponse{Text: "done"}, nil
	}}
	o, _ := newTestOrchestrator(model, r, nil)

	res := o.Run(context.Background(), "q", nil)
	assert.Len(t, r.queries, 1)
	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, domain.ToolOK, res.ToolCalls[0].Status)
	assert.Equal(t, domain.ToolDuplicate, res.ToolCalls[1].Status)
	assert.Contains(t, res.ToolCalls[1].Observation, "already executed at step 1")
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestRun_RepeatingAdversaryTerminates(t *testing.T) {
	r := &countingRetriever{outcome: evidenceFor}
	model := &scriptedModel{next: func(int, port.ChatRequest) (port.ChatResponse, error) {
		return ragCall("same thing"), nil
	}}
	o, _ := newTestOrchestrator(model, r, nil)

	res := o.Run(context.Background(), "q", nil)
	assert.Len(t, r.queries, 1)
	assert.Equal(t, OutcomeForced, res.Outcome)
	assert.Equal(t, 9, model.turns)
	assert.NotEmpty(t, res.Answer)
}

func TestRun_IterationCapForcesFinal(t *testing.T) {
	r := &countingRetriever{outcome: evidenceFor}
	model := &scriptedModel{next: func(turn int, req port.ChatRequest) (port.ChatResponse, error) {
		return ragCall(fmt.Sprintf("query %d", turn)), nil
	}}
	o, _ := newTestOrchestrator(model, r, nil)

	res := o.Run(context.Background(), "q", nil)
	assert.Equal(t, OutcomeForced, res.Outcome)
	assert.Equal(t, 9, res.Iterations)
	assert.Equal(t, 9, model.turns)
	assert.Len(t, r.queries, 7)
	assert.Empty(t, model.reqs[8].Tools, "the forced turn is offered no tools")
	assert.Contains(t, lastToolText(model.reqs[8]), "step limit")
	assert.Contains(t, res.Answer, "finance/q1.md")

	// Every tool call in the history has an observation.
	calls, observations := 0, 0
	for _, turn := range res.History {
		calls += len(turn.ToolCalls)
		if turn.Role == domain.RoleTool {
			observations++
		}
	}
	assert.Equal(t, calls, observations)
}

func TestRun_ForcedTurnMayAnswer(t *testing.T) {
	model := &scriptedModel{next: func(turn int, req port.ChatRequest) (port.ChatResponse, error) {
		if len(req.Tools) == 0 {
			return port.ChatResponse{Text: "Best effort answer."}, nil
		}
		return ragCall(fmt.Sprintf("query %d", turn)), nil
	}}
	o, _ := newTestOrchestrator(model, &countingRetriever{outcome: evidenceFor}, nil)

	res := o.Run(context.Background(), "q", nil)
	assert.Equal(t, OutcomeForced, res.Outcome)
	assert.Equal(t, "Best effort answer.", res.Answer)
}

func TestRun_ForcedTurnAnswerQuotingToolCallIsKept(t *testing.T) {
	const quoted = `I called {"name": "rag_search", "arguments": {"query": "budget"}} several times; the budget is 4.2M.`
	r := &countingRetriever{outcome: evidenceFor}
	model := &scriptedModel{next: func(turn int, req port.ChatRequest) (port.ChatResponse, error) {
		if len(req.Tools) == 0 {
			return port.ChatResponse{Text: quoted}, nil
		}
		return ragCall(fmt.Sprintf("query %d", turn)), nil
	}}
	o, _ := newTestOrchestrator(model, r, nil)

	res := o.Run(context.Background(), "q", nil)
	assert.Equal(t, OutcomeForced, res.Outcome)
	assert.Equal(t, quoted, res.Answer)
	assert.NotContains(t, r.queries, "budget")
}

func TestRun_RateLimitedToolBacksOff(t *testing.T) {
	r := &countingRetriever{outcome: func(domain.SearchRequest) domain.SearchOutcome {
		return domain.Failed(domain.NewProviderError(domain.KindRateLimited, "reranker", errors.New("429")))
	}}
	var seen string
	model := &scriptedModel{next: func(turn int, req port.ChatRequest) (port.ChatResponse, error) {
		if turn == 1 {
			return ragCall("budget"), nil
		}
		seen = lastToolText(req)
		return port.ChatResponse{Text: "I could not search right now."}, nil
	}}
	o, slept := newTestOrchestrator(model, r, nil)

	res := o.Run(context.Background(), "budget?", nil)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, []time.Duration{config.DefaultConfig().Agent.RateLimitBackoff}, *slept)
	assert.Contains(t, seen, "rate limited, please answer with available information")
	assert.Equal(t, domain.ToolRateLimited, res.ToolCalls[0].Status)
}

func TestRun_BadToolCallBecomesObservation(t *testing.T) {
	model := &scriptedModel{next: func(turn int, req port.ChatRequest) (port.ChatResponse, error) {
		if turn == 1 {
			return port.ChatResponse{ToolCalls: []domain.ToolCall{{ID: "x", Name: "shell", Arguments: `{"cmd":"ls"}`}}}, nil
		}
		return port.ChatResponse{Text: "ok"}, nil
	}}
	o, _ := newTestOrchestrator(model, &countingRetriever{outcome: evidenceFor}, nil)

	res := o.Run(context.Background(), "q", nil)
	assert.Equal(t, "ok", res.Answer)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, domain.ToolError, res.ToolCalls[0].Status)
	assert.Contains(t, res.ToolCalls[0].Observation, "available tools")
}

func TestRun_ToolCallWrittenAsText(t *testing.T) {
	r := &countingRetriever{outcome: evidenceFor}
	model := &scriptedModel{next: func(turn int, req port.ChatRequest) (port.ChatResponse, error) {
		if turn == 1 {
			return port.ChatResponse{Text: `{"name": "rag_search", "arguments": {"query": "hiring plan"}}`}, nil
		}
		return port.ChatResponse{Text: "Six engineers."}, nil
	}}
	o, _ := newTestOrchestrator(model, r, nil)

	res := o.Run(context.Background(), "q", nil)
	assert.Equal(t, []string{"hiring plan"}, r.queries)
	assert.Equal(t, "Six engineers.", res.Answer)
}

func TestRun_ModelFailures(t *testing.T) {
	tests := []struct {
		name string
		resp port.ChatResponse
		err  error
		want string
	}{
		{"empty first turn", port.ChatResponse{}, nil, setupFailAnswer},
		{"rate limited", port.ChatResponse{}, domain.NewProviderError(domain.KindRateLimited, "llm", errors.New("429")), rateLimitAnswer},
		{"unavailable", port.ChatResponse{}, domain.NewProviderError(domain.KindProviderUnavailable, "llm", errors.New("502")), unavailAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{next: func(int, port.ChatRequest) (port.ChatResponse, error) {
				return tt.resp, tt.err
			}}
			o, _ := newTestOrchestrator(model, &countingRetriever{outcome: evidenceFor}, nil)
			res := o.Run(context.Background(), "q", nil)
			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.Equal(t, tt.want, res.Answer)
			assert.Equal(t, tt.want, res.History[len(res.History)-1].Text)
		})
	}
}

func TestRun_ReplaysHistory(t *testing.T) {
	history := []domain.Turn{domain.UserTurn("What was Q1 revenue?"), domain.AssistantTurn("4.2M.")}
	model := &scriptedModel{next: func(int, port.ChatRequest) (port.ChatResponse, error) {
		return port.ChatResponse{Text: "Q2 was 4.8M."}, nil
	}}
	o, _ := newTestOrchestrator(model, &countingRetriever{outcome: evidenceFor}, nil)

	res := o.Run(context.Background(), "And Q2?", history)
	require.Len(t, res.History, 4)
	assert.Equal(t, history, res.History[:2])
	assert.Len(t, history, 2)
	assert.Len(t, model.reqs[0].Messages, 3)
}

type fakeLive struct {
	results []domain.LiveResult
	err     error
}

func (f fakeLive) SearchLive(context.Context, string) ([]domain.LiveResult, error) {
	return f.results, f.err
}

func TestToolbox_LiveSearch(t *testing.T) {
	ctx := context.Background()
	b := NewToolbox(&countingRetriever{outcome: evidenceFor}, fakeLive{results: []domain.LiveResult{{Name: "Budget", Link: "https://d/b"}}}, nil)
	obs := b.Execute(ctx, LiveCorpusSearch{SearchTerm: "budget"})
	assert.Equal(t, domain.ToolOK, obs.Status)
	assert.JSONEq(t, `[{"name":"Budget","link":"https://d/b"}]`, obs.Text)

	b = NewToolbox(nil, fakeLive{}, nil)
	obs = b.Execute(ctx, LiveCorpusSearch{SearchTerm: "budget"})
	assert.Equal(t, domain.ToolEmpty, obs.Status)

	b = NewToolbox(nil, nil, nil)
	obs = b.Execute(ctx, LiveCorpusSearch{SearchTerm: "budget"})
	assert.Equal(t, domain.ToolError, obs.Status)
}

func TestToolbox_PartialAndListing(t *testing.T) {
	ctx := context.Background()
	r := &countingRetriever{outcome: func(req domain.SearchRequest) domain.SearchOutcome {
		if req.Query == "" {
			return domain.SearchOutcome{Status: domain.OutcomeOK, Listing: []domain.FolderGroup{{Folder: "hr", Files: []string{"hr/a.md", "hr/b.md"}}}}
		}
		out := evidenceFor(req)
		out.LowConfidence = true
		out.Warning = "only 1 distinct source(s) found; the answer may be incomplete"
		return out
	}}
	b := NewToolbox(r, nil, nil)

	obs := b.Execute(ctx, RagSearch{Query: "summarize reports"})
	assert.True(t, strings.HasPrefix(obs.Text, `{"status":"partial"`))
	assert.Contains(t, obs.Text, "only 1 distinct source")

	obs = b.Execute(ctx, SearchFolder{FolderPattern: "hr"})
	assert.Contains(t, obs.Text, `"status":"listing"`)
	assert.Contains(t, obs.Text, `"total_files":2`)
}
