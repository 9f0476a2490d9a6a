package agent_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/memstore"
	"docqa/internal/adapter/retriever"
	"docqa/internal/agent"
	"docqa/internal/domain"
	"docqa/internal/port"
	"docqa/internal/usecase"
)

// noEvidenceModel searches once with the given tool call, then answers
// from the observation it got back.
type noEvidenceModel struct {
	call domain.ToolCall
}

func (m noEvidenceModel) Chat(_ context.Context, req port.ChatRequest) (port.ChatResponse, error) {
	last := req.Messages[len(req.Messages)-1]
	if last.Role != domain.RoleTool {
		return port.ChatResponse{ToolCalls: []domain.ToolCall{m.call}}, nil
	}
	if strings.Contains(last.Text, `"status":"no_results"`) {
		return port.ChatResponse{Text: "I could not find information about that in the documents."}, nil
	}
	return port.ChatResponse{Text: "Found it."}, nil
}

func (noEvidenceModel) ModelName() string { return "no-evidence" }

func newStack(t *testing.T, model port.ChatModel, docs map[string]string) *agent.Orchestrator {
	t.Helper()
	ctx := context.Background()
	cfg := config.DefaultConfig()
	emb := embedding.NewHashEmbedder(256)
	store := memstore.NewMemoryVectorStore(0)

	i := 0
	for path, text := range docs {
		vec, err := emb.EmbedDocument(ctx, text)
		require.NoError(t, err)
		chunk := domain.Chunk{ID: fmt.Sprintf("c%d", i), Text: text, SourcePath: path}
		require.NoError(t, store.Upsert(ctx, []port.VectorItem{{ID: chunk.ID, Vector: vec, Text: text, Metadata: chunk.Metadata()}}))
		i++
	}

	tok := analyzer.NewTokenizer(true)
	hybrid := retriever.NewHybridRetriever(store, emb, nil, tok, cfg.Retrieve, nil, nil)
	adaptive := usecase.NewAdaptiveRetrieveUseCase(hybrid, usecase.NewQualityAssessor(tok, cfg.Adaptive), cfg.Adaptive, nil, nil)
	return agent.NewOrchestrator(model, agent.NewToolbox(adaptive, nil, nil), cfg.Agent, nil, nil, nil)
}

func TestEndToEnd_EmptyStore(t *testing.T) {
	model := noEvidenceModel{call: domain.ToolCall{ID: "1", Name: agent.ToolRagSearch, Arguments: `{"query":"Q1 revenue"}`}}
	o := newStack(t, model, nil)

	res := o.Run(context.Background(), "What was Q1 revenue?", nil)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, domain.ToolEmpty, res.ToolCalls[0].Status)
	assert.Contains(t, res.ToolCalls[0].Observation, "no documents found")
	assert.Equal(t, agent.OutcomeSuccess, res.Outcome)
	assert.Contains(t, res.Answer, "could not find information")
	assert.Zero(t, res.Confidence)
}

func TestEndToEnd_FolderWithoutMatches(t *testing.T) {
	model := noEvidenceModel{call: domain.ToolCall{ID: "1", Name: agent.ToolSearchFolder, Arguments: `{"folder_pattern":"legal","query":"contract terms"}`}}
	o := newStack(t, model, map[string]string{
		"finance/q1-report.pdf": "Q1 revenue reached 4.2 million.",
		"hr/handbook.pdf":       "Employees receive twenty five vacation days.",
	})

	res := o.Run(context.Background(), "What are the contract terms in legal?", nil)
	require.Len(t, res.ToolCalls, 1)
	obs := res.ToolCalls[0].Observation
	assert.Equal(t, domain.ToolEmpty, res.ToolCalls[0].Status)
	assert.Contains(t, obs, `no documents found in folder \"legal\"`)
	assert.Contains(t, obs, `"suggestions":[`)
	assert.Contains(t, obs, "finance")
	assert.NotEmpty(t, res.Answer)
}

func TestEndToEnd_FindsEvidence(t *testing.T) {
	model := noEvidenceModel{call: domain.ToolCall{ID: "1", Name: agent.ToolRagSearch, Arguments: `{"query":"vacation days"}`}}
	o := newStack(t, model, map[string]string{
		"finance/q1-report.pdf": "Q1 revenue reached 4.2 million.",
		"hr/handbook.pdf":       "Employees receive twenty five vacation days.",
	})

	res := o.Run(context.Background(), "How many vacation days?", nil)
	assert.Equal(t, domain.ToolOK, res.ToolCalls[0].Status)
	assert.Contains(t, res.ToolCalls[0].Observation, "hr/handbook.pdf")
	assert.Equal(t, "Found it.", res.Answer)
	assert.Contains(t, res.Sources, "hr/handbook.pdf")
	assert.Greater(t, res.Confidence, 0.0)
}
