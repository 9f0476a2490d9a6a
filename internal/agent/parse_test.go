package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestExtractToolCalls(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []domain.ToolCall
	}{
		{
			name: "plain object",
			text: `I will search. {"name": "rag_search", "arguments": {"query": "q1 revenue"}}`,
			want: []domain.ToolCall{{Name: "rag_search", Arguments: `{"query":"q1 revenue"}`}},
		},
		{
			name: "fenced with string arguments",
			text: "```json\n{\"tool\": \"search_folder\", \"args\": \"{\\\"folder_pattern\\\": \\\"hr\\\"}\"}\n```",
			want: []domain.ToolCall{{Name: "search_folder", Arguments: `{"folder_pattern": "hr"}`}},
		},
		{
			name: "openai shaped",
			text: `{"tool_calls":[{"function":{"name":"live_corpus_search","arguments":"{\"search_term\":\"budget\"}"}}]}`,
			want: []domain.ToolCall{{Name: "live_corpus_search", Arguments: `{"search_term":"budget"}`}},
		},
		{
			name: "unknown tool ignored",
			text: `{"name": "delete_everything", "arguments": {}}`,
		},
		{
			name: "prose with braces",
			text: `The set {a, b} has two members.`,
		},
		{
			name: "two calls",
			text: `{"name":"rag_search","arguments":{"query":"a"}} then {"name":"rag_search"}`,
			want: []domain.ToolCall{
				{Name: "rag_search", Arguments: `{"query":"a"}`},
				{Name: "rag_search", Arguments: `{}`},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractToolCalls(tt.text))
		})
	}
}

func TestParseToolCall(t *testing.T) {
	tool, err := ParseToolCall(domain.ToolCall{Name: "rag_search", Arguments: `{"query":"  budget  "}`})
	require.NoError(t, err)
	assert.Equal(t, RagSearch{Query: "budget"}, tool)

	tool, err = ParseToolCall(domain.ToolCall{Name: "search_folder", Arguments: `{"folder_pattern":"finance"}`})
	require.NoError(t, err)
	assert.Equal(t, SearchFolder{FolderPattern: "finance"}, tool)

	tool, err = ParseToolCall(domain.ToolCall{Name: "live_corpus_search", Arguments: `{"search_term":"Budget 2026"}`})
	require.NoError(t, err)
	assert.Equal(t, LiveCorpusSearch{SearchTerm: "Budget 2026"}, tool)

	_, err = ParseToolCall(domain.ToolCall{Name: "rag_search", Arguments: `{}`})
	assert.Error(t, err)
	_, err = ParseToolCall(domain.ToolCall{Name: "rag_search", Arguments: `not json`})
	assert.Error(t, err)
	_, err = ParseToolCall(domain.ToolCall{Name: "shell", Arguments: `{}`})
	assert.ErrorIs(t, err, domain.ErrUnknownTool)
}

func TestCanonicalKey(t *testing.T) {
	a := CanonicalKey(RagSearch{Query: "Q1  Revenue"})
	b := CanonicalKey(RagSearch{Query: "q1 revenue"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, CanonicalKey(SearchFolder{FolderPattern: "q1 revenue"}))
	assert.Equal(t, "search_folder|folder_pattern=hr|query=", CanonicalKey(SearchFolder{FolderPattern: "HR"}))
}
