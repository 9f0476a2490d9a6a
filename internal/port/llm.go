package port

import (
	"context"

	"docqa/internal/domain"
)

// ChatModel is a generative model that can either answer or request tools.
type ChatModel interface {
	// Chat sends the system instructions, tool schemas and history and
	// returns the model's next move.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// ModelName returns the name of the model.
	ModelName() string
}

type ChatRequest struct {
	System   string
	Tools    []ToolSpec
	Messages []domain.Turn
}

// ChatResponse holds either final text or one or more tool calls.
type ChatResponse struct {
	Text      string
	ToolCalls []domain.ToolCall
}

// ToolSpec declares a tool's name and JSON-schema input to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}
