// Package llm adapts OpenAI-compatible chat completion APIs to port.ChatModel.
package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"docqa/config"
	"docqa/internal/adapter/openaiclient"
	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/port"
)

const provider = "llm"

// OpenAIChatModel talks to OpenAI, DeepSeek or a local Ollama server through
// the chat completions endpoint with native tool calling.
type OpenAIChatModel struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

func NewOpenAIChatModel(cfg config.LLMConfig, logger *zap.Logger) (*OpenAIChatModel, error) {
	client, err := openaiclient.New(cfg.APIKeyEnv, cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &OpenAIChatModel{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		limiter:     limiter,
		logger:      logging.OrNop(logger),
	}, nil
}

func (m *OpenAIChatModel) ModelName() string {
	return m.model
}

func (m *OpenAIChatModel) Chat(ctx context.Context, req port.ChatRequest) (port.ChatResponse, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return port.ChatResponse{}, err
	}

	creq := openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    toMessages(req.System, req.Messages),
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	}
	for _, spec := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}

	resp, err := m.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return port.ChatResponse{}, openaiclient.Classify(provider, err)
	}
	if len(resp.Choices) == 0 {
		return port.ChatResponse{}, domain.NewProviderError(domain.KindMalformedResponse, provider,
			errors.New("no choices in response"))
	}

	msg := resp.Choices[0].Message
	out := port.ChatResponse{Text: msg.Content}
	for i, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	m.logger.Debug("chat completion",
		zap.String("model", m.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("tool_calls", len(out.ToolCalls)),
	)
	return out, nil
}

func toMessages(system string, turns []domain.Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, t := range turns {
		switch t.Role {
		case domain.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.Text}
			for _, tc := range t.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			msgs = append(msgs, msg)
		case domain.RoleTool:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    t.Text,
				ToolCallID: t.ToolCallID,
				Name:       t.ToolName,
			})
		default:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: t.Text})
		}
	}
	return msgs
}
