package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docqa/internal/agent"
	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/metrics"
)

// ResponseCache is the response cache in front of the agent.
type ResponseCache interface {
	Get(ctx context.Context, query string) (domain.CacheEntry, bool)
	Set(ctx context.Context, query, response string, confidence float64, analysis domain.QueryAnalysis, sources []string) bool
}

// Answerer runs the tool-calling loop for one question.
type Answerer interface {
	Run(ctx context.Context, query string, history []domain.Turn) agent.Result
}

// Classifier analyses a query's intent for cache admission.
type Classifier interface {
	Classify(query string) domain.QueryAnalysis
}

// Diagnostics describes how a query was answered.
type Diagnostics struct {
	RequestID  string                  `json:"request_id"`
	Cached     bool                    `json:"cached"`
	Stored     bool                    `json:"stored"`
	Outcome    string                  `json:"outcome"`
	Iterations int                     `json:"iterations"`
	ToolCalls  []domain.ToolCallRecord `json:"tool_calls,omitempty"`
	Confidence float64                 `json:"confidence"`
	Sources    []string                `json:"sources,omitempty"`
	Duration   time.Duration           `json:"duration"`
}

type QueryResult struct {
	Answer      string        `json:"answer"`
	History     []domain.Turn `json:"history"`
	Diagnostics Diagnostics   `json:"diagnostics"`
}

// QueryService is the top-level question answering API. Follow-up
// questions (non-empty history) bypass the cache in both directions since
// their meaning depends on the conversation.
type QueryService struct {
	cache      ResponseCache
	answerer   Answerer
	classifier Classifier
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewQueryService creates the service. cache may be nil.
func NewQueryService(cache ResponseCache, answerer Answerer, classifier Classifier, collector *metrics.Collector, logger *zap.Logger) *QueryService {
	return &QueryService{
		cache:      cache,
		answerer:   answerer,
		classifier: classifier,
		metrics:    collector,
		logger:     logging.OrNop(logger).With(zap.String("component", "query")),
	}
}

// Query answers text. It never fails: every problem is reported in Answer.
func (s *QueryService) Query(ctx context.Context, text string, history []domain.Turn) QueryResult {
	start := time.Now()
	diag := Diagnostics{RequestID: uuid.NewString()}
	logger := s.logger.With(zap.String("request_id", diag.RequestID))

	text = strings.TrimSpace(text)
	if text == "" {
		return QueryResult{
			Answer:      "Please ask a question about the indexed documents.",
			History:     history,
			Diagnostics: diag,
		}
	}

	followUp := len(history) > 0
	if s.cache != nil && !followUp {
		if entry, ok := s.cache.Get(ctx, text); ok {
			diag.Cached = true
			diag.Outcome = agent.OutcomeSuccess.String()
			diag.Confidence = entry.Confidence
			diag.Sources = entry.Sources
			diag.Duration = time.Since(start)
			s.metrics.QueryDone(true, diag.Duration)
			logger.Info("answered from cache", zap.String("query", text))

			turns := append(append([]domain.Turn(nil), history...), domain.UserTurn(text), domain.AssistantTurn(entry.Response))
			return QueryResult{Answer: entry.Response, History: turns, Diagnostics: diag}
		}
	}

	res := s.answerer.Run(ctx, text, history)
	diag.Outcome = res.Outcome.String()
	diag.Iterations = res.Iterations
	diag.ToolCalls = res.ToolCalls
	diag.Confidence = res.Confidence
	diag.Sources = res.Sources

	if s.cache != nil && !followUp && res.Outcome == agent.OutcomeSuccess {
		var analysis domain.QueryAnalysis
		if s.classifier != nil {
			analysis = s.classifier.Classify(text)
		}
		diag.Stored = s.cache.Set(ctx, text, res.Answer, res.Confidence, analysis, res.Sources)
	}

	diag.Duration = time.Since(start)
	s.metrics.QueryDone(false, diag.Duration)
	logger.Info("query answered",
		zap.String("outcome", diag.Outcome),
		zap.Int("iterations", diag.Iterations),
		zap.Bool("stored", diag.Stored),
		zap.Duration("duration", diag.Duration),
	)
	return QueryResult{Answer: res.Answer, History: res.History, Diagnostics: diag}
}
