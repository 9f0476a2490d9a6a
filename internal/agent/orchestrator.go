package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docqa/config"
	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/metrics"
	"docqa/internal/port"
	"docqa/internal/retry"
)

// Result is the outcome of one query through the loop. History holds the
// caller's turns followed by every turn this run added.
type Result struct {
	Answer     string
	History    []domain.Turn
	Outcome    Outcome
	Iterations int
	ToolCalls  []domain.ToolCallRecord
	// Confidence is the best retrieval confidence observed; zero when no
	// tool produced evidence.
	Confidence float64
	Sources    []string
	Err        error
}

// Orchestrator drives the model/tool loop. It holds no per-query state and
// is safe for concurrent use.
type Orchestrator struct {
	model   port.ChatModel
	toolbox *Toolbox
	cfg     config.AgentConfig
	retry   *retry.Retryer
	metrics *metrics.Collector
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
}

func NewOrchestrator(
	model port.ChatModel,
	toolbox *Toolbox,
	cfg config.AgentConfig,
	retryer *retry.Retryer,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		model:   model,
		toolbox: toolbox,
		cfg:     cfg,
		retry:   retryer,
		metrics: collector,
		logger:  logging.OrNop(logger).With(zap.String("component", "agent")),
		sleep:   retry.Sleep,
	}
}

// run is the per-query state threaded through the loop.
type run struct {
	machine  Machine
	conv     domain.Conversation
	records  []domain.ToolCallRecord
	executed map[string]int
	evidence evidence
	answer   string
	err      error
}

type evidence struct {
	confidence float64
	sources    []string
	seen       map[string]struct{}
}

func (e *evidence) add(r *domain.RetrievalResult) {
	if r == nil || !r.Outcome.HasEvidence() {
		return
	}
	if r.Confidence > e.confidence {
		e.confidence = r.Confidence
	}
	if e.seen == nil {
		e.seen = make(map[string]struct{})
	}
	for _, s := range r.Outcome.Snippets {
		if _, ok := e.seen[s.SourcePath]; ok || s.SourcePath == "" {
			continue
		}
		e.seen[s.SourcePath] = struct{}{}
		e.sources = append(e.sources, s.SourcePath)
	}
}

// Run answers query given the prior history. It always returns a non-empty
// Answer.
func (o *Orchestrator) Run(ctx context.Context, query string, history []domain.Turn) Result {
	r := &run{
		machine:  NewMachine(o.cfg.MaxIterations),
		executed: make(map[string]int),
	}
	r.conv.Append(history...)
	r.conv.Append(domain.UserTurn(query))

	system := o.cfg.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	for r.machine.AwaitsModel() {
		req := port.ChatRequest{System: system, Messages: r.conv.Turns}
		if r.machine.State == StateAwaitingModel {
			req.Tools = Specs()
		}

		resp, err := retry.Do(ctx, o.retry, "chat", func(ctx context.Context) (port.ChatResponse, error) {
			return o.model.Chat(ctx, req)
		})
		if err != nil {
			o.logger.Warn("model call failed", zap.Int("iteration", r.machine.Iterations+1), zap.Error(err))
			r.err = err
			r.machine = Transition(r.machine, EventModelFailed)
			continue
		}

		text := strings.TrimSpace(resp.Text)
		calls := resp.ToolCalls
		// On the forced-final turn text is always the answer, even if it
		// quotes a tool call.
		if len(calls) == 0 && text != "" && r.machine.State != StateForcedFinal {
			if extracted := ExtractToolCalls(text); len(extracted) > 0 {
				calls, text = extracted, ""
			}
		}

		switch {
		case len(calls) > 0:
			for i := range calls {
				if calls[i].ID == "" {
					calls[i].ID = "call_" + uuid.NewString()
				}
			}
			r.conv.Append(domain.Turn{Role: domain.RoleAssistant, Text: text, ToolCalls: calls})
			r.machine = Transition(r.machine, EventToolCalls)
			o.handleCalls(ctx, r, calls)
		case text != "":
			r.conv.Append(domain.AssistantTurn(text))
			r.answer = text
			r.machine = Transition(r.machine, EventFinalText)
		default:
			r.machine = Transition(r.machine, EventModelFailed)
		}
	}

	answer := o.finalAnswer(r)
	if r.answer == "" {
		r.conv.Append(domain.AssistantTurn(answer))
	}

	o.metrics.AgentRun(r.machine.Outcome.String(), r.machine.Iterations)
	o.logger.Info("query finished",
		zap.String("outcome", r.machine.Outcome.String()),
		zap.Int("iterations", r.machine.Iterations),
		zap.Int("tool_calls", len(r.records)),
		zap.Int("sources", len(r.evidence.sources)),
	)

	return Result{
		Answer:     answer,
		History:    r.conv.Turns,
		Outcome:    r.machine.Outcome,
		Iterations: r.machine.Iterations,
		ToolCalls:  r.records,
		Confidence: r.evidence.confidence,
		Sources:    r.evidence.sources,
		Err:        r.err,
	}
}

// handleCalls produces one observation per call, in call order.
func (o *Orchestrator) handleCalls(ctx context.Context, r *run, calls []domain.ToolCall) {
	if r.machine.State != StateExecutingTool {
		// At the cap, or past it: answer every call without running it.
		for _, call := range calls {
			o.record(r, call, "", forcedObservation(), domain.ToolForced)
		}
		return
	}

	for _, call := range calls {
		tool, err := ParseToolCall(call)
		if err != nil {
			obs := errorObservation(domain.KindNone, fmt.Sprintf("%v; available tools: %s, %s, %s",
				err, ToolRagSearch, ToolSearchFolder, ToolLiveCorpusSearch))
			o.record(r, call, call.Arguments, obs.Text, obs.Status)
			continue
		}

		key := CanonicalKey(tool)
		if step, ok := r.executed[key]; ok {
			o.record(r, call, key, encode(statusView{
				Status:  string(domain.ToolDuplicate),
				Message: duplicateMessage(step),
			}), domain.ToolDuplicate)
			continue
		}
		r.executed[key] = r.machine.Iterations

		obs := o.toolbox.Execute(ctx, tool)
		r.evidence.add(obs.Result)
		if obs.Status == domain.ToolRateLimited {
			backoff := o.cfg.RateLimitBackoff
			o.logger.Info("tool rate limited, backing off", zap.String("tool", tool.Name()), zap.Duration("backoff", backoff))
			if err := o.sleep(ctx, backoff); err != nil {
				o.logger.Debug("backoff interrupted", zap.Error(err))
			}
		}
		o.record(r, call, key, obs.Text, obs.Status)
	}
	r.machine = Transition(r.machine, EventToolsDone)
}

func (o *Orchestrator) record(r *run, call domain.ToolCall, key, observation string, status domain.ToolStatus) {
	r.conv.Append(domain.ToolTurn(call, observation))
	r.records = append(r.records, domain.ToolCallRecord{
		ToolName:      call.Name,
		CanonicalArgs: key,
		Observation:   observation,
		Status:        status,
		Iteration:     r.machine.Iterations,
	})
	o.metrics.ToolCall(call.Name, string(status))
	o.logger.Debug("tool observation",
		zap.String("tool", call.Name),
		zap.String("status", string(status)),
		zap.Int("iteration", r.machine.Iterations),
	)
}

func forcedObservation() string {
	return encode(statusView{Status: string(domain.ToolForced), Message: forcedFinalMessage})
}

// finalAnswer picks the user-facing text for the finished run.
func (o *Orchestrator) finalAnswer(r *run) string {
	if r.answer != "" {
		return r.answer
	}
	if r.err != nil && domain.KindOf(r.err) == domain.KindNone {
		return "The question was cancelled before an answer was produced."
	}
	if len(r.evidence.sources) > 0 {
		reason := "I could not finish the answer within the allowed number of search steps."
		if r.err != nil {
			reason = "The language model stopped responding before the answer was finished."
		}
		return fmt.Sprintf("%s The most relevant documents found were: %s.",
			reason, strings.Join(firstN(r.evidence.sources, 5), ", "))
	}
	if r.err != nil {
		if domain.IsRateLimited(r.err) {
			return rateLimitAnswer
		}
		return unavailAnswer
	}
	if r.machine.Iterations <= 1 {
		return setupFailAnswer
	}
	return noEvidenceAnswer
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
