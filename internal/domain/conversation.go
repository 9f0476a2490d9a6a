package domain

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request emitted by the generative model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Turn is one entry of the conversation history. Assistant turns carry either
// text or tool calls; tool turns carry the observation for ToolCallID.
type Turn struct {
	Role       Role       `json:"role"`
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

func ToolTurn(call ToolCall, observation string) Turn {
	return Turn{Role: RoleTool, Text: observation, ToolCallID: call.ID, ToolName: call.Name}
}

type ToolStatus string

const (
	ToolOK          ToolStatus = "ok"
	ToolEmpty       ToolStatus = "no_results"
	ToolError       ToolStatus = "error"
	ToolRateLimited ToolStatus = "rate_limited"
	ToolDuplicate   ToolStatus = "duplicate"
	ToolForced      ToolStatus = "forced_final"
)

// ToolCallRecord tracks one tool call inside a single query's loop.
type ToolCallRecord struct {
	ToolName      string     `json:"tool_name"`
	CanonicalArgs string     `json:"canonical_args"`
	Observation   string     `json:"observation"`
	Status        ToolStatus `json:"status"`
	Iteration     int        `json:"iteration"`
}

// Conversation is the turn history of the reasoning loop. Iterations are
// counted by the agent's state machine.
type Conversation struct {
	Turns []Turn
}

func (c *Conversation) Append(turns ...Turn) {
	c.Turns = append(c.Turns, turns...)
}
