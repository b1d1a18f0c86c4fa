// Package types defines shared data structures for the friday agent runtime.
package types

import "time"

// BlockKind identifies what a streaming block carries.
type BlockKind int

const (
	BlockPlainText BlockKind = iota
	BlockThinking
	BlockToolCall
	BlockPresentAnswer
)

// String returns the wire-style name of the kind.
func (k BlockKind) String() string {
	names := [...]string{
		"PLAIN_TEXT",
		"THINKING",
		"TOOL_CALL",
		"PRESENT_ANSWER",
	}
	if k >= 0 && int(k) < len(names) {
		return names[k]
	}
	return "UNKNOWN"
}

// StreamingBlock is one typed unit of parsed model output.
//
// All flags are always present. A span of one kind produces at most one block
// with IsStartMarker, zero or more IsIncremental blocks, and exactly one
// IsComplete block whose Content is the whole (normalized) span. Plain text
// blocks have every flag false.
type StreamingBlock struct {
	Kind          BlockKind
	Content       string
	IsStartMarker bool
	IsIncremental bool
	IsComplete    bool
	ToolName      string // full tag name, e.g. "tool_semantic_search"; empty unless Kind is BlockToolCall
}

// Param is a single named tool parameter.
type Param struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Params is an ordered name/value mapping, in the order the model wrote them.
type Params []Param

// Get returns the value for name.
func (p Params) Get(name string) (string, bool) {
	for _, kv := range p {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return "", false
}

// Set replaces the value for name, or appends it.
func (p Params) Set(name, value string) Params {
	for i := range p {
		if p[i].Name == name {
			p[i].Value = value
			return p
		}
	}
	return append(p, Param{Name: name, Value: value})
}

// Map returns the params as an unordered map.
func (p Params) Map() map[string]string {
	m := make(map[string]string, len(p))
	for _, kv := range p {
		m[kv.Name] = kv.Value
	}
	return m
}

// ToolCall is a parsed tool invocation.
type ToolCall struct {
	ToolType string `json:"tool_type"`
	Params   Params `json:"params"`
}

// ToolResult is the outcome of one tool execution. Treat as immutable.
type ToolResult struct {
	Success         bool    `json:"success"`
	Data            any     `json:"data,omitempty"`
	Error           string  `json:"error,omitempty"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
}

// ToolExecution tracks one completed tool block through execution.
type ToolExecution struct {
	ToolName   string      `json:"tool_name"`
	RawContent string      `json:"raw_content"`
	Call       *ToolCall   `json:"call,omitempty"`
	Result     *ToolResult `json:"result,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// ConsolidatedResults aggregates the tool results of a turn.
type ConsolidatedResults struct {
	TotalToolsExecuted   int          `json:"total_tools_executed"`
	SuccessfulExecutions int          `json:"successful_executions"`
	FailedExecutions     int          `json:"failed_executions"`
	Results              []ToolResult `json:"results"`
	Payloads             []any        `json:"payloads"`
	ExecutionTimeMs      float64      `json:"execution_time_ms"`
}

// Role is the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one stored message of a session.
type ConversationTurn struct {
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	Tokens      int            `json:"tokens"`
	ToolsUsed   []string       `json:"tools_used,omitempty"`
	ToolResults map[string]any `json:"tool_results,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Label returns the role as it appears in serialized context.
func (t ConversationTurn) Label() string {
	switch t.Role {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	}
	return string(t.Role)
}

// AgentState represents the current state of agent processing.
type AgentState int

const (
	StateIdle AgentState = iota
	StateThinking
	StateToolCall
	StateToolExecuting
	StateToolResult
	StateResponding
	StateDone
	StateError
)

// String returns a human-readable state name.
func (s AgentState) String() string {
	names := [...]string{
		"Idle",
		"Thinking",
		"Planning tool call",
		"Executing tool",
		"Tool finished",
		"Responding",
		"Done",
		"Error",
	}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// AgentEvent is sent to display sinks while a turn is processed.
type AgentEvent struct {
	State     AgentState
	Kind      BlockKind // content kind of Message
	Message   string
	ToolName  string
	Execution *ToolExecution
	Summary   *ConsolidatedResults
	Error     error
}

// ToolInfo contains metadata about a tool for display.
type ToolInfo struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Parameters  []ParameterInfo `json:"parameters" yaml:"parameters"`
}

// ParameterInfo describes a tool parameter for display and prompts.
type ParameterInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Description string   `json:"description" yaml:"description"`
	Required    bool     `json:"required" yaml:"required"`
	Default     string   `json:"default,omitempty" yaml:"default,omitempty"`
	Enum        []string `json:"enum,omitempty" yaml:"enum,omitempty"`
}
