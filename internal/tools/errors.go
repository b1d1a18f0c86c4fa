package tools

import "errors"

// Tool invocation errors. Engine.Execute folds all of them into a failed
// ToolResult; Engine.Invoke also returns them for callers that classify.
var (
	// ErrParse is returned when tool markup cannot be split into name/value pairs.
	ErrParse = errors.New("malformed tool markup")

	// ErrToolNotFound is returned when no tool is registered for a tool type.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolExecution wraps failures and panics raised inside a tool.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrToolTimeout is returned when a tool exceeds the engine timeout.
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrValidation is returned for missing or malformed parameters.
	ErrValidation = errors.New("invalid tool parameters")

	// ErrToolExists is returned when registering a duplicate tool name.
	ErrToolExists = errors.New("tool already registered")
)
