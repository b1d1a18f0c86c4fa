package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/ashutoshrp06/friday/internal/types"
	"go.uber.org/zap"
)

// EngineConfig holds engine settings.
type EngineConfig struct {
	// Timeout bounds a single tool execution. Zero means no limit.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Engine turns completed tool blocks into results: parse, then
// validate → execute → measure → translate errors.
type Engine struct {
	registry *Registry
	timeout  time.Duration
	logger   *zap.Logger
}

// NewEngine creates an engine over registry.
func NewEngine(registry *Registry, cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		registry: registry,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

// Registry returns the engine's tool registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Parse decomposes the content of a completed <tool_NAME> block into a call.
func (e *Engine) Parse(toolName, raw string) (types.ToolCall, error) {
	toolType := ToolType(toolName)
	if toolType == "" {
		return types.ToolCall{}, fmt.Errorf("%w: empty tool name %q", ErrParse, toolName)
	}

	params, err := parseParams(raw)
	if err != nil {
		return types.ToolCall{}, fmt.Errorf("%s: %w", toolName, err)
	}

	return types.ToolCall{ToolType: toolType, Params: params}, nil
}

// Execute runs call and never panics; every failure is reported in the
// returned result.
func (e *Engine) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	result, _ := e.Invoke(ctx, call)
	return result
}

// Invoke is Execute that also returns the classified error behind a failed
// result (ErrToolNotFound, ErrValidation, ErrToolExecution, ErrToolTimeout).
func (e *Engine) Invoke(ctx context.Context, call types.ToolCall) (types.ToolResult, error) {
	start := time.Now()

	result, err := e.invoke(ctx, call)
	result.ExecutionTimeMs = float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		result = types.ToolResult{
			Success:         false,
			Error:           err.Error(),
			ExecutionTimeMs: result.ExecutionTimeMs,
		}
		e.logger.Warn("Tool failed",
			zap.String("tool", call.ToolType),
			zap.Float64("execution_time_ms", result.ExecutionTimeMs),
			zap.Error(err))
		return result, err
	}

	e.logger.Info("Tool executed",
		zap.String("tool", call.ToolType),
		zap.Float64("execution_time_ms", result.ExecutionTimeMs))
	return result, nil
}

func (e *Engine) invoke(ctx context.Context, call types.ToolCall) (types.ToolResult, error) {
	tool, ok := e.registry.Get(call.ToolType)
	if !ok {
		return types.ToolResult{}, fmt.Errorf("%w: %s", ErrToolNotFound, call.ToolType)
	}

	params, err := validateParams(tool, call.Params)
	if err != nil {
		return types.ToolResult{}, err
	}

	data, err := e.run(ctx, tool, params)
	if err != nil {
		return types.ToolResult{}, err
	}
	return types.ToolResult{Success: true, Data: data}, nil
}

// run executes the tool, bounded by the engine timeout when one is set.
func (e *Engine) run(ctx context.Context, tool Tool, params types.Params) (any, error) {
	if e.timeout <= 0 {
		return safeExecute(ctx, tool, params)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := safeExecute(runCtx, tool, params)
		done <- outcome{data: data, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-runCtx.Done():
		out.err = runCtx.Err()
	}

	if out.err != nil && runCtx.Err() != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrToolExecution, tool.Name(), ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s after %s", ErrToolTimeout, tool.Name(), e.timeout)
	}
	return out.data, out.err
}

// safeExecute calls the tool and converts panics and errors into
// ErrToolExecution. Validation errors raised by the tool keep their class.
func safeExecute(ctx context.Context, tool Tool, params types.Params) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("%w: %s panicked: %v", ErrToolExecution, tool.Name(), r)
		}
	}()

	data, err = tool.Execute(ctx, params)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrToolExecution, tool.Name(), err)
	}
	return data, nil
}

// validateParams checks required parameters, enum values, and scalar types,
// and returns a copy of params with defaults appended for missing optionals.
func validateParams(tool Tool, params types.Params) (types.Params, error) {
	out := make(types.Params, len(params))
	copy(out, params)

	for _, def := range tool.Parameters() {
		value, exists := out.Get(def.Name)

		if !exists || value == "" {
			if def.Required {
				return nil, fmt.Errorf("%w: missing required parameter: %s", ErrValidation, def.Name)
			}
			if def.Default != "" {
				out = out.Set(def.Name, def.Default)
			}
			continue
		}

		if len(def.Enum) > 0 && !slices.Contains(def.Enum, value) {
			return nil, fmt.Errorf("%w: invalid value for %s: must be one of %v", ErrValidation, def.Name, def.Enum)
		}

		if err := checkType(def.Type, value); err != nil {
			return nil, fmt.Errorf("%w: parameter %s: %v", ErrValidation, def.Name, err)
		}
	}
	return out, nil
}

func checkType(typ, value string) error {
	var err error
	switch typ {
	case "int", "integer":
		_, err = strconv.Atoi(value)
	case "float", "number":
		_, err = strconv.ParseFloat(value, 64)
	case "bool", "boolean":
		_, err = strconv.ParseBool(value)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("expected %s, got %q", typ, value)
	}
	return nil
}

// Consolidate aggregates results in order. Payloads keeps one entry per
// successful result so no tool's data is overwritten by another's.
func Consolidate(results []types.ToolResult) types.ConsolidatedResults {
	c := types.ConsolidatedResults{
		TotalToolsExecuted: len(results),
		Results:            make([]types.ToolResult, len(results)),
		Payloads:           make([]any, 0, len(results)),
	}
	copy(c.Results, results)

	for _, r := range results {
		c.ExecutionTimeMs += r.ExecutionTimeMs
		if r.Success {
			c.SuccessfulExecutions++
			c.Payloads = append(c.Payloads, r.Data)
		} else {
			c.FailedExecutions++
		}
	}
	return c
}
