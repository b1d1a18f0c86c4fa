// Package dispatch routes parsed stream blocks to display sinks and runs
// completed tool calls.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/ashutoshrp06/friday/internal/tools"
	"github.com/ashutoshrp06/friday/internal/types"
	"go.uber.org/zap"
)

// TurnSummary is the turn-level outcome returned by Finalize.
type TurnSummary struct {
	TotalTools      int
	SuccessfulTools int
	FailedTools     int
	ToolResults     []types.ToolExecution
	Consolidated    types.ConsolidatedResults
	ThinkingBuffer  string
	AnswerBuffer    string
}

// ToolsUsed returns the distinct tool types that were called, in first-use order.
func (s TurnSummary) ToolsUsed() []string {
	var out []string
	seen := make(map[string]bool)
	for _, ex := range s.ToolResults {
		name := tools.ToolType(ex.ToolName)
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Dispatcher consumes blocks for one turn of one session. Handle runs tool
// calls synchronously, so the caller reads no further input until a
// completed tool has a result. It is not safe for concurrent use.
type Dispatcher struct {
	engine *tools.Engine
	sink   Sink
	logger *zap.Logger

	openKind  types.BlockKind
	open      bool
	span      strings.Builder
	thinking  []string
	answer    []string
	completed []types.ToolExecution
}

// New creates a dispatcher. A nil sink discards display events.
func New(engine *tools.Engine, sink Sink, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = SinkFunc(func(types.AgentEvent) {})
	}
	return &Dispatcher{engine: engine, sink: sink, logger: logger}
}

// Handle routes one block.
func (d *Dispatcher) Handle(ctx context.Context, block types.StreamingBlock) {
	switch block.Kind {
	case types.BlockThinking:
		d.handleText(block, types.StateThinking, &d.thinking)
	case types.BlockPresentAnswer:
		d.handleText(block, types.StateResponding, &d.answer)
	case types.BlockToolCall:
		d.handleTool(ctx, block)
	default:
		if block.Content != "" {
			d.sink.Send(types.AgentEvent{
				State:   types.StateResponding,
				Kind:    types.BlockPlainText,
				Message: block.Content,
			})
		}
	}
}

func (d *Dispatcher) handleText(block types.StreamingBlock, state types.AgentState, spans *[]string) {
	switch {
	case block.IsStartMarker:
		d.openSpan(block.Kind)
	case block.IsComplete:
		*spans = append(*spans, d.span.String())
		d.closeSpan()
	case block.Content != "":
		if !d.open {
			d.openSpan(block.Kind)
		}
		d.span.WriteString(block.Content)
		d.sink.Send(types.AgentEvent{State: state, Kind: block.Kind, Message: block.Content})
	}
}

func (d *Dispatcher) handleTool(ctx context.Context, block types.StreamingBlock) {
	switch {
	case block.IsStartMarker:
		d.openSpan(block.Kind)
		d.sink.Send(types.AgentEvent{State: types.StateToolCall, Kind: block.Kind, ToolName: block.ToolName})
	case block.IsComplete:
		raw := d.span.String()
		d.closeSpan()
		d.runTool(ctx, block.ToolName, raw)
	default:
		if !d.open {
			d.openSpan(block.Kind)
		}
		d.span.WriteString(block.Content)
	}
}

// runTool parses and executes one completed tool block. Failures are
// reported to the sink and recorded; they never stop the turn.
func (d *Dispatcher) runTool(ctx context.Context, toolName, raw string) {
	exec := types.ToolExecution{
		ToolName:   toolName,
		RawContent: raw,
		Timestamp:  time.Now(),
	}

	var (
		result types.ToolResult
		err    error
	)
	call, err := d.engine.Parse(toolName, raw)
	if err != nil {
		result = types.ToolResult{Success: false, Error: err.Error()}
	} else {
		exec.Call = &call
		d.sink.Send(types.AgentEvent{
			State:     types.StateToolExecuting,
			Kind:      types.BlockToolCall,
			ToolName:  toolName,
			Execution: &exec,
		})
		result, err = d.engine.Invoke(ctx, call)
	}
	exec.Result = &result
	d.completed = append(d.completed, exec)

	done := exec
	if err != nil {
		d.logger.Warn("Tool call failed", zap.String("tool", toolName), zap.Error(err))
		d.sink.Send(types.AgentEvent{
			State:     types.StateError,
			Kind:      types.BlockToolCall,
			ToolName:  toolName,
			Execution: &done,
			Error:     err,
		})
		return
	}
	d.sink.Send(types.AgentEvent{
		State:     types.StateToolResult,
		Kind:      types.BlockToolCall,
		ToolName:  toolName,
		Execution: &done,
	})
}

func (d *Dispatcher) openSpan(kind types.BlockKind) {
	d.open = true
	d.openKind = kind
	d.span.Reset()
}

func (d *Dispatcher) closeSpan() {
	d.open = false
	d.span.Reset()
}

// Completed returns the tool executions of the current turn so far.
func (d *Dispatcher) Completed() []types.ToolExecution {
	out := make([]types.ToolExecution, len(d.completed))
	copy(out, d.completed)
	return out
}

// Finalize snapshots the turn, sends a done event, and clears the dispatcher
// for the next turn. An unterminated tool span is dropped unexecuted.
func (d *Dispatcher) Finalize() TurnSummary {
	if d.open {
		switch d.openKind {
		case types.BlockToolCall:
			d.logger.Warn("Discarding unterminated tool call", zap.Int("bytes", d.span.Len()))
		case types.BlockThinking:
			d.thinking = append(d.thinking, d.span.String())
		case types.BlockPresentAnswer:
			d.answer = append(d.answer, d.span.String())
		}
	}

	results := make([]types.ToolResult, 0, len(d.completed))
	for _, ex := range d.completed {
		if ex.Result != nil {
			results = append(results, *ex.Result)
		}
	}
	consolidated := tools.Consolidate(results)

	summary := TurnSummary{
		TotalTools:      consolidated.TotalToolsExecuted,
		SuccessfulTools: consolidated.SuccessfulExecutions,
		FailedTools:     consolidated.FailedExecutions,
		ToolResults:     d.Completed(),
		Consolidated:    consolidated,
		ThinkingBuffer:  joinSpans(d.thinking),
		AnswerBuffer:    joinSpans(d.answer),
	}

	d.sink.Send(types.AgentEvent{State: types.StateDone, Summary: &summary.Consolidated})
	d.Reset()
	return summary
}

// Reset discards all turn state without producing a summary.
func (d *Dispatcher) Reset() {
	d.closeSpan()
	d.thinking = nil
	d.answer = nil
	d.completed = nil
}

func joinSpans(spans []string) string {
	var parts []string
	for _, s := range spans {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
