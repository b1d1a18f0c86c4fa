package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ashutoshrp06/friday/internal/types"
)

const maxPreview = 300

// TerminalSink prints agent events to w as they arrive, for one-shot mode.
type TerminalSink struct {
	mu      sync.Mutex
	w       io.Writer
	styles  Styles
	current types.BlockKind
	inSpan  bool
}

// NewTerminalSink creates a sink writing to w.
func NewTerminalSink(w io.Writer, styles Styles) *TerminalSink {
	return &TerminalSink{w: w, styles: styles}
}

func (s *TerminalSink) Send(ev types.AgentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.State {
	case types.StateThinking:
		s.text(ev.Kind, s.styles.ThinkingMessage.UnsetPaddingLeft().Render(ev.Message))
	case types.StateResponding:
		s.text(ev.Kind, ev.Message)
	case types.StateToolCall:
		s.endSpan()
		fmt.Fprintln(s.w, s.styles.ToolName.Render("→ "+ev.ToolName))
	case types.StateToolResult, types.StateError:
		s.endSpan()
		if ev.Execution != nil {
			fmt.Fprintln(s.w, renderOutcome(s.styles, ev.Execution))
			return
		}
		if ev.Error != nil {
			fmt.Fprintln(s.w, s.styles.ToolError.Render("Error: "+ev.Error.Error()))
		}
	case types.StateDone:
		s.endSpan()
		if ev.Summary != nil && ev.Summary.TotalToolsExecuted > 0 {
			fmt.Fprintln(s.w, s.styles.StatusText.Render(summaryLine(ev.Summary)))
		}
	}
}

func (s *TerminalSink) text(kind types.BlockKind, rendered string) {
	if s.inSpan && s.current != kind {
		fmt.Fprintln(s.w)
	}
	s.inSpan = true
	s.current = kind
	fmt.Fprint(s.w, rendered)
}

func (s *TerminalSink) endSpan() {
	if s.inSpan {
		fmt.Fprintln(s.w)
		s.inSpan = false
	}
}

// renderOutcome renders one finished tool execution on one or more lines.
func renderOutcome(styles Styles, exec *types.ToolExecution) string {
	if exec.Result == nil {
		return styles.ToolError.Render("  ✗ " + exec.ToolName)
	}
	r := exec.Result
	if !r.Success {
		return styles.ToolError.Render(fmt.Sprintf("  ✗ %s: %s", exec.ToolName, r.Error))
	}

	var b strings.Builder
	b.WriteString(styles.ToolSuccess.Render("  ✓ " + exec.ToolName))
	b.WriteString(styles.ToolParams.Render(fmt.Sprintf(" (%.0fms)", r.ExecutionTimeMs)))
	if out := preview(r.Data); out != "" {
		for _, line := range strings.Split(out, "\n") {
			if line != "" {
				b.WriteString("\n")
				b.WriteString(styles.ToolOutput.Render("  | " + line))
			}
		}
	}
	return b.String()
}

func summaryLine(c *types.ConsolidatedResults) string {
	return fmt.Sprintf("%d tool(s): %d ok, %d failed, %.0fms",
		c.TotalToolsExecuted, c.SuccessfulExecutions, c.FailedExecutions, c.ExecutionTimeMs)
}

func preview(data any) string {
	if data == nil {
		return ""
	}
	out := fmt.Sprintf("%v", data)
	if len(out) > maxPreview {
		out = out[:maxPreview] + "..."
	}
	return out
}
