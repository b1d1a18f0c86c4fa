package ui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ashutoshrp06/friday/internal/agent"
	"github.com/ashutoshrp06/friday/internal/dispatch"
	"github.com/ashutoshrp06/friday/internal/types"
	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the interactive UI for one session and blocks until it exits.
func Run(a *agent.Agent, sessionID string) error {
	var p *tea.Program
	sink := dispatch.SinkFunc(func(ev types.AgentEvent) { p.Send(ev) })

	model := NewModel(func(ctx context.Context, query string) tea.Cmd {
		return a.ProcessTurnCmd(ctx, sessionID, query, sink)
	}, a.ListTools()).WithInfo(fmt.Sprintf("%s  session %s", a.LLMInfo(), sessionID))

	p = tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

// RunOneShot runs a single turn, streaming its events to w.
func RunOneShot(ctx context.Context, a *agent.Agent, sessionID, query string, w io.Writer) error {
	styles := DefaultStyles()
	fmt.Fprintln(w, styles.UserMessage.UnsetPaddingLeft().Render("> "+query))

	outcome, err := a.ProcessTurnTo(ctx, sessionID, query, NewTerminalSink(w, styles))
	if err != nil {
		return err
	}

	fmt.Fprintln(w, styles.StatusText.Render(fmt.Sprintf("(%s, session %s)", outcome.Duration.Round(time.Millisecond), sessionID)))
	return nil
}
