package agent

import (
	"context"

	"github.com/ashutoshrp06/friday/internal/dispatch"
	tea "github.com/charmbracelet/bubbletea"
)

// TurnDoneMsg is delivered to the Bubble Tea program when a turn ends.
type TurnDoneMsg struct {
	Outcome *TurnOutcome
	Err     error
}

// ProcessTurnCmd returns a Bubble Tea command that runs a turn. Display
// events go to sink while the turn runs; the command's message arrives after
// the last of them.
func (a *Agent) ProcessTurnCmd(ctx context.Context, sessionID, input string, sink dispatch.Sink) tea.Cmd {
	return func() tea.Msg {
		outcome, err := a.ProcessTurnTo(ctx, sessionID, input, sink)
		return TurnDoneMsg{Outcome: outcome, Err: err}
	}
}
