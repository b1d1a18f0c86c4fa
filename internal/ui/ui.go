// Package ui provides the terminal user interface using Bubble Tea.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashutoshrp06/friday/internal/agent"
	"github.com/ashutoshrp06/friday/internal/types"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TurnFunc starts a turn for query. Cancelling ctx aborts it.
type TurnFunc func(ctx context.Context, query string) tea.Cmd

// Model is the Bubble Tea model for an interactive session.
type Model struct {
	// UI Components
	textInput textinput.Model
	spinner   spinner.Model
	viewport  viewport.Model
	styles    Styles

	// State
	state      types.AgentState
	messages   []chatMessage
	streaming  int // index of the message receiving chunks, or -1
	activeTool *toolView
	errShown   bool
	cancel     context.CancelFunc
	width      int
	height     int
	ready      bool
	quitting   bool
	info       string

	tools       []types.ToolInfo
	processTurn TurnFunc
}

type role string

const (
	roleUser      role = "user"
	roleThinking  role = "thinking"
	roleAssistant role = "assistant"
	roleSystem    role = "system"
	roleTool      role = "tool"
)

type chatMessage struct {
	role    role
	content string
	exec    *types.ToolExecution
}

// toolView is the tool call currently being streamed or executed.
type toolView struct {
	name      string
	params    types.Params
	executing bool
}

// NewModel creates a new UI model.
func NewModel(processTurn TurnFunc, tools []types.ToolInfo) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about your documents... (e.g., 'How does token refresh work?')"
	ti.Focus()
	ti.CharLimit = 4000
	ti.Width = 80

	styles := DefaultStyles()
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	vp := viewport.New(0, 0)
	vp.KeyMap = viewport.DefaultKeyMap()

	return Model{
		textInput:   ti,
		spinner:     s,
		viewport:    vp,
		styles:      styles,
		state:       types.StateIdle,
		streaming:   -1,
		tools:       tools,
		processTurn: processTurn,
	}
}

// WithInfo sets the status text shown under the banner.
func (m Model) WithInfo(info string) Model {
	m.info = info
	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
	)
}

func (m Model) headerHeight() int {
	banner := m.styles.BannerTitle.Render(Banner())
	h := lipgloss.Height(banner) + 2
	if m.info != "" {
		h++
	}
	return h
}

// 1 blank line + 1 prompt/input line + 1 newline + 1 help bar
func (m Model) footerHeight() int {
	return 4
}

// updateViewport rebuilds the viewport content and scrolls to the bottom.
func (m *Model) updateViewport() {
	var b strings.Builder

	for _, msg := range m.messages {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}

	if m.activeTool != nil {
		b.WriteString(m.renderToolInProgress())
		b.WriteString("\n")
	}

	if m.state != types.StateIdle {
		b.WriteString(m.renderStatus())
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.state == types.StateIdle {
				m.quitting = true
				return m, tea.Quit
			}
			if m.cancel != nil {
				m.cancel()
				m.cancel = nil
				m.addSystem("Cancelling...")
				m.updateViewport()
			}
			return m, nil

		case tea.KeyEnter:
			if m.state != types.StateIdle {
				return m, nil
			}

			query := strings.TrimSpace(m.textInput.Value())
			if query == "" {
				return m, nil
			}

			if handled, cmd := m.handleCommand(query); handled {
				m.textInput.SetValue("")
				m.updateViewport()
				return m, cmd
			}

			m.messages = append(m.messages, chatMessage{role: roleUser, content: query})
			m.textInput.SetValue("")
			m.state = types.StateThinking
			m.streaming = -1
			m.errShown = false
			m.updateViewport()

			if m.processTurn != nil {
				ctx, cancel := context.WithCancel(context.Background())
				m.cancel = cancel
				cmds = append(cmds, m.processTurn(ctx, query))
			}
			return m, tea.Batch(cmds...)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textInput.Width = msg.Width - 10

		vpHeight := msg.Height - m.headerHeight() - m.footerHeight()
		if vpHeight < 1 {
			vpHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.viewport.KeyMap = viewport.DefaultKeyMap()
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}

		m.ready = true
		m.updateViewport()

	case types.AgentEvent:
		m.handleAgentEvent(msg)
		m.updateViewport()
		return m, nil

	case agent.TurnDoneMsg:
		m.handleTurnDone(msg)
		m.updateViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.state != types.StateIdle {
			m.updateViewport()
		}
	}

	if m.state == types.StateIdle {
		var tiCmd tea.Cmd
		m.textInput, tiCmd = m.textInput.Update(msg)
		cmds = append(cmds, tiCmd)
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	return m, tea.Batch(cmds...)
}

// handleCommand processes special commands. It reports whether input was one.
func (m *Model) handleCommand(input string) (bool, tea.Cmd) {
	switch strings.ToLower(input) {
	case "exit", "quit", "q":
		m.quitting = true
		return true, tea.Quit

	case "clear":
		m.messages = nil
		return true, nil

	case "help", "?":
		m.addSystem(`Available commands:
  help, ?     Show this help
  clear       Clear the screen (the session keeps its history)
  tools       List the tools the assistant can call
  exit, quit  Exit

Example queries:
  "How does the auth service refresh tokens?"
  "Summarize the deployment runbook"`)
		return true, nil

	case "tools":
		m.addSystem(m.toolsText())
		return true, nil
	}
	return false, nil
}

func (m Model) toolsText() string {
	if len(m.tools) == 0 {
		return "No tools registered."
	}
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, t := range m.tools {
		fmt.Fprintf(&b, "  %s  %s\n", t.Name, t.Description)
		for _, p := range t.Parameters {
			req := ""
			if p.Required {
				req = " (required)"
			}
			fmt.Fprintf(&b, "      %s%s\n", p.Name, req)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) handleAgentEvent(ev types.AgentEvent) {
	m.state = ev.State

	switch ev.State {
	case types.StateThinking:
		m.appendChunk(roleThinking, ev.Message)

	case types.StateResponding:
		m.appendChunk(roleAssistant, ev.Message)

	case types.StateToolCall:
		m.streaming = -1
		m.activeTool = &toolView{name: ev.ToolName}

	case types.StateToolExecuting:
		if m.activeTool == nil {
			m.activeTool = &toolView{name: ev.ToolName}
		}
		m.activeTool.executing = true
		if ev.Execution != nil && ev.Execution.Call != nil {
			m.activeTool.params = ev.Execution.Call.Params
		}

	case types.StateToolResult, types.StateError:
		if ev.Execution != nil {
			m.messages = append(m.messages, chatMessage{role: roleTool, exec: ev.Execution})
			m.activeTool = nil
			m.streaming = -1
			return
		}
		m.activeTool = nil
		m.streaming = -1
		m.addSystem("Error: " + errText(ev.Error))
		m.errShown = true

	case types.StateDone:
		m.streaming = -1
		m.activeTool = nil
		if ev.Summary != nil && ev.Summary.TotalToolsExecuted > 0 {
			m.addSystem(summaryLine(ev.Summary))
		}
	}
}

// appendChunk extends the message being streamed, or starts a new one when
// the content kind changes.
func (m *Model) appendChunk(r role, chunk string) {
	if chunk == "" {
		return
	}
	if m.streaming >= 0 && m.streaming < len(m.messages) && m.messages[m.streaming].role == r {
		m.messages[m.streaming].content += chunk
		return
	}
	m.messages = append(m.messages, chatMessage{role: r, content: chunk})
	m.streaming = len(m.messages) - 1
}

func (m *Model) handleTurnDone(msg agent.TurnDoneMsg) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.state = types.StateIdle
	m.streaming = -1
	m.activeTool = nil

	if msg.Err != nil && !m.errShown {
		m.addSystem("Error: " + msg.Err.Error())
	}
	m.errShown = false
}

func (m *Model) addSystem(content string) {
	m.messages = append(m.messages, chatMessage{role: roleSystem, content: content})
}

func errText(err error) string {
	if err == nil {
		return "an error occurred"
	}
	return err.Error()
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return m.styles.SystemMessage.Render("Goodbye!\n")
	}

	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder

	b.WriteString(m.styles.BannerTitle.Render(Banner()))
	b.WriteString("\n")
	if m.info != "" {
		b.WriteString(m.styles.StatusText.Render(m.info))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	b.WriteString(m.styles.Prompt.Render("> "))
	if m.state == types.StateIdle {
		b.WriteString(m.textInput.View())
	} else {
		b.WriteString(m.styles.StatusText.Render("(processing... esc to cancel)"))
	}
	b.WriteString("\n")
	b.WriteString(m.renderHelpBar())

	return m.styles.App.Render(b.String())
}

func (m Model) renderMessage(msg chatMessage) string {
	switch msg.role {
	case roleUser:
		return m.styles.UserMessage.Render("You: " + msg.content)
	case roleThinking:
		return m.styles.ThinkingMessage.Render(msg.content)
	case roleAssistant:
		return m.styles.AssistantMessage.Render("Assistant: " + msg.content)
	case roleSystem:
		return m.styles.SystemMessage.Render(msg.content)
	case roleTool:
		if msg.exec != nil {
			return m.renderToolResult(msg.exec)
		}
	}
	return ""
}

// renderToolResult renders a completed tool execution.
func (m Model) renderToolResult(exec *types.ToolExecution) string {
	var b strings.Builder

	b.WriteString(m.styles.ToolName.Render("Tool: " + exec.ToolName))
	if exec.Call != nil && len(exec.Call.Params) > 0 {
		b.WriteString(" ")
		b.WriteString(m.styles.ToolParams.Render(formatParams(exec.Call.Params)))
	}
	b.WriteString("\n")
	b.WriteString(renderOutcome(m.styles, exec))

	return m.styles.ToolBox.Render(b.String())
}

// renderToolInProgress renders a tool that is streaming or executing.
func (m Model) renderToolInProgress() string {
	var b strings.Builder

	b.WriteString(m.styles.ToolName.Render("Tool: " + m.activeTool.name))
	if len(m.activeTool.params) > 0 {
		b.WriteString(" ")
		b.WriteString(m.styles.ToolParams.Render(formatParams(m.activeTool.params)))
	}
	b.WriteString("\n")
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	if m.activeTool.executing {
		b.WriteString(m.styles.StatusText.Render("Executing..."))
	} else {
		b.WriteString(m.styles.StatusText.Render("Reading call..."))
	}

	return m.styles.ToolBox.Render(b.String())
}

func formatParams(params types.Params) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, fmt.Sprintf("%s=%s", p.Name, p.Value))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (m Model) renderStatus() string {
	return fmt.Sprintf("%s %s",
		m.spinner.View(),
		m.styles.StateLabel.Render(m.state.String()+"..."),
	)
}

func (m Model) renderHelpBar() string {
	help := []string{
		m.styles.HelpKey.Render("enter") + m.styles.HelpValue.Render(" send"),
		m.styles.HelpKey.Render("esc") + m.styles.HelpValue.Render(" cancel/quit"),
		m.styles.HelpKey.Render("help") + m.styles.HelpValue.Render(" commands"),
		m.styles.HelpKey.Render("tools") + m.styles.HelpValue.Render(" list tools"),
	}
	return m.styles.HelpBar.Render(strings.Join(help, "  |  "))
}
