// Package stream turns incrementally generated model output into typed blocks.
package stream

import (
	"errors"
	"strings"

	"github.com/ashutoshrp06/friday/internal/types"
)

// ErrFinalized is returned when Feed is called after Finalize without Reset.
var ErrFinalized = errors.New("parser already finalized")

// State is the parser's position relative to tagged spans.
type State int

const (
	StateOutside State = iota
	StateInThinking
	StateInToolCall
	StateInAnswer
)

// String returns a human-readable state name.
func (s State) String() string {
	names := [...]string{"OUTSIDE", "IN_THINKING", "IN_TOOL_CALL", "IN_ANSWER"}
	if int(s) < len(names) {
		return names[s]
	}
	return "UNKNOWN"
}

const (
	thinkingTag = "thinking"
	answerTag   = "present_answer"
	toolPrefix  = "tool_"

	// MaxToolNameLength bounds the NAME part of <tool_NAME>. Longer candidates
	// are treated as text, which also bounds how much input is held back.
	MaxToolNameLength = 64
)

type matchStatus int

const (
	noMatch matchStatus = iota
	partialMatch
	fullMatch
)

// Parser is a streaming state machine over the tag protocol:
//
//	<thinking>…</thinking>  <tool_NAME>…</tool_NAME>  <present_answer>…</present_answer>
//
// Text outside tags is plain text. Markers may be split across fragments; a
// possible marker prefix at the end of a fragment is held until the next Feed
// resolves it. A Parser is not safe for concurrent use; each session owns one.
type Parser struct {
	state    State
	toolName string
	pending  string
	span     strings.Builder
	// lastNewline is true when the last byte emitted on the current output
	// stream was '\n'. It resets at every marker transition.
	lastNewline bool
	finalized   bool
}

// NewParser returns a parser positioned outside any span.
func NewParser() *Parser {
	return &Parser{}
}

// State returns the current parser state.
func (p *Parser) State() State {
	return p.state
}

// ToolName returns the tag name of the open tool span, if any.
func (p *Parser) ToolName() string {
	return p.toolName
}

// Feed consumes one fragment and returns the blocks it resolves, in order.
func (p *Parser) Feed(fragment string) ([]types.StreamingBlock, error) {
	if p.finalized {
		return nil, ErrFinalized
	}

	data := p.pending + fragment
	p.pending = ""

	var (
		blocks []types.StreamingBlock
		text   strings.Builder
	)
	flush := func() {
		if text.Len() == 0 {
			return
		}
		if b, ok := p.contentBlock(text.String()); ok {
			blocks = append(blocks, b)
		}
		text.Reset()
	}

	i := 0
	for i < len(data) {
		lt := strings.IndexByte(data[i:], '<')
		if lt < 0 {
			text.WriteString(data[i:])
			break
		}
		text.WriteString(data[i : i+lt])
		j := i + lt

		status, n, name := p.matchMarker(data[j:])
		switch status {
		case partialMatch:
			p.pending = data[j:]
			i = len(data)
		case fullMatch:
			flush()
			blocks = append(blocks, p.transition(name))
			i = j + n
		default:
			text.WriteByte('<')
			i = j + 1
		}
	}
	flush()

	return blocks, nil
}

// Finalize flushes buffered input at end of stream and closes the parser.
//
// Held-back bytes become content of the current state. An open thinking or
// answer span is closed with a complete block. An open tool span is never
// completed: its raw markup is salvaged as plain text so it cannot execute.
func (p *Parser) Finalize() []types.StreamingBlock {
	if p.finalized {
		return nil
	}
	p.finalized = true

	var blocks []types.StreamingBlock
	if p.pending != "" {
		if b, ok := p.contentBlock(p.pending); ok {
			blocks = append(blocks, b)
		}
		p.pending = ""
	}

	switch p.state {
	case StateInThinking:
		blocks = append(blocks, types.StreamingBlock{Kind: types.BlockThinking, IsComplete: true})
	case StateInAnswer:
		blocks = append(blocks, types.StreamingBlock{Kind: types.BlockPresentAnswer, IsComplete: true})
	case StateInToolCall:
		raw := "<" + p.toolName + ">" + p.span.String()
		blocks = append(blocks, types.StreamingBlock{Kind: types.BlockPlainText, Content: raw})
	}

	p.state = StateOutside
	p.toolName = ""
	p.span.Reset()
	p.lastNewline = false
	return blocks
}

// Reset discards all buffered state, including any partial tool span, and
// makes the parser ready for a new stream.
func (p *Parser) Reset() {
	p.state = StateOutside
	p.toolName = ""
	p.pending = ""
	p.span.Reset()
	p.lastNewline = false
	p.finalized = false
}

// contentBlock normalizes text for the current stream and wraps it in a block
// of the current kind. It reports false when nothing remains after collapsing.
func (p *Parser) contentBlock(text string) (types.StreamingBlock, bool) {
	out := p.collapseNewlines(text)
	if out == "" {
		return types.StreamingBlock{}, false
	}

	if p.state == StateOutside {
		return types.StreamingBlock{Kind: types.BlockPlainText, Content: out}, true
	}

	p.span.WriteString(out)
	return types.StreamingBlock{
		Kind:          p.kind(),
		Content:       out,
		IsIncremental: true,
		ToolName:      p.toolName,
	}, true
}

// collapseNewlines reduces every run of '\n' to a single newline, carrying
// the run across calls through lastNewline.
func (p *Parser) collapseNewlines(text string) string {
	if !strings.Contains(text, "\n") {
		if text != "" {
			p.lastNewline = false
		}
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text))
	for k := 0; k < len(text); k++ {
		c := text[k]
		if c == '\n' {
			if p.lastNewline {
				continue
			}
			p.lastNewline = true
		} else {
			p.lastNewline = false
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// transition applies a resolved marker and returns the block it produces.
// name is the tag name without brackets or slash.
func (p *Parser) transition(name string) types.StreamingBlock {
	p.lastNewline = false

	if p.state != StateOutside {
		block := types.StreamingBlock{Kind: p.kind(), IsComplete: true, ToolName: p.toolName}
		p.state = StateOutside
		p.toolName = ""
		p.span.Reset()
		return block
	}

	p.span.Reset()
	switch {
	case name == thinkingTag:
		p.state = StateInThinking
	case name == answerTag:
		p.state = StateInAnswer
	default:
		p.state = StateInToolCall
		p.toolName = name
	}
	return types.StreamingBlock{Kind: p.kind(), IsStartMarker: true, ToolName: p.toolName}
}

func (p *Parser) kind() types.BlockKind {
	switch p.state {
	case StateInThinking:
		return types.BlockThinking
	case StateInToolCall:
		return types.BlockToolCall
	case StateInAnswer:
		return types.BlockPresentAnswer
	}
	return types.BlockPlainText
}

// matchMarker classifies rest, which starts with '<', against the markers
// valid in the current state. On a full match it returns the marker length
// and the tag name.
func (p *Parser) matchMarker(rest string) (matchStatus, int, string) {
	switch p.state {
	case StateInThinking:
		return matchFixed(rest, "</"+thinkingTag+">", thinkingTag)
	case StateInAnswer:
		return matchFixed(rest, "</"+answerTag+">", answerTag)
	case StateInToolCall:
		return matchFixed(rest, "</"+p.toolName+">", p.toolName)
	}

	best := noMatch
	for _, m := range []struct{ marker, name string }{
		{"<" + thinkingTag + ">", thinkingTag},
		{"<" + answerTag + ">", answerTag},
	} {
		status, n, name := matchFixed(rest, m.marker, m.name)
		if status == fullMatch {
			return status, n, name
		}
		if status == partialMatch {
			best = partialMatch
		}
	}

	status, n, name := matchToolOpen(rest)
	if status == fullMatch {
		return status, n, name
	}
	if status == partialMatch {
		best = partialMatch
	}
	return best, 0, ""
}

func matchFixed(rest, marker, name string) (matchStatus, int, string) {
	if strings.HasPrefix(rest, marker) {
		return fullMatch, len(marker), name
	}
	if strings.HasPrefix(marker, rest) {
		return partialMatch, 0, ""
	}
	return noMatch, 0, ""
}

// matchToolOpen recognizes <tool_NAME> with NAME in [A-Za-z0-9_-]{1,64}.
func matchToolOpen(rest string) (matchStatus, int, string) {
	open := "<" + toolPrefix
	if !strings.HasPrefix(rest, open) {
		if strings.HasPrefix(open, rest) {
			return partialMatch, 0, ""
		}
		return noMatch, 0, ""
	}

	k := len(open)
	for k < len(rest) && isNameByte(rest[k]) {
		k++
		if k-len(open) > MaxToolNameLength {
			return noMatch, 0, ""
		}
	}
	if k == len(rest) {
		return partialMatch, 0, ""
	}
	if rest[k] == '>' && k > len(open) {
		return fullMatch, k + 1, rest[1:k]
	}
	return noMatch, 0, ""
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '-'
}
