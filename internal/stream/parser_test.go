package stream

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/ashutoshrp06/friday/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mixedResponse = "Intro\n\n<thinking>Voy a\n\n buscar</thinking>\n\n" +
	"<tool_semantic_search><query>auth</query><top_k>3</top_k></tool_semantic_search>" +
	"Tail <b>bold</b>\n<present_answer>Resultado\n\n\nfinal</present_answer>"

func feedAll(t *testing.T, p *Parser, chunks []string) []types.StreamingBlock {
	t.Helper()
	var blocks []types.StreamingBlock
	for _, c := range chunks {
		out, err := p.Feed(c)
		require.NoError(t, err)
		blocks = append(blocks, out...)
	}
	return append(blocks, p.Finalize()...)
}

func contentByKind(blocks []types.StreamingBlock) map[types.BlockKind]string {
	out := make(map[types.BlockKind]string)
	for _, b := range blocks {
		out[b.Kind] += b.Content
	}
	return out
}

func splitEvery(s string, n int) []string {
	var chunks []string
	for len(s) > n {
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return append(chunks, s)
}

func TestParser_EndToEndFragments(t *testing.T) {
	fragments := []string{
		"<thinking>", "Voy a buscar", "</thinking>",
		"<tool_semantic_search>", "<query>auth</query>", "</tool_semantic_search>",
		"<present_answer>", "Resultado final", "</present_answer>",
	}

	blocks := feedAll(t, NewParser(), fragments)

	var thinking, answers []types.StreamingBlock
	var completedTools []string
	for _, b := range blocks {
		switch {
		case b.Kind == types.BlockThinking && b.Content != "":
			thinking = append(thinking, b)
		case b.Kind == types.BlockPresentAnswer && b.Content != "":
			answers = append(answers, b)
		case b.Kind == types.BlockToolCall && b.IsComplete:
			completedTools = append(completedTools, b.ToolName)
		}
	}

	require.Len(t, thinking, 1)
	assert.Equal(t, "Voy a buscar", thinking[0].Content)
	require.Len(t, answers, 1)
	assert.Equal(t, "Resultado final", answers[0].Content)
	assert.Equal(t, []string{"tool_semantic_search"}, completedTools)
}

func TestParser_SpanShape(t *testing.T) {
	blocks := feedAll(t, NewParser(), []string{"<thinking>a", "b", "c</thinking>"})

	require.Len(t, blocks, 5)
	assert.True(t, blocks[0].IsStartMarker)
	assert.Empty(t, blocks[0].Content)
	for _, b := range blocks[1:4] {
		assert.True(t, b.IsIncremental)
		assert.False(t, b.IsStartMarker)
		assert.False(t, b.IsComplete)
	}
	assert.True(t, blocks[4].IsComplete)
	for _, b := range blocks {
		assert.Equal(t, types.BlockThinking, b.Kind)
	}
}

func TestParser_ChunkingInvariance(t *testing.T) {
	inputs := []string{
		mixedResponse,
		"plain only\n\n\nno tags",
		"<tool_x><query>a < b && c</query></tool_x>",
		"<thinking></thinking><present_answer>\n\n</present_answer>",
		"a <thinkin b <tool_ c <tool_ok>x</tool_ok> <present_answe",
		"Line1\n\n\nLine2",
	}

	for _, input := range inputs {
		whole := contentByKind(feedAll(t, NewParser(), []string{input}))

		t.Run("single_bytes", func(t *testing.T) {
			assert.Equal(t, whole, contentByKind(feedAll(t, NewParser(), splitEvery(input, 1))))
		})

		t.Run("every_split_point", func(t *testing.T) {
			for cut := 1; cut < len(input); cut++ {
				got := contentByKind(feedAll(t, NewParser(), []string{input[:cut], input[cut:]}))
				require.Equal(t, whole, got, "split at %d", cut)
			}
		})

		t.Run("random_chunks", func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			for round := 0; round < 50; round++ {
				var chunks []string
				rest := input
				for len(rest) > 0 {
					n := 1 + rng.Intn(7)
					if n > len(rest) {
						n = len(rest)
					}
					chunks = append(chunks, rest[:n])
					rest = rest[n:]
				}
				require.Equal(t, whole, contentByKind(feedAll(t, NewParser(), chunks)))
			}
		})
	}
}

func TestParser_MixedResponseContent(t *testing.T) {
	got := contentByKind(feedAll(t, NewParser(), []string{mixedResponse}))

	assert.Equal(t, "Voy a\n buscar", got[types.BlockThinking])
	assert.Equal(t, "<query>auth</query><top_k>3</top_k>", got[types.BlockToolCall])
	assert.Equal(t, "Resultado\nfinal", got[types.BlockPresentAnswer])
	assert.Contains(t, got[types.BlockPlainText], "Tail <b>bold</b>")
}

func TestParser_NewlineCollapsing(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"run of three", []string{"Line1\n\n\nLine2"}, "Line1\nLine2"},
		{"single newline kept", []string{"Line1\nLine2"}, "Line1\nLine2"},
		{"run across fragments", []string{"Line1\n", "\nLine2"}, "Line1\nLine2"},
		{"run split over three", []string{"Line1\n", "\n", "\n\nLine2"}, "Line1\nLine2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contentByKind(feedAll(t, NewParser(), tt.chunks))
			assert.Equal(t, tt.want, got[types.BlockPlainText])
		})
	}

	t.Run("inside answer span", func(t *testing.T) {
		got := contentByKind(feedAll(t, NewParser(), []string{"<present_answer>a\n", "\n\nb</present_answer>"}))
		assert.Equal(t, "a\nb", got[types.BlockPresentAnswer])
	})
}

func TestParser_MarkerSplitAcrossFragments(t *testing.T) {
	p := NewParser()

	out, err := p.Feed("hello <tool_sem")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "hello ", out[0].Content)
	assert.Equal(t, StateOutside, p.State())

	out, err = p.Feed("antic_search>")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsStartMarker)
	assert.Equal(t, "tool_semantic_search", out[0].ToolName)
	assert.Equal(t, StateInToolCall, p.State())
}

func TestParser_NestedTagsAreToolContent(t *testing.T) {
	blocks := feedAll(t, NewParser(), []string{"<tool_x><query>a</query><thinking>no</thinking></tool_x>"})

	got := contentByKind(blocks)
	assert.Equal(t, "<query>a</query><thinking>no</thinking>", got[types.BlockToolCall])
	assert.Empty(t, got[types.BlockThinking])
}

func TestParser_UnterminatedToolNeverCompletes(t *testing.T) {
	p := NewParser()
	blocks, err := p.Feed("<tool_x><query>a")
	require.NoError(t, err)
	blocks = append(blocks, p.Finalize()...)

	for _, b := range blocks {
		assert.False(t, b.Kind == types.BlockToolCall && b.IsComplete, "unterminated tool must not complete")
	}
	last := blocks[len(blocks)-1]
	assert.Equal(t, types.BlockPlainText, last.Kind)
	assert.Equal(t, "<tool_x><query>a", last.Content)
}

func TestParser_FinalizeSalvagesOpenSpans(t *testing.T) {
	t.Run("thinking", func(t *testing.T) {
		blocks := feedAll(t, NewParser(), []string{"<thinking>half a thought"})
		last := blocks[len(blocks)-1]
		assert.Equal(t, types.BlockThinking, last.Kind)
		assert.True(t, last.IsComplete)
		assert.Equal(t, "half a thought", contentByKind(blocks)[types.BlockThinking])
	})

	t.Run("pending marker prefix", func(t *testing.T) {
		blocks := feedAll(t, NewParser(), []string{"see <present_ans"})
		assert.Equal(t, "see <present_ans", contentByKind(blocks)[types.BlockPlainText])
	})
}

func TestParser_FeedAfterFinalize(t *testing.T) {
	p := NewParser()
	p.Finalize()

	_, err := p.Feed("more")
	assert.ErrorIs(t, err, ErrFinalized)
	assert.Nil(t, p.Finalize())

	p.Reset()
	out, err := p.Feed("more")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "more", out[0].Content)
}

func TestParser_ResetDiscardsPartialTool(t *testing.T) {
	p := NewParser()
	_, err := p.Feed("<tool_x><query>a")
	require.NoError(t, err)

	p.Reset()

	assert.Equal(t, StateOutside, p.State())
	assert.Empty(t, p.ToolName())
	assert.Empty(t, p.Finalize())
}

func TestParser_NonMarkers(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"html tag", "a <b>c</b>"},
		{"empty tool name", "<tool_>x"},
		{"bad tool name", "<tool_a b>x"},
		{"stray close", "</thinking>"},
		{"comparison", "1 < 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := feedAll(t, NewParser(), []string{tt.input})
			for _, b := range blocks {
				assert.Equal(t, types.BlockPlainText, b.Kind)
			}
			assert.Equal(t, tt.input, contentByKind(blocks)[types.BlockPlainText])
		})
	}

	t.Run("overlong tool name", func(t *testing.T) {
		input := "<tool_" + strings.Repeat("a", MaxToolNameLength+1) + ">"
		blocks := feedAll(t, NewParser(), []string{input})
		assert.Equal(t, input, contentByKind(blocks)[types.BlockPlainText])
	})
}
