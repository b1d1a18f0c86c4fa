package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/ashutoshrp06/friday/internal/stream"
	"github.com/ashutoshrp06/friday/internal/tools"
	"github.com/ashutoshrp06/friday/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	parser     *stream.Parser
	dispatcher *Dispatcher
	recorder   *Recorder
	calls      []types.Params
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{parser: stream.NewParser(), recorder: &Recorder{}}

	registry := tools.NewRegistry()
	registry.MustRegister(tools.NewFuncTool("semantic_search", "search",
		[]tools.Parameter{{Name: "query", Required: true}},
		func(ctx context.Context, params types.Params) (any, error) {
			h.calls = append(h.calls, params)
			q, _ := params.Get("query")
			return []string{"doc about " + q}, nil
		}))
	registry.MustRegister(tools.NewFuncTool("broken", "always fails", nil,
		func(ctx context.Context, params types.Params) (any, error) {
			return nil, errors.New("backend unavailable")
		}))

	engine := tools.NewEngine(registry, tools.EngineConfig{})
	h.dispatcher = New(engine, h.recorder, nil)
	return h
}

func (h *harness) feed(t *testing.T, fragments ...string) {
	t.Helper()
	for _, f := range fragments {
		blocks, err := h.parser.Feed(f)
		require.NoError(t, err)
		for _, b := range blocks {
			h.dispatcher.Handle(context.Background(), b)
		}
	}
}

func (h *harness) finish() TurnSummary {
	for _, b := range h.parser.Finalize() {
		h.dispatcher.Handle(context.Background(), b)
	}
	return h.dispatcher.Finalize()
}

func TestDispatcher_EndToEndScenario(t *testing.T) {
	h := newHarness(t)

	h.feed(t,
		"<thinking>", "Voy a buscar", "</thinking>",
		"<tool_semantic_search>", "<query>auth</query>", "</tool_semantic_search>",
		"<present_answer>", "Resultado final", "</present_answer>",
	)
	summary := h.finish()

	thinking := h.recorder.Filter(types.StateThinking)
	require.Len(t, thinking, 1)
	assert.Equal(t, "Voy a buscar", thinking[0].Message)

	var answers []types.AgentEvent
	for _, ev := range h.recorder.Filter(types.StateResponding) {
		if ev.Kind == types.BlockPresentAnswer {
			answers = append(answers, ev)
		}
	}
	require.Len(t, answers, 1)
	assert.Equal(t, "Resultado final", answers[0].Message)

	require.Len(t, summary.ToolResults, 1)
	exec := summary.ToolResults[0]
	assert.Equal(t, "tool_semantic_search", exec.ToolName)
	assert.Equal(t, "<query>auth</query>", exec.RawContent)
	require.NotNil(t, exec.Result)
	assert.True(t, exec.Result.Success)
	assert.Equal(t, []string{"doc about auth"}, exec.Result.Data)

	assert.Equal(t, 1, summary.TotalTools)
	assert.Equal(t, 1, summary.SuccessfulTools)
	assert.Equal(t, "Voy a buscar", summary.ThinkingBuffer)
	assert.Equal(t, "Resultado final", summary.AnswerBuffer)
	assert.Equal(t, []string{"semantic_search"}, summary.ToolsUsed())
}

func TestDispatcher_NoPartialToolExecution(t *testing.T) {
	h := newHarness(t)

	h.feed(t, "<tool_semantic_search><query>a")
	assert.Empty(t, h.calls)
	assert.Empty(t, h.dispatcher.Completed())

	h.feed(t, "</query></tool_semantic_search>")
	require.Len(t, h.calls, 1)
	require.Len(t, h.dispatcher.Completed(), 1)
	assert.NotNil(t, h.dispatcher.Completed()[0].Result)
}

func TestDispatcher_UnterminatedToolAtEndOfStream(t *testing.T) {
	h := newHarness(t)

	h.feed(t, "<tool_semantic_search><query>a")
	summary := h.finish()

	assert.Empty(t, h.calls)
	assert.Zero(t, summary.TotalTools)
	assert.Empty(t, summary.ToolResults)
	assert.Empty(t, h.recorder.Filter(types.StateToolExecuting))

	plain := ""
	for _, ev := range h.recorder.Filter(types.StateResponding) {
		if ev.Kind == types.BlockPlainText {
			plain += ev.Message
		}
	}
	assert.Equal(t, "<tool_semantic_search><query>a", plain)
}

func TestDispatcher_FailuresDoNotStopTurn(t *testing.T) {
	h := newHarness(t)

	h.feed(t,
		"<tool_broken></tool_broken>",
		"<tool_missing><query>x</query></tool_missing>",
		"<tool_semantic_search><query>x</query><query>y</query></tool_semantic_search>",
		"<tool_semantic_search></tool_semantic_search>",
		"<tool_semantic_search>ok</tool_semantic_search>",
		"<present_answer>still answered</present_answer>",
	)
	summary := h.finish()

	require.Len(t, summary.ToolResults, 5)
	assert.Equal(t, 5, summary.TotalTools)
	assert.Equal(t, 1, summary.SuccessfulTools)
	assert.Equal(t, 4, summary.FailedTools)
	assert.Equal(t, "still answered", summary.AnswerBuffer)

	errs := h.recorder.Filter(types.StateError)
	require.Len(t, errs, 4)
	assert.ErrorIs(t, errs[0].Error, tools.ErrToolExecution)
	assert.ErrorIs(t, errs[1].Error, tools.ErrToolNotFound)
	assert.ErrorIs(t, errs[2].Error, tools.ErrParse)
	assert.ErrorIs(t, errs[3].Error, tools.ErrValidation)
	for _, ev := range errs {
		require.NotNil(t, ev.Execution)
		assert.False(t, ev.Execution.Result.Success)
		assert.NotEmpty(t, ev.Execution.Result.Error)
	}

	// the parse failure never reaches execution
	assert.Nil(t, summary.ToolResults[2].Call)
	assert.Equal(t, []string{"broken", "missing", "semantic_search"}, summary.ToolsUsed())
}

func TestDispatcher_SpanBuffersClearOnComplete(t *testing.T) {
	h := newHarness(t)

	h.feed(t, "<thinking>one</thinking>", "<thinking>two</thinking>")
	summary := h.finish()

	assert.Equal(t, "one\ntwo", summary.ThinkingBuffer)
}

func TestDispatcher_FinalizeResetsTurn(t *testing.T) {
	h := newHarness(t)

	h.feed(t, "<tool_semantic_search>a</tool_semantic_search>")
	first := h.finish()
	require.Equal(t, 1, first.TotalTools)

	h.parser.Reset()
	h.feed(t, "plain")
	second := h.finish()
	assert.Zero(t, second.TotalTools)
	assert.Empty(t, second.AnswerBuffer)

	done := h.recorder.Filter(types.StateDone)
	require.Len(t, done, 2)
	assert.Equal(t, 1, done[0].Summary.TotalToolsExecuted)
}

func TestMultiSink(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	var viaFunc int
	sink := MultiSink{a, nil, b, SinkFunc(func(types.AgentEvent) { viaFunc++ })}

	sink.Send(types.AgentEvent{State: types.StateThinking})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Equal(t, 1, viaFunc)
}
