package main

import (
	"context"
	"strings"
	"testing"

	"github.com/ashutoshrp06/friday/internal/dispatch"
	"github.com/ashutoshrp06/friday/internal/tools"
	"github.com/ashutoshrp06/friday/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recorded = "<thinking>Buscaré «auth»</thinking>\n\n\n" +
	"<tool_semantic_search><query>auth tokens</query><top_k>3</top_k></tool_semantic_search>" +
	"<tool_get_document><collection>docs</collection></tool_get_document>" +
	"<present_answer>Los tokens se renuevan cada hora.</present_answer>"

func dryRunEngine(t *testing.T) *tools.Engine {
	t.Helper()
	var toolset []tools.Tool
	for _, tool := range tools.SearchTools(tools.SearchConfig{}) {
		toolset = append(toolset, dryRun{tool})
	}
	registry, err := tools.BuildRegistry(toolset, "")
	require.NoError(t, err)
	return tools.NewEngine(registry, tools.EngineConfig{})
}

func TestReplay_ChunkSizesAgree(t *testing.T) {
	for _, chunk := range []int{0, 1, 2, 5, 16, 1000} {
		rec := &dispatch.Recorder{}
		summary, err := replay(context.Background(), strings.NewReader(recorded), chunk, dryRunEngine(t), rec)
		require.NoError(t, err, "chunk %d", chunk)

		assert.Equal(t, "Buscaré «auth»", summary.ThinkingBuffer, "chunk %d", chunk)
		assert.Equal(t, "Los tokens se renuevan cada hora.", summary.AnswerBuffer, "chunk %d", chunk)
		assert.Equal(t, 2, summary.TotalTools, "chunk %d", chunk)
		// get_document is missing its required id
		assert.Equal(t, 1, summary.SuccessfulTools, "chunk %d", chunk)
		assert.Equal(t, 1, summary.FailedTools, "chunk %d", chunk)
		assert.Len(t, rec.Filter(types.StateDone), 1)
	}
}

func TestReplay_DryRunEchoesParams(t *testing.T) {
	summary, err := replay(context.Background(),
		strings.NewReader("<tool_semantic_search><query>auth</query></tool_semantic_search>"),
		3, dryRunEngine(t), &dispatch.Recorder{})
	require.NoError(t, err)

	require.Len(t, summary.ToolResults, 1)
	res := summary.ToolResults[0].Result
	require.NotNil(t, res)
	require.True(t, res.Success, res.Error)
	data, ok := res.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["dry_run"])
	assert.Equal(t, "auth", data["params"].(map[string]string)["query"])
}

func TestReplay_UnterminatedToolNeverRuns(t *testing.T) {
	summary, err := replay(context.Background(),
		strings.NewReader("<tool_semantic_search><query>auth"),
		4, dryRunEngine(t), &dispatch.Recorder{})
	require.NoError(t, err)
	assert.Zero(t, summary.TotalTools)
}
