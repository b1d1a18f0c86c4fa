package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/ashutoshrp06/friday/internal/dispatch"
	"github.com/ashutoshrp06/friday/internal/stream"
	"github.com/ashutoshrp06/friday/internal/tools"
	"github.com/ashutoshrp06/friday/internal/types"
	"github.com/ashutoshrp06/friday/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	replayChunk   int
	replayExecute bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Replay recorded model output through the parser and dispatcher",
	Long: `Feed a file of raw model output through the streaming parser in
fixed-size fragments, dispatching blocks as a live turn would.

Tools run in dry-run mode and echo their validated parameters unless
--execute is given, which calls the configured search backend.

Examples:
  friday replay reply.txt
  friday replay reply.txt --chunk 3 --execute`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		engine, closeFn, err := replayEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		sink := ui.NewTerminalSink(os.Stdout, ui.DefaultStyles())
		summary, err := replay(cmd.Context(), f, replayChunk, engine, sink)
		if err != nil {
			return err
		}
		fmt.Printf("\ntools: %d total, %d ok, %d failed\n",
			summary.TotalTools, summary.SuccessfulTools, summary.FailedTools)
		return nil
	},
}

func init() {
	replayCmd.Flags().IntVar(&replayChunk, "chunk", 16, "Fragment size in bytes")
	replayCmd.Flags().BoolVar(&replayExecute, "execute", false, "Execute tools against the configured backend")
}

func replayEngine() (*tools.Engine, func(), error) {
	if replayExecute {
		a, logger, err := initAgent()
		if err != nil {
			return nil, nil, err
		}
		return a.Engine(), func() { a.Close(); logger.Sync() }, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	var toolset []tools.Tool
	for _, t := range tools.SearchTools(tools.SearchConfig{}) {
		toolset = append(toolset, dryRun{t})
	}
	registry, err := tools.BuildRegistry(toolset, cfg.Tools.DefinitionsPath)
	if err != nil {
		return nil, nil, err
	}
	return tools.NewEngine(registry, tools.EngineConfig{Timeout: cfg.ToolTimeout()}), func() {}, nil
}

// dryRun echoes the validated parameters instead of executing.
type dryRun struct {
	tools.Tool
}

func (d dryRun) Execute(ctx context.Context, params types.Params) (any, error) {
	return map[string]any{"dry_run": true, "params": params.Map()}, nil
}

// replay feeds r through a parser in chunk-byte fragments, never splitting a
// UTF-8 sequence, and dispatches every block.
func replay(ctx context.Context, r io.Reader, chunk int, engine *tools.Engine, sink dispatch.Sink) (dispatch.TurnSummary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return dispatch.TurnSummary{}, fmt.Errorf("read replay input: %w", err)
	}
	if chunk <= 0 {
		chunk = len(data)
	}

	parser := stream.NewParser()
	d := dispatch.New(engine, sink, zap.NewNop())

	for start := 0; start < len(data); {
		end := min(start+chunk, len(data))
		for end < len(data) && !utf8.RuneStart(data[end]) {
			end++
		}
		blocks, err := parser.Feed(string(data[start:end]))
		if err != nil {
			return dispatch.TurnSummary{}, err
		}
		for _, b := range blocks {
			d.Handle(ctx, b)
		}
		start = end
	}
	for _, b := range parser.Finalize() {
		d.Handle(ctx, b)
	}
	return d.Finalize(), nil
}
