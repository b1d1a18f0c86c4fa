// Package agent runs conversation turns: it builds the prompt, streams the
// model's reply through the parser and dispatcher, and records the turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashutoshrp06/friday/internal/cache"
	"github.com/ashutoshrp06/friday/internal/config"
	ctxmgr "github.com/ashutoshrp06/friday/internal/context"
	"github.com/ashutoshrp06/friday/internal/dispatch"
	"github.com/ashutoshrp06/friday/internal/llm"
	"github.com/ashutoshrp06/friday/internal/rag"
	"github.com/ashutoshrp06/friday/internal/store"
	"github.com/ashutoshrp06/friday/internal/stream"
	"github.com/ashutoshrp06/friday/internal/tools"
	"github.com/ashutoshrp06/friday/internal/types"
	"github.com/ashutoshrp06/friday/internal/validator"
	"go.uber.org/zap"
)

const slowQdrantCall = 2 * time.Second

var ErrNoStore = errors.New("transcript store is disabled")

// TranscriptStore persists turns for session resume.
type TranscriptStore interface {
	SaveTurn(ctx context.Context, sessionID string, turn types.ConversationTurn) error
	LoadTurns(ctx context.Context, sessionID string) ([]types.ConversationTurn, error)
	Close() error
}

// Config holds agent configuration. Zero-valued collaborators are built from
// AppConfig; set them to substitute fakes.
type Config struct {
	AppConfig *config.Config
	Logger    *zap.Logger

	Streamer llm.Streamer
	Backend  rag.Backend
	Embedder rag.Embedder
	// Tools replaces the built-in search tools.
	Tools []tools.Tool
	Store TranscriptStore
	// Sink receives display events for turns run with ProcessTurn.
	Sink dispatch.Sink
}

// Agent owns the per-process collaborators. Per-turn state (parser and
// dispatcher) is created for every turn, so sessions can run concurrently.
type Agent struct {
	cfg       *config.Config
	streamer  llm.Streamer
	engine    *tools.Engine
	history   *ctxmgr.Manager
	cache     *cache.Manager
	store     TranscriptStore
	backend   rag.Backend
	validator *validator.InputValidator
	sink      dispatch.Sink
	logger    *zap.Logger

	systemPrompt string
	promptHash   string
}

// TurnOutcome is the result of one completed turn.
type TurnOutcome struct {
	SessionID string
	Answer    string
	Thinking  string
	Raw       string
	Summary   dispatch.TurnSummary
	Usage     *llm.Usage
	Duration  time.Duration
}

// New creates an agent with all components initialized.
func New(cfg Config) (*Agent, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.AppConfig == nil {
		cfg.AppConfig = config.DefaultConfig()
	}
	app := cfg.AppConfig

	a := &Agent{
		cfg:       app,
		history:   ctxmgr.NewManager(),
		validator: validator.NewInputValidator(0, 0),
		sink:      cfg.Sink,
		logger:    cfg.Logger,
		store:     cfg.Store,
		backend:   cfg.Backend,
	}

	var err error
	a.streamer = cfg.Streamer
	if a.streamer == nil {
		a.streamer, err = llm.NewStreamer(llm.Config{
			Provider:    app.LLM.Provider,
			Endpoint:    app.LLM.Endpoint,
			Model:       app.LLM.Model,
			APIKey:      app.LLM.APIKey,
			Timeout:     app.LLMTimeout(),
			Temperature: app.LLM.Temperature,
			MaxTokens:   app.LLM.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
	}

	toolset := cfg.Tools
	if toolset == nil {
		toolset, err = a.searchTools(cfg)
		if err != nil {
			return nil, err
		}
	}

	registry, err := tools.BuildRegistry(toolset, app.Tools.DefinitionsPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = tools.NewEngine(registry, tools.EngineConfig{
		Timeout: app.ToolTimeout(),
		Logger:  cfg.Logger,
	})

	if app.Cache.Enabled {
		a.cache = cache.NewManager(a.history)
	}

	if a.store == nil && app.Storage.Path != "" {
		s, err := store.Open(app.Storage.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open transcript store: %w", err)
		}
		a.store = s
	}

	a.systemPrompt = llm.BuildSystemPrompt(app.LLM.PromptPath, registry.GenerateToolsPrompt())
	a.promptHash = cache.HashPrompt(a.systemPrompt)

	return a, nil
}

func (a *Agent) searchTools(cfg Config) ([]tools.Tool, error) {
	app := cfg.AppConfig
	if a.backend == nil {
		backend, err := rag.NewQdrantBackend(rag.QdrantConfig{
			Host:              app.Qdrant.Host,
			Port:              app.Qdrant.Port,
			APIKey:            app.Qdrant.APIKey,
			UseTLS:            app.Qdrant.UseTLS,
			Collections:       app.Qdrant.Collections,
			TextField:         app.Qdrant.TextField,
			SlowCallThreshold: slowQdrantCall,
		}, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("initialize search backend: %w", err)
		}
		a.backend = backend
	}

	embedder := cfg.Embedder
	if embedder == nil {
		embedder = rag.NewEmbeddingClient(app.Embedding.Endpoint, app.EmbeddingTimeout())
	}

	return tools.SearchTools(tools.SearchConfig{
		Backend:  a.backend,
		Embedder: embedder,
		TopK:     app.RAG.TopK,
		MinScore: app.RAG.MinSimilarity,
		Logger:   cfg.Logger,
	}), nil
}

// NewSession starts a session and returns its id.
func (a *Agent) NewSession() string {
	return a.history.CreateSession()
}

// ResumeSession loads a stored transcript into a new in-memory session under
// the same id and returns the number of turns restored. An id with no stored
// turns starts an empty session under that id.
func (a *Agent) ResumeSession(ctx context.Context, sessionID string) (int, error) {
	if a.store == nil {
		return 0, ErrNoStore
	}

	turns, err := a.store.LoadTurns(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if err := a.history.CreateSessionWithID(sessionID); err != nil {
		return 0, err
	}
	if err := a.history.Restore(sessionID, turns); err != nil {
		return 0, err
	}

	a.logger.Info("Session resumed", zap.String("session", sessionID), zap.Int("turns", len(turns)))
	return len(turns), nil
}

// ProcessTurn runs one turn, sending display events to the configured sink.
func (a *Agent) ProcessTurn(ctx context.Context, sessionID, input string) (*TurnOutcome, error) {
	return a.ProcessTurnTo(ctx, sessionID, input, a.sink)
}

// ProcessTurnTo runs one turn, sending display events to sink.
//
// The model's output is read through an unbuffered channel, so the stream
// advances only as fast as blocks are dispatched: a completed tool call runs
// to completion before the next fragment is read. If ctx ends mid-stream the
// parser and dispatcher are reset, nothing incomplete executes, and the turn
// is not recorded.
func (a *Agent) ProcessTurnTo(ctx context.Context, sessionID, input string, sink dispatch.Sink) (*TurnOutcome, error) {
	start := time.Now()
	if !a.history.HasSession(sessionID) {
		return nil, fmt.Errorf("%w: %s", ctxmgr.ErrSessionNotFound, sessionID)
	}
	if err := a.validator.Validate(input); err != nil {
		return nil, err
	}
	input = a.validator.Sanitize(input)

	if a.logger.Core().Enabled(zap.DebugLevel) {
		sink = dispatch.MultiSink{sink, dispatch.NewLogSink(a.logger)}
	}

	prompt, err := a.buildPrompt(sessionID, input)
	if err != nil {
		return nil, err
	}
	messages := llm.PromptMessages(a.systemPrompt, prompt)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type streamResult struct {
		usage *llm.Usage
		err   error
	}
	chunks := make(chan string)
	done := make(chan streamResult, 1)
	go func() {
		defer close(chunks)
		usage, err := a.streamer.Stream(streamCtx, messages, chunks)
		done <- streamResult{usage: usage, err: err}
	}()

	parser := stream.NewParser()
	dispatcher := dispatch.New(a.engine, sink, a.logger)
	var raw strings.Builder

	var feedErr error
	for chunk := range chunks {
		raw.WriteString(chunk)
		blocks, err := parser.Feed(chunk)
		if err != nil {
			feedErr = err
			cancel()
			break
		}
		for _, block := range blocks {
			dispatcher.Handle(ctx, block)
		}
	}
	// drain so the streamer can observe cancellation and return
	for range chunks {
	}
	result := <-done

	if err := errors.Join(feedErr, ctx.Err(), result.err); err != nil {
		parser.Reset()
		dispatcher.Reset()
		if sink != nil {
			sink.Send(types.AgentEvent{State: types.StateError, Error: err})
		}
		a.logger.Warn("Turn aborted", zap.String("session", sessionID), zap.Error(err))
		return nil, fmt.Errorf("stream response: %w", err)
	}

	for _, block := range parser.Finalize() {
		dispatcher.Handle(ctx, block)
	}
	summary := dispatcher.Finalize()

	outcome := &TurnOutcome{
		SessionID: sessionID,
		Answer:    summary.AnswerBuffer,
		Thinking:  summary.ThinkingBuffer,
		Raw:       raw.String(),
		Summary:   summary,
		Usage:     result.usage,
	}
	if outcome.Answer == "" {
		// model ignored the tag protocol
		outcome.Answer = strings.TrimSpace(outcome.Raw)
	}

	if err := a.record(ctx, sessionID, input, outcome); err != nil {
		return nil, err
	}

	outcome.Duration = time.Since(start)
	a.logger.Info("Turn completed",
		zap.String("session", sessionID),
		zap.Int("tools", summary.TotalTools),
		zap.Int("failed_tools", summary.FailedTools),
		zap.Duration("duration", outcome.Duration))
	return outcome, nil
}

// buildPrompt uses the prompt cache when enabled, otherwise the token window.
func (a *Agent) buildPrompt(sessionID, input string) (string, error) {
	if a.cache != nil {
		return a.cache.BuildIncrementalPrompt(sessionID, a.systemPrompt, input)
	}

	window, err := a.history.TrimToWindow(sessionID,
		a.cfg.Conversation.MaxContextTokens, a.cfg.Conversation.MinTurnsToKeep)
	if err != nil {
		return "", err
	}
	return a.systemPrompt + "\n\n" + window + "User: " + input + "\n", nil
}

func (a *Agent) record(ctx context.Context, sessionID, input string, outcome *TurnOutcome) error {
	userTokens := ctxmgr.EstimateTokens(input)
	assistantTokens := ctxmgr.EstimateTokens(outcome.Answer)
	if outcome.Usage != nil && outcome.Usage.CompletionTokens > 0 {
		assistantTokens = outcome.Usage.CompletionTokens
	}

	userTurn, err := a.history.AddUserTurn(sessionID, input, userTokens)
	if err != nil {
		return err
	}
	assistantTurn, err := a.history.AddAssistantTurn(sessionID, outcome.Answer, assistantTokens,
		outcome.Summary.ToolsUsed(), toolResultMap(outcome.Summary.ToolResults))
	if err != nil {
		return err
	}

	if a.cache != nil {
		a.cache.UpdateConversationCache(sessionID, a.promptHash, userTurn)
		a.cache.UpdateConversationCache(sessionID, a.promptHash, assistantTurn)
	}

	if a.store != nil {
		for _, turn := range []types.ConversationTurn{userTurn, assistantTurn} {
			if err := a.store.SaveTurn(ctx, sessionID, turn); err != nil {
				a.logger.Warn("Failed to persist turn", zap.String("session", sessionID), zap.Error(err))
				break
			}
		}
	}
	return nil
}

// toolResultMap keeps per-tool outcomes (not payloads) for the transcript.
func toolResultMap(execs []types.ToolExecution) map[string]any {
	if len(execs) == 0 {
		return nil
	}
	out := make(map[string]any)
	for _, ex := range execs {
		name := tools.ToolType(ex.ToolName)
		entry := map[string]any{"success": false}
		if ex.Result != nil {
			entry["success"] = ex.Result.Success
			entry["execution_time_ms"] = ex.Result.ExecutionTimeMs
			if ex.Result.Error != "" {
				entry["error"] = ex.Result.Error
			}
		}
		list, _ := out[name].([]any)
		out[name] = append(list, entry)
	}
	return out
}

// SessionStats returns turn and token totals for a session.
func (a *Agent) SessionStats(sessionID string) (ctxmgr.Stats, error) {
	return a.history.Stats(sessionID)
}

// CacheStats returns prompt cache totals; zero when the cache is disabled.
func (a *Agent) CacheStats() cache.Stats {
	if a.cache == nil {
		return cache.Stats{}
	}
	return a.cache.Stats()
}

// ConversationContext returns the full transcript of a session.
func (a *Agent) ConversationContext(sessionID string) (string, error) {
	return a.history.ConversationContext(sessionID)
}

// ListTools returns available tool information.
func (a *Agent) ListTools() []types.ToolInfo {
	return a.engine.Registry().ListTools()
}

// Engine returns the tool engine, for replaying recorded output.
func (a *Agent) Engine() *tools.Engine {
	return a.engine
}

// LLMInfo returns information about the configured LLM.
func (a *Agent) LLMInfo() string {
	return fmt.Sprintf("%s @ %s", a.streamer.Model(), a.cfg.LLM.Endpoint)
}

// Close releases agent resources.
func (a *Agent) Close() error {
	var errs []error
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
