// Package llm streams model output from an OpenAI-compatible endpoint or an
// Ollama server.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Providers understood by NewStreamer.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

var ErrUnknownProvider = errors.New("unknown llm provider")

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting reported by the server, when it reports any.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Streamer sends a conversation and writes the response to chunks as it is
// generated. Stream blocks until the response is complete or ctx is done.
// It never closes chunks.
type Streamer interface {
	Stream(ctx context.Context, messages []Message, chunks chan<- string) (*Usage, error)
	Model() string
}

// Config selects and configures a streamer.
type Config struct {
	Provider    string
	Endpoint    string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
}

// NewStreamer builds the streamer for cfg.Provider.
func NewStreamer(cfg Config) (Streamer, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		return NewOpenAIStreamer(cfg), nil
	case ProviderOllama:
		return NewOllamaStreamer(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// send delivers one chunk unless ctx ends first.
func send(ctx context.Context, chunks chan<- string, content string) error {
	select {
	case chunks <- content:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
