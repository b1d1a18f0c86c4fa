package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIStreamer talks to any server implementing the OpenAI chat
// completions API (OpenAI, vLLM, llama.cpp, LM Studio).
type OpenAIStreamer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

func NewOpenAIStreamer(cfg Config) *OpenAIStreamer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	return &OpenAIStreamer{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
}

func (s *OpenAIStreamer) Model() string {
	return s.model
}

func (s *OpenAIStreamer) Stream(ctx context.Context, messages []Message, chunks chan<- string) (*Usage, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	defer stream.Close()

	var usage *Usage
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, fmt.Errorf("stream recv: %w", err)
		}

		// usage arrives on the final chunk, with no choices
		if response.Usage != nil {
			usage = &Usage{
				PromptTokens:     response.Usage.PromptTokens,
				CompletionTokens: response.Usage.CompletionTokens,
				TotalTokens:      response.Usage.TotalTokens,
			}
		}

		if len(response.Choices) == 0 {
			continue
		}
		if content := response.Choices[0].Delta.Content; content != "" {
			if err := send(ctx, chunks, content); err != nil {
				return usage, err
			}
		}
	}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
