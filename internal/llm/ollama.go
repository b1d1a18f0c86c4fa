package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaStreamer uses Ollama's native /api/chat endpoint, which streams one
// JSON object per line.
type OllamaStreamer struct {
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	httpClient  *http.Client
}

func NewOllamaStreamer(cfg Config) *OllamaStreamer {
	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaStreamer{
		baseURL:     baseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		httpClient:  &http.Client{},
	}
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatChunk struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	Error           string  `json:"error,omitempty"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

func (s *OllamaStreamer) Model() string {
	return s.model
}

func (s *OllamaStreamer) Stream(ctx context.Context, messages []Message, chunks chan<- string) (*Usage, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(ollamaChatRequest{
		Model:    s.model,
		Messages: messages,
		Stream:   true,
		Options:  &ollamaOptions{Temperature: s.temperature, NumPredict: s.maxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var chunk ollamaChatChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("ollama stream ended before done")
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("decode chunk: %w", err)
		}
		if chunk.Error != "" {
			return nil, fmt.Errorf("ollama: %s", chunk.Error)
		}

		if chunk.Message.Content != "" {
			if err := send(ctx, chunks, chunk.Message.Content); err != nil {
				return nil, err
			}
		}

		if chunk.Done {
			return &Usage{
				PromptTokens:     chunk.PromptEvalCount,
				CompletionTokens: chunk.EvalCount,
				TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
			}, nil
		}
	}
}
