package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmbeddingClient calls a text-embeddings HTTP service that accepts
// {"inputs": [...]} and answers with one vector per input.
type EmbeddingClient struct {
	endpoint string
	client   *http.Client
}

var _ Embedder = (*EmbeddingClient)(nil)

// NewEmbeddingClient creates a client for endpoint.
func NewEmbeddingClient(endpoint string, timeout time.Duration) *EmbeddingClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &EmbeddingClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type EmbeddingRequest struct {
	Inputs []string `json:"inputs"`
}

type EmbeddingResponse [][]float32

// Embed returns one vector per text, in order.
func (ec *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(EmbeddingRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ec.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ec.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(msg))
	}

	var embResp EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(embResp) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(embResp), len(texts))
	}

	return embResp, nil
}
