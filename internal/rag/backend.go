// Package rag provides the document search backends used by the search tools.
package rag

import (
	"context"
	"errors"
)

// ErrDocumentNotFound is returned by GetDocument when no point has the id.
var ErrDocumentNotFound = errors.New("document not found")

// Document is a search hit or a fetched document.
type Document struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Content    string         `json:"content"`
	Source     string         `json:"source,omitempty"`
	Score      float64        `json:"score,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Backend is a document store supporting vector and text search.
type Backend interface {
	// SemanticSearch returns the nearest documents to vector in collection.
	SemanticSearch(ctx context.Context, collection string, vector []float32, limit int, minScore float32) ([]Document, error)

	// TextSearch returns documents whose text field contains text.
	TextSearch(ctx context.Context, collection, text string, limit int) ([]Document, error)

	// GetDocument fetches a single document by id.
	GetDocument(ctx context.Context, collection, id string) (*Document, error)

	// Collections returns the collections searched when none is named.
	Collections() []string

	Close() error
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
