package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ashutoshrp06/friday/internal/rag"
	"github.com/ashutoshrp06/friday/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu          sync.Mutex
	collections []string
	docs        map[string][]rag.Document
	textQueries []string
	failOn      string
}

func (f *fakeBackend) SemanticSearch(ctx context.Context, collection string, vector []float32, limit int, minScore float32) ([]rag.Document, error) {
	if collection == f.failOn {
		return nil, errors.New("collection offline")
	}
	docs := f.docs[collection]
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (f *fakeBackend) TextSearch(ctx context.Context, collection, text string, limit int) ([]rag.Document, error) {
	f.mu.Lock()
	f.textQueries = append(f.textQueries, text)
	f.mu.Unlock()

	var out []rag.Document
	for _, d := range f.docs[collection] {
		if strings.Contains(d.Content, text) && len(out) < limit {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetDocument(ctx context.Context, collection, id string) (*rag.Document, error) {
	for _, d := range f.docs[collection] {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, rag.ErrDocumentNotFound
}

func (f *fakeBackend) Collections() []string { return f.collections }
func (f *fakeBackend) Close() error          { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newSearchEngine(t *testing.T, backend *fakeBackend) *Engine {
	t.Helper()
	return newTestEngine(t, 0, SearchTools(SearchConfig{
		Backend:  backend,
		Embedder: fakeEmbedder{},
		TopK:     2,
	})...)
}

func testBackend() *fakeBackend {
	return &fakeBackend{
		collections: []string{"handbook", "runbooks"},
		docs: map[string][]rag.Document{
			"handbook": {
				{ID: "1", Collection: "handbook", Content: "auth uses refresh tokens", Score: 0.9},
				{ID: "2", Collection: "handbook", Content: "billing overview", Score: 0.4},
			},
			"runbooks": {
				{ID: "7", Collection: "runbooks", Content: "rotate auth token keys", Score: 0.7},
			},
		},
	}
}

func TestSemanticSearch_MergesCollectionsByScore(t *testing.T) {
	e := newSearchEngine(t, testBackend())

	res, err := e.Invoke(context.Background(), types.ToolCall{
		ToolType: "semantic_search",
		Params:   types.Params{{Name: "query", Value: "auth"}},
	})
	require.NoError(t, err)

	docs := res.Data.([]rag.Document)
	require.Len(t, docs, 2)
	assert.Equal(t, "1", docs[0].ID)
	assert.Equal(t, "7", docs[1].ID)
}

func TestSemanticSearch_CollectionFailure(t *testing.T) {
	backend := testBackend()
	backend.failOn = "runbooks"
	e := newSearchEngine(t, backend)

	res, err := e.Invoke(context.Background(), types.ToolCall{
		ToolType: "semantic_search",
		Params:   types.Params{{Name: "query", Value: "auth"}},
	})
	assert.ErrorIs(t, err, ErrToolExecution)
	assert.Contains(t, res.Error, "collection offline")
}

func TestLexicalSearch(t *testing.T) {
	t.Run("plain text", func(t *testing.T) {
		e := newSearchEngine(t, testBackend())
		res, err := e.Invoke(context.Background(), types.ToolCall{
			ToolType: "lexical_search",
			Params:   types.Params{{Name: "query", Value: "billing"}, {Name: "collection", Value: "handbook"}},
		})
		require.NoError(t, err)
		docs := res.Data.([]rag.Document)
		require.Len(t, docs, 1)
		assert.Equal(t, "2", docs[0].ID)
	})

	t.Run("regex filters locally", func(t *testing.T) {
		backend := testBackend()
		e := newSearchEngine(t, backend)
		res, err := e.Invoke(context.Background(), types.ToolCall{
			ToolType: "lexical_search",
			Params: types.Params{
				{Name: "query", Value: `auth\s+token\b`},
				{Name: "is_regex", Value: "true"},
			},
		})
		require.NoError(t, err)
		docs := res.Data.([]rag.Document)
		require.Len(t, docs, 1)
		assert.Equal(t, "7", docs[0].ID)
		assert.Contains(t, backend.textQueries, "token")
	})

	t.Run("invalid regex", func(t *testing.T) {
		e := newSearchEngine(t, testBackend())
		_, err := e.Invoke(context.Background(), types.ToolCall{
			ToolType: "lexical_search",
			Params:   types.Params{{Name: "query", Value: "(auth"}, {Name: "is_regex", Value: "true"}},
		})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestGetDocument(t *testing.T) {
	e := newSearchEngine(t, testBackend())

	res, err := e.Invoke(context.Background(), types.ToolCall{
		ToolType: "get_document",
		Params:   types.Params{{Name: "id", Value: "7"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "rotate auth token keys", res.Data.(*rag.Document).Content)

	_, err = e.Invoke(context.Background(), types.ToolCall{
		ToolType: "get_document",
		Params:   types.Params{{Name: "id", Value: "404"}},
	})
	assert.ErrorIs(t, err, rag.ErrDocumentNotFound)
}

func TestLongestLiteral(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"auth", "auth"},
		{"auth.*token", "token"},
		{`\bconfig_loader\b`, "config_loader"},
		{"colou?r", "colo"},
		{"[abc]defg", "defg"},
		{"x{2,3}yz", "yz"},
		{"ab+c", "ab"},
		{".*", ""},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, LongestLiteral(tt.pattern))
		})
	}
}
