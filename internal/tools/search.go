package tools

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ashutoshrp06/friday/internal/rag"
	"github.com/ashutoshrp06/friday/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SearchConfig wires the built-in search tools to a document backend.
type SearchConfig struct {
	Backend  rag.Backend
	Embedder rag.Embedder
	TopK     int
	MinScore float32
	Logger   *zap.Logger
}

// SearchTools returns semantic_search, lexical_search, and get_document.
func SearchTools(cfg SearchConfig) []Tool {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return []Tool{
		&semanticSearch{cfg: cfg},
		&lexicalSearch{cfg: cfg},
		&getDocument{cfg: cfg},
	}
}

// collectionsFor returns the named collection, or every configured one.
func collectionsFor(cfg SearchConfig, params types.Params) ([]string, error) {
	if c, ok := params.Get("collection"); ok && c != "" {
		return []string{c}, nil
	}
	cols := cfg.Backend.Collections()
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no collection given and none configured", ErrValidation)
	}
	return cols, nil
}

func topK(cfg SearchConfig, params types.Params) int {
	if v, ok := params.Get("top_k"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return cfg.TopK
}

// fanOut runs search on every collection concurrently and merges the hits.
func fanOut(ctx context.Context, collections []string, search func(ctx context.Context, collection string) ([]rag.Document, error)) ([]rag.Document, error) {
	results := make([][]rag.Document, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, col := range collections {
		g.Go(func() error {
			docs, err := search(gctx, col)
			if err != nil {
				return err
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []rag.Document
	for _, docs := range results {
		merged = append(merged, docs...)
	}
	return merged, nil
}

// ─── semantic_search ──────────────────────────────────────────────────────────

type semanticSearch struct {
	cfg SearchConfig
}

func (t *semanticSearch) Name() string { return "semantic_search" }

func (t *semanticSearch) Description() string {
	return "Search the document collections by meaning. Use for conceptual questions."
}

func (t *semanticSearch) Parameters() []Parameter {
	return []Parameter{
		{Name: "query", Type: "string", Description: "What to look for, in natural language", Required: true},
		{Name: "top_k", Type: "int", Description: "Maximum number of results", Default: strconv.Itoa(t.cfg.TopK)},
		{Name: "collection", Type: "string", Description: "Restrict the search to one collection"},
	}
}

func (t *semanticSearch) Execute(ctx context.Context, params types.Params) (any, error) {
	query, _ := params.Get("query")
	limit := topK(t.cfg, params)
	collections, err := collectionsFor(t.cfg, params)
	if err != nil {
		return nil, err
	}
	if t.cfg.Embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}

	vectors, err := t.cfg.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	docs, err := fanOut(ctx, collections, func(ctx context.Context, col string) ([]rag.Document, error) {
		return t.cfg.Backend.SemanticSearch(ctx, col, vectors[0], limit, t.cfg.MinScore)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
	if len(docs) > limit {
		docs = docs[:limit]
	}

	t.cfg.Logger.Debug("Semantic search tool finished",
		zap.Int("collections", len(collections)),
		zap.Int("results", len(docs)))

	return docs, nil
}

// ─── lexical_search ───────────────────────────────────────────────────────────

// lexicalSearch matches text through the backend's full-text index. With
// is_regex the pattern is only approximated: its longest literal run is sent
// to the backend and the hits are filtered locally with the real regexp, so
// documents the backend does not return for that literal are never seen.
type lexicalSearch struct {
	cfg SearchConfig
}

func (t *lexicalSearch) Name() string { return "lexical_search" }

func (t *lexicalSearch) Description() string {
	return "Search the documents for exact words or a regular expression (best effort). Use for identifiers, error strings, and names."
}

func (t *lexicalSearch) Parameters() []Parameter {
	return []Parameter{
		{Name: "query", Type: "string", Description: "Text or pattern to match", Required: true},
		{Name: "is_regex", Type: "bool", Description: "Treat query as a regular expression", Default: "false"},
		{Name: "top_k", Type: "int", Description: "Maximum number of results", Default: strconv.Itoa(t.cfg.TopK)},
		{Name: "collection", Type: "string", Description: "Restrict the search to one collection"},
	}
}

// regexOverfetch widens the backend query when results are filtered locally.
const regexOverfetch = 5

func (t *lexicalSearch) Execute(ctx context.Context, params types.Params) (any, error) {
	query, _ := params.Get("query")
	limit := topK(t.cfg, params)
	collections, err := collectionsFor(t.cfg, params)
	if err != nil {
		return nil, err
	}

	isRegex, _ := params.Get("is_regex")
	var re *regexp.Regexp
	text := query
	fetch := limit
	if ok, _ := strconv.ParseBool(isRegex); ok {
		re, err = regexp.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid pattern: %v", ErrValidation, err)
		}
		text = LongestLiteral(query)
		if text == "" {
			return nil, fmt.Errorf("%w: pattern %q has no literal text to search for", ErrValidation, query)
		}
		fetch = limit * regexOverfetch
	}

	docs, err := fanOut(ctx, collections, func(ctx context.Context, col string) ([]rag.Document, error) {
		return t.cfg.Backend.TextSearch(ctx, col, text, fetch)
	})
	if err != nil {
		return nil, err
	}

	if re != nil {
		filtered := docs[:0]
		for _, d := range docs {
			if re.MatchString(d.Content) {
				filtered = append(filtered, d)
			}
		}
		docs = filtered
	}
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// LongestLiteral returns the longest run of pattern that contains no regexp
// syntax. Escaped characters end a run.
func LongestLiteral(pattern string) string {
	const meta = `\.+*?()|[]{}^$`

	var best, cur strings.Builder
	keep := func() {
		if cur.Len() > best.Len() {
			best.Reset()
			best.WriteString(cur.String())
		}
		cur.Reset()
	}

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if !strings.ContainsRune(meta, rune(c)) {
			cur.WriteByte(c)
			continue
		}
		// A quantifier applies to the previous byte, which is then optional.
		if (c == '*' || c == '?' || c == '{') && cur.Len() > 0 {
			s := cur.String()
			cur.Reset()
			cur.WriteString(s[:len(s)-1])
		}
		keep()
		if c == '\\' {
			i++
		}
		if c == '[' {
			for i < len(pattern) && pattern[i] != ']' {
				i++
			}
		}
		if c == '{' {
			for i < len(pattern) && pattern[i] != '}' {
				i++
			}
		}
	}
	keep()
	return strings.TrimSpace(best.String())
}

// ─── get_document ─────────────────────────────────────────────────────────────

type getDocument struct {
	cfg SearchConfig
}

func (t *getDocument) Name() string { return "get_document" }

func (t *getDocument) Description() string {
	return "Fetch the full text of one document by id, as returned by a search."
}

func (t *getDocument) Parameters() []Parameter {
	return []Parameter{
		{Name: "id", Type: "string", Description: "Document id", Required: true},
		{Name: "collection", Type: "string", Description: "Collection holding the document"},
	}
}

func (t *getDocument) Execute(ctx context.Context, params types.Params) (any, error) {
	id, _ := params.Get("id")
	collections, err := collectionsFor(t.cfg, params)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, col := range collections {
		doc, err := t.cfg.Backend.GetDocument(ctx, col, id)
		if err == nil {
			return doc, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
