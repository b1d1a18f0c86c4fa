package rag

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// QdrantConfig holds connection settings for the Qdrant backend.
type QdrantConfig struct {
	Host        string
	Port        int
	APIKey      string
	UseTLS      bool
	Collections []string
	// TextField is the payload field holding document text. It must carry a
	// full-text index for TextSearch.
	TextField string
	// SlowCallThreshold logs gRPC calls slower than this. Zero disables it.
	SlowCallThreshold time.Duration
}

// QdrantBackend implements Backend over the Qdrant gRPC API.
type QdrantBackend struct {
	client      *qdrant.Client
	collections []string
	textField   string
	logger      *zap.Logger
}

var _ Backend = (*QdrantBackend)(nil)

// NewQdrantBackend connects to Qdrant.
func NewQdrantBackend(cfg QdrantConfig, logger *zap.Logger) (*QdrantBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TextField == "" {
		cfg.TextField = "content"
	}

	var opts []grpc.DialOption
	if cfg.SlowCallThreshold > 0 {
		opts = append(opts, grpc.WithChainUnaryInterceptor(slowCallInterceptor(cfg.SlowCallThreshold, logger)))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		APIKey:      cfg.APIKey,
		UseTLS:      cfg.UseTLS,
		GrpcOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w",
			cfg.Host, cfg.Port, err)
	}

	return &QdrantBackend{
		client:      client,
		collections: cfg.Collections,
		textField:   cfg.TextField,
		logger:      logger,
	}, nil
}

// SemanticSearch runs a nearest-neighbour query.
func (b *QdrantBackend) SemanticSearch(ctx context.Context, collection string, vector []float32, limit int, minScore float32) ([]Document, error) {
	l := uint64(limit)
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &l,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if minScore > 0 {
		req.ScoreThreshold = &minScore
	}

	points, err := b.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Qdrant query on %s failed: %w", collection, err)
	}

	docs := make([]Document, 0, len(points))
	for _, p := range points {
		doc := b.toDocument(collection, p.GetId(), p.GetPayload())
		doc.Score = float64(p.GetScore())
		docs = append(docs, doc)
	}

	b.logger.Debug("Semantic search completed",
		zap.String("collection", collection),
		zap.Int("results", len(docs)),
		zap.Float32("min_score", minScore))

	return docs, nil
}

// TextSearch scrolls points matching a full-text condition on the text field.
func (b *QdrantBackend) TextSearch(ctx context.Context, collection, text string, limit int) ([]Document, error) {
	l := uint32(limit)
	points, err := b.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchText(b.textField, text)},
		},
		Limit:       &l,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("Qdrant scroll on %s failed: %w", collection, err)
	}

	docs := make([]Document, 0, len(points))
	for _, p := range points {
		docs = append(docs, b.toDocument(collection, p.GetId(), p.GetPayload()))
	}

	b.logger.Debug("Text search completed",
		zap.String("collection", collection),
		zap.Int("results", len(docs)),
		zap.String("text_preview", truncateString(text, 50)))

	return docs, nil
}

// GetDocument fetches one point. Numeric ids are looked up as numbers,
// anything else as a UUID.
func (b *QdrantBackend) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	points, err := b.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("Qdrant get on %s failed: %w", collection, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrDocumentNotFound, collection, id)
	}

	doc := b.toDocument(collection, points[0].GetId(), points[0].GetPayload())
	return &doc, nil
}

// Collections returns the configured collections.
func (b *QdrantBackend) Collections() []string {
	out := make([]string, len(b.collections))
	copy(out, b.collections)
	return out
}

// Close releases the gRPC connection.
func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

func (b *QdrantBackend) toDocument(collection string, id *qdrant.PointId, payload map[string]*qdrant.Value) Document {
	doc := Document{
		ID:         pointIDString(id),
		Collection: collection,
		Metadata:   convertPayload(payload),
	}
	if content, ok := getPayloadString(payload, b.textField); ok {
		doc.Content = content
	}
	if source, ok := getPayloadString(payload, "source"); ok {
		doc.Source = source
	}
	return doc
}

func slowCallInterceptor(threshold time.Duration, logger *zap.Logger) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		if elapsed := time.Since(start); elapsed > threshold {
			logger.Warn("Slow Qdrant call",
				zap.String("method", method),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		}
		return err
	}
}

func pointID(id string) *qdrant.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return qdrant.NewIDNum(n)
	}
	return qdrant.NewID(id)
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// getPayloadString extracts a string value from Qdrant payload.
func getPayloadString(payload map[string]*qdrant.Value, key string) (string, bool) {
	if val, ok := payload[key]; ok {
		if strVal := val.GetStringValue(); strVal != "" {
			return strVal, true
		}
	}
	return "", false
}

// convertPayload converts Qdrant payload to a generic map.
func convertPayload(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for key, val := range payload {
		if val == nil {
			continue
		}
		result[key] = convertValue(val)
	}
	return result
}

func convertValue(val *qdrant.Value) any {
	switch v := val.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		if v.ListValue == nil {
			return nil
		}
		list := make([]any, 0, len(v.ListValue.Values))
		for _, item := range v.ListValue.Values {
			if item != nil {
				list = append(list, convertValue(item))
			}
		}
		return list
	case *qdrant.Value_StructValue:
		if v.StructValue == nil {
			return nil
		}
		return convertPayload(v.StructValue.Fields)
	}
	return nil
}

// truncateString truncates a string to maxLen characters.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
