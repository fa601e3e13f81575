package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thornxyz/revera/internal/metrics"
	"github.com/thornxyz/revera/internal/state"
	"github.com/thornxyz/revera/internal/vectordb"
)

// Embedder computes the dense embedding used for semantic-similarity
// search within a namespace (spec §4.9: "vector dimension matches the
// dense embedding dimension").
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store implements the Memory Store's put/search operations against the
// vector index's Memory collection (spec C5).
type Store struct {
	vdb      *vectordb.Client
	embedder Embedder
	log      *zap.Logger
}

func New(vdb *vectordb.Client, embedder Embedder, log *zap.Logger) *Store {
	if log == nil {
		log, _ = zap.NewProduction()
	}
	return &Store{vdb: vdb, embedder: embedder, log: log}
}

// Put stores a value under key in the given namespace (spec §4.9
// `put(namespace, key, value)`).
func (s *Store) Put(ctx context.Context, collection string, ns Namespace, key string, value map[string]interface{}) error {
	text := formatValueForEmbedding(value)
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("memory: embed: %w", err)
	}
	if len(vecs) == 0 {
		return fmt.Errorf("memory: embed returned nothing")
	}
	item := vectordb.UpsertItem{
		ID: uuid.NewString(),
		Vectors: vectordb.NamedVectors{
			Dense: vecs[0],
		},
		Payload: map[string]interface{}{
			"namespace":  ns.Key(),
			"user_id":    ns.UserID,
			"chat_id":    ns.ChatID,
			"key":        key,
			"value":      value,
			"created_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := s.vdb.Upsert(ctx, collection, []vectordb.UpsertItem{item}, 50); err != nil {
		metrics.MemoryFetches.WithLabelValues(ns.AgentName, "put", "error").Inc()
		return err
	}
	metrics.MemoryFetches.WithLabelValues(ns.AgentName, "put", "ok").Inc()
	return nil
}

// Search returns items in a namespace ordered by vector similarity to
// query (if given) or by recency otherwise (spec §4.9
// `search(namespace, query?, limit)`).
func (s *Store) Search(ctx context.Context, collection string, ns Namespace, query string, limit int) ([]state.Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	filter := map[string]interface{}{
		"must": []map[string]interface{}{
			{"key": "namespace", "match": map[string]interface{}{"value": ns.Key()}},
		},
	}

	var (
		points []vectordb.ScoredPoint
		err    error
		mode   = "recency"
	)
	if query != "" {
		mode = "similarity"
		vecs, embErr := s.embedder.Embed(ctx, []string{query})
		if embErr != nil || len(vecs) == 0 {
			err = fmt.Errorf("memory: query embed: %w", embErr)
		} else {
			points, err = s.vdb.PrefetchDense(ctx, collection, vecs[0], limit, filter)
		}
	} else {
		// Recency ordering: over-fetch then sort by created_at client side,
		// since the collection has no dedicated recency index.
		points, err = s.vdb.PrefetchDense(ctx, collection, zeroVector(s.vdb.GetConfig().ExpectedDenseDim), limit*4, filter)
	}
	if err != nil {
		metrics.MemoryFetches.WithLabelValues(ns.AgentName, mode, "error").Inc()
		return nil, err
	}

	items := make([]state.Memory, 0, len(points))
	for _, p := range points {
		items = append(items, toMemory(p))
	}
	if query == "" {
		sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	}
	if len(items) > limit {
		items = items[:limit]
	}
	metrics.MemoryFetches.WithLabelValues(ns.AgentName, mode, "ok").Inc()
	metrics.MemoryItemsRetrieved.WithLabelValues(ns.AgentName, mode).Observe(float64(len(items)))
	return items, nil
}

func toMemory(p vectordb.ScoredPoint) state.Memory {
	key, _ := p.Payload["key"].(string)
	value, _ := p.Payload["value"].(map[string]interface{})
	createdAt := time.Now().UTC()
	if raw, ok := p.Payload["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			createdAt = t
		}
	}
	return state.Memory{Key: key, Value: value, CreatedAt: createdAt}
}

func formatValueForEmbedding(value map[string]interface{}) string {
	out := ""
	for k, v := range value {
		out += fmt.Sprintf("%s: %v\n", k, v)
	}
	return out
}

func zeroVector(dim int) []float32 {
	if dim <= 0 {
		dim = 3072
	}
	return make([]float32, dim)
}
