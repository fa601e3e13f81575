// Package vectordb implements the Vector Index Client (spec C2): a minimal
// Qdrant HTTP client over a multi-vector collection (dense, sparse,
// late-interaction), grounded on the teacher's raw-HTTP Qdrant client
// pattern and extended to three named vector slots and sparse-vector
// payloads (both valid Qdrant REST wire shapes).
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/thornxyz/revera/internal/circuitbreaker"
	"github.com/thornxyz/revera/internal/interceptors"
	"github.com/thornxyz/revera/internal/metrics"
	"github.com/thornxyz/revera/internal/tracing"
)

// Client is the process-wide Qdrant handle (spec §5 "Shared resources:
// singletons").
type Client struct {
	cfg   Config
	http  *http.Client
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

var global *Client

// Initialize constructs the global vector index client.
func Initialize(cfg Config, logger *zap.Logger) {
	c := cfg
	if c.Port == 0 {
		c.Port = 6333
	}
	if c.TopK == 0 {
		c.TopK = 10
	}
	if c.PrefetchMultiplier == 0 {
		c.PrefetchMultiplier = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Chunks == "" {
		c.Chunks = "document_chunks"
	}
	if c.Memory == "" {
		c.Memory = "agent_memory"
	}
	if c.ExpectedDenseDim == 0 {
		c.ExpectedDenseDim = 3072
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	httpClient := &http.Client{
		Timeout:   c.Timeout,
		Transport: interceptors.NewWorkflowHTTPRoundTripper(nil),
	}
	httpw := circuitbreaker.NewHTTPWrapper(httpClient, "qdrant", "vectordb", logger)
	global = &Client{cfg: c, http: httpClient, base: fmt.Sprintf("http://%s:%d", c.Host, c.Port), httpw: httpw, log: logger}
}

// Get returns the global client, or nil if Initialize was never called.
func Get() *Client { return global }

func (c *Client) GetConfig() Config {
	if c == nil {
		return Config{Chunks: "document_chunks", Memory: "agent_memory"}
	}
	return c.cfg
}

// EnsureCollection creates the named collection with three vector slots
// (dense cosine, sparse, colbert multi-vector MAX_SIM) and keyword payload
// indexes on user_id/document_id, per spec §6. It is idempotent: a 409 from
// Qdrant (already exists) is not an error.
func (c *Client) EnsureCollection(ctx context.Context, collection string) error {
	if c == nil || !c.cfg.Enabled {
		return fmt.Errorf("vectordb: ensure collection called while disabled")
	}
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"dense": map[string]interface{}{
				"size":     c.cfg.ExpectedDenseDim,
				"distance": "Cosine",
			},
			"colbert": map[string]interface{}{
				"size":     128,
				"distance": "Cosine",
				"multivector_config": map[string]interface{}{
					"comparator": "max_sim",
				},
			},
		},
		"sparse_vectors": map[string]interface{}{
			"sparse": map[string]interface{}{},
		},
	}
	buf, _ := json.Marshal(body)
	url := fmt.Sprintf("%s/collections/%s", c.base, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpw.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("qdrant create collection status %d", resp.StatusCode)
	}

	for _, field := range []string{"user_id", "document_id"} {
		idxBody, _ := json.Marshal(map[string]interface{}{
			"field_name":   field,
			"field_schema": "keyword",
		})
		idxURL := fmt.Sprintf("%s/collections/%s/index", c.base, collection)
		idxReq, err := http.NewRequestWithContext(ctx, http.MethodPut, idxURL, bytes.NewReader(idxBody))
		if err != nil {
			return err
		}
		idxReq.Header.Set("Content-Type", "application/json")
		idxResp, err := c.httpw.Do(idxReq)
		if err != nil {
			return err
		}
		idxResp.Body.Close()
	}
	return nil
}

type prefetchRequest struct {
	Using  string                 `json:"using"`
	Query  interface{}            `json:"query"`
	Limit  int                    `json:"limit"`
	Filter map[string]interface{} `json:"filter,omitempty"`
}

type queryRequest struct {
	Prefetch    []prefetchRequest      `json:"prefetch"`
	Query       map[string]interface{} `json:"query"` // RRF fusion is done client-side; this is a plain limit query
	Limit       int                    `json:"limit"`
	WithPayload bool                   `json:"with_payload"`
	Filter      map[string]interface{} `json:"filter,omitempty"`
}

type pointsEnvelope struct {
	Result struct {
		Points []struct {
			ID      string                 `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// PrefetchDense executes the dense prefetch query (spec §4.4 step 4).
func (c *Client) PrefetchDense(ctx context.Context, collection string, vec []float32, limit int, filter map[string]interface{}) ([]ScoredPoint, error) {
	return c.vectorSearch(ctx, collection, "dense", vec, limit, filter)
}

// PrefetchSparse executes the sparse prefetch query (spec §4.4 step 4).
func (c *Client) PrefetchSparse(ctx context.Context, collection string, sparse SparseVector, limit int, filter map[string]interface{}) ([]ScoredPoint, error) {
	return c.vectorSearch(ctx, collection, "sparse", sparse, limit, filter)
}

func (c *Client) vectorSearch(ctx context.Context, collection, using string, query interface{}, limit int, filter map[string]interface{}) ([]ScoredPoint, error) {
	if c == nil || !c.cfg.Enabled {
		return nil, fmt.Errorf("vectordb: search called while disabled")
	}
	start := time.Now()
	url := fmt.Sprintf("%s/collections/%s/points/query", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	body := map[string]interface{}{
		"using":        using,
		"query":        query,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		body["filter"] = filter
	}
	buf, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		metrics.RecordVectorSearchMetrics("search", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Fall back to the legacy /points/search shape for older Qdrant.
		legacy := map[string]interface{}{"vector": map[string]interface{}{"name": using, "vector": query}, "limit": limit, "with_payload": true}
		if filter != nil {
			legacy["filter"] = filter
		}
		buf2, _ := json.Marshal(legacy)
		urlSearch := fmt.Sprintf("%s/collections/%s/points/search", c.base, collection)
		req2, err := http.NewRequestWithContext(ctx, http.MethodPost, urlSearch, bytes.NewReader(buf2))
		if err != nil {
			return nil, err
		}
		req2.Header.Set("Content-Type", "application/json")
		resp2, err := c.httpw.Do(req2)
		if err != nil {
			metrics.RecordVectorSearchMetrics("search", time.Since(start).Seconds())
			return nil, fmt.Errorf("qdrant query/search failed: %w", err)
		}
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			metrics.RecordVectorSearchMetrics("search", time.Since(start).Seconds())
			return nil, fmt.Errorf("qdrant status %d", resp2.StatusCode)
		}
		var legacyResp struct {
			Result []struct {
				ID      string                 `json:"id"`
				Score   float64                `json:"score"`
				Payload map[string]interface{} `json:"payload"`
			} `json:"result"`
		}
		if err := json.NewDecoder(resp2.Body).Decode(&legacyResp); err != nil {
			return nil, err
		}
		metrics.RecordVectorSearchMetrics("search", time.Since(start).Seconds())
		out := make([]ScoredPoint, len(legacyResp.Result))
		for i, r := range legacyResp.Result {
			out[i] = ScoredPoint{ID: r.ID, Score: r.Score, Payload: r.Payload}
		}
		return out, nil
	}

	var env pointsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		metrics.RecordVectorSearchMetrics("search", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordVectorSearchMetrics("search", time.Since(start).Seconds())
	out := make([]ScoredPoint, len(env.Result.Points))
	for i, p := range env.Result.Points {
		out[i] = ScoredPoint{ID: p.ID, Score: p.Score, Payload: p.Payload}
	}
	return out, nil
}

// Upsert inserts or updates points in batches of batchSize points (50 when
// batchSize is not positive, spec §6).
func (c *Client) Upsert(ctx context.Context, collection string, points []UpsertItem, batchSize int) error {
	if c == nil || !c.cfg.Enabled {
		return fmt.Errorf("vectordb: upsert called while disabled")
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	for i := 0; i < len(points); i += batchSize {
		end := i + batchSize
		if end > len(points) {
			end = len(points)
		}
		if err := c.upsertBatch(ctx, collection, points[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) upsertBatch(ctx context.Context, collection string, points []UpsertItem) error {
	start := time.Now()
	url := fmt.Sprintf("%s/collections/%s/points", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "PUT", url)
	defer span.End()

	wire := make([]map[string]interface{}, len(points))
	for i, p := range points {
		vec := map[string]interface{}{"dense": p.Vectors.Dense}
		if p.Vectors.Sparse != nil {
			vec["sparse"] = p.Vectors.Sparse
		}
		if len(p.Vectors.LateInteraction) > 0 {
			vec["colbert"] = p.Vectors.LateInteraction
		}
		wire[i] = map[string]interface{}{
			"id":      p.ID,
			"vector":  vec,
			"payload": p.Payload,
		}
	}
	buf, _ := json.Marshal(map[string]interface{}{"points": wire})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)
	resp, err := c.httpw.Do(req)
	if err != nil {
		metrics.RecordVectorSearchMetrics("upsert", time.Since(start).Seconds())
		return err
	}
	defer resp.Body.Close()
	metrics.RecordVectorSearchMetrics("upsert", time.Since(start).Seconds())
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status %d", resp.StatusCode)
	}
	return nil
}

// BuildFilter constructs the {user_id=:u AND (document_id in :docs)?} filter
// from spec §4.4 step 3, as a Qdrant "must" clause list.
func BuildFilter(userID string, documentIDs []string) map[string]interface{} {
	must := []map[string]interface{}{
		{"key": "user_id", "match": map[string]interface{}{"value": userID}},
	}
	if len(documentIDs) > 0 {
		must = append(must, map[string]interface{}{
			"key":   "document_id",
			"match": map[string]interface{}{"any": documentIDs},
		})
	}
	return map[string]interface{}{"must": must}
}
