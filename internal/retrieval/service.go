// Package retrieval implements the Triple-Hybrid Retrieval Engine (spec C3):
// dense + sparse + late-interaction candidate generation, Reciprocal Rank
// Fusion, and the reverse (indexing) path.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thornxyz/revera/internal/metrics"
	"github.com/thornxyz/revera/internal/retrypolicy"
	"github.com/thornxyz/revera/internal/state"
	"github.com/thornxyz/revera/internal/vectordb"
)

// Embedder computes dense query/document embeddings (spec §4.4 step 2,
// "dense (network)"). Satisfied by internal/orchestrator's Embedder adapter
// over internal/llmgateway.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryRewriter transforms a conversational query into a retrieval-optimized
// one (spec §4.4 step 1). memorySnippet is the retrieval agent's episodic
// context (spec §4.9's "previously relevant documents"), folded into the
// rewrite prompt when non-empty; satisfied by internal/orchestrator's
// QueryRewriter adapter over internal/llmgateway.
type QueryRewriter interface {
	RewriteQuery(ctx context.Context, query, memorySnippet string) (string, error)
}

// Service is the Triple-Hybrid Retrieval Engine.
type Service struct {
	vdb      *vectordb.Client
	embedder Embedder
	rewriter QueryRewriter
	log      *zap.Logger
}

func New(vdb *vectordb.Client, embedder Embedder, rewriter QueryRewriter, log *zap.Logger) *Service {
	if log == nil {
		log, _ = zap.NewProduction()
	}
	return &Service{vdb: vdb, embedder: embedder, rewriter: rewriter, log: log}
}

// Options controls one Retrieve call (spec §4.4 contract).
type Options struct {
	UserID        string
	TopK          int
	DocumentIDs   []string
	RewriteQuery  bool
	MemorySnippet string
}

// Retrieve runs the full retrieval algorithm (spec §4.4 steps 1-6) and
// returns ranked InternalSources with rrf_score and whichever of
// dense_score/sparse_score contributed.
func (s *Service) Retrieve(ctx context.Context, collection, query string, opts Options) ([]state.InternalSource, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}
	prefetchLimit := topK * 3

	// Step 1: query rewrite, falling back to the original on any failure —
	// the contract never returns an empty rewrite.
	effectiveQuery := query
	if opts.RewriteQuery && s.rewriter != nil {
		rewritten, err := s.rewriter.RewriteQuery(ctx, query, opts.MemorySnippet)
		if err != nil || rewritten == "" {
			s.log.Warn("query rewrite failed, falling back to original", zap.Error(err))
		} else {
			effectiveQuery = rewritten
		}
	}

	// Step 2: three concurrent query encodings. Sparse and late-interaction
	// are local and cannot fail; dense goes over the network and is
	// retried under the shared backoff policy.
	var denseVec []float32
	sparseVec, lateVec := encodeLocal(effectiveQuery)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		err := retrypolicy.Do(gctx, 30*time.Second, func() error {
			vecs, err := s.embedder.Embed(gctx, []string{effectiveQuery})
			if err != nil {
				return retrypolicy.MarkRetryable(err)
			}
			if len(vecs) == 0 {
				return fmt.Errorf("retrieval: embedder returned no vectors")
			}
			denseVec = vecs[0]
			return nil
		})
		metrics.RecordEmbeddingMetrics("query", outcomeOf(err), time.Since(start).Seconds())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("retrieval: dense query embedding: %w", err)
	}

	// Step 3: tenant/document filter.
	filter := vectordb.BuildFilter(opts.UserID, opts.DocumentIDs)

	// Step 4: dual prefetch.
	var denseHits, sparseHits []vectordb.ScoredPoint
	g2, gctx2 := errgroup.WithContext(ctx)
	g2.Go(func() error {
		var err error
		denseHits, err = s.vdb.PrefetchDense(gctx2, collection, denseVec, prefetchLimit, filter)
		return err
	})
	g2.Go(func() error {
		var err error
		sparseHits, err = s.vdb.PrefetchSparse(gctx2, collection, sparseVec, prefetchLimit, filter)
		return err
	})
	if err := g2.Wait(); err != nil {
		metrics.RetrievalQueries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("retrieval: prefetch: %w", err)
	}
	metrics.RetrievalQueries.WithLabelValues("ok").Inc()

	// Steps 5-6: RRF fusion, tie-break, cut to top_k.
	fusedResults := Fuse(denseHits, sparseHits, RRFConstant, topK)
	metrics.RetrievalFusedResults.Observe(float64(len(fusedResults)))

	out := make([]state.InternalSource, 0, len(fusedResults))
	for _, f := range fusedResults {
		src := toInternalSource(f)
		_ = lateVec // late-interaction vector is available for an optional
		// rerank pass; the default algorithm (spec §4.4) fuses dense+sparse
		// only and does not mandate a colbert rerank stage.
		out = append(out, src)
	}
	return out, nil
}

func toInternalSource(f FusedResult) state.InternalSource {
	payload := f.Point.Payload
	content, _ := payload["content"].(string)
	documentID, _ := payload["document_id"].(string)

	src := state.InternalSource{
		ChunkID:    f.Point.ID,
		DocumentID: documentID,
		Content:    content,
		Score:      f.RRFScore,
		Metadata:   payload,
	}
	if f.DenseScore != nil {
		src.DenseScore = *f.DenseScore
	}
	if f.SparseScore != nil {
		src.SparseScore = *f.SparseScore
	}
	return src
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// IndexChunk upserts a single chunk with its three co-located vectors and
// tenant-scoped payload (spec §4.4 "Indexing (reverse path)").
func (s *Service) IndexChunk(ctx context.Context, collection string, chunkID, documentID, userID, filename, content string, metadata map[string]interface{}) error {
	vecs, err := s.embedder.Embed(ctx, []string{content})
	if err != nil {
		return fmt.Errorf("retrieval: index embedding: %w", err)
	}
	if len(vecs) == 0 {
		return fmt.Errorf("retrieval: index embedding returned nothing")
	}
	sparse, late := encodeLocal(content)

	payload := map[string]interface{}{
		"document_id": documentID,
		"user_id":     userID,
		"content":     content,
		"filename":    filename,
	}
	for k, v := range metadata {
		payload[k] = v
	}

	item := vectordb.UpsertItem{
		ID: chunkID,
		Vectors: vectordb.NamedVectors{
			Dense:           vecs[0],
			Sparse:          &sparse,
			LateInteraction: late,
		},
		Payload: payload,
	}
	return s.vdb.Upsert(ctx, collection, []vectordb.UpsertItem{item}, 50)
}
