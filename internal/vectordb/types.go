package vectordb

import "time"

// Config controls the Qdrant HTTP client (spec C2, §6 "Vector index
// collection").
type Config struct {
	Enabled bool
	Host    string
	Port    int

	// Collections
	Chunks  string // document chunks: dense+sparse+colbert, tenant-scoped
	Memory  string // per-agent episodic/semantic memory embeddings

	TopK               int
	PrefetchMultiplier int
	Timeout            time.Duration

	ExpectedDenseDim int // 3072 per spec §4.4
}

// SparseVector is a BM25-style {indices,values} representation.
type SparseVector struct {
	Indices []int     `json:"indices"`
	Values  []float32 `json:"values"`
}

// LateInteractionVector is a token-level multi-vector representation
// rescored at query time with MAX_SIM (spec GLOSSARY).
type LateInteractionVector [][]float32

// NamedVectors is the three co-located vectors on every chunk point (spec
// §4.4 "Indexing (reverse path)").
type NamedVectors struct {
	Dense          []float32              `json:"dense,omitempty"`
	Sparse         *SparseVector           `json:"sparse,omitempty"`
	LateInteraction LateInteractionVector  `json:"colbert,omitempty"`
}

// UpsertItem is one point to insert into a collection.
type UpsertItem struct {
	ID      string                 `json:"id"`
	Vectors NamedVectors           `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// UpsertResponse captures the basic Qdrant upsert acknowledgement.
type UpsertResponse struct {
	Status string  `json:"status"`
	Time   float64 `json:"time"`
}

// ScoredPoint is a single hit returned from a prefetch query, before RRF
// fusion combines the dense and sparse rank lists.
type ScoredPoint struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Payload  map[string]interface{} `json:"payload"`
}
