// Package metrics declares the Prometheus instrumentation surface for the
// research service: graph scheduling, retrieval, synthesis, critic, web
// search and memory.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Graph engine metrics
	GraphSessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revera_graph_sessions_started_total",
			Help: "Total number of research graph runs started",
		},
	)

	GraphSessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revera_graph_sessions_completed_total",
			Help: "Total number of research graph runs completed by terminal status",
		},
		[]string{"status"}, // completed, failed
	)

	GraphSessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "revera_graph_session_duration_seconds",
			Help:    "Total research session duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	NodeExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revera_graph_node_executions_total",
			Help: "Total number of graph node executions",
		},
		[]string{"node", "result"}, // result: ok, error
	)

	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "revera_graph_node_duration_ms",
			Help:    "Graph node execution duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"node"},
	)

	RefinementIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "revera_refinement_iterations",
			Help:    "Number of critic->synthesis refinement iterations per session",
			Buckets: []float64{0, 1, 2, 3, 4},
		},
	)

	// Retrieval metrics
	RetrievalQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revera_retrieval_queries_total",
			Help: "Total retrieval queries executed",
		},
		[]string{"result"}, // ok, error
	)

	RetrievalFusedResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "revera_retrieval_fused_results",
			Help:    "Number of chunks returned after RRF fusion",
			Buckets: []float64{0, 1, 5, 10, 20, 50},
		},
	)

	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revera_embedding_requests_total",
			Help: "Total embedding requests by cache outcome",
		},
		[]string{"kind", "outcome"}, // kind: llm (gateway Embed), query (retrieval dense query); outcome: cache_hit, ok, error
	)

	EmbeddingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "revera_embedding_duration_seconds",
			Help:    "Embedding request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	VectorSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "revera_vector_search_duration_seconds",
			Help:    "Vector index search duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"}, // search, upsert
	)

	// Web search metrics
	WebSearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revera_web_search_requests_total",
			Help: "Total web search provider calls",
		},
		[]string{"kind", "result"}, // kind: search (every provider query); result: ok/error
	)

	WebSearchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "revera_web_search_results",
			Help:    "Number of deduped web results returned",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	WebSearchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "revera_web_search_latency_seconds",
			Help:    "Web search provider call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Synthesis / critic metrics
	SynthesisChunksEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revera_synthesis_chunks_emitted_total",
			Help: "Total streamed synthesis chunks emitted",
		},
		[]string{"kind"}, // thought, answer
	)

	CriticVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revera_critic_verdicts_total",
			Help: "Total critic verification outcomes",
		},
		[]string{"status"}, // verified, partially_verified, unverified, timeout, error
	)

	// Memory metrics
	MemoryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revera_memory_fetches_total",
			Help: "Total number of memory fetch operations",
		},
		[]string{"agent", "mode", "result"}, // mode: recency/similarity/put; result: ok/error
	)

	MemoryItemsRetrieved = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "revera_memory_items_retrieved",
			Help:    "Number of memory items retrieved per fetch",
			Buckets: []float64{0, 1, 5, 10, 20},
		},
		[]string{"agent", "mode"},
	)

	// Circuit breaker / policy
	PolicyDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revera_policy_decisions_total",
			Help: "Total tenant-isolation policy decisions",
		},
		[]string{"decision"}, // allow, deny, error
	)
)

// RecordEmbeddingMetrics mirrors the teacher's helper shape: outcome labels
// and optional duration observation.
func RecordEmbeddingMetrics(kind, outcome string, seconds float64) {
	EmbeddingRequests.WithLabelValues(kind, outcome).Inc()
	if seconds > 0 {
		EmbeddingDuration.Observe(seconds)
	}
}

// RecordVectorSearchMetrics records a vector index operation's duration.
func RecordVectorSearchMetrics(op string, seconds float64) {
	VectorSearchDuration.WithLabelValues(op).Observe(seconds)
}
