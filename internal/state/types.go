// Package state defines ResearchState, the record that flows through the
// graph engine, and the per-field reducer rule that governs how node output
// merges into it.
package state

import (
	"fmt"
	"sort"
	"time"
)

// ImageRef is an attachment context item, pre-scoped to the chat by the
// caller (see design note on image_contexts routing).
type ImageRef struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Bytes    []byte `json:"-"`
}

// Plan is the planner's output. Invariant: Steps is non-empty.
type Plan struct {
	Subtasks    []string               `json:"subtasks"`
	Steps       []PlanStep             `json:"steps" validate:"required,min=1"`
	Constraints map[string]interface{} `json:"constraints"`
}

// PlanStepTool enumerates the fixed tool set a plan step may target.
type PlanStepTool string

const (
	ToolRAG          PlanStepTool = "rag"
	ToolWeb          PlanStepTool = "web"
	ToolSynthesis    PlanStepTool = "synthesis"
	ToolVerification PlanStepTool = "verification"
	ToolImageGen     PlanStepTool = "image_gen"
)

// PlanStep is one step of an ExecutionPlan.
type PlanStep struct {
	Tool        PlanStepTool           `json:"tool"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// HasTool reports whether the plan includes a step targeting tool t.
func (p Plan) HasTool(t PlanStepTool) bool {
	for _, s := range p.Steps {
		if s.Tool == t {
			return true
		}
	}
	return false
}

// DefaultPlan is returned whenever planner output is malformed (spec §4.3,
// §8 invariant 8).
func DefaultPlan() Plan {
	return Plan{
		Subtasks: []string{"answer the query from available context"},
		Steps: []PlanStep{
			{Tool: ToolRAG, Description: "retrieve relevant context"},
			{Tool: ToolSynthesis, Description: "synthesize a grounded answer"},
		},
	}
}

// InternalSource is a retrieved chunk. Uniqueness key for RRF is ChunkID.
type InternalSource struct {
	ChunkID     string                 `json:"chunk_id"`
	DocumentID  string                 `json:"document_id"`
	Content     string                 `json:"content"`
	Score       float64                `json:"score"`
	DenseScore  float64                `json:"dense_score,omitempty"`
	SparseScore float64                `json:"sparse_score,omitempty"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// WebSource is a result from the web search client. URL is the uniqueness key.
type WebSource struct {
	URL             string     `json:"url"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	RawContent      string     `json:"raw_content,omitempty"`
	PublishedDate   *time.Time `json:"published_date,omitempty"`
	Score           float64    `json:"score"`
	RelevanceScore  float64    `json:"relevance_score"`
}

// Confidence is the synthesis agent's self-reported confidence tier.
type Confidence string

const (
	ConfidenceHigh    Confidence = "high"
	ConfidenceMedium  Confidence = "medium"
	ConfidenceLow     Confidence = "low"
	ConfidenceTimeout Confidence = "timeout"
)

// SourceRef is one entry in a SynthesisResult's source_map: the record a
// citation ordinal resolves to.
type SourceRef struct {
	Type     string  `json:"type"` // internal, web, image
	Internal *InternalSource `json:"internal,omitempty"`
	Web      *WebSource      `json:"web,omitempty"`
	Image    *ImageRef       `json:"image,omitempty"`
}

// NormalizedSource is the wire shape of a citation ordinal, sent to the
// caller in `sources` and `complete` events (spec §6's streaming event
// table). It flattens whichever of SourceRef's three variants is present.
type NormalizedSource struct {
	Ordinal    int    `json:"ordinal"`
	Type       string `json:"type"` // internal, web, image
	Title      string `json:"title,omitempty"`
	URL        string `json:"url,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
}

// NormalizeSources flattens a synthesis result's source_map into the
// ordinal-ordered list the caller receives over the event stream.
func NormalizeSources(sourceMap map[int]SourceRef) []NormalizedSource {
	out := make([]NormalizedSource, 0, len(sourceMap))
	for ordinal, ref := range sourceMap {
		n := NormalizedSource{Ordinal: ordinal, Type: ref.Type}
		switch {
		case ref.Internal != nil:
			n.DocumentID = ref.Internal.DocumentID
			n.Snippet = snippet(ref.Internal.Content)
		case ref.Web != nil:
			n.Title = ref.Web.Title
			n.URL = ref.Web.URL
			n.Snippet = snippet(ref.Web.Content)
		case ref.Image != nil:
			n.URL = ref.Image.URL
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

func snippet(content string) string {
	const maxLen = 240
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "…"
}

// SynthesisResult is the synthesis agent's output record.
type SynthesisResult struct {
	Answer      string             `json:"answer"`
	SourcesUsed []int              `json:"sources_used"`
	Confidence  Confidence         `json:"confidence"`
	Sections    []string           `json:"sections,omitempty"`
	SourceMap   map[int]SourceRef  `json:"source_map"`
	Reasoning   string             `json:"reasoning,omitempty"`
}

// VerificationStatus is the critic's verdict tier.
type VerificationStatus string

const (
	VerificationVerified           VerificationStatus = "verified"
	VerificationPartiallyVerified  VerificationStatus = "partially_verified"
	VerificationUnverified         VerificationStatus = "unverified"
	VerificationTimeout            VerificationStatus = "timeout"
	VerificationError              VerificationStatus = "error"
)

// NeedsRefinement reports whether this verdict should route back to
// synthesis per spec §4.7's refinement gate. "low" maps to Unverified (a
// low-confidence verdict) and "failed" maps to Error (the critic could not
// produce a verdict). Timeout does not refine: a timed-out critic pass ends
// the loop with the answer as it stands.
func (s VerificationStatus) NeedsRefinement() bool {
	switch s {
	case VerificationUnverified, VerificationError:
		return true
	default:
		return false
	}
}

// UnsupportedClaim pairs a claim with why it failed verification.
type UnsupportedClaim struct {
	Claim  string `json:"claim"`
	Reason string `json:"reason"`
}

// Verification is the critic's output record.
type Verification struct {
	VerificationStatus    VerificationStatus  `json:"verification_status"`
	ConfidenceScore       float64             `json:"confidence_score" validate:"min=0,max=1"`
	VerifiedClaims        []string            `json:"verified_claims"`
	UnsupportedClaims     []UnsupportedClaim  `json:"unsupported_claims"`
	CoverageGaps          []string            `json:"coverage_gaps"`
	ConflictingInformation []string           `json:"conflicting_information"`
	OverallAssessment     string              `json:"overall_assessment"`
}

// TimeoutVerification is the recoverable marker produced when the critic
// wrap times out (spec §4.7, invariant 10).
func TimeoutVerification() Verification {
	return Verification{
		VerificationStatus: VerificationTimeout,
		ConfidenceScore:    0,
		OverallAssessment:  "critic timed out",
	}
}

// ErrorVerification is the safe default on unparseable critic JSON (spec §4.7).
func ErrorVerification() Verification {
	return Verification{
		VerificationStatus: VerificationUnverified,
		ConfidenceScore:    0,
		OverallAssessment:  "technical error",
	}
}

// TimelineEntry is one append-only record of agent_timeline.
type TimelineEntry struct {
	AgentName     string                 `json:"agent_name"`
	ResultSummary string                 `json:"result_summary"`
	Metadata      map[string]interface{} `json:"metadata"`
	LatencyMs     int64                  `json:"latency_ms"`
	Timestamp     time.Time              `json:"timestamp"`
}

// MemoryKind distinguishes episodic from semantic memory namespaces.
type MemoryKind string

const (
	MemoryEpisodic MemoryKind = "episodic"
	MemorySemantic MemoryKind = "semantic"
)

// Memory is one stored item in a memory namespace.
type Memory struct {
	Key       string                 `json:"key"`
	Value     map[string]interface{} `json:"value"`
	Embedding []float32              `json:"-"`
	CreatedAt time.Time              `json:"created_at"`
}

// ResearchState is the record that flows through the graph engine. Every
// field is either immutable input, set-once output, or the single
// append-merged field agent_timeline — see Reduce for the authoritative
// merge rule (spec §9 "reducer on list field").
type ResearchState struct {
	// Immutable input
	Query     string `json:"query"`
	UserID    string `json:"user_id"`
	ChatID    string `json:"chat_id"`
	ThreadID  string `json:"thread_id"`
	SessionID string `json:"session_id"`

	// Scoping
	UseWeb      bool     `json:"use_web"`
	DocumentIDs []string `json:"document_ids"`

	// Set-once outputs
	ExecutionPlan     *Plan            `json:"execution_plan,omitempty"`
	InternalSources   []InternalSource `json:"internal_sources"`
	WebSources        []WebSource      `json:"web_sources"`
	ImageContexts     []ImageRef       `json:"image_contexts"`
	GeneratedImageURL string           `json:"generated_image_url,omitempty"`

	// Replaced on each refinement pass
	SynthesisResult *SynthesisResult `json:"synthesis_result,omitempty"`
	Verification    *Verification    `json:"verification,omitempty"`

	// Append-merged — the only list field with append semantics.
	AgentTimeline []TimelineEntry `json:"agent_timeline"`

	// Refinement loop counters
	IterationCount  int  `json:"iteration_count"`
	NeedsRefinement bool `json:"needs_refinement"`
	MaxIterations   int  `json:"max_iterations"`

	// Injected per-agent memory context
	MemoryContext map[string][]Memory `json:"memory_context,omitempty"`
}

// Reduce combines partial node output into the state following the
// per-field merge policy: AgentTimeline appends, IterationCount keeps the
// larger value, NeedsRefinement is always replaced, and everything else
// replaces when non-zero. This is the single place that policy is encoded; node
// implementations must never special-case merging themselves.
func (s ResearchState) Reduce(partial ResearchState) ResearchState {
	out := s

	if partial.ExecutionPlan != nil {
		out.ExecutionPlan = partial.ExecutionPlan
	}
	if partial.InternalSources != nil {
		out.InternalSources = partial.InternalSources
	}
	if partial.WebSources != nil {
		out.WebSources = partial.WebSources
	}
	if partial.ImageContexts != nil {
		out.ImageContexts = partial.ImageContexts
	}
	if partial.GeneratedImageURL != "" {
		out.GeneratedImageURL = partial.GeneratedImageURL
	}
	if partial.SynthesisResult != nil {
		out.SynthesisResult = partial.SynthesisResult
	}
	if partial.Verification != nil {
		out.Verification = partial.Verification
	}
	if len(partial.AgentTimeline) > 0 {
		out.AgentTimeline = append(append([]TimelineEntry{}, out.AgentTimeline...), partial.AgentTimeline...)
	}
	if partial.IterationCount > out.IterationCount {
		out.IterationCount = partial.IterationCount
	}
	out.NeedsRefinement = partial.NeedsRefinement
	if partial.MemoryContext != nil {
		out.MemoryContext = partial.MemoryContext
	}
	if partial.DocumentIDs != nil {
		out.DocumentIDs = partial.DocumentIDs
	}

	return out
}

// Validate enforces the structural invariants that must hold at any point
// in the session lifecycle.
func (s *ResearchState) Validate() error {
	if s.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if s.UserID == "" {
		return fmt.Errorf("user_id cannot be empty")
	}
	if s.ExecutionPlan != nil && len(s.ExecutionPlan.Steps) == 0 {
		return fmt.Errorf("execution plan has no steps")
	}
	if s.IterationCount > s.MaxIterations+1 {
		return fmt.Errorf("iteration_count %d exceeds max_iterations+1 %d", s.IterationCount, s.MaxIterations+1)
	}
	return nil
}

// AppendTimeline appends one timeline entry, respecting the append-only
// reducer for this field.
func (s *ResearchState) AppendTimeline(entry TimelineEntry) {
	s.AgentTimeline = append(s.AgentTimeline, entry)
}
