// Package critic implements the Critic Agent (spec C8/§4.7): verifies a
// synthesis result's claims against its cited sources and decides, via
// VerificationStatus.NeedsRefinement, whether the answer should be
// refined.
package critic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/thornxyz/revera/internal/jsonrecovery"
	"github.com/thornxyz/revera/internal/metrics"
	"github.com/thornxyz/revera/internal/state"
)

// Generator is the subset of llmgateway.Gateway the critic needs.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt, system string, temperature float64, maxTokens int, timeout time.Duration) (string, error)
}

// Activities wraps the critic's Temporal activity methods.
type Activities struct {
	LLM Generator
	// Timeout bounds a single Critique call; spec §4.7 recommends 20-30s.
	// Zero uses the package default of 25s.
	Timeout time.Duration
}

// Input is the critic's contract input (spec §4.7).
type Input struct {
	Query           string
	SynthesisAnswer string
	MemorySnippet   string
	SourceMap       map[int]state.SourceRef
	IterationCount  int
}

type verificationJSON struct {
	Status                 string   `json:"verification_status"`
	ConfidenceScore         float64  `json:"confidence_score"`
	VerifiedClaims          []string `json:"verified_claims"`
	UnsupportedClaims       []struct {
		Claim  string `json:"claim"`
		Reason string `json:"reason"`
	} `json:"unsupported_claims"`
	CoverageGaps           []string `json:"coverage_gaps"`
	ConflictingInformation []string `json:"conflicting_information"`
	OverallAssessment      string   `json:"overall_assessment"`
}

const defaultTimeout = 25 * time.Second

// Result is the critic's output: the verdict plus the incremented
// iteration count (spec §4.7: "increment iteration_count inside the
// critic node"). The orchestrator's reducer merges IterationCount back
// into ResearchState; the refinement conditional edge reads both fields
// from there.
type Result struct {
	Verification   state.Verification
	IterationCount int
}

// Critique runs the critic's verification pass. On a parse failure it
// returns state.ErrorVerification(); on a timeout it returns
// state.TimeoutVerification() and does not propagate the timeout as a Go
// error, since a timed-out critique is a normal (non-refining) outcome
// the graph continues from, not a node failure. IterationCount is always
// incremented by one relative to the input, regardless of outcome.
func (a *Activities) Critique(ctx context.Context, input Input) (Result, error) {
	logger := activity.GetLogger(ctx)
	next := input.IterationCount + 1

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := buildPrompt(input)
	raw, err := a.LLM.GenerateJSON(cctx, prompt, systemPrompt, 0.0, 1536, timeout)
	if err != nil {
		if cctx.Err() != nil {
			logger.Warn("critic: timed out")
			metrics.CriticVerdicts.WithLabelValues(string(state.VerificationTimeout)).Inc()
			return Result{Verification: state.TimeoutVerification(), IterationCount: next}, nil
		}
		logger.Warn("critic: generation failed", "error", err)
		metrics.CriticVerdicts.WithLabelValues(string(state.VerificationError)).Inc()
		return Result{Verification: state.ErrorVerification(), IterationCount: next}, nil
	}

	var parsed verificationJSON
	if err := jsonrecovery.Parse(raw, &parsed); err != nil {
		logger.Warn("critic: malformed output", "error", err)
		metrics.CriticVerdicts.WithLabelValues(string(state.VerificationError)).Inc()
		return Result{Verification: state.ErrorVerification(), IterationCount: next}, nil
	}

	v := state.Verification{
		VerificationStatus:     state.VerificationStatus(parsed.Status),
		ConfidenceScore:        parsed.ConfidenceScore,
		VerifiedClaims:         parsed.VerifiedClaims,
		CoverageGaps:           parsed.CoverageGaps,
		ConflictingInformation: parsed.ConflictingInformation,
		OverallAssessment:      parsed.OverallAssessment,
	}
	for _, c := range parsed.UnsupportedClaims {
		v.UnsupportedClaims = append(v.UnsupportedClaims, state.UnsupportedClaim{Claim: c.Claim, Reason: c.Reason})
	}
	if v.VerificationStatus == "" {
		v.VerificationStatus = state.VerificationUnverified
	}
	metrics.CriticVerdicts.WithLabelValues(string(v.VerificationStatus)).Inc()
	return Result{Verification: v, IterationCount: next}, nil
}

const systemPrompt = `You are the verification stage of a research assistant. Given a query, ` +
	`a synthesized answer, and its numbered sources, check every factual claim ` +
	`in the answer against the cited source. A claim with no citation, or a ` +
	`citation pointing to a source that does not contain it, is unsupported ` +
	`(reason "not found in sources" for the latter). Note cross-source ` +
	`contradictions as conflicting_information. Note any aspect of the query ` +
	`not addressed by any source as a coverage gap. Respond with JSON only: ` +
	`{verification_status: one of verified/partially_verified/unverified, ` +
	`confidence_score: 0-1, verified_claims: [...], unsupported_claims: ` +
	`[{claim, reason}], coverage_gaps: [...], conflicting_information: [...], ` +
	`overall_assessment: string}.`

func buildPrompt(input Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\n", input.Query)
	fmt.Fprintf(&b, "Answer:\n%s\n\n", input.SynthesisAnswer)
	if input.MemorySnippet != "" {
		b.WriteString(input.MemorySnippet)
		b.WriteString("\n\n")
	}
	b.WriteString("Sources:\n")
	ordinals := make([]int, 0, len(input.SourceMap))
	for o := range input.SourceMap {
		ordinals = append(ordinals, o)
	}
	sort.Ints(ordinals)
	for _, o := range ordinals {
		ref := input.SourceMap[o]
		switch {
		case ref.Internal != nil:
			fmt.Fprintf(&b, "[Source %d]: %s\n", o, ref.Internal.Content)
		case ref.Web != nil:
			fmt.Fprintf(&b, "[Source %d] (%s): %s\n", o, ref.Web.URL, ref.Web.Content)
		case ref.Image != nil:
			fmt.Fprintf(&b, "[Source %d]: image, no text content\n", o)
		}
	}
	return b.String()
}
