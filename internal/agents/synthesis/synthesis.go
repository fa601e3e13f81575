// Package synthesis implements the Synthesis Agent (spec C7): the only
// genuinely streaming agent in the graph. It drains the LLM gateway's
// token stream and publishes thought_chunk/answer_chunk events directly to
// the session's event stream as they arrive, independent of the
// surrounding Temporal workflow — the same "activity publishes straight to
// the streaming manager" pattern the teacher uses, applied per-chunk
// instead of per-final-response.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.temporal.io/sdk/activity"

	"github.com/thornxyz/revera/internal/eventstream"
	"github.com/thornxyz/revera/internal/llmgateway"
	"github.com/thornxyz/revera/internal/metrics"
	"github.com/thornxyz/revera/internal/state"
)

// Streamer is the subset of llmgateway.Gateway the synthesis agent needs.
type Streamer interface {
	GenerateStream(ctx context.Context, prompt string, opts llmgateway.Options) (<-chan llmgateway.Chunk, <-chan error)
	GenerateWithImages(ctx context.Context, prompt string, images []llmgateway.Image, opts llmgateway.Options) (string, error)
}

// Publisher is the subset of eventstream.Manager the synthesis agent needs.
type Publisher interface {
	Publish(ctx context.Context, evt eventstream.Event) error
}

// Activities wraps the synthesis agent's Temporal activity methods.
type Activities struct {
	LLM     Streamer
	Events  Publisher
	Model   string
}

// Input is the synthesis agent's contract input (spec §4.6).
type Input struct {
	SessionID         string
	Query             string
	MemorySnippet     string
	SourceMap         map[int]state.SourceRef
	Images            []llmgateway.Image
	Prior             *state.Verification // prior verification, if this is a refinement pass
	PriorAnswer       string
	GeneratedImageURL string
}

var concisePattern = regexp.MustCompile(`(?i)\b(brief|briefly|summary|summarize|tl;?dr|short answer)\b`)
var citationPattern = regexp.MustCompile(`\[Source (\d+)\]`)

// Synthesize drains a streaming generation, publishing thought_chunk and
// answer_chunk events as they arrive, and returns the aggregated result
// once the stream ends.
func (a *Activities) Synthesize(ctx context.Context, input Input) (state.SynthesisResult, error) {
	logger := activity.GetLogger(ctx)

	prompt := buildPrompt(input)
	opts := llmgateway.Options{
		Model:           a.Model,
		Temperature:     0.3,
		IncludeThoughts: true,
	}

	if len(input.Images) > 0 {
		return a.synthesizeMultimodal(ctx, input, prompt, opts)
	}

	chunks, errCh := a.LLM.GenerateStream(ctx, prompt, opts)

	var answer strings.Builder
	for chunks != nil || errCh != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			a.publish(ctx, input.SessionID, chunk)
			if chunk.Kind == llmgateway.ChunkText {
				answer.WriteString(chunk.Content)
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				logger.Warn("synthesis: stream error, emitting fallback", "error", err)
				fallback := "I ran into an error while composing the full answer. Please try again."
				a.publish(ctx, input.SessionID, llmgateway.Chunk{Kind: llmgateway.ChunkText, Content: fallback})
				answer.WriteString(fallback)
				chunks, errCh = nil, nil
			}
		}
	}

	return a.finish(ctx, input, answer.String())
}

func (a *Activities) synthesizeMultimodal(ctx context.Context, input Input, prompt string, opts llmgateway.Options) (state.SynthesisResult, error) {
	text, err := a.LLM.GenerateWithImages(ctx, prompt, input.Images, opts)
	if err != nil {
		fallback := "I ran into an error while composing the full answer. Please try again."
		a.publish(ctx, input.SessionID, llmgateway.Chunk{Kind: llmgateway.ChunkText, Content: fallback})
		return a.finish(ctx, input, fallback)
	}
	a.publish(ctx, input.SessionID, llmgateway.Chunk{Kind: llmgateway.ChunkText, Content: text})
	return a.finish(ctx, input, text)
}

func (a *Activities) finish(ctx context.Context, input Input, answer string) (state.SynthesisResult, error) {
	if input.GeneratedImageURL != "" {
		appended := fmt.Sprintf("\n\n![Generated Image](%s)", input.GeneratedImageURL)
		answer += appended
		a.publish(ctx, input.SessionID, llmgateway.Chunk{Kind: llmgateway.ChunkText, Content: appended})
	}

	return state.SynthesisResult{
		Answer:      answer,
		SourcesUsed: citedOrdinals(answer),
		Confidence:  state.ConfidenceMedium,
		SourceMap:   input.SourceMap,
	}, nil
}

func (a *Activities) publish(ctx context.Context, sessionID string, chunk llmgateway.Chunk) {
	if a.Events == nil {
		return
	}
	var evt eventstream.Event
	kindLabel := "answer"
	switch chunk.Kind {
	case llmgateway.ChunkThought:
		evt = eventstream.ThoughtChunkEvent(sessionID, chunk.Content)
		kindLabel = "thought"
	default:
		evt = eventstream.AnswerChunkEvent(sessionID, chunk.Content)
	}
	metrics.SynthesisChunksEmitted.WithLabelValues(kindLabel).Inc()
	if err := a.Events.Publish(ctx, evt); err != nil {
		activity.GetLogger(ctx).Warn("synthesis: publish failed", "error", err)
	}
}

// citedOrdinals extracts sorted, de-duplicated "[Source N]" references from
// the answer text (spec §4.6's citation-accounting rule).
func citedOrdinals(answer string) []int {
	seen := map[int]struct{}{}
	for _, m := range citationPattern.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seen[n] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// isRefinement reports whether this call should use refinement-mode
// instructions: entered whenever a prior Verification is present.
func isRefinement(input Input) bool {
	return input.Prior != nil
}

func buildPrompt(input Input) string {
	var b strings.Builder
	b.WriteString(systemPreamble(input))
	b.WriteString("\n\nQuery: ")
	b.WriteString(input.Query)
	b.WriteString("\n\n")
	b.WriteString(packSources(input.SourceMap))

	if input.MemorySnippet != "" {
		b.WriteString("\n")
		b.WriteString(input.MemorySnippet)
		b.WriteString("\n")
	}

	if isRefinement(input) {
		b.WriteString("\nThis is a refinement pass. Previous answer:\n")
		b.WriteString(input.PriorAnswer)
		b.WriteString("\n\nFix the following issues without repeating unsupported claims:\n")
		for _, c := range input.Prior.UnsupportedClaims {
			fmt.Fprintf(&b, "- Unsupported claim %q: %s\n", c.Claim, c.Reason)
		}
		for _, g := range input.Prior.CoverageGaps {
			fmt.Fprintf(&b, "- Coverage gap: %s\n", g)
		}
		for _, c := range input.Prior.ConflictingInformation {
			fmt.Fprintf(&b, "- Conflicting information: %s\n", c)
		}
	}

	return b.String()
}

func systemPreamble(input Input) string {
	length := "Write a multi-paragraph, research-style answer."
	if concisePattern.MatchString(input.Query) {
		length = "Write a concise answer of 4-6 sentences."
	}
	return "Use only the sources provided below. Cite every factual claim inline as [Source N]. " +
		"Prefer markdown formatting. Before answering, briefly state your reasoning approach. " + length
}

// BuildSourceMap assigns 1-based ordinals to the retrieved/searched/
// generated context in the order spec §4.6 requires: internal sources
// first, then web, then images. The returned map's keys become the
// citation ordinals the synthesis prompt and sources_used refer to.
func BuildSourceMap(internalSources []state.InternalSource, webSources []state.WebSource, images []state.ImageRef) map[int]state.SourceRef {
	out := make(map[int]state.SourceRef, len(internalSources)+len(webSources)+len(images))
	ordinal := 1
	for i := range internalSources {
		out[ordinal] = state.SourceRef{Type: "internal", Internal: &internalSources[i]}
		ordinal++
	}
	for i := range webSources {
		out[ordinal] = state.SourceRef{Type: "web", Web: &webSources[i]}
		ordinal++
	}
	for i := range images {
		out[ordinal] = state.SourceRef{Type: "image", Image: &images[i]}
		ordinal++
	}
	return out
}

// packSources renders the source_map into a single context block with
// 1-based ordinals: internal sources first, then web, then images (spec
// §4.6's source-packing rule). The caller is expected to have already
// assigned ordinals when building SourceMap; packSources only renders in
// ordinal order, it does not re-derive the ordering.
func packSources(sourceMap map[int]state.SourceRef) string {
	if len(sourceMap) == 0 {
		return "No sources were retrieved."
	}
	ordinals := make([]int, 0, len(sourceMap))
	for o := range sourceMap {
		ordinals = append(ordinals, o)
	}
	sort.Ints(ordinals)

	var b strings.Builder
	b.WriteString("Sources:\n")
	for _, o := range ordinals {
		ref := sourceMap[o]
		switch {
		case ref.Internal != nil:
			fmt.Fprintf(&b, "[Source %d] (internal document %s): %s\n", o, ref.Internal.DocumentID, ref.Internal.Content)
		case ref.Web != nil:
			fmt.Fprintf(&b, "[Source %d] (%s, %s): %s\n", o, ref.Web.Title, ref.Web.URL, ref.Web.Content)
		case ref.Image != nil:
			fmt.Fprintf(&b, "[Source %d] (image %s)\n", o, ref.Image.URL)
		}
	}
	return b.String()
}

// ErrNoSourcesOrImages is returned by callers that choose to treat an
// entirely empty context as a hard error rather than a degraded answer;
// Synthesize itself never returns it — packSources degrades gracefully.
var ErrNoSourcesOrImages = errors.New("synthesis: no sources or images in context")
