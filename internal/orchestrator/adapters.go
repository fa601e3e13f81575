package orchestrator

import (
	"context"

	"github.com/thornxyz/revera/internal/llmgateway"
)

// QueryRewriter adapts llmgateway.Gateway to internal/retrieval's
// QueryRewriter interface (spec §4.4 step 1).
type QueryRewriter struct {
	gw *llmgateway.Gateway
}

// NewQueryRewriter wraps gw for use as internal/retrieval.Service's rewrite
// dependency.
func NewQueryRewriter(gw *llmgateway.Gateway) *QueryRewriter {
	return &QueryRewriter{gw: gw}
}

func (r *QueryRewriter) RewriteQuery(ctx context.Context, query, memorySnippet string) (string, error) {
	prompt := "Rewrite this conversational query into a retrieval-optimized query of 20 words or " +
		"fewer: expand pronouns, keep named entities, drop filler words. Respond with the rewritten " +
		"query only, no explanation."
	if memorySnippet != "" {
		prompt += "\n\n" + memorySnippet
	}
	prompt += "\n\nQuery: " + query
	return r.gw.Generate(ctx, prompt, llmgateway.Options{Temperature: 0, MaxTokens: 64})
}

// QueryExpander adapts llmgateway.Gateway to internal/websearch's
// QueryExpander interface (spec §4.5 step 1).
type QueryExpander struct {
	gw *llmgateway.Gateway
}

// NewQueryExpander wraps gw for use as internal/websearch.Service's expand
// dependency.
func NewQueryExpander(gw *llmgateway.Gateway) *QueryExpander {
	return &QueryExpander{gw: gw}
}

func (e *QueryExpander) Complete(ctx context.Context, prompt string) (string, error) {
	return e.gw.Generate(ctx, prompt, llmgateway.Options{Temperature: 0.2, MaxTokens: 256})
}

// Embedder adapts llmgateway.Gateway to the Embed(ctx, texts) shape that
// internal/memory and internal/retrieval both depend on; it always uses
// the gateway's configured default embedding model.
type Embedder struct {
	gw *llmgateway.Gateway
}

// NewEmbedder wraps gw for use as internal/memory.Store's and
// internal/retrieval.Service's embedding dependency.
func NewEmbedder(gw *llmgateway.Gateway) *Embedder {
	return &Embedder{gw: gw}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.gw.Embed(ctx, texts, "")
}
