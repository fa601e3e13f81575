// Package llmgateway provides a single provider-agnostic interface over the
// OpenAI and Anthropic SDKs: embeddings, plain generation, JSON-mode
// generation, streaming generation with interleaved thought/text chunks,
// vision generation and image generation. Callers never import a provider
// SDK directly.
package llmgateway

import (
	"context"
	"time"
)

// ChunkKind distinguishes a reasoning preface from the user-visible answer
// in a streamed generation.
type ChunkKind string

const (
	ChunkThought ChunkKind = "thought"
	ChunkText    ChunkKind = "text"
)

// Chunk is one element of a GenerateStream iterator.
type Chunk struct {
	Kind    ChunkKind
	Content string
}

// Image is a single input or output image payload.
type Image struct {
	MimeType string
	Data     []byte
}

// Options configures a single generate/stream/embed call. Zero values fall
// back to the gateway's per-provider defaults.
type Options struct {
	System          string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	IncludeThoughts bool
	// Model overrides the gateway's default model for this call; empty
	// uses the OpenAI provider's configured ChatModel.
	Model string
}

// Provider is implemented once per backing LLM API (OpenAI, Anthropic).
type Provider interface {
	Name() string
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan Chunk, <-chan error)
	GenerateWithImages(ctx context.Context, prompt string, images []Image, opts Options) (string, error)
	GenerateImage(ctx context.Context, prompt string, n int) ([]Image, error)
	CountTokens(text string) int
}
