package llmgateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/thornxyz/revera/internal/interceptors"
	"github.com/thornxyz/revera/internal/tracing"
)

// ErrNotSupported is returned by provider operations Anthropic's API has no
// equivalent for (embeddings, image generation); the Gateway routes those
// operations to the OpenAI provider regardless of the caller's model choice.
var ErrNotSupported = errors.New("llmgateway: operation not supported by this provider")

type AnthropicConfig struct {
	APIKey             string
	ChatModel          string
	ThinkingBudgetTokens int64
}

// AnthropicProvider wraps anthropic-sdk-go using the same thin-construction
// idiom as OpenAIProvider: one client, option.WithAPIKey, per-operation
// delegation to the client's resource methods. Extended-thinking deltas are
// mapped to ChunkThought so the synthesis agent's reasoning preface stays
// separated from the user-visible answer.
type AnthropicProvider struct {
	cfg    AnthropicConfig
	client anthropic.Client
	tokens *TokenCounter
	log    *zap.Logger
}

func NewAnthropicProvider(cfg AnthropicConfig, tokens *TokenCounter, logger *zap.Logger) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llmgateway: anthropic api key required")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "claude-sonnet-4-5"
	}
	if cfg.ThinkingBudgetTokens == 0 {
		cfg.ThinkingBudgetTokens = 2048
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Transport: interceptors.NewWorkflowHTTPRoundTripper(nil)}),
	}
	return &AnthropicProvider{cfg: cfg, client: anthropic.NewClient(opts...), tokens: tokens, log: logger}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) CountTokens(text string) int { return p.tokens.Count(text) }

func (p *AnthropicProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	return nil, ErrNotSupported
}

func (p *AnthropicProvider) GenerateImage(ctx context.Context, prompt string, n int) ([]Image, error) {
	return nil, ErrNotSupported
}

func (p *AnthropicProvider) params(prompt string, opts Options) anthropic.MessageNewParams {
	model := opts.Model
	if model == "" {
		model = p.cfg.ChatModel
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.IncludeThoughts {
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: p.cfg.ThinkingBudgetTokens},
		}
	}
	return params
}

func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "llmgateway.anthropic.generate")
	defer span.End()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	resp, err := p.client.Messages.New(ctx, p.params(prompt, opts))
	if err != nil {
		return "", fmt.Errorf("llmgateway: anthropic generate: %w", err)
	}
	var out string
	for _, block := range resp.Content {
		if text := block.AsAny(); text != nil {
			if tb, ok := text.(anthropic.TextBlock); ok {
				out += tb.Text
			}
		}
	}
	return out, nil
}

// GenerateStream maps content-block deltas: text_delta -> ChunkText,
// thinking_delta -> ChunkThought (only requested when opts.IncludeThoughts
// is set, matching the planner/synthesis reasoning-preface contract).
func (p *AnthropicProvider) GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		ctx, span := tracing.StartSpan(ctx, "llmgateway.anthropic.generate_stream")
		defer span.End()

		stream := p.client.Messages.NewStreaming(ctx, p.params(prompt, opts))
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			var chunk Chunk
			switch d := delta.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				chunk = Chunk{Kind: ChunkText, Content: d.Text}
			case anthropic.ThinkingDelta:
				chunk = Chunk{Kind: ChunkThought, Content: d.Thinking}
			default:
				continue
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := stream.Err(); err != nil {
			errs <- fmt.Errorf("llmgateway: anthropic stream: %w", err)
		}
	}()

	return chunks, errs
}

func (p *AnthropicProvider) GenerateWithImages(ctx context.Context, prompt string, images []Image, opts Options) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "llmgateway.anthropic.generate_with_images")
	defer span.End()

	blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(images))
	for _, img := range images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, base64.StdEncoding.EncodeToString(img.Data)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(prompt))

	model := opts.Model
	if model == "" {
		model = p.cfg.ChatModel
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llmgateway: anthropic generate_with_images: %w", err)
	}
	var out string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			out += tb.Text
		}
	}
	return out, nil
}
