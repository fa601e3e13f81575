package llmgateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/thornxyz/revera/internal/interceptors"
	"github.com/thornxyz/revera/internal/tracing"
)

// OpenAIConfig configures the OpenAI-backed provider.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	ImageModel     string
}

// OpenAIProvider is a thin wrapper over openai-go/v3, grounded on the pack's
// Api/ApiConfig construction idiom: append option.WithAPIKey last, build one
// client, delegate every operation to its sub-resource clients.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client openai.Client
	tokens *TokenCounter
	log    *zap.Logger
}

func NewOpenAIProvider(cfg OpenAIConfig, tokens *TokenCounter, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llmgateway: openai api key required")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-large"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "dall-e-3"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, option.WithHTTPClient(&http.Client{Transport: interceptors.NewWorkflowHTTPRoundTripper(nil)}))
	return &OpenAIProvider{cfg: cfg, client: openai.NewClient(opts...), tokens: tokens, log: logger}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) CountTokens(text string) int { return p.tokens.Count(text) }

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if model == "" {
		model = p.cfg.EmbeddingModel
	}
	ctx, span := tracing.StartSpan(ctx, "llmgateway.openai.embed")
	defer span.End()

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("llmgateway: openai embed: %w", err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	return out, nil
}

func (p *OpenAIProvider) params(prompt string, opts Options) openai.ChatCompletionNewParams {
	model := opts.Model
	if model == "" {
		model = p.cfg.ChatModel
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if opts.System != "" {
		messages = append(messages, openai.SystemMessage(opts.System))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{Model: model, Messages: messages}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	return params
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "llmgateway.openai.generate")
	defer span.End()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	resp, err := p.client.Chat.Completions.New(ctx, p.params(prompt, opts))
	if err != nil {
		return "", fmt.Errorf("llmgateway: openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llmgateway: openai generate: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream forwards chat-completion deltas as text chunks. OpenAI's
// chat API has no first-class "thinking" channel (that is an Anthropic
// concept), so every delta is emitted as ChunkText; reasoning-model prefaces
// arrive inline in the same content stream and are not split out.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		ctx, span := tracing.StartSpan(ctx, "llmgateway.openai.generate_stream")
		defer span.End()

		params := p.params(prompt, opts)
		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case chunks <- Chunk{Kind: ChunkText, Content: delta}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := stream.Err(); err != nil {
			errs <- fmt.Errorf("llmgateway: openai stream: %w", err)
		}
	}()

	return chunks, errs
}

func (p *OpenAIProvider) GenerateWithImages(ctx context.Context, prompt string, images []Image, opts Options) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "llmgateway.openai.generate_with_images")
	defer span.End()

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, 1+len(images))
	parts = append(parts, openai.ChatCompletionContentPartUnionParam{
		OfText: &openai.ChatCompletionContentPartTextParam{Text: prompt},
	})
	for _, img := range images {
		dataURL := fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data))
		parts = append(parts, openai.ChatCompletionContentPartUnionParam{
			OfImageURL: &openai.ChatCompletionContentPartImageParam{
				ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
			},
		})
	}

	model := opts.Model
	if model == "" {
		model = p.cfg.ChatModel
	}
	messages := []openai.ChatCompletionMessageParamUnion{}
	if opts.System != "" {
		messages = append(messages, openai.SystemMessage(opts.System))
	}
	messages = append(messages, openai.UserMessage(parts))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{Model: model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("llmgateway: openai generate_with_images: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llmgateway: openai generate_with_images: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) GenerateImage(ctx context.Context, prompt string, n int) ([]Image, error) {
	ctx, span := tracing.StartSpan(ctx, "llmgateway.openai.generate_image")
	defer span.End()

	resp, err := p.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  p.cfg.ImageModel,
		N:      openai.Int(int64(n)),
	})
	if err != nil {
		return nil, fmt.Errorf("llmgateway: openai generate_image: %w", err)
	}

	out := make([]Image, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.B64JSON != "" {
			data, err := base64.StdEncoding.DecodeString(d.B64JSON)
			if err != nil {
				continue
			}
			out = append(out, Image{MimeType: "image/png", Data: data})
			continue
		}
		if d.URL != "" {
			data, err := fetchImageURL(ctx, d.URL)
			if err != nil {
				continue
			}
			out = append(out, Image{MimeType: "image/png", Data: data})
		}
	}
	return out, nil
}

func fetchImageURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
