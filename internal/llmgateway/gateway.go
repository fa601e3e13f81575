package llmgateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/thornxyz/revera/internal/circuitbreaker"
	"github.com/thornxyz/revera/internal/metrics"
	"github.com/thornxyz/revera/internal/retrypolicy"
)

// Config is the top-level gateway configuration: per-provider credentials
// and default models. It has no per-agent model settings; a call that names
// no model uses the OpenAI provider's ChatModel.
type Config struct {
	OpenAI            OpenAIConfig
	Anthropic         AnthropicConfig
	EmbeddingCacheTTL time.Duration
	GenerationCacheTTL time.Duration
	LocalLRUCapacity  int
	// RequestsPerSecond bounds outbound provider calls; the orchestrator can
	// otherwise fan out far more agent calls per session than either
	// provider's rate limit tolerates.
	RequestsPerSecond float64
	RequestBurst      int
}

// Gateway implements the abstract LLM interface from spec §6 by routing
// each call to the provider the model name belongs to ("claude-" prefix ->
// Anthropic, everything else -> OpenAI), sitting a two-tier cache and a
// shared rate limiter in front of both.
type Gateway struct {
	openai    *OpenAIProvider
	anthropic *AnthropicProvider
	limiter   *rate.Limiter

	embedCache EmbeddingCache
	genCache   *textCache
	embedTTL   time.Duration
	genTTL     time.Duration

	log *zap.Logger
}

// New wires both providers plus the cache tiers. redisWrapper may be nil
// (tests, or a deployment that accepts cache-miss-only operation); the
// local LRU tier always runs regardless.
func New(cfg Config, redisWrapper *circuitbreaker.RedisWrapper, logger *zap.Logger) (*Gateway, error) {
	tokens, err := NewTokenCounter()
	if err != nil {
		return nil, fmt.Errorf("llmgateway: token counter: %w", err)
	}
	openaiProvider, err := NewOpenAIProvider(cfg.OpenAI, tokens, logger)
	if err != nil {
		return nil, err
	}
	anthropicProvider, err := NewAnthropicProvider(cfg.Anthropic, tokens, logger)
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.RequestBurst <= 0 {
		cfg.RequestBurst = 20
	}
	if cfg.EmbeddingCacheTTL == 0 {
		cfg.EmbeddingCacheTTL = time.Hour
	}
	if cfg.GenerationCacheTTL == 0 {
		cfg.GenerationCacheTTL = 10 * time.Minute
	}

	lru := NewLocalLRU(cfg.LocalLRUCapacity)
	var embedCache EmbeddingCache = lru
	if redisWrapper != nil {
		embedCache = &tieredEmbeddingCache{local: lru, remote: NewRedisCache(redisWrapper)}
	}

	return &Gateway{
		openai:     openaiProvider,
		anthropic:  anthropicProvider,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestBurst),
		embedCache: embedCache,
		genCache:   &textCache{cli: redisWrapper},
		embedTTL:   cfg.EmbeddingCacheTTL,
		genTTL:     cfg.GenerationCacheTTL,
		log:        logger,
	}, nil
}

// tieredEmbeddingCache checks the local LRU first, then Redis, populating
// the LRU on a remote hit — the same shape as the teacher's embedding
// service cache lookup.
type tieredEmbeddingCache struct {
	local  *LocalLRU
	remote *RedisCache
}

func (t *tieredEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool) {
	if v, ok := t.local.Get(ctx, key); ok {
		return v, true
	}
	if v, ok := t.remote.Get(ctx, key); ok {
		t.local.Set(ctx, key, v, 30*time.Minute)
		return v, true
	}
	return nil, false
}

func (t *tieredEmbeddingCache) Set(ctx context.Context, key string, v []float32, ttl time.Duration) {
	t.local.Set(ctx, key, v, ttl)
	t.remote.Set(ctx, key, v, ttl)
}

// isAnthropicModel reports whether model belongs to Anthropic's catalog by
// its naming convention, factored out for direct testing.
func isAnthropicModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// providerFor resolves the model prefix per the routing rule above; an
// empty model name falls back to OpenAI, the default for text/embedding
// generation in this deployment.
func (g *Gateway) providerFor(model string) Provider {
	if isAnthropicModel(model) {
		return g.anthropic
	}
	return g.openai
}

func (g *Gateway) wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Embed implements `embed(text | texts) -> vector[s]`. Embeddings always
// route to OpenAI: Anthropic has no embeddings endpoint, so a "claude-"
// prefixed embedding model is nonsensical and ignored.
func (g *Gateway) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if model == "" {
		model = g.openai.cfg.EmbeddingModel
	}

	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		key := MakeEmbeddingKey(model, text)
		if v, ok := g.embedCache.Get(ctx, key); ok {
			out[i] = v
			metrics.RecordEmbeddingMetrics("llm", "cache_hit", 0)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	vecs, err := g.openai.Embed(ctx, missTexts, model)
	if err != nil {
		metrics.RecordEmbeddingMetrics("llm", "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordEmbeddingMetrics("llm", "ok", time.Since(start).Seconds())
	for k, idx := range missIdx {
		out[idx] = vecs[k]
		g.embedCache.Set(ctx, MakeEmbeddingKey(model, texts[idx]), vecs[k], g.embedTTL)
	}
	return out, nil
}

// Generate implements `generate(prompt, system?, max_tokens) -> text`,
// cached by the full prompt shape.
func (g *Gateway) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = g.openai.cfg.ChatModel
	}
	key := MakeGenerationKey(model, opts.System, prompt, opts.Temperature)
	if cached, ok := g.genCache.Get(ctx, key); ok {
		return cached, nil
	}

	if err := g.wait(ctx); err != nil {
		return "", err
	}
	var out string
	err := retrypolicy.Do(ctx, 30*time.Second, func() error {
		text, err := g.providerFor(model).Generate(ctx, prompt, opts)
		if err != nil {
			return retrypolicy.MarkRetryable(err)
		}
		out = text
		return nil
	})
	if err != nil {
		return "", err
	}
	g.genCache.Set(ctx, key, out, g.genTTL)
	return out, nil
}

// GenerateJSON implements `generate_json(...) -> text`: it returns the raw
// text the model produced (possibly fenced, possibly malformed) and leaves
// recovery/parsing to the caller via internal/jsonrecovery, per spec §7's
// multi-strategy recovery contract living at the agent layer.
func (g *Gateway) GenerateJSON(ctx context.Context, prompt, system string, temperature float64, maxTokens int, timeout time.Duration) (string, error) {
	return g.Generate(ctx, prompt, Options{
		System:      system,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	})
}

// GenerateStream implements `generate_stream(...) -> async iterator<{type,
// content}>`. Never buffers: the returned channel is fed directly by the
// provider's SSE loop.
func (g *Gateway) GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan Chunk, <-chan error) {
	model := opts.Model
	if model == "" {
		model = g.openai.cfg.ChatModel
	}
	if err := g.wait(ctx); err != nil {
		errs := make(chan error, 1)
		errs <- err
		close(errs)
		ch := make(chan Chunk)
		close(ch)
		return ch, errs
	}
	return g.providerFor(model).GenerateStream(ctx, prompt, opts)
}

func (g *Gateway) GenerateWithImages(ctx context.Context, prompt string, images []Image, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = g.openai.cfg.ChatModel
	}
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	return g.providerFor(model).GenerateWithImages(ctx, prompt, images, opts)
}

// GenerateImage implements `generate_image(prompt, n) -> list<bytes>`.
// Image generation always routes to OpenAI: Anthropic has no image API.
func (g *Gateway) GenerateImage(ctx context.Context, prompt string, n int) ([]Image, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return g.openai.GenerateImage(ctx, prompt, n)
}

// CountTokens estimates token usage for budget enforcement ahead of a call.
func (g *Gateway) CountTokens(text string) int {
	return g.openai.CountTokens(text)
}
