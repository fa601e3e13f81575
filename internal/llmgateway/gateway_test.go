package llmgateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsAnthropicModelRoutesByPrefix(t *testing.T) {
	require.True(t, isAnthropicModel("claude-sonnet-4-5"))
	require.False(t, isAnthropicModel("gpt-4o"))
	require.False(t, isAnthropicModel(""))
}

func TestMakeEmbeddingKeyIsDeterministicPerModelAndText(t *testing.T) {
	k1 := MakeEmbeddingKey("text-embedding-3-large", "hello world")
	k2 := MakeEmbeddingKey("text-embedding-3-large", "hello world")
	k3 := MakeEmbeddingKey("text-embedding-3-large", "different text")
	require.Equal(t, k1, k2)
	require.NotEqual(t, k1, k3)
}

func TestMakeGenerationKeyDistinguishesTemperature(t *testing.T) {
	k1 := MakeGenerationKey("gpt-4o", "sys", "prompt", 0.2)
	k2 := MakeGenerationKey("gpt-4o", "sys", "prompt", 0.9)
	require.NotEqual(t, k1, k2)
}

func TestLocalLRUEvictsLeastRecentlyUsed(t *testing.T) {
	lru := NewLocalLRU(2)
	ctx := context.Background()
	lru.Set(ctx, "a", []float32{1}, time.Minute)
	lru.Set(ctx, "b", []float32{2}, time.Minute)
	lru.Set(ctx, "c", []float32{3}, time.Minute)

	_, ok := lru.Get(ctx, "a")
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = lru.Get(ctx, "c")
	require.True(t, ok)
}

func TestLocalLRUExpiresByTTL(t *testing.T) {
	lru := NewLocalLRU(10)
	ctx := context.Background()
	lru.Set(ctx, "k", []float32{1}, -time.Second)
	_, ok := lru.Get(ctx, "k")
	require.False(t, ok)
}

func TestTokenCounterCountsNonZeroForNonEmptyText(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)
	require.Greater(t, tc.Count("reciprocal rank fusion combines dense and sparse retrieval"), 0)
	require.Equal(t, 0, tc.Count(""))
}
