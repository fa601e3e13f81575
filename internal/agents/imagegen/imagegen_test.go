package imagegen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thornxyz/revera/internal/llmgateway"
)

type fakeGenerator struct {
	images []llmgateway.Image
	err    error
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, prompt string, n int) ([]llmgateway.Image, error) {
	return f.images, f.err
}

type fakeStore struct {
	url string
	err error
}

func (f *fakeStore) PutGeneratedImage(ctx context.Context, userID string, data []byte) (string, error) {
	return f.url, f.err
}

func TestGenerateReturnsURLAndTimelineOnSuccess(t *testing.T) {
	a := &Activities{
		LLM:     &fakeGenerator{images: []llmgateway.Image{{MimeType: "image/png", Data: []byte("x")}}},
		Storage: &fakeStore{url: "https://cdn.example.com/u1/images/a.png"},
	}

	result, err := a.Generate(context.Background(), Input{UserID: "u1", Description: "a red panda"})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/u1/images/a.png", result.URL)
	require.Equal(t, "image_gen", result.Timeline.AgentName)
}

func TestGenerateDegradesGracefullyOnProviderError(t *testing.T) {
	a := &Activities{LLM: &fakeGenerator{err: errors.New("rate limited")}, Storage: &fakeStore{}}

	result, err := a.Generate(context.Background(), Input{UserID: "u1", Query: "a red panda"})
	require.NoError(t, err)
	require.Empty(t, result.URL)
	require.Contains(t, result.Timeline.Metadata["error"], "rate limited")
}

func TestGenerateDegradesGracefullyOnStorageError(t *testing.T) {
	a := &Activities{
		LLM:     &fakeGenerator{images: []llmgateway.Image{{MimeType: "image/png", Data: []byte("x")}}},
		Storage: &fakeStore{err: errors.New("upload failed")},
	}

	result, err := a.Generate(context.Background(), Input{UserID: "u1", Description: "a red panda"})
	require.NoError(t, err)
	require.Empty(t, result.URL)
}

func TestGeneratePrefersDescriptionOverQuery(t *testing.T) {
	var capturedPrompt string
	gen := &capturingGenerator{capture: &capturedPrompt}
	a := &Activities{LLM: gen, Storage: &fakeStore{url: "u"}}

	_, err := a.Generate(context.Background(), Input{UserID: "u1", Query: "fallback query", Description: "preferred description"})
	require.NoError(t, err)
	require.Equal(t, "preferred description", capturedPrompt)
}

type capturingGenerator struct {
	capture *string
}

func (c *capturingGenerator) GenerateImage(ctx context.Context, prompt string, n int) ([]llmgateway.Image, error) {
	*c.capture = prompt
	return []llmgateway.Image{{MimeType: "image/png", Data: []byte("x")}}, nil
}
