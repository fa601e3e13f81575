package synthesis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thornxyz/revera/internal/eventstream"
	"github.com/thornxyz/revera/internal/llmgateway"
	"github.com/thornxyz/revera/internal/state"
)

type fakeStreamer struct {
	chunks []llmgateway.Chunk
	err    error
}

func (f *fakeStreamer) GenerateStream(ctx context.Context, prompt string, opts llmgateway.Options) (<-chan llmgateway.Chunk, <-chan error) {
	chunkCh := make(chan llmgateway.Chunk, len(f.chunks))
	errCh := make(chan error, 1)
	for _, c := range f.chunks {
		chunkCh <- c
	}
	close(chunkCh)
	if f.err != nil {
		errCh <- f.err
	}
	close(errCh)
	return chunkCh, errCh
}

func (f *fakeStreamer) GenerateWithImages(ctx context.Context, prompt string, images []llmgateway.Image, opts llmgateway.Options) (string, error) {
	return "image answer [Source 1]", nil
}

type recordingPublisher struct {
	events []eventstream.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, evt eventstream.Event) error {
	r.events = append(r.events, evt)
	return nil
}

func TestSynthesizeAggregatesTextChunksAndExtractsCitations(t *testing.T) {
	stream := &fakeStreamer{chunks: []llmgateway.Chunk{
		{Kind: llmgateway.ChunkThought, Content: "thinking..."},
		{Kind: llmgateway.ChunkText, Content: "Paris is the capital "},
		{Kind: llmgateway.ChunkText, Content: "[Source 1]."},
	}}
	pub := &recordingPublisher{}
	a := &Activities{LLM: stream, Events: pub}

	result, err := a.Synthesize(context.Background(), Input{
		SessionID: "s1",
		Query:     "what is the capital of france",
		SourceMap: map[int]state.SourceRef{
			1: {Type: "internal", Internal: &state.InternalSource{DocumentID: "d1", Content: "France's capital is Paris."}},
		},
	})

	require.NoError(t, err)
	require.Equal(t, "Paris is the capital [Source 1].", result.Answer)
	require.Equal(t, []int{1}, result.SourcesUsed)
	require.Equal(t, state.ConfidenceMedium, result.Confidence)
	require.Len(t, pub.events, 3)
	require.Equal(t, eventstream.EventThoughtChunk, pub.events[0].Type)
	require.Equal(t, eventstream.EventAnswerChunk, pub.events[1].Type)
}

func TestSynthesizeAppendsGeneratedImageAfterStreaming(t *testing.T) {
	stream := &fakeStreamer{chunks: []llmgateway.Chunk{
		{Kind: llmgateway.ChunkText, Content: "Here is a diagram."},
	}}
	pub := &recordingPublisher{}
	a := &Activities{LLM: stream, Events: pub}

	result, err := a.Synthesize(context.Background(), Input{
		SessionID:         "s1",
		Query:             "draw a diagram",
		GeneratedImageURL: "https://example.com/img.png",
	})

	require.NoError(t, err)
	require.Contains(t, result.Answer, "![Generated Image](https://example.com/img.png)")
}

func TestSynthesizeMultimodalPathUsedWhenImagesPresent(t *testing.T) {
	stream := &fakeStreamer{}
	pub := &recordingPublisher{}
	a := &Activities{LLM: stream, Events: pub}

	result, err := a.Synthesize(context.Background(), Input{
		SessionID: "s1",
		Query:     "what is in this image",
		Images:    []llmgateway.Image{{MimeType: "image/png", Data: []byte("fake")}},
		SourceMap: map[int]state.SourceRef{
			1: {Type: "image", Image: &state.ImageRef{URL: "https://example.com/a.png"}},
		},
	})

	require.NoError(t, err)
	require.Equal(t, "image answer [Source 1]", result.Answer)
	require.Equal(t, []int{1}, result.SourcesUsed)
}

func TestConcisePatternMatchesBriefQueries(t *testing.T) {
	require.True(t, concisePattern.MatchString("give me a brief summary"))
	require.True(t, concisePattern.MatchString("tldr please"))
	require.False(t, concisePattern.MatchString("explain the history of rome in detail"))
}

func TestBuildSourceMapOrdersInternalThenWebThenImages(t *testing.T) {
	internal := []state.InternalSource{{DocumentID: "d1"}}
	web := []state.WebSource{{URL: "https://a.com"}}
	images := []state.ImageRef{{URL: "https://b.com/i.png"}}

	m := BuildSourceMap(internal, web, images)

	require.Equal(t, "internal", m[1].Type)
	require.Equal(t, "web", m[2].Type)
	require.Equal(t, "image", m[3].Type)
}

func TestCitedOrdinalsDeduplicatesAndSorts(t *testing.T) {
	got := citedOrdinals("[Source 3] and [Source 1] and [Source 3] again")
	require.Equal(t, []int{1, 3}, got)
}
