package critic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thornxyz/revera/internal/state"
)

type fakeGenerator struct {
	raw   string
	err   error
	delay time.Duration
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, prompt, system string, temperature float64, maxTokens int, timeout time.Duration) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.raw, f.err
}

func TestCritiqueParsesVerifiedVerdict(t *testing.T) {
	raw := `{"verification_status":"verified","confidence_score":0.9,"verified_claims":["Paris is the capital"],"overall_assessment":"well supported"}`
	a := &Activities{LLM: &fakeGenerator{raw: raw}}

	result, err := a.Critique(context.Background(), Input{Query: "q", SynthesisAnswer: "a", IterationCount: 0})
	require.NoError(t, err)
	require.Equal(t, state.VerificationVerified, result.Verification.VerificationStatus)
	require.Equal(t, 0.9, result.Verification.ConfidenceScore)
	require.Equal(t, 1, result.IterationCount)
	require.False(t, result.Verification.VerificationStatus.NeedsRefinement())
}

func TestCritiqueFallsBackToErrorVerificationOnMalformedJSON(t *testing.T) {
	a := &Activities{LLM: &fakeGenerator{raw: "not json"}}

	result, err := a.Critique(context.Background(), Input{Query: "q", IterationCount: 2})
	require.NoError(t, err)
	require.Equal(t, state.ErrorVerification().VerificationStatus, result.Verification.VerificationStatus)
	require.Equal(t, 3, result.IterationCount)
	require.True(t, result.Verification.VerificationStatus.NeedsRefinement())
}

func TestCritiqueReturnsTimeoutVerificationOnTimeout(t *testing.T) {
	a := &Activities{LLM: &fakeGenerator{delay: 100 * time.Millisecond}, Timeout: 10 * time.Millisecond}

	result, err := a.Critique(context.Background(), Input{Query: "q", IterationCount: 1})
	require.NoError(t, err)
	require.Equal(t, state.VerificationTimeout, result.Verification.VerificationStatus)
	require.Equal(t, 2, result.IterationCount)
	require.False(t, result.Verification.VerificationStatus.NeedsRefinement())
}

func TestBuildPromptOrdersSourcesByOrdinal(t *testing.T) {
	prompt := buildPrompt(Input{
		Query:           "q",
		SynthesisAnswer: "a",
		SourceMap: map[int]state.SourceRef{
			2: {Type: "web", Web: &state.WebSource{URL: "https://b.com", Content: "b content"}},
			1: {Type: "internal", Internal: &state.InternalSource{Content: "a content"}},
		},
	})
	idx1 := indexOf(prompt, "[Source 1]")
	idx2 := indexOf(prompt, "[Source 2]")
	require.Less(t, idx1, idx2)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
