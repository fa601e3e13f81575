package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thornxyz/revera/internal/state"
)

type fakeGenerator struct {
	raw string
	err error
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, prompt, system string, temperature float64, maxTokens int, timeout time.Duration) (string, error) {
	return f.raw, f.err
}

func TestPlanAlwaysIncludesSynthesis(t *testing.T) {
	a := &Activities{LLM: &fakeGenerator{raw: `{"steps":[{"tool":"rag","description":"retrieve"}]}`}}
	plan, err := a.Plan(context.Background(), Input{Query: "what is the capital of france"})
	require.NoError(t, err)
	require.True(t, plan.HasTool(state.ToolSynthesis))
}

func TestPlanAddsVerificationWhenRAGPresent(t *testing.T) {
	a := &Activities{LLM: &fakeGenerator{raw: `{"steps":[{"tool":"rag","description":"retrieve"},{"tool":"synthesis","description":"answer"}]}`}}
	plan, err := a.Plan(context.Background(), Input{Query: "what happened yesterday"})
	require.NoError(t, err)
	require.True(t, plan.HasTool(state.ToolVerification))
}

func TestPlanFallsBackToDefaultOnMalformedJSON(t *testing.T) {
	a := &Activities{LLM: &fakeGenerator{raw: "not json at all"}}
	plan, err := a.Plan(context.Background(), Input{Query: "anything"})
	require.NoError(t, err)
	require.Equal(t, state.DefaultPlan(), plan)
}

func TestPlanFallsBackToDefaultOnGenerationError(t *testing.T) {
	a := &Activities{LLM: &fakeGenerator{err: context.DeadlineExceeded}}
	plan, err := a.Plan(context.Background(), Input{Query: "anything"})
	require.NoError(t, err)
	require.Equal(t, state.DefaultPlan(), plan)
}

func TestPlanDropsImageGenWithoutExplicitVisualRequest(t *testing.T) {
	a := &Activities{LLM: &fakeGenerator{raw: `{"steps":[{"tool":"synthesis","description":"answer"},{"tool":"image_gen","description":"make a picture"}]}`}}
	plan, err := a.Plan(context.Background(), Input{Query: "what is the capital of france"})
	require.NoError(t, err)
	require.False(t, plan.HasTool(state.ToolImageGen))
}

func TestPlanKeepsImageGenWithExplicitVisualRequest(t *testing.T) {
	a := &Activities{LLM: &fakeGenerator{raw: `{"steps":[{"tool":"synthesis","description":"answer"},{"tool":"image_gen","description":"make a picture"}]}`}}
	plan, err := a.Plan(context.Background(), Input{Query: "draw a picture of a red panda"})
	require.NoError(t, err)
	require.True(t, plan.HasTool(state.ToolImageGen))
}

func TestPlanForcesWebWhenPreferenceSet(t *testing.T) {
	a := &Activities{LLM: &fakeGenerator{raw: `{"steps":[{"tool":"synthesis","description":"answer"}]}`}}
	plan, err := a.Plan(context.Background(), Input{Query: "anything", UseWeb: true})
	require.NoError(t, err)
	require.True(t, plan.HasTool(state.ToolWeb))
}
