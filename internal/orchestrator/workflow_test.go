package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thornxyz/revera/internal/graph"
	"github.com/thornxyz/revera/internal/state"
)

func TestCriticRouteLoopsBackWhileRefinementNeededAndUnderCap(t *testing.T) {
	s := state.ResearchState{NeedsRefinement: true, IterationCount: 1, MaxIterations: 2}
	require.Equal(t, AgentSynthesis, criticRoute(s))
}

func TestCriticRouteEndsWhenIterationCapReached(t *testing.T) {
	s := state.ResearchState{NeedsRefinement: true, IterationCount: 2, MaxIterations: 2}
	require.Equal(t, graph.End, criticRoute(s))
}

func TestCriticRouteEndsWhenNoRefinementNeeded(t *testing.T) {
	s := state.ResearchState{NeedsRefinement: false, IterationCount: 0, MaxIterations: 2}
	require.Equal(t, graph.End, criticRoute(s))
}

func TestDeriveTitleTruncatesLongQueries(t *testing.T) {
	long := "what are the long term macroeconomic consequences of sustained zero interest rate policy"
	title := deriveTitle(long)
	require.LessOrEqual(t, len(title), 63)
	require.Contains(t, title, "...")
}

func TestDeriveTitleStopsAtFirstSentence(t *testing.T) {
	title := deriveTitle("What is Go? It is a language.")
	require.Equal(t, "What is Go", title)
}

func TestMemorySnippetForReturnsNilWhenNoContext(t *testing.T) {
	s := state.ResearchState{}
	require.Nil(t, memorySnippetFor(s, AgentPlanner))
}

func TestMemorySnippetForReturnsAgentSlice(t *testing.T) {
	s := state.ResearchState{MemoryContext: map[string][]state.Memory{
		AgentPlanner: {{Key: "k1"}},
	}}
	items := memorySnippetFor(s, AgentPlanner)
	require.Len(t, items, 1)
	require.Equal(t, "k1", items[0].Key)
}
