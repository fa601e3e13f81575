package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"
)

type counterState struct {
	Order []string
	Count int
}

func reduceCounter(base, partial counterState) counterState {
	out := base
	if len(partial.Order) > 0 {
		out.Order = append(append([]string{}, out.Order...), partial.Order...)
	}
	if partial.Count > out.Count {
		out.Count = partial.Count
	}
	return out
}

// TestFanOutFanIn verifies that a node with three successors runs all three
// concurrently and that the fan-in node only runs once all have completed.
func TestFanOutFanIn(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	wf := func(ctx workflow.Context) (counterState, error) {
		eng := NewEngine(reduceCounter)
		eng.AddNode("start", func(ctx workflow.Context, s counterState, nc *NodeContext) (counterState, error) {
			return counterState{Order: []string{"start"}}, nil
		})
		for _, n := range []string{"a", "b", "c"} {
			name := n
			eng.AddNode(name, func(ctx workflow.Context, s counterState, nc *NodeContext) (counterState, error) {
				return counterState{Order: []string{name}}, nil
			})
			eng.AddEdge("start", name)
			eng.AddEdge(name, "join")
		}
		eng.AddNode("join", func(ctx workflow.Context, s counterState, nc *NodeContext) (counterState, error) {
			return counterState{Order: []string{"join"}}, nil
		})
		eng.SetEntry("start")

		events := workflow.NewBufferedChannel(ctx, 64)
		return eng.Run(ctx, counterState{}, events)
	}

	env.RegisterWorkflow(wf)
	env.ExecuteWorkflow(wf)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result counterState
	require.NoError(t, env.GetWorkflowResult(&result))

	assert.Contains(t, result.Order, "start")
	assert.Contains(t, result.Order, "a")
	assert.Contains(t, result.Order, "b")
	assert.Contains(t, result.Order, "c")
	assert.Equal(t, "join", result.Order[len(result.Order)-1])
}

// TestBoundedLoopBack verifies a conditional edge can route back to an
// earlier node and that the loop terminates once the counter condition
// trips (spec §9 "bounded cyclic dataflow, not a DAG").
func TestBoundedLoopBack(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	wf := func(ctx workflow.Context) (counterState, error) {
		eng := NewEngine(reduceCounter)
		eng.AddNode("synthesis", func(ctx workflow.Context, s counterState, nc *NodeContext) (counterState, error) {
			return counterState{Order: []string{"synthesis"}}, nil
		})
		eng.AddEdge("synthesis", "critic")
		eng.AddNode("critic", func(ctx workflow.Context, s counterState, nc *NodeContext) (counterState, error) {
			return counterState{Order: []string{"critic"}, Count: s.Count + 1}, nil
		})
		eng.AddConditionalEdge("critic", func(s counterState) string {
			if s.Count < 2 {
				return "synthesis"
			}
			return End
		})
		eng.SetEntry("synthesis")

		events := workflow.NewBufferedChannel(ctx, 64)
		return eng.Run(ctx, counterState{}, events)
	}

	env.RegisterWorkflow(wf)
	env.ExecuteWorkflow(wf)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result counterState
	require.NoError(t, env.GetWorkflowResult(&result))

	assert.Equal(t, 2, result.Count)
	criticCount := 0
	for _, o := range result.Order {
		if o == "critic" {
			criticCount++
		}
	}
	assert.Equal(t, 2, criticCount)
}

// TestNonFatalNodeContinues verifies that a node marked SetNonFatal delivers
// its (possibly zero-value) output and the graph continues instead of
// aborting.
func TestNonFatalNodeContinues(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	wf := func(ctx workflow.Context) (counterState, error) {
		eng := NewEngine(reduceCounter)
		eng.AddNode("flaky", func(ctx workflow.Context, s counterState, nc *NodeContext) (counterState, error) {
			return counterState{Order: []string{"flaky-error"}}, assert.AnError
		})
		eng.SetNonFatal("flaky")
		eng.AddEdge("flaky", "after")
		eng.AddNode("after", func(ctx workflow.Context, s counterState, nc *NodeContext) (counterState, error) {
			return counterState{Order: []string{"after"}}, nil
		})
		eng.SetEntry("flaky")

		events := workflow.NewBufferedChannel(ctx, 64)
		return eng.Run(ctx, counterState{}, events)
	}

	env.RegisterWorkflow(wf)
	env.ExecuteWorkflow(wf)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result counterState
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, []string{"flaky-error", "after"}, result.Order)
}
