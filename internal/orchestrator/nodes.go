package orchestrator

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/thornxyz/revera/internal/agents/critic"
	"github.com/thornxyz/revera/internal/agents/imagegen"
	"github.com/thornxyz/revera/internal/agents/planner"
	"github.com/thornxyz/revera/internal/agents/synthesis"
	"github.com/thornxyz/revera/internal/graph"
	"github.com/thornxyz/revera/internal/llmgateway"
	"github.com/thornxyz/revera/internal/memory"
	"github.com/thornxyz/revera/internal/state"
)

// withActivityOptions mirrors the teacher's ActivityOptions idiom: a
// bounded start-to-close timeout and a small bounded retry policy, applied
// once per node via workflow.WithActivityOptions.
func withActivityOptions(ctx workflow.Context, timeout time.Duration, maxAttempts int32) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: maxAttempts},
	})
}

func memorySnippetFor(s state.ResearchState, agent string) []state.Memory {
	if s.MemoryContext == nil {
		return nil
	}
	return s.MemoryContext[agent]
}

// plannerNode runs the Planner Agent (spec §4.3) and records its timeline
// entry. It is the graph's entry node.
func plannerNode(ctx workflow.Context, s state.ResearchState, nc *graph.NodeContext) (state.ResearchState, error) {
	start := workflow.Now(ctx)
	actx := withActivityOptions(ctx, 30*time.Second, 2)

	var plan state.Plan
	err := workflow.ExecuteActivity(actx, ActivityPlannerPlan, planner.Input{
		Query:             s.Query,
		MemorySnippet:     memory.FormatForPlanner(memorySnippetFor(s, AgentPlanner)),
		UseWeb:            s.UseWeb,
		CitationsRequired: true,
	}).Get(ctx, &plan)
	if err != nil {
		return s, err
	}

	return state.ResearchState{
		ExecutionPlan: &plan,
		AgentTimeline: []state.TimelineEntry{{
			AgentName:     AgentPlanner,
			ResultSummary: "produced execution plan",
			Metadata:      map[string]interface{}{"step_count": len(plan.Steps)},
			LatencyMs:     workflow.Now(ctx).Sub(start).Milliseconds(),
			Timestamp:     workflow.Now(ctx),
		}},
	}, nil
}

// retrieveNode runs internal retrieval when the plan calls for it; it is a
// no-op otherwise (the graph's topology is static, so every fan-out node
// always runs and decides internally whether it has work to do).
func retrieveNode(ctx workflow.Context, s state.ResearchState, nc *graph.NodeContext) (state.ResearchState, error) {
	if s.ExecutionPlan == nil || !s.ExecutionPlan.HasTool(state.ToolRAG) {
		return state.ResearchState{}, nil
	}
	start := workflow.Now(ctx)
	actx := withActivityOptions(ctx, 20*time.Second, 2)

	var sources []state.InternalSource
	err := workflow.ExecuteActivity(actx, ActivityRetrieveInternal, RetrieveInternalInput{
		Query:         s.Query,
		UserID:        s.UserID,
		DocumentIDs:   s.DocumentIDs,
		RewriteQuery:  true,
		MemorySnippet: memory.FormatForRetrieval(memorySnippetFor(s, AgentRetrieval)),
	}).Get(ctx, &sources)
	if err != nil {
		return state.ResearchState{}, err
	}

	return state.ResearchState{
		InternalSources: sources,
		AgentTimeline: []state.TimelineEntry{{
			AgentName:     AgentRetrieval,
			ResultSummary: "retrieved internal sources",
			Metadata:      map[string]interface{}{"count": len(sources)},
			LatencyMs:     workflow.Now(ctx).Sub(start).Milliseconds(),
			Timestamp:     workflow.Now(ctx),
		}},
	}, nil
}

// webSearchNode runs the Web Search agent when the plan calls for it, or
// when the caller's use_web preference forced it into the plan already
// (planner.applyInvariants has already folded that preference in).
func webSearchNode(ctx workflow.Context, s state.ResearchState, nc *graph.NodeContext) (state.ResearchState, error) {
	if s.ExecutionPlan == nil || !s.ExecutionPlan.HasTool(state.ToolWeb) {
		return state.ResearchState{}, nil
	}
	start := workflow.Now(ctx)
	actx := withActivityOptions(ctx, 25*time.Second, 2)

	var result SearchWebResult
	err := workflow.ExecuteActivity(actx, ActivitySearchWeb, SearchWebInput{
		SessionID: s.SessionID,
		Query:     s.Query,
	}).Get(ctx, &result)
	if err != nil {
		return state.ResearchState{}, err
	}

	return state.ResearchState{
		WebSources: result.Sources,
		AgentTimeline: []state.TimelineEntry{{
			AgentName:     AgentWebSearch,
			ResultSummary: "retrieved web sources",
			Metadata:      map[string]interface{}{"count": len(result.Sources)},
			LatencyMs:     workflow.Now(ctx).Sub(start).Milliseconds(),
			Timestamp:     workflow.Now(ctx),
		}},
	}, nil
}

// imageGenNode runs the Image Gen agent when the plan calls for it. Failure
// is never propagated as a node error (imagegen.Activities.Generate already
// degrades gracefully); this node only decides whether to call it at all.
func imageGenNode(ctx workflow.Context, s state.ResearchState, nc *graph.NodeContext) (state.ResearchState, error) {
	if s.ExecutionPlan == nil || !s.ExecutionPlan.HasTool(state.ToolImageGen) {
		return state.ResearchState{}, nil
	}
	start := workflow.Now(ctx)
	actx := withActivityOptions(ctx, 30*time.Second, 1)

	description := ""
	for _, step := range s.ExecutionPlan.Steps {
		if step.Tool == state.ToolImageGen {
			description = step.Description
			break
		}
	}

	var result imagegen.Result
	err := workflow.ExecuteActivity(actx, ActivityImageGenGenerate, imagegen.Input{
		UserID:      s.UserID,
		Query:       s.Query,
		Description: description,
	}).Get(ctx, &result)
	if err != nil {
		return state.ResearchState{}, err
	}

	return state.ResearchState{
		GeneratedImageURL: result.URL,
		AgentTimeline:     []state.TimelineEntry{result.Timeline},
	}, nil
}

// synthesisNode runs the Synthesis Agent (spec §4.6), re-entrant for the
// critic's refinement loop-back: Input.Prior/PriorAnswer are populated from
// s.Verification/s.SynthesisResult whenever this is not the first pass.
func synthesisNode(ctx workflow.Context, s state.ResearchState, nc *graph.NodeContext) (state.ResearchState, error) {
	start := workflow.Now(ctx)
	actx := withActivityOptions(ctx, 3*time.Minute, 1)

	sourceMap := synthesis.BuildSourceMap(s.InternalSources, s.WebSources, s.ImageContexts)

	var images []llmgateway.Image
	for _, ref := range s.ImageContexts {
		images = append(images, llmgateway.Image{MimeType: ref.MimeType, Data: ref.Bytes})
	}

	var priorAnswer string
	if s.SynthesisResult != nil {
		priorAnswer = s.SynthesisResult.Answer
	}

	var result state.SynthesisResult
	err := workflow.ExecuteActivity(actx, ActivitySynthesisSynthesize, synthesis.Input{
		SessionID:         s.SessionID,
		Query:             s.Query,
		MemorySnippet:     memory.FormatForSynthesis(memorySnippetFor(s, AgentSynthesis)),
		SourceMap:         sourceMap,
		Images:            images,
		Prior:             s.Verification,
		PriorAnswer:       priorAnswer,
		GeneratedImageURL: s.GeneratedImageURL,
	}).Get(ctx, &result)
	if err != nil {
		return state.ResearchState{}, err
	}

	return state.ResearchState{
		SynthesisResult: &result,
		AgentTimeline: []state.TimelineEntry{{
			AgentName:     AgentSynthesis,
			ResultSummary: "synthesized answer",
			Metadata:      map[string]interface{}{"confidence": string(result.Confidence)},
			LatencyMs:     workflow.Now(ctx).Sub(start).Milliseconds(),
			Timestamp:     workflow.Now(ctx),
		}},
	}, nil
}

// criticNode runs the Critic/Verification agent (spec §4.7) when the plan
// calls for verification; otherwise it returns an empty update, which
// resets NeedsRefinement to false so criticRoute ends the graph.
func criticNode(ctx workflow.Context, s state.ResearchState, nc *graph.NodeContext) (state.ResearchState, error) {
	if s.ExecutionPlan == nil || !s.ExecutionPlan.HasTool(state.ToolVerification) || s.SynthesisResult == nil {
		return state.ResearchState{}, nil
	}
	start := workflow.Now(ctx)
	actx := withActivityOptions(ctx, 30*time.Second, 1)

	sourceMap := synthesis.BuildSourceMap(s.InternalSources, s.WebSources, s.ImageContexts)

	var result critic.Result
	err := workflow.ExecuteActivity(actx, ActivityCriticCritique, critic.Input{
		Query:           s.Query,
		SynthesisAnswer: s.SynthesisResult.Answer,
		MemorySnippet:   memory.FormatForCritic(memorySnippetFor(s, AgentCritic)),
		SourceMap:       sourceMap,
		IterationCount:  s.IterationCount,
	}).Get(ctx, &result)
	if err != nil {
		return state.ResearchState{}, err
	}

	return state.ResearchState{
		Verification:    &result.Verification,
		IterationCount:  result.IterationCount,
		NeedsRefinement: result.Verification.VerificationStatus.NeedsRefinement(),
		AgentTimeline: []state.TimelineEntry{{
			AgentName:     AgentCritic,
			ResultSummary: "verified synthesized answer",
			Metadata:      map[string]interface{}{"status": string(result.Verification.VerificationStatus)},
			LatencyMs:     workflow.Now(ctx).Sub(start).Milliseconds(),
			Timestamp:     workflow.Now(ctx),
		}},
	}, nil
}

// criticRoute is the conditional edge evaluated after the critic node
// completes: loop back to synthesis while refinement is needed and the
// iteration cap has not been reached, otherwise end the graph (spec §4.7,
// §8 invariant "bounded refinement loop").
func criticRoute(s state.ResearchState) string {
	if s.NeedsRefinement && s.IterationCount < s.MaxIterations {
		return AgentSynthesis
	}
	return graph.End
}

