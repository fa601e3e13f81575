package orchestrator

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/thornxyz/revera/internal/eventstream"
	"github.com/thornxyz/revera/internal/graph"
	"github.com/thornxyz/revera/internal/state"
)

// WorkflowInput is ResearchWorkflow's input: everything the caller-facing
// API layer knows before the graph runs (spec §4.1/§4.2).
type WorkflowInput struct {
	SessionID            string
	UserID               string
	ChatID               string
	ThreadID             string
	Query                string
	UseWeb               bool
	RequestedDocumentIDs []string
	ImageContexts        []state.ImageRef
	MaxIterations        int
}

// WorkflowResult is ResearchWorkflow's terminal return value.
type WorkflowResult struct {
	MessageID  string
	Answer     string
	Confidence state.Confidence
	Sources    []state.NormalizedSource
}

// buildGraph compiles the fixed research topology (spec §4.1): planner
// fans out to retrieval/web-search/image-gen, which fan back into
// synthesis, which feeds the critic; the critic's conditional edge either
// loops back to synthesis (bounded refinement) or ends the graph.
func buildGraph() *graph.Engine[state.ResearchState] {
	e := graph.NewEngine[state.ResearchState](func(base, partial state.ResearchState) state.ResearchState {
		return base.Reduce(partial)
	})

	e.AddNode(AgentPlanner, plannerNode)
	e.AddNode(AgentRetrieval, retrieveNode)
	e.AddNode(AgentWebSearch, webSearchNode)
	e.AddNode(AgentImageGen, imageGenNode)
	e.AddNode(AgentSynthesis, synthesisNode)
	e.AddNode(AgentCritic, criticNode)

	e.SetEntry(AgentPlanner)
	e.AddEdge(AgentPlanner, AgentRetrieval)
	e.AddEdge(AgentPlanner, AgentWebSearch)
	e.AddEdge(AgentPlanner, AgentImageGen)
	e.AddEdge(AgentRetrieval, AgentSynthesis)
	e.AddEdge(AgentWebSearch, AgentSynthesis)
	e.AddEdge(AgentImageGen, AgentSynthesis)
	e.AddEdge(AgentSynthesis, AgentCritic)
	e.AddConditionalEdge(AgentCritic, criticRoute)

	return e
}

// ResearchWorkflow is the Temporal entrypoint for one research session
// (spec C11). It resolves tenant document scope and per-agent memory
// context, runs the compiled graph while translating its lifecycle events
// into the public event stream, and persists the result on success or
// failure.
func ResearchWorkflow(ctx workflow.Context, input WorkflowInput) (WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("research workflow started", "session_id", input.SessionID, "query", input.Query)
	started := workflow.Now(ctx)

	bookkeeping := withActivityOptions(ctx, 15*time.Second, 3)

	allowedDocs := input.RequestedDocumentIDs
	if len(input.RequestedDocumentIDs) > 0 {
		if err := workflow.ExecuteActivity(bookkeeping, ActivityScopeDocuments, ScopeDocumentsInput{
			UserID:    input.UserID,
			ChatID:    input.ChatID,
			Requested: input.RequestedDocumentIDs,
		}).Get(ctx, &allowedDocs); err != nil {
			return WorkflowResult{}, failWorkflow(ctx, input.SessionID, started, err)
		}
	}

	var memoryContext map[string][]state.Memory
	if err := workflow.ExecuteActivity(bookkeeping, ActivityLoadMemory, LoadMemoryInput{
		UserID: input.UserID,
		ChatID: input.ChatID,
		Query:  input.Query,
	}).Get(ctx, &memoryContext); err != nil {
		logger.Warn("research workflow: memory load failed, continuing without it", "error", err)
	}

	var messageID string
	if err := workflow.ExecuteActivity(bookkeeping, ActivityStartSession, StartSessionInput{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		ChatID:    input.ChatID,
		ThreadID:  input.ThreadID,
		Query:     input.Query,
	}).Get(ctx, &messageID); err != nil {
		return WorkflowResult{}, failWorkflow(ctx, input.SessionID, started, err)
	}

	maxIterations := input.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 2
	}

	initial := state.ResearchState{
		Query:         input.Query,
		UserID:        input.UserID,
		ChatID:        input.ChatID,
		ThreadID:      input.ThreadID,
		SessionID:     input.SessionID,
		UseWeb:        input.UseWeb,
		DocumentIDs:   allowedDocs,
		ImageContexts: input.ImageContexts,
		MaxIterations: maxIterations,
		MemoryContext: memoryContext,
	}

	engine := buildGraph()
	events := workflow.NewChannel(ctx)

	var final state.ResearchState
	var runErr error
	workflow.Go(ctx, func(gctx workflow.Context) {
		final, runErr = engine.Run(gctx, initial, events)
		events.Close()
	})

	statusCtx := withActivityOptions(ctx, 5*time.Second, 1)
	for {
		var evt graph.Event
		more := events.Receive(ctx, &evt)
		if !more {
			break
		}
		translateGraphEvent(statusCtx, input.SessionID, evt)
	}

	if runErr != nil {
		return WorkflowResult{}, failWorkflow(ctx, input.SessionID, started, runErr)
	}

	var finalizeResult FinalizeResult
	if err := workflow.ExecuteActivity(bookkeeping, ActivityFinalizeSuccess, FinalizeInput{
		SessionID: input.SessionID,
		MessageID: messageID,
		ChatID:    input.ChatID,
		UserID:    input.UserID,
		Started:   started,
		Final:     final,
	}).Get(ctx, &finalizeResult); err != nil {
		return WorkflowResult{}, failWorkflow(ctx, input.SessionID, started, err)
	}

	var answer string
	var confidence state.Confidence
	var sourceMap map[int]state.SourceRef
	if final.SynthesisResult != nil {
		answer = final.SynthesisResult.Answer
		confidence = final.SynthesisResult.Confidence
		sourceMap = final.SynthesisResult.SourceMap
	}

	return WorkflowResult{
		MessageID:  messageID,
		Answer:     answer,
		Confidence: confidence,
		Sources:    state.NormalizeSources(sourceMap),
	}, nil
}

// translateGraphEvent maps the graph engine's coarse on_node_start/
// on_node_end events onto the public agent_status event (spec §6); any
// other (custom) event name is dropped. In this topology none arrive,
// since every custom publish (synthesis' chunks, web search's
// quick_answer) already goes straight to eventstream.Manager from within
// its own activity, bypassing the graph's event channel entirely.
func translateGraphEvent(ctx workflow.Context, sessionID string, evt graph.Event) {
	var status eventstream.NodeStatus
	switch evt.Type {
	case string(graph.EventNodeStart):
		status = eventstream.StatusRunning
	case string(graph.EventNodeEnd):
		status = eventstream.StatusComplete
	default:
		return
	}
	_ = workflow.ExecuteActivity(ctx, ActivityPublishStatus, PublishStatusInput{
		SessionID: sessionID,
		Node:      evt.Node,
		Status:    status,
	}).Get(ctx, nil)
}

// failWorkflow marks the session failed and emits the terminal error event,
// then returns the original error so the workflow itself surfaces it (spec
// §7: a fatal node error fails the session and ends the stream with error).
func failWorkflow(ctx workflow.Context, sessionID string, started time.Time, cause error) error {
	actx := withActivityOptions(ctx, 10*time.Second, 2)
	_ = workflow.ExecuteActivity(actx, ActivityFailSession, FailSessionInput{
		SessionID: sessionID,
		Message:   cause.Error(),
		Started:   started,
	}).Get(ctx, nil)
	return cause
}
