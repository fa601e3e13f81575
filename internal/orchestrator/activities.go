package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/thornxyz/revera/internal/eventstream"
	"github.com/thornxyz/revera/internal/memory"
	"github.com/thornxyz/revera/internal/metrics"
	"github.com/thornxyz/revera/internal/policy"
	"github.com/thornxyz/revera/internal/relational"
	"github.com/thornxyz/revera/internal/retrieval"
	"github.com/thornxyz/revera/internal/state"
)

// ScopeDocumentsInput is the pre-graph tenant-scoping activity's input
// (spec §8 invariant 4: a session must never see another tenant's
// documents).
type ScopeDocumentsInput struct {
	UserID    string
	ChatID    string
	Requested []string
}

// ScopeDocuments resolves which of the requested document IDs the caller
// actually owns, via internal/relational + internal/policy.
func (a *Activities) ScopeDocuments(ctx context.Context, input ScopeDocumentsInput) ([]string, error) {
	owned, err := a.Relational.ChatDocuments(ctx, input.UserID, input.ChatID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load owned documents: %w", err)
	}

	ownedDocs := make([]policy.OwnedDocument, 0, len(owned))
	for _, d := range owned {
		ownedDocs = append(ownedDocs, policy.OwnedDocument{ID: d.ID, UserID: d.UserID, ChatID: d.ChatID})
	}

	decision, err := a.Policy.Evaluate(ctx, policy.DocumentScopeInput{
		UserID:             input.UserID,
		ChatID:             input.ChatID,
		RequestedDocuments: input.Requested,
		OwnedDocuments:     ownedDocs,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: policy evaluation: %w", err)
	}
	if !decision.Allow {
		return nil, fmt.Errorf("orchestrator: document scope denied: %s", decision.Reason)
	}
	return decision.AllowedDocumentIDs, nil
}

// LoadMemoryInput is the pre-graph episodic-memory-load activity's input
// (spec §4.2 step 2: every agent receives a memory_context snippet).
type LoadMemoryInput struct {
	UserID string
	ChatID string
	Query  string
}

// LoadMemory fetches up to five episodic entries most similar to the query
// for each memory-consuming agent, keyed by agent name (spec §4.9).
func (a *Activities) LoadMemory(ctx context.Context, input LoadMemoryInput) (map[string][]state.Memory, error) {
	out := make(map[string][]state.Memory, 4)
	for _, agent := range []string{AgentPlanner, AgentRetrieval, AgentSynthesis, AgentCritic} {
		ns := memory.EpisodicNamespace(input.UserID, input.ChatID, agent)
		items, err := a.Memory.Search(ctx, a.Config.MemoryCollection, ns, input.Query, 5)
		if err != nil {
			activity.GetLogger(ctx).Warn("orchestrator: memory load failed", "agent", agent, "error", err)
			continue
		}
		out[agent] = items
	}
	return out, nil
}

// StartSessionInput is the pre-graph session-bookkeeping activity's input.
type StartSessionInput struct {
	SessionID string
	UserID    string
	ChatID    string
	ThreadID  string
	Query     string
}

// StartSession ensures the chat row exists, creates the research_sessions
// row, mints a message ID, and emits the message_id event (spec §6 step 4,
// ahead of the graph run so the caller can track the assistant message).
func (a *Activities) StartSession(ctx context.Context, input StartSessionInput) (string, error) {
	if err := a.Relational.EnsureChat(ctx, input.ChatID, input.UserID, input.ThreadID); err != nil {
		return "", fmt.Errorf("orchestrator: ensure chat: %w", err)
	}
	if err := a.Relational.CreateResearchSession(ctx, input.SessionID, input.UserID, input.ChatID, input.ThreadID, input.Query); err != nil {
		return "", fmt.Errorf("orchestrator: create research session: %w", err)
	}
	metrics.GraphSessionsStarted.Inc()

	messageID := uuid.NewString()
	if err := a.Events.Publish(ctx, eventstream.MessageIDEvent(input.SessionID, messageID)); err != nil {
		activity.GetLogger(ctx).Warn("orchestrator: publish message_id failed", "error", err)
	}
	return messageID, nil
}

// RetrieveInternalInput is the internal-retrieval node activity's input.
type RetrieveInternalInput struct {
	Query         string
	UserID        string
	DocumentIDs   []string
	RewriteQuery  bool
	MemorySnippet string
}

// RetrieveInternal runs the Triple-Hybrid Retrieval Engine (spec C3/§4.4).
func (a *Activities) RetrieveInternal(ctx context.Context, input RetrieveInternalInput) ([]state.InternalSource, error) {
	start := time.Now()
	sources, err := a.Retrieval.Retrieve(ctx, a.Config.ChunksCollection, input.Query, retrieval.Options{
		UserID:        input.UserID,
		TopK:          a.Config.TopK,
		DocumentIDs:   input.DocumentIDs,
		RewriteQuery:  input.RewriteQuery,
		MemorySnippet: input.MemorySnippet,
	})
	recordNodeMetrics(AgentRetrieval, start, err)
	return sources, err
}

// SearchWebInput is the web-search node activity's input.
type SearchWebInput struct {
	SessionID string
	Query     string
}

// SearchWebResult is the web-search node activity's output.
type SearchWebResult struct {
	Sources     []state.WebSource
	QuickAnswer string
}

// SearchWeb runs the Web Search agent (spec C4/§4.5) and, when the provider
// returned a quick answer, emits the quick_answer event immediately rather
// than waiting for synthesis.
func (a *Activities) SearchWeb(ctx context.Context, input SearchWebInput) (SearchWebResult, error) {
	start := time.Now()
	result, err := a.WebSearch.Search(ctx, input.Query, a.Config.WebMaxResults)
	recordNodeMetrics(AgentWebSearch, start, err)
	if err != nil {
		return SearchWebResult{}, err
	}
	if result.QuickAnswer != "" {
		if pubErr := a.Events.Publish(ctx, eventstream.QuickAnswerEvent(input.SessionID, result.QuickAnswer, "web_search")); pubErr != nil {
			activity.GetLogger(ctx).Warn("orchestrator: publish quick_answer failed", "error", pubErr)
		}
	}
	return SearchWebResult{Sources: result.Sources, QuickAnswer: result.QuickAnswer}, nil
}

// PublishStatusInput carries one agent_status translation of the graph
// engine's on_node_start/on_node_end events (spec §6).
type PublishStatusInput struct {
	SessionID string
	Node      string
	Status    eventstream.NodeStatus
}

// PublishStatus publishes one agent_status event.
func (a *Activities) PublishStatus(ctx context.Context, input PublishStatusInput) error {
	return a.Events.Publish(ctx, eventstream.AgentStatusEvent(input.SessionID, input.Node, input.Status))
}

// FinalizeInput is the post-graph persistence-and-notification activity's
// input: the fully reduced final state plus the bookkeeping IDs collected
// before the graph ran.
type FinalizeInput struct {
	SessionID string
	MessageID string
	ChatID    string
	UserID    string
	Started   time.Time
	Final     state.ResearchState
}

// FinalizeResult is returned to the workflow purely for logging/metrics;
// all durable effects have already happened by the time it returns.
type FinalizeResult struct {
	Title string
}

// FinalizeSuccess runs every post-graph step for a successful run (spec §6
// steps 1-7): source normalization + sources event, persistence across
// research_sessions/messages/agent_logs, per-agent episodic memory writes,
// chat-title derivation, and the terminal title_updated + complete events.
func (a *Activities) FinalizeSuccess(ctx context.Context, input FinalizeInput) (FinalizeResult, error) {
	logger := activity.GetLogger(ctx)
	final := input.Final

	var sourceMap map[int]state.SourceRef
	var answer string
	var confidence state.Confidence
	if final.SynthesisResult != nil {
		sourceMap = final.SynthesisResult.SourceMap
		answer = final.SynthesisResult.Answer
		confidence = final.SynthesisResult.Confidence
	}
	normalized := state.NormalizeSources(sourceMap)

	if err := a.Events.Publish(ctx, eventstream.SourcesEvent(input.SessionID, normalized)); err != nil {
		logger.Warn("orchestrator: publish sources failed", "error", err)
	}

	if err := a.persist(ctx, input, normalized, answer, confidence); err != nil {
		logger.Warn("orchestrator: persistence failed", "error", err)
	}

	a.writeAgentMemories(ctx, input)

	title := deriveTitle(final.Query)
	if err := a.Relational.UpdateChatTitle(ctx, input.ChatID, title); err != nil {
		logger.Warn("orchestrator: update chat title failed", "error", err)
	} else if err := a.Events.Publish(ctx, eventstream.TitleUpdatedEvent(input.SessionID, title, input.ChatID)); err != nil {
		logger.Warn("orchestrator: publish title_updated failed", "error", err)
	}

	totalLatencyMs := time.Since(input.Started).Milliseconds()
	if err := a.Events.Publish(ctx, eventstream.CompleteEvent(input.SessionID, input.MessageID, confidence, totalLatencyMs, normalized, final.Verification, answer)); err != nil {
		logger.Warn("orchestrator: publish complete failed", "error", err)
	}

	metrics.GraphSessionsCompleted.WithLabelValues("completed").Inc()
	metrics.GraphSessionDuration.WithLabelValues("completed").Observe(time.Since(input.Started).Seconds())
	metrics.RefinementIterations.Observe(float64(final.IterationCount))

	return FinalizeResult{Title: title}, nil
}

func (a *Activities) persist(ctx context.Context, input FinalizeInput, normalized []state.NormalizedSource, answer string, confidence state.Confidence) error {
	final := input.Final

	if err := a.Relational.CompleteResearchSession(ctx, input.SessionID, final); err != nil {
		return fmt.Errorf("complete research session: %w", err)
	}

	sourcesJSON, _ := json.Marshal(normalized)
	verificationJSON, _ := json.Marshal(final.Verification)
	timelineJSON, _ := json.Marshal(final.AgentTimeline)

	msg := relational.Message{
		ID:            input.MessageID,
		ChatID:        input.ChatID,
		SessionID:     input.SessionID,
		Query:         final.Query,
		Answer:        answer,
		Role:          "assistant",
		Sources:       sourcesJSON,
		Verification:  verificationJSON,
		Confidence:    string(confidence),
		AgentTimeline: timelineJSON,
	}
	if err := a.Relational.InsertMessage(ctx, msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	for _, entry := range final.AgentTimeline {
		eventsJSON, _ := json.Marshal(entry)
		log := relational.AgentLog{
			SessionID: input.SessionID,
			AgentName: entry.AgentName,
			Events:    eventsJSON,
			LatencyMs: entry.LatencyMs,
		}
		if err := a.Relational.InsertAgentLog(ctx, log); err != nil {
			return fmt.Errorf("insert agent log (%s): %w", entry.AgentName, err)
		}
	}
	return nil
}

// writeAgentMemories stores one episodic entry per memory-consuming agent
// (spec §4.9): best-effort, logged but never fatal to the research session.
func (a *Activities) writeAgentMemories(ctx context.Context, input FinalizeInput) {
	logger := activity.GetLogger(ctx)
	final := input.Final
	ns := func(agent string) memory.Namespace {
		return memory.EpisodicNamespace(input.UserID, input.ChatID, agent)
	}
	put := func(agent string, value map[string]interface{}) {
		if value == nil {
			return
		}
		if err := a.Memory.Put(ctx, a.Config.MemoryCollection, ns(agent), uuid.NewString(), value); err != nil {
			logger.Warn("orchestrator: memory write failed", "agent", agent, "error", err)
		}
	}

	if final.ExecutionPlan != nil {
		put(AgentPlanner, map[string]interface{}{"subtasks": final.ExecutionPlan.Subtasks})
	}
	if len(final.InternalSources) > 0 {
		top := final.InternalSources
		if len(top) > 5 {
			top = top[:5]
		}
		ids := make([]string, 0, len(top))
		for _, s := range top {
			ids = append(ids, s.DocumentID)
		}
		put(AgentRetrieval, map[string]interface{}{"document_id": strings.Join(ids, ",")})
	}
	if final.SynthesisResult != nil {
		snippet := final.SynthesisResult.Answer
		if len(snippet) > 280 {
			snippet = snippet[:280]
		}
		put(AgentSynthesis, map[string]interface{}{"answer_snippet": snippet})
	}
	if final.Verification != nil {
		put(AgentCritic, map[string]interface{}{"confidence_score": final.Verification.ConfidenceScore})
	}
}

// FailSessionInput is the error-path activity's input.
type FailSessionInput struct {
	SessionID string
	Message   string
	Started   time.Time
}

// FailSession marks the research session failed and emits the terminal
// error event (spec §8 invariant: error is always the last event of a
// failed session).
func (a *Activities) FailSession(ctx context.Context, input FailSessionInput) error {
	if err := a.Relational.FailResearchSession(ctx, input.SessionID); err != nil {
		activity.GetLogger(ctx).Warn("orchestrator: mark session failed: db update failed", "error", err)
	}
	metrics.GraphSessionsCompleted.WithLabelValues("failed").Inc()
	if !input.Started.IsZero() {
		metrics.GraphSessionDuration.WithLabelValues("failed").Observe(time.Since(input.Started).Seconds())
	}
	return a.Events.Publish(ctx, eventstream.ErrorEvent(input.SessionID, input.Message))
}

func recordNodeMetrics(node string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.NodeExecutions.WithLabelValues(node, result).Inc()
	metrics.NodeDuration.WithLabelValues(node).Observe(float64(time.Since(start).Milliseconds()))
}

func deriveTitle(query string) string {
	title := strings.TrimSpace(query)
	if idx := strings.IndexAny(title, ".?!\n"); idx > 0 {
		title = title[:idx]
	}
	const maxLen = 60
	if len(title) > maxLen {
		title = strings.TrimSpace(title[:maxLen]) + "..."
	}
	return title
}
