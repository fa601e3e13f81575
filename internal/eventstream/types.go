// Package eventstream defines the outbound event vocabulary streamed to the
// caller during a research session (spec §6's event table) and the
// Redis-Streams-backed pub/sub manager that carries them from the
// orchestrator workflow to whatever transport the caller has wired up.
package eventstream

import (
	"encoding/json"
	"time"

	"github.com/thornxyz/revera/internal/state"
)

// EventType enumerates the fixed, closed set of outbound event types.
type EventType string

const (
	EventMessageID    EventType = "message_id"
	EventAgentStatus  EventType = "agent_status"
	EventThoughtChunk EventType = "thought_chunk"
	EventAnswerChunk  EventType = "answer_chunk"
	EventSources      EventType = "sources"
	EventQuickAnswer  EventType = "quick_answer"
	EventTitleUpdated EventType = "title_updated"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// NodeStatus is the agent_status event's status field.
type NodeStatus string

const (
	StatusRunning  NodeStatus = "running"
	StatusComplete NodeStatus = "complete"
	StatusTimeout  NodeStatus = "timeout"
	StatusError    NodeStatus = "error"
)

// Event is the transport envelope: Type plus a flat payload map, mirroring
// the teacher's streaming.Event shape (WorkflowID/Type/Payload/Seq/
// StreamID) but scoped to a research session instead of a Temporal
// workflow ID and with no separate AgentID/Message fields — every event
// type here carries its fields directly in Payload per spec §6's table.
type Event struct {
	SessionID string
	Type      EventType
	Payload   map[string]interface{}
	Timestamp time.Time
	Seq       uint64
	StreamID  string
}

// Public renders the event as the single flat JSON object a caller
// receives: {"type": "...", <payload fields>...}.
func (e Event) Public() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["type"] = string(e.Type)
	return json.Marshal(out)
}

// IsTerminal reports whether this event ends the session's event stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

func newEvent(sessionID string, t EventType, payload map[string]interface{}) Event {
	return Event{SessionID: sessionID, Type: t, Payload: payload, Timestamp: time.Now()}
}

// MessageIDEvent is emitted before the graph starts (spec §6 step 4) so the
// caller can track the assistant message ahead of completion.
func MessageIDEvent(sessionID, messageID string) Event {
	return newEvent(sessionID, EventMessageID, map[string]interface{}{"message_id": messageID})
}

// AgentStatusEvent mirrors on_node_start/on_node_end.
func AgentStatusEvent(sessionID, node string, status NodeStatus) Event {
	return newEvent(sessionID, EventAgentStatus, map[string]interface{}{"node": node, "status": string(status)})
}

// ThoughtChunkEvent carries one opaque reasoning token.
func ThoughtChunkEvent(sessionID, content string) Event {
	return newEvent(sessionID, EventThoughtChunk, map[string]interface{}{"content": content})
}

// AnswerChunkEvent carries one user-visible token.
func AnswerChunkEvent(sessionID, content string) Event {
	return newEvent(sessionID, EventAnswerChunk, map[string]interface{}{"content": content})
}

// SourcesEvent may be emitted multiple times; the final one is authoritative.
func SourcesEvent(sessionID string, sources []state.NormalizedSource) Event {
	return newEvent(sessionID, EventSources, map[string]interface{}{"sources": sources})
}

// QuickAnswerEvent carries the web-search provider's optional pre-synthesis
// snippet.
func QuickAnswerEvent(sessionID, answer, source string) Event {
	return newEvent(sessionID, EventQuickAnswer, map[string]interface{}{"answer": answer, "source": source})
}

// TitleUpdatedEvent fires once, after chat-title derivation.
func TitleUpdatedEvent(sessionID, title, chatID string) Event {
	return newEvent(sessionID, EventTitleUpdated, map[string]interface{}{"title": title, "chat_id": chatID})
}

// CompleteEvent is the terminal success event. It must be strictly last in
// the stream (spec §8 invariant).
func CompleteEvent(sessionID, messageID string, confidence state.Confidence, totalLatencyMs int64, sources []state.NormalizedSource, verification *state.Verification, answer string) Event {
	return newEvent(sessionID, EventComplete, map[string]interface{}{
		"message_id":       messageID,
		"confidence":       string(confidence),
		"total_latency_ms": totalLatencyMs,
		"sources":          sources,
		"verification":     verification,
		"answer":           answer,
	})
}

// ErrorEvent is the terminal failure event.
func ErrorEvent(sessionID, message string) Event {
	return newEvent(sessionID, EventError, map[string]interface{}{"message": message})
}
