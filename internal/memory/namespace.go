// Package memory implements the Memory Store (spec C5, §4.9): namespaced
// episodic/semantic storage over the vector index's Memory collection, with
// per-agent prompt formatters.
package memory

import (
	"fmt"
	"strings"

	"github.com/thornxyz/revera/internal/state"
)

// Namespace identifies a memory partition. Episodic namespaces are scoped
// per agent; semantic namespaces are shared across agents for a chat (spec
// §4.9).
type Namespace struct {
	UserID    string
	ChatID    string
	Kind      state.MemoryKind
	AgentName string // empty for semantic namespaces
}

// Key renders a stable, collision-free string key used as the vector
// collection's partition payload value.
func (n Namespace) Key() string {
	if n.Kind == state.MemorySemantic {
		return fmt.Sprintf("semantic:%s:%s", n.UserID, n.ChatID)
	}
	return fmt.Sprintf("episodic:%s:%s:%s", n.UserID, n.ChatID, n.AgentName)
}

func EpisodicNamespace(userID, chatID, agentName string) Namespace {
	return Namespace{UserID: userID, ChatID: chatID, Kind: state.MemoryEpisodic, AgentName: sanitizeAgentName(agentName)}
}

func SemanticNamespace(userID, chatID string) Namespace {
	return Namespace{UserID: userID, ChatID: chatID, Kind: state.MemorySemantic}
}

// sanitizeAgentName keeps namespace keys filesystem/URL safe even if an
// agent name ever contains whitespace.
func sanitizeAgentName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
