// Package orchestrator wires the Agent Graph Engine (internal/graph) and
// the individual agent packages (internal/agents/...) into the Temporal
// workflow that runs one research session end to end (spec C11): pre-graph
// tenant scoping and memory load, the graph run itself, and post-graph
// persistence, memory writes, and event emission.
package orchestrator

import (
	"time"

	"github.com/thornxyz/revera/internal/memory"
	"github.com/thornxyz/revera/internal/policy"
	"github.com/thornxyz/revera/internal/relational"

	"github.com/thornxyz/revera/internal/eventstream"
	"github.com/thornxyz/revera/internal/retrieval"
	"github.com/thornxyz/revera/internal/websearch"
)

// Agent names used consistently as graph node names, activity labels,
// timeline entries, and episodic memory namespaces.
const (
	AgentPlanner   = "planner"
	AgentRetrieval = "retrieval"
	AgentWebSearch = "web_search"
	AgentSynthesis = "synthesis"
	AgentCritic    = "critic"
	AgentImageGen  = "image_gen"
)

// Config holds the orchestrator's tunables, sourced from internal/config
// at worker startup.
type Config struct {
	TopK               int
	WebMaxResults      int
	MaxIterations      int
	CriticTimeout      time.Duration
	ChunksCollection   string
	MemoryCollection   string
}

// Activities bundles every dependency the orchestrator's own (non-agent)
// bookkeeping activities need: tenant scoping, memory, persistence, and
// event publication. Agent-specific generation work is delegated to the
// Activities structs in internal/agents/{planner,synthesis,critic,imagegen}
// and to internal/retrieval and internal/websearch directly.
type Activities struct {
	Relational *relational.Client
	Policy     *policy.Engine
	Memory     *memory.Store
	Events     *eventstream.Manager
	Retrieval  *retrieval.Service
	WebSearch  *websearch.Service
	Config     Config
}
