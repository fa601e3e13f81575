// Package graph implements the generic Agent Graph Engine (spec C10): a
// dataflow runtime parameterized over a state record S, hosted inside a
// Temporal workflow so that node scheduling gets deterministic replay,
// cooperative coroutine concurrency, and a built-in cancellation signal for
// free — the same properties the spec requires of the engine.
package graph

import (
	"fmt"

	"go.temporal.io/sdk/workflow"
)

// End is the conditional-edge target that terminates the graph.
const End = "__end__"

// Node is one unit of graph work: given the current state and a NodeContext
// for emitting custom events, it returns a partial state to be combined via
// Reducer, or an error.
type Node[S any] func(ctx workflow.Context, state S, nc *NodeContext) (S, error)

// Reducer combines a node's partial output into the accumulated state. The
// only caller-supplied policy point in the engine; see state.ResearchState.Reduce
// for the concrete instantiation used by this service.
type Reducer[S any] func(base, partial S) S

// CondEdge evaluates synchronously on the post-reduce state and returns the
// name of the next node to run, or End.
type CondEdge[S any] func(state S) string

// EventType enumerates the engine's built-in lifecycle events; custom event
// names are caller-defined strings emitted via NodeContext.Emit.
type EventType string

const (
	EventNodeStart EventType = "on_node_start"
	EventNodeEnd   EventType = "on_node_end"
)

// Event is one entry on the graph's bounded event stream.
type Event struct {
	Type    string
	Node    string
	Payload interface{}
}

// NodeContext is the handle passed to every node for emitting custom
// progress events alongside the engine's built-in on_node_start/on_node_end.
type NodeContext struct {
	node string
	out  workflow.Channel
	ctx  workflow.Context
}

// Emit sends a custom event, blocking (backpressuring the node) if the
// bounded output channel is full — per spec §5's backpressure requirement.
func (nc *NodeContext) Emit(ctx workflow.Context, name string, payload interface{}) {
	nc.out.Send(ctx, Event{Type: name, Node: nc.node, Payload: payload})
}

// Engine is a compiled, immutable dataflow schedule over state type S.
type Engine[S any] struct {
	nodes   map[string]Node[S]
	edges   map[string][]string
	cond    map[string]CondEdge[S]
	preds   map[string]int
	fatal   map[string]bool
	entry   string
	reducer Reducer[S]
}

// NewEngine constructs an engine builder for state type S with the given
// reducer — the single place per-field merge policy is decided.
func NewEngine[S any](reducer Reducer[S]) *Engine[S] {
	return &Engine[S]{
		nodes: make(map[string]Node[S]),
		edges: make(map[string][]string),
		cond:  make(map[string]CondEdge[S]),
		preds: make(map[string]int),
		fatal: make(map[string]bool),
		reducer: reducer,
	}
}

// AddNode registers a node. By default its errors are fatal (propagate and
// cancel the graph) per spec §4.1's "policy set at registration time
// (default: all propagate)."
func (e *Engine[S]) AddNode(name string, fn Node[S]) *Engine[S] {
	e.nodes[name] = fn
	e.fatal[name] = true
	if _, ok := e.preds[name]; !ok {
		e.preds[name] = 0
	}
	return e
}

// SetNonFatal marks a node's errors as recoverable: the engine delivers its
// (partial, error-marked) output and continues instead of cancelling.
func (e *Engine[S]) SetNonFatal(name string) *Engine[S] {
	e.fatal[name] = false
	return e
}

// AddEdge adds a static directed edge. The target becomes runnable only once
// every static predecessor has completed (fan-in).
func (e *Engine[S]) AddEdge(from, to string) *Engine[S] {
	e.edges[from] = append(e.edges[from], to)
	e.preds[to]++
	return e
}

// AddConditionalEdge registers a dynamic router evaluated on the post-reduce
// state after `from` completes. Conditional targets run immediately,
// bypassing the static fan-in counter — this is what makes loop-back (a
// bounded cycle) expressible without violating DAG fan-in semantics.
func (e *Engine[S]) AddConditionalEdge(from string, route CondEdge[S]) *Engine[S] {
	e.cond[from] = route
	return e
}

// SetEntry designates the single entry node.
func (e *Engine[S]) SetEntry(name string) *Engine[S] {
	e.entry = name
	return e
}

type scheduled[S any] struct {
	name    string
	partial S
	err     error
}

// Run executes the compiled graph to completion inside a Temporal workflow,
// forwarding every built-in and custom event onto events (a bounded
// workflow.Channel the caller owns, providing backpressure to the producer).
func (e *Engine[S]) Run(ctx workflow.Context, initial S, events workflow.Channel) (S, error) {
	if e.entry == "" {
		return initial, fmt.Errorf("graph: no entry node set")
	}
	if _, ok := e.nodes[e.entry]; !ok {
		return initial, fmt.Errorf("graph: entry node %q not registered", e.entry)
	}

	state := initial
	pending := make(map[string]int, len(e.preds))
	for k, v := range e.preds {
		pending[k] = v
	}

	resultCh := workflow.NewChannel(ctx)
	inFlight := 0

	schedule := func(name string) {
		node, ok := e.nodes[name]
		if !ok {
			resultCh.Send(ctx, scheduled[S]{name: name, err: fmt.Errorf("graph: node %q not registered", name)})
			return
		}
		inFlight++
		workflow.Go(ctx, func(gctx workflow.Context) {
			events.Send(gctx, Event{Type: string(EventNodeStart), Node: name})
			nc := &NodeContext{node: name, out: events, ctx: gctx}
			partial, err := node(gctx, state, nc)
			resultCh.Send(gctx, scheduled[S]{name: name, partial: partial, err: err})
		})
	}

	schedule(e.entry)

	for inFlight > 0 {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		var r scheduled[S]
		resultCh.Receive(ctx, &r)
		inFlight--

		if r.err != nil {
			if e.fatal[r.name] {
				return state, fmt.Errorf("graph: node %q failed fatally: %w", r.name, r.err)
			}
			// Recoverable: still combine whatever partial output was
			// produced (the node is expected to carry an error marker in
			// it) and keep going.
		}

		state = e.reducer(state, r.partial)
		events.Send(ctx, Event{Type: string(EventNodeEnd), Node: r.name})

		if route, ok := e.cond[r.name]; ok {
			target := route(state)
			if target != End {
				schedule(target)
			}
			continue
		}

		for _, succ := range e.edges[r.name] {
			pending[succ]--
			if pending[succ] == 0 {
				schedule(succ)
				// Reset so a later re-entry (e.g. synthesis completing a
				// second time after a refinement loop-back) re-triggers
				// this edge's fan-in instead of being starved forever.
				pending[succ] = e.preds[succ]
			}
		}
	}

	return state, nil
}
