// Package graph implements the typed DAG execution runtime (C3): a set of
// named nodes, a single entry node, static and conditional (router) edges,
// and sequential-only execution over a state value.
//
// Grounded on dshills/langgraph-go's Engine[S] (retrieved as reference
// material, not a teacher): this package keeps its generic
// node/edge/validate shape but drops concurrency, checkpointing, and
// replay — spec.md §4.3 specifies strictly sequential node execution with
// no parallel branches and no replay inside the graph runtime (graph runs
// execute inside a workflow activity, which is where replay-safety
// lives). The langgraph-go Reducer[S] concept is replaced with a fixed
// right-biased struct merge via reflection, since every graph state here
// is a flat struct of optional fields.
package graph

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/cogniflow/agentrt/pkg/metrics"
)

// Node is one unit of work in the graph: a function from state to state.
// Node may suspend on I/O (memory search, LLM calls); within a single run
// nodes execute strictly sequentially.
type Node[S any] func(ctx context.Context, state S) (NodeResult[S], error)

// NodeResult is what a node returns: the (possibly partial) next state and
// any warnings accumulated during that node's execution. Fields left at
// their zero value in State are treated as "unset" by the merge and keep
// the previous value, so a node cannot reset a field to its zero value;
// callers build State as a full copy of the previous state with only the
// fields they changed updated, per spec.md §4.3's right-biased merge.
type NodeResult[S any] struct {
	State    S
	Warnings []string
}

// Router inspects post-node state and returns the name of the next node
// to run, or "" to terminate the run.
type Router[S any] func(state S) string

// edge is either static (To fixed) or conditional (Route set, To empty).
type edge[S any] struct {
	from  string
	to    string
	route Router[S]
}

// Graph is a compiled, validated DAG of Node[S] over state type S.
type Graph[S any] struct {
	nodes    map[string]Node[S]
	edges    []edge[S]
	entry    string
	terminal map[string]bool

	name    string
	metrics *metrics.Metrics
}

// SetMetrics attaches a name and a Prometheus collector Run reports each
// node's outcome and duration into. Optional — an unnamed graph (the
// default in every package test) simply records nothing.
func (g *Graph[S]) SetMetrics(name string, m *metrics.Metrics) {
	g.name = name
	g.metrics = m
}

// New constructs an empty graph. Call AddNode/SetEntry/Connect/ConnectRouter,
// then Validate, before Run.
func New[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:    make(map[string]Node[S]),
		terminal: make(map[string]bool),
	}
}

// AddNode registers a node under id. IDs must be unique.
func (g *Graph[S]) AddNode(id string, n Node[S]) error {
	if id == "" {
		return fmt.Errorf("graph: node id cannot be empty")
	}
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("graph: duplicate node id %q", id)
	}
	g.nodes[id] = n
	return nil
}

// SetEntry designates the single entry node for Run.
func (g *Graph[S]) SetEntry(id string) error {
	if _, exists := g.nodes[id]; !exists {
		return fmt.Errorf("graph: entry node %q not registered", id)
	}
	g.entry = id
	return nil
}

// MarkTerminal declares id a valid run-ending node (one with no outgoing
// edges). Validate uses this set to distinguish an intentional dead end
// from a dangling one.
func (g *Graph[S]) MarkTerminal(id string) error {
	if _, exists := g.nodes[id]; !exists {
		return fmt.Errorf("graph: terminal node %q not registered", id)
	}
	g.terminal[id] = true
	return nil
}

// Connect adds a static, unconditional edge from → to.
func (g *Graph[S]) Connect(from, to string) error {
	if _, exists := g.nodes[from]; !exists {
		return fmt.Errorf("graph: edge from unregistered node %q", from)
	}
	if _, exists := g.nodes[to]; !exists {
		return fmt.Errorf("graph: edge to unregistered node %q", to)
	}
	g.edges = append(g.edges, edge[S]{from: from, to: to})
	return nil
}

// ConnectRouter adds a conditional edge: after `from` runs, route decides
// the next node by name. targets lists every node name route is allowed to
// return, so Validate can check "every conditional router output maps to
// a declared node" at compile time rather than at run time. Route may
// also return "" (meaning: terminate here); include "" in targets to
// allow that.
func (g *Graph[S]) ConnectRouter(from string, route Router[S], targets []string) error {
	if _, exists := g.nodes[from]; !exists {
		return fmt.Errorf("graph: router from unregistered node %q", from)
	}
	for _, t := range targets {
		if t == "" {
			continue
		}
		if _, exists := g.nodes[t]; !exists {
			return fmt.Errorf("graph: router target %q not registered", t)
		}
		g.edges = append(g.edges, edge[S]{from: from, to: t, route: routeMatching(route, t)})
	}
	return nil
}

// routeMatching wraps route so this edge only "fires" when route(state)
// equals the specific target it was registered for — Validate and Run
// both treat the graph as a flat edge list, so a router with N possible
// outputs becomes N edges sharing the same underlying decision function.
func routeMatching[S any](route Router[S], target string) Router[S] {
	return func(state S) string {
		if route(state) == target {
			return target
		}
		return ""
	}
}

// ExecutionResult is the outcome of a completed Run: the final state plus
// the append-only bookkeeping spec.md §4.3 requires the runtime to
// maintain (every node name appears in StepsCompleted after it returns).
type ExecutionResult[S any] struct {
	State          S
	StepsCompleted []string
	Warnings       []string
}

// Run executes the graph from its entry node until a terminal node (or a
// router returning "") is reached. Node failure aborts the run
// immediately: no further nodes execute, and the error identifies the
// failing node by name (spec.md §4.3). The runtime never retries — retry
// policy is the workflow layer's concern (pkg/workflow), not the graph's.
func (g *Graph[S]) Run(ctx context.Context, initial S) (ExecutionResult[S], error) {
	if g.entry == "" {
		return ExecutionResult[S]{}, fmt.Errorf("graph: entry node not set")
	}

	result := ExecutionResult[S]{State: initial}
	current := g.entry

	for current != "" {
		node, ok := g.nodes[current]
		if !ok {
			return result, fmt.Errorf("graph: node %q not found during execution", current)
		}

		stepStart := time.Now()
		nr, err := node(ctx, result.State)
		if err != nil {
			g.recordStepMetric(current, "error", time.Since(stepStart))
			return result, fmt.Errorf("graph: node %q failed: %w", current, err)
		}
		g.recordStepMetric(current, "success", time.Since(stepStart))

		result.State = rightBiasedMerge(result.State, nr.State)
		result.StepsCompleted = append(result.StepsCompleted, current)
		result.Warnings = append(result.Warnings, nr.Warnings...)

		if g.terminal[current] && !g.hasOutgoing(current) {
			return result, nil
		}

		next, err := g.next(current, result.State)
		if err != nil {
			return result, err
		}
		current = next
	}
	return result, nil
}

func (g *Graph[S]) recordStepMetric(node, status string, duration time.Duration) {
	if g.metrics != nil {
		g.metrics.RecordGraphStep(g.name, node, status, duration)
	}
}

func (g *Graph[S]) hasOutgoing(node string) bool {
	for _, e := range g.edges {
		if e.from == node {
			return true
		}
	}
	return false
}

// next evaluates every edge leaving `from`, static edges first in
// registration order, then conditional edges; the first one whose
// predicate matches (or that is unconditional) wins.
func (g *Graph[S]) next(from string, state S) (string, error) {
	var routedOutcome string
	var sawRouter bool

	for _, e := range g.edges {
		if e.from != from {
			continue
		}
		if e.route == nil {
			return e.to, nil
		}
		sawRouter = true
		if out := e.route(state); out != "" {
			routedOutcome = out
		}
	}
	if routedOutcome != "" {
		return routedOutcome, nil
	}
	if sawRouter || g.terminal[from] {
		return "", nil
	}
	return "", fmt.Errorf("graph: no route from node %q", from)
}

// rightBiasedMerge overlays every exported, non-zero field of delta onto
// a copy of prev. Run keeps StepsCompleted/Warnings on ExecutionResult,
// outside S, so they never pass through this merge; every exported
// slice/map/pointer/scalar field of S follows the same
// overwrite-if-non-zero rule.
func rightBiasedMerge[S any](prev, delta S) S {
	prevV := reflect.ValueOf(&prev).Elem()
	deltaV := reflect.ValueOf(delta)
	if prevV.Kind() != reflect.Struct || deltaV.Kind() != reflect.Struct {
		return delta
	}

	out := reflect.New(prevV.Type()).Elem()
	out.Set(prevV)

	for i := 0; i < deltaV.NumField(); i++ {
		field := deltaV.Type().Field(i)
		if !field.IsExported() {
			continue
		}
		dv := deltaV.Field(i)
		if dv.IsZero() {
			continue
		}
		out.Field(i).Set(dv)
	}
	return out.Interface().(S)
}

// Validate checks the compile-time invariants spec.md §4.3 requires:
// exactly one entry node, every node reachable from the entry, no
// dangling edges (already enforced at Connect/ConnectRouter time), and no
// unreachable nodes.
func (g *Graph[S]) Validate() error {
	if g.entry == "" {
		return fmt.Errorf("graph: no entry node set")
	}

	reachable := map[string]bool{g.entry: true}
	queue := []string{g.entry}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range g.edges {
			if e.from != n {
				continue
			}
			if !reachable[e.to] {
				reachable[e.to] = true
				queue = append(queue, e.to)
			}
		}
	}

	var unreachable []string
	for id := range g.nodes {
		if !reachable[id] {
			unreachable = append(unreachable, id)
		}
	}
	if len(unreachable) > 0 {
		return fmt.Errorf("graph: unreachable nodes from entry %q: %v", g.entry, unreachable)
	}

	for id := range g.nodes {
		if id == g.entry || g.terminal[id] {
			continue
		}
		if !g.hasOutgoing(id) {
			return fmt.Errorf("graph: node %q has no outgoing edge and is not marked terminal", id)
		}
	}
	return nil
}
