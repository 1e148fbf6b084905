package agentgraph

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Compile validates the graph and creates an executable CompiledGraph.
// It returns the first violation found as a *GraphError; no partial graph is
// returned.
//
// Validation checks (in order):
//  1. Node IDs must be unique
//  2. Static edge sources and targets must name registered nodes (or START/END)
//  3. Conditional edge sources and declared targets must be registered
//  4. At most one edge may leave START
//  5. A node may have at most one static edge
//  6. A node may not have both a static and a conditional edge
//  7. A non-empty graph must have an edge from START
//  8. Channel bindings must match the state type
//  9. Interrupt points and middleware must fit the graph
//
// Cycles are allowed. Unreachable nodes are logged as warnings but do not
// cause compilation to fail.
//
// Compile may be called repeatedly. Each call returns an independent
// CompiledGraph; later changes to the builder don't affect earlier results.
func (g *Graph[S]) Compile(opts ...CompileOption) (*CompiledGraph[S], error) {
	cfg := compileConfig{name: "agentgraph"}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(g.duplicates) > 0 {
		return nil, &GraphError{Kind: ErrDuplicateNode, NodeID: g.duplicates[0]}
	}

	if err := g.validateEdges(); err != nil {
		return nil, err
	}

	bindings, merger, err := g.buildMerger()
	if err != nil {
		return nil, err
	}

	interrupts := make(map[string]bool, len(cfg.interruptBefore))
	for _, id := range cfg.interruptBefore {
		if _, ok := g.nodes[id]; !ok {
			return nil, &GraphError{Kind: ErrNodeNotFound, NodeID: id, Detail: "interrupt point"}
		}
		interrupts[id] = true
	}

	middleware := make([]Middleware[S], 0, len(cfg.middleware))
	for _, m := range cfg.middleware {
		typed, ok := m.(Middleware[S])
		if !ok {
			return nil, &GraphError{
				Kind:   ErrInvalidOption,
				Detail: fmt.Sprintf("middleware %T does not match graph state type", m),
			}
		}
		middleware = append(middleware, typed)
	}

	g.warnUnreachableNodes()

	cg := &CompiledGraph[S]{
		name:            cfg.name,
		nodeOrder:       slices.Clone(g.nodeOrder),
		nodes:           maps.Clone(g.nodes),
		edges:           make(map[string]string),
		routers:         make(map[string]conditionalEdge[S]),
		merger:          merger,
		inputMerger:     channelMerger[S]{bindings: bindings},
		checkpointer:    cfg.checkpointer,
		store:           cfg.store,
		middleware:      middleware,
		retry:           cfg.retry,
		interruptBefore: interrupts,
	}
	for _, e := range g.edges {
		cg.edges[e.from] = e.to
	}
	for _, ce := range g.conditional {
		ce.targets = slices.Clone(ce.targets)
		cg.routers[ce.from] = ce
	}
	if g.merger != nil {
		cg.inputMerger = g.merger
	}

	return cg, nil
}

func (g *Graph[S]) validateEdges() error {
	known := func(id string) bool {
		_, ok := g.nodes[id]
		return ok
	}

	for _, e := range g.edges {
		if e.from == END {
			return &GraphError{Kind: ErrNodeNotFound, NodeID: e.from, Detail: "edge cannot leave END"}
		}
		if e.from != START && !known(e.from) {
			return &GraphError{Kind: ErrNodeNotFound, NodeID: e.from, Detail: fmt.Sprintf("edge source %s -> %s", e.from, e.to)}
		}
		if e.to != END && !known(e.to) {
			return &GraphError{Kind: ErrNodeNotFound, NodeID: e.to, Detail: fmt.Sprintf("edge target %s -> %s", e.from, e.to)}
		}
	}

	for _, ce := range g.conditional {
		if ce.from != START && !known(ce.from) {
			return &GraphError{Kind: ErrNodeNotFound, NodeID: ce.from, Detail: "conditional edge source"}
		}
		for _, t := range ce.targets {
			if t != END && !known(t) {
				return &GraphError{Kind: ErrNodeNotFound, NodeID: t, Detail: fmt.Sprintf("conditional edge target from %s", ce.from)}
			}
		}
	}

	static := make(map[string]int)
	conditional := make(map[string]int)
	for _, e := range g.edges {
		static[e.from]++
	}
	for _, ce := range g.conditional {
		conditional[ce.from]++
	}

	if static[START]+conditional[START] > 1 {
		return &GraphError{Kind: ErrMultipleEntries, NodeID: START}
	}

	for _, e := range g.edges {
		if static[e.from] > 1 {
			return &GraphError{Kind: ErrFanOut, NodeID: e.from}
		}
	}

	for _, ce := range g.conditional {
		if conditional[ce.from] > 1 || static[ce.from] > 0 {
			return &GraphError{Kind: ErrAmbiguousEdge, NodeID: ce.from}
		}
	}

	if len(g.nodes) > 0 && static[START]+conditional[START] == 0 {
		return &GraphError{Kind: ErrNoEntryPoint}
	}

	return nil
}

// buildMerger resolves the node-output merge strategy. Without channels or a
// custom merger, node output replaces the state.
func (g *Graph[S]) buildMerger() ([]fieldBinding, StateMerger[S], error) {
	if g.merger != nil && len(g.channelOrder) > 0 {
		return nil, nil, &GraphError{Kind: ErrInvalidChannel, Detail: "cannot combine a state merger with channels"}
	}

	bindings, err := bindChannels[S](g.channelOrder, g.channels)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case g.merger != nil:
		return nil, g.merger, nil
	case len(bindings) > 0:
		return bindings, channelMerger[S]{bindings: bindings}, nil
	default:
		return nil, replaceMerger[S]{}, nil
	}
}

// warnUnreachableNodes logs warnings for nodes not reachable from START.
// Conditional edges without declared targets can reach any node, so no
// warnings are logged when one exists.
func (g *Graph[S]) warnUnreachableNodes() {
	succ := make(map[string][]string)
	for _, e := range g.edges {
		succ[e.from] = append(succ[e.from], e.to)
	}
	for _, ce := range g.conditional {
		if len(ce.targets) == 0 {
			return
		}
		succ[ce.from] = append(succ[ce.from], ce.targets...)
	}

	reachable := map[string]bool{START: true}
	queue := []string{START}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range succ[id] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, id := range g.nodeOrder {
		if !reachable[id] {
			slog.Warn("node is unreachable from entry", "node_id", id)
		}
	}
}
