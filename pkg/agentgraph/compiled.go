package agentgraph

import (
	"slices"

	"github.com/randalmurphal/agentgraph/pkg/agentgraph/checkpoint"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/retry"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/store"
)

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile() on a Graph builder.
//
// CompiledGraph is safe for concurrent use: any number of Invoke and Stream
// calls may share it. The graph structure cannot be modified after
// compilation.
type CompiledGraph[S any] struct {
	name      string
	nodeOrder []string
	nodes     map[string]Node[S]
	edges     map[string]string
	routers   map[string]conditionalEdge[S]

	// merger combines node output; inputMerger combines caller input and
	// resume values with checkpointed state.
	merger      StateMerger[S]
	inputMerger StateMerger[S]

	checkpointer    checkpoint.Store
	store           store.Store
	middleware      []Middleware[S]
	retry           retry.Policy
	interruptBefore map[string]bool
}

// Name returns the graph name set with WithName.
func (cg *CompiledGraph[S]) Name() string {
	return cg.name
}

// EntryPoint returns the node the START edge leads to.
// Returns "" for an empty graph or when START has a conditional edge.
func (cg *CompiledGraph[S]) EntryPoint() string {
	return cg.edges[START]
}

// NodeIDs returns all node identifiers in registration order.
func (cg *CompiledGraph[S]) NodeIDs() []string {
	return slices.Clone(cg.nodeOrder)
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph[S]) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// Successor returns the static edge target of a node, or "" if it has none.
func (cg *CompiledGraph[S]) Successor(id string) string {
	return cg.edges[id]
}

// IsConditional returns true if the node has a conditional edge.
func (cg *CompiledGraph[S]) IsConditional(id string) bool {
	_, ok := cg.routers[id]
	return ok
}

// Checkpointer returns the checkpoint store, or nil if not configured.
func (cg *CompiledGraph[S]) Checkpointer() checkpoint.Store {
	return cg.checkpointer
}

// InterruptPoints returns the compile-time interrupt nodes, sorted.
func (cg *CompiledGraph[S]) InterruptPoints() []string {
	ids := make([]string, 0, len(cg.interruptBefore))
	for id := range cg.interruptBefore {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
