package agentgraph

import (
	"slices"
	"strings"
)

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge,
// and SetEntry calls to define the workflow.
//
// Graph is NOT thread-safe during building. Use a single goroutine
// to construct the graph, then call Compile() to create an immutable
// CompiledGraph that can be safely shared.
//
// Example:
//
//	graph := agentgraph.NewGraph[MyState]().
//	    AddNodeFunc("fetch", fetchNode).
//	    AddNodeFunc("process", processNode).
//	    AddEdge("fetch", "process").
//	    AddEdge("process", agentgraph.END).
//	    SetEntry("fetch")
//
//	compiled, err := graph.Compile()
type Graph[S any] struct {
	nodeOrder  []string
	nodes      map[string]Node[S]
	duplicates []string

	edges       []edge
	conditional []conditionalEdge[S]

	channelOrder []string
	channels     map[string]any
	merger       StateMerger[S]
}

type edge struct {
	from, to string
}

type conditionalEdge[S any] struct {
	from    string
	router  RouterFunc[S]
	targets []string
}

// NewGraph creates a new graph builder for state type S.
// The type parameter S defines the state that flows through the graph.
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:    make(map[string]Node[S]),
		channels: make(map[string]any),
	}
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is a reserved word ("START", "END", "__start__", "__end__", case-insensitive)
//   - id contains whitespace (space, tab, newline)
//   - node is nil
//
// A duplicate id is reported by Compile as ErrDuplicateNode.
func (g *Graph[S]) AddNode(id string, node Node[S]) *Graph[S] {
	validateNodeID(id)
	if node == nil {
		panic("agentgraph: node cannot be nil")
	}

	if _, exists := g.nodes[id]; exists {
		g.duplicates = append(g.duplicates, id)
		return g
	}

	g.nodeOrder = append(g.nodeOrder, id)
	g.nodes[id] = node
	return g
}

// AddNodeFunc adds a function as a named node.
// It panics under the same conditions as AddNode.
func (g *Graph[S]) AddNodeFunc(id string, fn func(ctx Context, state S) (S, Next, error)) *Graph[S] {
	if fn == nil {
		validateNodeID(id)
		panic("agentgraph: node function cannot be nil")
	}
	return g.AddNode(id, NodeFunc[S](fn))
}

func validateNodeID(id string) {
	if id == "" {
		panic("agentgraph: node ID cannot be empty")
	}

	switch strings.ToLower(id) {
	case "start", "end", START, END:
		panic("agentgraph: node ID cannot be reserved word '" + id + "'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("agentgraph: node ID cannot contain whitespace")
	}
}

// AddEdge adds an unconditional edge from one node to another.
// from may be START; to can be a node ID or agentgraph.END.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here.
// This allows edges to be added in any order.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.edges = append(g.edges, edge{from: from, to: to})
	return g
}

// AddConditionalEdge adds a conditional edge where a RouterFunc
// determines the next node at runtime based on state.
// Returns the graph for method chaining.
//
// When targets are given they are validated at compile time, and a router
// result outside them fails the run with ErrUndeclaredRoute. Without targets
// any registered node or END is accepted at run time.
//
// A node can have either one static edge or one conditional edge, not both.
func (g *Graph[S]) AddConditionalEdge(from string, router RouterFunc[S], targets ...string) *Graph[S] {
	if router == nil {
		panic("agentgraph: router function cannot be nil")
	}

	g.conditional = append(g.conditional, conditionalEdge[S]{
		from:    from,
		router:  router,
		targets: slices.Clone(targets),
	})
	return g
}

// SetEntry designates the entry point node.
// It is shorthand for AddEdge(START, id).
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	return g.AddEdge(START, id)
}

// AddChannel binds a merge strategy to a state field (struct field name or
// map key). ch must be a Channel[V] where V is the field's type.
// Bindings are validated at Compile() time.
//
// Once any channel is bound, node outputs are partial updates: zero-valued
// fields are not written, and unbound fields keep their latest non-zero write.
//
// Example:
//
//	graph.AddChannel("Messages", agentgraph.Append[string]()).
//	    AddChannel("Total", agentgraph.Fold(func(a, b int) int { return a + b }))
func (g *Graph[S]) AddChannel(field string, ch any) *Graph[S] {
	if _, exists := g.channels[field]; !exists {
		g.channelOrder = append(g.channelOrder, field)
	}
	g.channels[field] = ch
	return g
}

// WithStateMerger replaces the state merge strategy for the whole state.
// It cannot be combined with AddChannel.
func (g *Graph[S]) WithStateMerger(m StateMerger[S]) *Graph[S] {
	g.merger = m
	return g
}
