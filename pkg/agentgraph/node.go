package agentgraph

// START is the virtual node every run begins from.
// Use it as an edge source to designate the entry point.
const START = "__start__"

// END is the terminal node identifier.
// Use this as an edge target to indicate the graph should terminate.
const END = "__end__"

// Node is a unit of state-transforming work.
//
// Run receives the run context and the current state, and returns the node's
// output together with a directive saying where execution goes next. When the
// graph has channels bound, the output is a partial update: fields left at
// their zero value are treated as not written.
type Node[S any] interface {
	Run(ctx Context, state S) (S, Next, error)
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	func increment(ctx agentgraph.Context, s Counter) (Counter, agentgraph.Next, error) {
//	    s.Value++
//	    return s, agentgraph.Continue(), nil
//	}
type NodeFunc[S any] func(ctx Context, state S) (S, Next, error)

// Run implements Node.
func (f NodeFunc[S]) Run(ctx Context, state S) (S, Next, error) {
	return f(ctx, state)
}

// Update adapts a function that never redirects execution.
// The returned node always continues along its outgoing edge.
func Update[S any](fn func(ctx Context, state S) (S, error)) NodeFunc[S] {
	if fn == nil {
		panic("agentgraph: update function cannot be nil")
	}
	return func(ctx Context, state S) (S, Next, error) {
		out, err := fn(ctx, state)
		return out, Continue(), err
	}
}

// RouterFunc determines the next node based on state.
// It is used for conditional edges where the next node depends on runtime state.
//
// The router should return a valid node ID or agentgraph.END.
// Returning an empty string or an unknown node ID causes a RouterError.
type RouterFunc[S any] func(ctx Context, state S) string

type directive uint8

const (
	directiveContinue directive = iota
	directiveGoTo
	directiveEnd
)

// Next is the transition directive a node returns.
// The zero value is Continue.
type Next struct {
	kind   directive
	target string
}

// Continue follows the node's static or conditional edge.
func Continue() Next {
	return Next{}
}

// GoTo jumps directly to the node id, bypassing edge lookup.
// GoTo(END) is equivalent to End().
func GoTo(id string) Next {
	return Next{kind: directiveGoTo, target: id}
}

// End terminates the run after this node's output is merged.
func End() Next {
	return Next{kind: directiveEnd}
}

// IsContinue reports whether the directive is Continue.
func (n Next) IsContinue() bool { return n.kind == directiveContinue }

// IsEnd reports whether the directive is End.
func (n Next) IsEnd() bool { return n.kind == directiveEnd }

// Target returns the GoTo destination, or "" for other directives.
func (n Next) Target() string {
	if n.kind != directiveGoTo {
		return ""
	}
	return n.target
}

// String renders the directive for logs.
func (n Next) String() string {
	switch n.kind {
	case directiveGoTo:
		return "goto:" + n.target
	case directiveEnd:
		return "end"
	default:
		return "continue"
	}
}
