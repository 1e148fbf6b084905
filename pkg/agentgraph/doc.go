/*
Package agentgraph provides a step-based workflow runtime for stateful agents.

# Overview

agentgraph builds directed graphs of named nodes that share one evolving
state value. A graph is compiled once and then executed any number of times,
concurrently, either synchronously (Invoke) or as a live event stream
(Stream). Runs can be checkpointed, resumed, retried and paused for human
approval.

# Basic Usage

Create a graph with nodes and edges, then compile and run:

	type State struct {
	    Input  string
	    Output string
	}

	func process(ctx agentgraph.Context, s State) (State, agentgraph.Next, error) {
	    s.Output = "Processed: " + s.Input
	    return s, agentgraph.Continue(), nil
	}

	func main() {
	    graph := agentgraph.NewGraph[State]().
	        AddNodeFunc("process", process).
	        AddEdge("process", agentgraph.END).
	        SetEntry("process")

	    compiled, err := graph.Compile()
	    if err != nil {
	        log.Fatal(err)
	    }

	    result, err := compiled.Invoke(context.Background(), State{Input: "hello"})
	    if err != nil {
	        log.Fatal(err)
	    }
	    fmt.Println(result.Output) // "Processed: hello"
	}

# Directives and Routing

Every node returns a Next directive alongside its output. Continue follows
the node's edge, GoTo jumps straight to another node, and End stops the run.
Conditional edges pick the next node from state:

	graph.AddConditionalEdge("review", func(ctx agentgraph.Context, s State) string {
	    if s.Approved {
	        return "publish"
	    }
	    return "revise"
	}, "publish", "revise")

Cycles are allowed. Runs are bounded by WithMaxSteps (default 1000), and a
node can check ctx.IsLastStep() to wrap up before the ceiling is hit.

# Channels

By default a node's output replaces the state. Binding a Channel to a field
turns node outputs into partial updates merged field by field:

	graph := agentgraph.NewGraph[Chat]().
	    AddChannel("Messages", agentgraph.Append[string]()).
	    AddChannel("Tokens", agentgraph.Fold(func(a, b int) int { return a + b }))

Nodes then return only what they write:

	return Chat{Messages: []string{reply}, Tokens: used}, agentgraph.Continue(), nil

# Streaming

Stream publishes events for the selected modes on a bounded queue:

	st := compiled.Stream(ctx, input, []agentgraph.StreamMode{
	    agentgraph.ModeValues, agentgraph.ModeCustom,
	})
	for ev := range st.All() {
	    // ...
	}
	result, err := st.Wait()

A slow consumer applies backpressure to the run. A consumer that stops early
calls Close and the run finishes without it. Runs that fail end with an
EventError; runs that suspend end with an EventInterrupt. Nodes publish their
own events through ctx.Writer().

# Checkpointing

Compile with a checkpoint store to persist state after every step:

	store, _ := checkpoint.NewSQLiteStore("./checkpoints.db")
	compiled, _ := graph.Compile(agentgraph.WithCheckpointer(store))

	result, err := compiled.Invoke(ctx, input, agentgraph.WithThreadID("thread-1"))

Invoking again with the same thread continues from the saved state merged
with the new input. History lists a thread's checkpoints, and
WithCheckpointID starts from any of them.

# Interrupts

WithInterruptBefore pauses runs before a node; a node can also pause the run
itself by returning Interrupt(payload). Either way the caller gets an
*InterruptError and resumes by invoking the thread again with a resolution,
or by calling Resume when no checkpointer is configured.

# Retry and Middleware

WithRetryPolicy re-runs failed node attempts from the same input state (see
the retry package). WithMiddleware wraps every node; the first middleware
registered is the outermost.

# Error Handling

Compile returns *GraphError. Runs return *NodeError, *PanicError,
*RouterError, *MergeError, *CheckpointError, *MaxStepsError or
*CancellationError; all support errors.Is and errors.As.
*/
package agentgraph
