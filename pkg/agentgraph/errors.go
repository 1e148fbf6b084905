package agentgraph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrDuplicateNode indicates two nodes were registered under the same ID.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrNodeNotFound indicates an edge or option references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoEntryPoint indicates no edge leaves START on a non-empty graph.
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrMultipleEntries indicates more than one edge leaves START.
	ErrMultipleEntries = errors.New("multiple entry points")

	// ErrFanOut indicates a node has more than one static outgoing edge.
	ErrFanOut = errors.New("multiple static edges from node")

	// ErrAmbiguousEdge indicates a node mixes static and conditional edges,
	// or has more than one conditional edge.
	ErrAmbiguousEdge = errors.New("ambiguous outgoing edges")

	// ErrInvalidChannel indicates a channel binding does not match the state type.
	ErrInvalidChannel = errors.New("invalid channel binding")

	// ErrInvalidOption indicates a compile option does not apply to this graph.
	ErrInvalidOption = errors.New("invalid compile option")
)

// Sentinel errors for execution.
var (
	// ErrNilContext indicates Invoke or Stream was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrMaxSteps indicates the run exceeded the configured step ceiling.
	ErrMaxSteps = errors.New("exceeded maximum steps")

	// ErrInvalidRouterResult indicates a router function returned an empty string.
	ErrInvalidRouterResult = errors.New("router returned empty string")

	// ErrRouterTargetNotFound indicates a router or GoTo named an unknown node.
	ErrRouterTargetNotFound = errors.New("route target not found")

	// ErrUndeclaredRoute indicates a router returned a target outside its
	// declared target list.
	ErrUndeclaredRoute = errors.New("router returned undeclared target")

	// ErrResumeStateType indicates an InterruptError's state is not of the
	// graph's state type.
	ErrResumeStateType = errors.New("interrupt state has wrong type")
)

// Sentinel errors for checkpointing.
var (
	// ErrThreadRequired indicates checkpointing is configured but the run
	// has no thread ID.
	ErrThreadRequired = errors.New("thread ID required for checkpointing")

	// ErrSerializeState indicates state serialization failed.
	ErrSerializeState = errors.New("failed to serialize state")

	// ErrDeserializeState indicates state deserialization failed.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrCheckpointVersionMismatch indicates the checkpoint version is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")

	// ErrInvalidResumeNode indicates a checkpoint points at a node the graph
	// doesn't have.
	ErrInvalidResumeNode = errors.New("invalid resume node")
)

// GraphError is returned by Compile for an invalid graph.
// Kind is one of the compile sentinels and is matched by errors.Is.
type GraphError struct {
	// Kind is the sentinel describing the violation.
	Kind error
	// NodeID is the node involved, if any.
	NodeID string
	// Detail adds context such as the offending edge.
	Detail string
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	var b strings.Builder
	b.WriteString("compile graph: ")
	b.WriteString(e.Kind.Error())
	if e.NodeID != "" {
		fmt.Fprintf(&b, " (node %s)", e.NodeID)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Unwrap returns Kind for errors.Is support.
func (e *GraphError) Unwrap() error {
	return e.Kind
}

// CheckpointError wraps errors from checkpoint operations.
type CheckpointError struct {
	// NodeID is the node where checkpointing failed.
	NodeID string
	// Op is the operation that failed ("save", "load", "serialize", "deserialize").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("checkpoint %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("checkpoint %s at node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error with node context.
// It provides information about which node failed and what operation was attempted.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed (e.g., "execute").
	Op string
	// Attempts is how many times the node ran before giving up.
	Attempts int
	// Err is the error from the last attempt.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("node %s: %s (after %d attempts): %v", e.NodeID, e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from node execution.
// It includes the stack trace for debugging.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// NonRetryable reports that panics are never retried.
func (e *PanicError) NonRetryable() bool {
	return true
}

// CancellationError captures the state when execution was cancelled.
// It preserves the state at the point of cancellation for recovery.
type CancellationError struct {
	// NodeID is the node that was about to execute or was executing.
	NodeID string
	// State is the state at cancellation (can type-assert to the actual type).
	State any
	// Cause is the underlying cancellation cause (context.Canceled or context.DeadlineExceeded).
	Cause error
	// WasExecuting is true if cancellation occurred during node execution.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// RouterError wraps errors from routing: conditional edges and GoTo targets.
type RouterError struct {
	// FromNode is the node being routed from.
	FromNode string
	// Returned is the target the router or directive named.
	Returned string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RouterError) Error() string {
	return fmt.Sprintf("route from %s to %q: %v", e.FromNode, e.Returned, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RouterError) Unwrap() error {
	return e.Err
}

// MaxStepsError provides context when the step ceiling is exceeded.
// It includes the state at termination for inspection.
type MaxStepsError struct {
	// Max is the configured step limit.
	Max int
	// LastNodeID is the node that would have executed next.
	LastNodeID string
	// State is the state at termination (can type-assert to the actual type).
	State any
}

// Error implements the error interface.
func (e *MaxStepsError) Error() string {
	return fmt.Sprintf("exceeded maximum steps (%d) at node %s", e.Max, e.LastNodeID)
}

// Unwrap returns ErrMaxSteps for errors.Is support.
func (e *MaxStepsError) Unwrap() error {
	return ErrMaxSteps
}

// MergeError reports a node output that could not be merged into state.
type MergeError struct {
	// NodeID is the node whose output was being merged.
	NodeID string
	// Field is the state field or key, empty for whole-state mergers.
	Field string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *MergeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("merge output of node %s: %v", e.NodeID, e.Err)
	}
	return fmt.Sprintf("merge field %s from node %s: %v", e.Field, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *MergeError) Unwrap() error {
	return e.Err
}
