package agentgraph

import (
	"errors"
	"fmt"
)

// InterruptError is returned when a run suspends before a node.
// It is a control-flow signal, not a failure: resume the run by invoking the
// same thread again with a resolution, or with CompiledGraph.Resume.
type InterruptError struct {
	// NodeID is the node the run suspended before.
	NodeID string

	// Payload is the value the node passed to Interrupt.
	// Nil for static interrupt points.
	Payload any

	// State is the state at suspension (type-assert to the graph's state type).
	State any

	// Step is the thread-wide step index the run suspended at.
	Step int

	// ThreadID is the run's thread, if checkpointing.
	ThreadID string

	// CheckpointID is the interrupt checkpoint, if checkpointing.
	CheckpointID string
}

// Error implements the error interface.
func (e *InterruptError) Error() string {
	if e.Payload == nil {
		return fmt.Sprintf("interrupted before node %s", e.NodeID)
	}
	return fmt.Sprintf("interrupted at node %s: %v", e.NodeID, e.Payload)
}

// NonRetryable keeps retry policies from re-running an interrupted node.
func (e *InterruptError) NonRetryable() bool {
	return true
}

// Interrupt suspends the run from inside a node. Return it as the node's
// error; the node's output is discarded and the node runs again, from the
// same input state merged with the resolution, when the run is resumed.
//
// Example:
//
//	if !s.Approved {
//	    return s, agentgraph.Continue(), agentgraph.Interrupt("approve deploy?")
//	}
func Interrupt(payload any) error {
	return &InterruptError{Payload: payload}
}

// IsInterrupt reports whether err is a suspension.
func IsInterrupt(err error) bool {
	var ie *InterruptError
	return errors.As(err, &ie)
}

// AsInterrupt extracts the InterruptError from err.
func AsInterrupt(err error) (*InterruptError, bool) {
	var ie *InterruptError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
