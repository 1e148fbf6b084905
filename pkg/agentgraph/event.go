package agentgraph

import (
	"time"

	"github.com/randalmurphal/agentgraph/pkg/agentgraph/checkpoint"
)

// StreamMode selects which event kinds a Stream publishes.
type StreamMode string

// Stream modes.
const (
	// ModeValues publishes the full state after every step.
	ModeValues StreamMode = "values"

	// ModeUpdates publishes the node ID and merged state after every step.
	ModeUpdates StreamMode = "updates"

	// ModeMessages publishes message fragments written by nodes.
	ModeMessages StreamMode = "messages"

	// ModeCustom publishes arbitrary payloads written by nodes.
	ModeCustom StreamMode = "custom"

	// ModeCheckpoints publishes a reference to every persisted checkpoint.
	ModeCheckpoints StreamMode = "checkpoints"

	// ModeTasks publishes task_start and task_end around every node.
	ModeTasks StreamMode = "tasks"
)

// EventKind identifies the payload of an Event.
type EventKind string

// Event kinds.
const (
	EventValues     EventKind = "values"
	EventUpdates    EventKind = "updates"
	EventMessages   EventKind = "messages"
	EventCustom     EventKind = "custom"
	EventCheckpoint EventKind = "checkpoint"
	EventTaskStart  EventKind = "task_start"
	EventTaskEnd    EventKind = "task_end"

	// EventInterrupt is published when the run suspends. It is always
	// delivered regardless of subscription and is the last event.
	EventInterrupt EventKind = "interrupt"

	// EventError is published when the run fails. It is always delivered
	// regardless of subscription and is the last event.
	EventError EventKind = "error"
)

// Event is one unit of observable progress from a streaming run.
type Event[S any] struct {
	Kind EventKind

	// NodeID is the node the event concerns. Empty for run-level errors.
	NodeID string

	// Step is the thread-wide step index the event belongs to.
	Step int

	// State is set for values and updates events.
	State S

	// Message is set for messages events.
	Message *MessageChunk

	// Custom is set for custom events.
	Custom any

	// Checkpoint is set for checkpoint events.
	Checkpoint *CheckpointInfo

	// Interrupt is set for interrupt events.
	Interrupt *InterruptError

	// Err is set for error events and failed task_end events.
	Err error

	Time time.Time
}

// MessageChunk is a fragment of model output written by a node.
type MessageChunk struct {
	Content  string
	Metadata map[string]any
}

// CheckpointInfo describes a checkpoint that has been persisted.
type CheckpointInfo struct {
	ID        string
	ThreadID  string
	Namespace string
	ParentID  string
	Step      int
	Source    checkpoint.Source
	NextNode  string
}

func checkpointInfo(cp *checkpoint.Checkpoint) *CheckpointInfo {
	return &CheckpointInfo{
		ID:        cp.ID,
		ThreadID:  cp.ThreadID,
		Namespace: cp.Namespace,
		ParentID:  cp.ParentID,
		Step:      cp.Step,
		Source:    cp.Source,
		NextNode:  cp.NextNode,
	}
}

// modeFor maps an event kind to the subscription that enables it.
// Terminal kinds return "" and are always delivered.
func modeFor(kind EventKind) StreamMode {
	switch kind {
	case EventValues:
		return ModeValues
	case EventUpdates:
		return ModeUpdates
	case EventMessages:
		return ModeMessages
	case EventCustom:
		return ModeCustom
	case EventCheckpoint:
		return ModeCheckpoints
	case EventTaskStart, EventTaskEnd:
		return ModeTasks
	default:
		return ""
	}
}
