package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Source records why a checkpoint was written.
type Source string

// Checkpoint sources.
const (
	// SourceInput is written when a run starts from caller input.
	SourceInput Source = "input"

	// SourceLoop is written after a node completes inside the run loop.
	SourceLoop Source = "loop"

	// SourceUpdate is written when state is changed out of band, such as
	// merging a resume value into a suspended thread.
	SourceUpdate Source = "update"

	// SourceInterrupt is written when a run suspends at an interrupt.
	SourceInterrupt Source = "interrupt"
)

// Pending describes an interrupt that has not been resolved yet.
type Pending struct {
	// NodeID is the node the run suspended before.
	NodeID string `json:"node_id"`

	// Payload is the JSON-encoded value the node attached to the interrupt.
	// Empty for static interrupt points.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Checkpoint is the persisted snapshot of execution state.
// It contains all information needed to resume execution.
type Checkpoint struct {
	// Metadata
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Namespace string    `json:"namespace,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	Source    Source    `json:"source"`
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`

	// Execution state
	State    json.RawMessage `json:"state"`
	NodeID   string          `json:"node_id,omitempty"`
	NextNode string          `json:"next_node,omitempty"`

	// Pending is set when the run suspended at an interrupt.
	Pending *Pending `json:"pending,omitempty"`
}

// New creates a checkpoint with a fresh ID and the current time.
// State must already be JSON-serialized.
func New(threadID, namespace string, step int, state []byte) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Namespace: namespace,
		Source:    SourceLoop,
		Step:      step,
		Timestamp: time.Now().UTC(),
		State:     state,
	}
}

// WithParent sets the ID of the checkpoint this one follows.
func (c *Checkpoint) WithParent(parentID string) *Checkpoint {
	c.ParentID = parentID
	return c
}

// WithSource sets why the checkpoint was written.
func (c *Checkpoint) WithSource(source Source) *Checkpoint {
	c.Source = source
	return c
}

// WithNodes sets the node that produced the checkpoint and the node that runs next.
func (c *Checkpoint) WithNodes(nodeID, nextNode string) *Checkpoint {
	c.NodeID = nodeID
	c.NextNode = nextNode
	return c
}

// WithPending marks the checkpoint as suspended before nodeID.
func (c *Checkpoint) WithPending(nodeID string, payload []byte) *Checkpoint {
	c.Pending = &Pending{NodeID: nodeID, Payload: payload}
	return c
}

// Clone returns a deep copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	cp.State = cloneBytes(c.State)
	if c.Pending != nil {
		p := *c.Pending
		p.Payload = cloneBytes(c.Pending.Payload)
		cp.Pending = &p
	}
	return &cp
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
