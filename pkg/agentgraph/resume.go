package agentgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randalmurphal/agentgraph/pkg/agentgraph/checkpoint"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/observability"
)

// Resume continues a suspended run from the node it stopped before.
// resolution is merged into the interrupt's state and the node then runs
// without its interrupt being checked again.
//
// Resume needs no checkpointer; the InterruptError carries the state. When a
// checkpointer is configured the resumed run keeps writing to the
// interrupted thread. To resume from persisted state instead, call Invoke
// again on the thread with the resolution as input.
//
// Example:
//
//	_, err := compiled.Invoke(ctx, State{Draft: "..."})
//	if intr, ok := agentgraph.AsInterrupt(err); ok {
//	    result, err = compiled.Resume(ctx, intr, State{Approved: true})
//	}
func (cg *CompiledGraph[S]) Resume(ctx context.Context, intr *InterruptError, resolution S, opts ...RunOption) (S, error) {
	if intr == nil {
		return resolution, fmt.Errorf("%w: interrupt is nil", ErrInvalidResumeNode)
	}

	state, ok := intr.State.(S)
	if !ok {
		return resolution, fmt.Errorf("%w: %T", ErrResumeStateType, intr.State)
	}

	if !cg.HasNode(intr.NodeID) {
		return state, fmt.Errorf("%w: %s", ErrInvalidResumeNode, intr.NodeID)
	}

	cfg := cg.newRunConfig(opts)
	if cfg.config.ThreadID == "" {
		cfg.config.ThreadID = intr.ThreadID
	}

	return cg.run(ctx, resolution, nil, &startPoint[S]{
		node:     intr.NodeID,
		state:    state,
		step:     intr.Step,
		parentID: intr.CheckpointID,
	}, &cfg)
}

// State returns the thread's latest checkpointed state, or the state at
// rc.CheckpointID when set. It returns checkpoint.ErrNotFound for an unknown
// thread.
func (cg *CompiledGraph[S]) State(ctx context.Context, rc RunConfig) (S, *checkpoint.Checkpoint, error) {
	var zero S
	if cg.checkpointer == nil {
		return zero, nil, errors.New("graph has no checkpointer")
	}
	if rc.ThreadID == "" {
		return zero, nil, ErrThreadRequired
	}

	var (
		cp  *checkpoint.Checkpoint
		err error
	)
	if rc.CheckpointID != "" {
		cp, err = cg.checkpointer.Get(ctx, rc.ThreadID, rc.Namespace, rc.CheckpointID)
	} else {
		cp, err = cg.checkpointer.Latest(ctx, rc.ThreadID, rc.Namespace)
	}
	if err != nil {
		return zero, nil, err
	}

	state, err := decodeState[S](cp)
	if err != nil {
		return zero, cp, err
	}
	return state, cp, nil
}

// History returns every checkpoint of the thread, oldest first. Pass an ID
// from it to WithCheckpointID to re-run from that point.
func (cg *CompiledGraph[S]) History(ctx context.Context, rc RunConfig) ([]*checkpoint.Checkpoint, error) {
	if cg.checkpointer == nil {
		return nil, errors.New("graph has no checkpointer")
	}
	if rc.ThreadID == "" {
		return nil, ErrThreadRequired
	}
	return cg.checkpointer.List(ctx, rc.ThreadID, rc.Namespace)
}

// prepare merges the caller's input with any saved state and picks the first
// node. skip is true when that node's interrupt has just been resolved.
func (r *runner[S]) prepare(input S, from *startPoint[S]) (state S, node string, skip bool, err error) {
	merger := r.cg.inputMerger

	if from != nil {
		r.step = from.step
		r.parentID = from.parentID
		state, err = merger.Merge(from.node, from.state, input)
		if err != nil {
			return from.state, "", false, asMergeError(from.node, err)
		}
		if r.cg.checkpointer != nil {
			if err := r.persist(state, checkpoint.SourceUpdate, "", from.node, nil); err != nil {
				return state, "", false, err
			}
		}
		return state, from.node, true, nil
	}

	if r.cg.checkpointer == nil {
		node, err = r.follow(START, input)
		return input, node, false, err
	}

	cp, err := r.load()
	if err != nil {
		return input, "", false, err
	}

	source := checkpoint.SourceInput
	if cp == nil {
		state = input
	} else {
		saved, err := decodeState[S](cp)
		if err != nil {
			return input, "", false, err
		}
		state, err = merger.Merge(START, saved, input)
		if err != nil {
			return saved, "", false, asMergeError(START, err)
		}
		r.step = cp.Step
		r.parentID = cp.ID

		switch {
		case cp.Pending != nil:
			node, skip = cp.Pending.NodeID, true
			source = checkpoint.SourceUpdate
		case cp.NextNode != "" && cp.NextNode != END:
			node = cp.NextNode
		}
		if node != "" && !r.cg.HasNode(node) {
			return state, "", false, &CheckpointError{Op: "load", Err: fmt.Errorf("%w: %s", ErrInvalidResumeNode, node)}
		}
	}

	if node == "" {
		if node, err = r.follow(START, state); err != nil {
			return state, "", false, err
		}
	}
	if node == END {
		return state, END, false, nil
	}

	if err := r.persist(state, source, "", node, nil); err != nil {
		return state, "", false, err
	}
	return state, node, skip, nil
}

// load reads the checkpoint the run starts from. A thread without
// checkpoints returns nil.
func (r *runner[S]) load() (*checkpoint.Checkpoint, error) {
	rc := r.cfg.config

	if rc.CheckpointID != "" {
		cp, err := r.cg.checkpointer.Get(r.ctx, rc.ThreadID, rc.Namespace, rc.CheckpointID)
		if err != nil {
			return nil, &CheckpointError{Op: "load", Err: err}
		}
		return cp, nil
	}

	cp, err := r.cg.checkpointer.Latest(r.ctx, rc.ThreadID, rc.Namespace)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &CheckpointError{Op: "load", Err: err}
	}
	return cp, nil
}

func decodeState[S any](cp *checkpoint.Checkpoint) (S, error) {
	var state S
	if cp.Version != checkpoint.Version {
		return state, &CheckpointError{
			NodeID: cp.NodeID,
			Op:     "load",
			Err:    fmt.Errorf("%w: got %d, want %d", ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version),
		}
	}
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return state, &CheckpointError{
			NodeID: cp.NodeID,
			Op:     "deserialize",
			Err:    fmt.Errorf("%w: %v", ErrDeserializeState, err),
		}
	}
	return state, nil
}

// persist writes a checkpoint after the current step and, once it is stored,
// publishes a checkpoint event. producedBy is empty for checkpoints that no
// node produced.
func (r *runner[S]) persist(state S, source checkpoint.Source, producedBy, next string, pending *checkpoint.Pending) error {
	data, err := json.Marshal(state)
	if err != nil {
		return &CheckpointError{
			NodeID: producedBy,
			Op:     "serialize",
			Err:    fmt.Errorf("%w: %v", ErrSerializeState, err),
		}
	}

	rc := r.cfg.config
	cp := checkpoint.New(rc.ThreadID, rc.Namespace, r.step, data).
		WithParent(r.parentID).
		WithSource(source).
		WithNodes(producedBy, next)
	if pending != nil {
		cp = cp.WithPending(pending.NodeID, pending.Payload)
	}

	if err := r.cg.checkpointer.Put(r.ctx, cp); err != nil {
		return &CheckpointError{NodeID: producedBy, Op: "save", Err: err}
	}
	r.parentID = cp.ID

	observability.LogCheckpoint(r.logger, producedBy, cp.ID, len(data))
	r.cfg.metrics.RecordCheckpoint(r.ctx, producedBy, int64(len(data)))

	r.stream.publish(r.ctx, Event[S]{
		Kind:       EventCheckpoint,
		NodeID:     producedBy,
		Step:       r.step,
		Checkpoint: checkpointInfo(cp),
	})
	return nil
}

// suspend stops the run before nodeID and reports the interrupt.
func (r *runner[S]) suspend(nodeID string, payload any, state S) (S, error) {
	intr := &InterruptError{
		NodeID:   nodeID,
		Payload:  payload,
		State:    state,
		Step:     r.step,
		ThreadID: r.cfg.config.ThreadID,
	}

	if r.cg.checkpointer != nil {
		var raw []byte
		if payload != nil {
			var err error
			if raw, err = json.Marshal(payload); err != nil {
				return state, &CheckpointError{NodeID: nodeID, Op: "serialize", Err: err}
			}
		}
		if err := r.persist(state, checkpoint.SourceInterrupt, "", nodeID, &checkpoint.Pending{NodeID: nodeID, Payload: raw}); err != nil {
			return state, err
		}
		intr.CheckpointID = r.parentID
	}

	observability.LogInterrupt(r.logger, nodeID, r.cfg.config.ThreadID)
	r.cfg.metrics.RecordInterrupt(r.ctx, nodeID)

	r.stream.publish(r.ctx, Event[S]{
		Kind:      EventInterrupt,
		NodeID:    nodeID,
		Step:      r.step,
		State:     state,
		Interrupt: intr,
	})
	return state, intr
}
