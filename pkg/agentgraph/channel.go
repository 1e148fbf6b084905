package agentgraph

import (
	"fmt"
	"maps"
	"slices"
)

// Channel is a merge strategy for one state field.
//
// After every step the engine calls Merge for each bound field with the
// field's current value and the node's write. written is false when the node
// left the field at its zero value (or, for map states, omitted the key).
// Bind a channel with Graph.AddChannel.
type Channel[V any] interface {
	Merge(nodeID string, current, write V, written bool) (V, error)
}

// ChannelFunc adapts a function to the Channel interface.
type ChannelFunc[V any] func(nodeID string, current, write V, written bool) (V, error)

// Merge implements Channel.
func (f ChannelFunc[V]) Merge(nodeID string, current, write V, written bool) (V, error) {
	return f(nodeID, current, write, written)
}

type lastValue[V any] struct{}

// LastValue replaces the field with the latest write.
// Unbound fields behave as if bound to LastValue.
func LastValue[V any]() Channel[V] {
	return lastValue[V]{}
}

func (lastValue[V]) Merge(_ string, current, write V, written bool) (V, error) {
	if written {
		return write, nil
	}
	return current, nil
}

type ephemeral[V any] struct{}

// Ephemeral keeps a write visible for exactly the next step. The field resets
// to its zero value after any step that doesn't write it again.
func Ephemeral[V any]() Channel[V] {
	return ephemeral[V]{}
}

func (ephemeral[V]) Merge(_ string, _, write V, written bool) (V, error) {
	if written {
		return write, nil
	}
	var zero V
	return zero, nil
}

type appendChannel[V any] struct{}

// Append concatenates each write onto a list field.
func Append[V any]() Channel[[]V] {
	return appendChannel[V]{}
}

func (appendChannel[V]) Merge(_ string, current, write []V, written bool) ([]V, error) {
	if !written {
		return current, nil
	}
	out := make([]V, 0, len(current)+len(write))
	out = append(out, current...)
	return append(out, write...), nil
}

type fold[V any] struct {
	op func(old, write V) V
}

// Fold combines each write into the field with op(old, write).
// op should be associative, e.g. a sum or a max.
func Fold[V any](op func(old, write V) V) Channel[V] {
	if op == nil {
		panic("agentgraph: fold operator cannot be nil")
	}
	return fold[V]{op: op}
}

func (f fold[V]) Merge(_ string, current, write V, written bool) (V, error) {
	if !written {
		return current, nil
	}
	return f.op(current, write), nil
}

// Barrier is the state field type for NamedBarrier channels.
//
// Nodes write contributions into Pending, keyed by slot name. An empty slot
// name means the writing node's ID. When every named slot has contributed,
// the round is moved into Released, Pending is cleared and Round increments.
type Barrier[V any] struct {
	Pending  map[string]V `json:"pending,omitempty"`
	Released map[string]V `json:"released,omitempty"`
	Round    int          `json:"round,omitempty"`
}

// Contribute returns a barrier write for the writing node's own slot.
func Contribute[V any](v V) Barrier[V] {
	return Barrier[V]{Pending: map[string]V{"": v}}
}

// ContributeAs returns a barrier write for the named slot.
func ContributeAs[V any](slot string, v V) Barrier[V] {
	return Barrier[V]{Pending: map[string]V{slot: v}}
}

// Ready reports whether a released round is available.
func (b Barrier[V]) Ready() bool {
	return len(b.Released) > 0
}

type namedBarrier[V any] struct {
	names []string
}

// NamedBarrier waits for a contribution from every named slot before
// releasing them together.
func NamedBarrier[V any](names ...string) Channel[Barrier[V]] {
	if len(names) == 0 {
		panic("agentgraph: named barrier needs at least one name")
	}
	return namedBarrier[V]{names: slices.Clone(names)}
}

func (c namedBarrier[V]) Merge(nodeID string, current, write Barrier[V], written bool) (Barrier[V], error) {
	if !written || len(write.Pending) == 0 {
		return current, nil
	}

	out := Barrier[V]{
		Pending:  maps.Clone(current.Pending),
		Released: current.Released,
		Round:    current.Round,
	}
	if out.Pending == nil {
		out.Pending = make(map[string]V, len(c.names))
	}

	for slot, v := range write.Pending {
		if slot == "" {
			slot = nodeID
		}
		if !slices.Contains(c.names, slot) {
			return current, fmt.Errorf("barrier has no slot %q (expects %v)", slot, c.names)
		}
		out.Pending[slot] = v
	}

	for _, name := range c.names {
		if _, ok := out.Pending[name]; !ok {
			return out, nil
		}
	}

	out.Released = out.Pending
	out.Pending = nil
	out.Round++
	return out, nil
}
