package agentgraph

import "context"

// Writer publishes custom and message events from inside a node.
//
// Writes are no-ops unless the stream subscribed to the matching mode, and
// after the run has finished. A Writer may be used from goroutines the node
// starts.
type Writer interface {
	// Custom publishes an arbitrary payload (ModeCustom).
	Custom(payload any)

	// Message publishes a model output fragment (ModeMessages).
	Message(content string, metadata map[string]any)
}

type noopWriter struct{}

func (noopWriter) Custom(any) {}
func (noopWriter) Message(string, map[string]any) {}

// streamWriter publishes on behalf of one node attempt.
type streamWriter[S any] struct {
	ctx    context.Context
	stream *streamQueue[S]
	nodeID string
	step   int
}

func newWriter[S any](ctx context.Context, st *streamQueue[S], nodeID string, step int) Writer {
	if st == nil || (!st.modes[ModeCustom] && !st.modes[ModeMessages]) {
		return noopWriter{}
	}
	return &streamWriter[S]{ctx: ctx, stream: st, nodeID: nodeID, step: step}
}

func (w *streamWriter[S]) Custom(payload any) {
	w.stream.publish(w.ctx, Event[S]{
		Kind:   EventCustom,
		NodeID: w.nodeID,
		Step:   w.step,
		Custom: payload,
	})
}

func (w *streamWriter[S]) Message(content string, metadata map[string]any) {
	w.stream.publish(w.ctx, Event[S]{
		Kind:    EventMessages,
		NodeID:  w.nodeID,
		Step:    w.step,
		Message: &MessageChunk{Content: content, Metadata: metadata},
	})
}
