package agentgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Test state types used across tests

// Counter is a simple state for testing incrementing.
type Counter struct {
	Value int
}

// State is a more complex state for testing various scenarios.
type State struct {
	Step      int
	Progress  []string
	Initial   string
	Output    string
	Done      bool
	GoLeft    bool
	Approved  bool
	Completed []string
	Count     int
}

// Helper node functions

// increment is a node that increments the counter.
func increment(ctx Context, s Counter) (Counter, Next, error) {
	s.Value++
	return s, Continue(), nil
}

// passthrough returns the state unchanged.
func passthrough[S any](ctx Context, s S) (S, Next, error) {
	return s, Continue(), nil
}

// makeTrackingNode creates a node that records its execution.
func makeTrackingNode(name string, tracker *[]string) NodeFunc[State] {
	return func(ctx Context, s State) (State, Next, error) {
		*tracker = append(*tracker, name)
		s.Progress = append(s.Progress, name)
		return s, Continue(), nil
	}
}

// makeFailingNode creates a node that returns the given error.
func makeFailingNode(err error) NodeFunc[State] {
	return func(ctx Context, s State) (State, Next, error) {
		return s, Continue(), err
	}
}

// makePanicNode creates a node that panics with the given value.
func makePanicNode(value any) NodeFunc[State] {
	return func(ctx Context, s State) (State, Next, error) {
		panic(value)
	}
}

// linearCounter builds inc1 -> inc2 -> ... -> incN -> END.
func linearCounter(n int) *Graph[Counter] {
	g := NewGraph[Counter]()
	ids := make([]string, n)
	for i := range n {
		ids[i] = "inc" + string(rune('1'+i))
		g.AddNodeFunc(ids[i], increment)
	}
	for i := range n - 1 {
		g.AddEdge(ids[i], ids[i+1])
	}
	return g.AddEdge(ids[n-1], END).SetEntry(ids[0])
}

// testCtx creates a simple test context.
func testCtx() Context {
	return NewContext(context.Background())
}

// collect drains a stream and returns its events and outcome.
func collect[S any](st *Stream[S]) ([]Event[S], S, error) {
	var events []Event[S]
	for ev := range st.Events() {
		events = append(events, ev)
	}
	result, err := st.Wait()
	return events, result, err
}

// kinds lists event kinds in order.
func kinds[S any](events []Event[S]) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

// testLogHandler captures log records for testing.
type testLogHandler struct {
	mu    *sync.Mutex
	buf   *bytes.Buffer
	attrs []slog.Attr
}

func newTestLogHandler() *testLogHandler {
	return &testLogHandler{mu: &sync.Mutex{}, buf: &bytes.Buffer{}}
}

func (h *testLogHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, a := range h.attrs {
		data[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &testLogHandler{mu: h.mu, buf: h.buf, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *testLogHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *testLogHandler) records() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []map[string]any
	for _, line := range bytes.Split(h.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// messages returns the records whose msg equals msg.
func (h *testLogHandler) messages(msg string) []map[string]any {
	var out []map[string]any
	for _, r := range h.records() {
		if r["msg"] == msg {
			out = append(out, r)
		}
	}
	return out
}
