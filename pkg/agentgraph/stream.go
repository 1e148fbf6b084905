package agentgraph

import (
	"context"
	"iter"
	"runtime"
	"sync"
	"time"
)

// Stream is a live view of a run started with CompiledGraph.Stream.
//
// Events arrive in order on a bounded queue. A slow consumer slows the run
// down. A consumer that calls Close stops receiving and the run continues to
// completion without it. The run ends with an interrupt or error event when
// it suspends or fails.
//
// A consumer that stops reading without calling Close is detected when the
// Stream itself becomes unreachable: from then on the run no longer waits
// for queue space, and events that don't fit are discarded. Keep the Stream
// referenced (for example by calling Wait) while reading from Events.
type Stream[S any] struct {
	q *streamQueue[S]
}

// newStream wraps q in a caller-facing handle that abandons the queue when
// the handle is garbage collected.
func newStream[S any](q *streamQueue[S]) *Stream[S] {
	st := &Stream[S]{q: q}
	runtime.AddCleanup(st, (*streamQueue[S]).abandon, q)
	return st
}

// Events returns the event channel. It is closed when the run finishes.
func (s *Stream[S]) Events() <-chan Event[S] {
	return s.q.events
}

// All returns an iterator over the events. Breaking out of the loop
// disconnects the consumer as if Close had been called.
func (s *Stream[S]) All() iter.Seq[Event[S]] {
	return func(yield func(Event[S]) bool) {
		for ev := range s.q.events {
			if !yield(ev) {
				s.Close()
				return
			}
		}
	}
}

// Close disconnects the consumer. Later events are discarded and the run
// is not cancelled. Safe to call more than once.
func (s *Stream[S]) Close() {
	s.q.disconnect()
}

// Wait blocks until the run finishes and returns its final state and error.
// Unread events are discarded, so call it after consuming what you need.
func (s *Stream[S]) Wait() (S, error) {
	s.Close()
	<-s.q.finished
	return s.q.result, s.q.err
}

// Done is closed when the run has finished.
func (s *Stream[S]) Done() <-chan struct{} {
	return s.q.finished
}

// streamQueue is the producer side of a Stream. The run only holds the
// queue, never the Stream, so an abandoned Stream can be collected.
type streamQueue[S any] struct {
	events chan Event[S]
	modes  map[StreamMode]bool

	// mu guards sending on events against closing it.
	mu     sync.RWMutex
	closed bool

	done      chan struct{}
	closeOnce sync.Once

	abandoned   chan struct{}
	abandonOnce sync.Once

	finished chan struct{}
	result   S
	err      error
}

func newStreamQueue[S any](buffer int, modes []StreamMode) *streamQueue[S] {
	set := make(map[StreamMode]bool, len(modes))
	for _, m := range modes {
		set[m] = true
	}
	return &streamQueue[S]{
		events:    make(chan Event[S], buffer),
		modes:     set,
		done:      make(chan struct{}),
		abandoned: make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

func (q *streamQueue[S]) disconnect() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

// abandon stops publishes from blocking. Events still go out while the
// queue has room.
func (q *streamQueue[S]) abandon() {
	q.abandonOnce.Do(func() {
		close(q.abandoned)
	})
}

// subscribed reports whether events of kind are delivered.
func (q *streamQueue[S]) subscribed(kind EventKind) bool {
	if q == nil {
		return false
	}
	mode := modeFor(kind)
	return mode == "" || q.modes[mode]
}

// publish delivers ev if its kind is subscribed. It blocks while the queue
// is full and gives up when the consumer disconnects or is abandoned, or ctx
// is cancelled.
func (q *streamQueue[S]) publish(ctx context.Context, ev Event[S]) {
	if !q.subscribed(ev.Kind) {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return
	}

	select {
	case <-q.done:
		return
	default:
	}

	select {
	case q.events <- ev:
		return
	default:
	}

	select {
	case q.events <- ev:
	case <-q.done:
	case <-q.abandoned:
	case <-ctx.Done():
	}
}

// finish records the outcome and closes the event channel.
func (q *streamQueue[S]) finish(result S, err error) {
	q.mu.Lock()
	q.closed = true
	close(q.events)
	q.mu.Unlock()

	q.result = result
	q.err = err
	close(q.finished)
}
