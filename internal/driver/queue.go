package driver

import (
	"sync"

	"github.com/roach88/bepsel/internal/bep"
)

// eventQueue is an unbounded FIFO of build events, safe for concurrent
// Enqueue while the Run loop dequeues.
//
// A buffered signal channel of size 1 lets Run wait on new events and on
// ctx.Done in the same select.
type eventQueue struct {
	mu     sync.Mutex
	events []bep.Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]bep.Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends ev. Returns false once the queue is closed.
func (q *eventQueue) Enqueue(ev bep.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, ev)

	// Coalesce signals; one pending wake-up is enough.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front event without blocking.
func (q *eventQueue) TryDequeue() (bep.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return bep.Event{}, false
	}
	ev := q.events[0]
	// Drop the reference so the backing array does not pin event payloads.
	q.events[0] = bep.Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return ev, true
}

// Wait returns a channel that fires when events may be available. It is
// closed, and so fires forever, once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further Enqueue calls and wakes waiters. Idempotent.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
