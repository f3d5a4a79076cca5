package host

import (
	"sync"

	"github.com/roach88/wodrun/internal/engine"
)

// eventQueue is the FIFO between event sources (keyboard, ticker, replay
// files) and the Driver's Run loop. A tick arriving while the newest queued
// event is already a tick is dropped: every turn reads the clock, so a
// backlog of ticks carries no more information than one.
type eventQueue struct {
	mu        sync.Mutex
	events    []engine.Event
	closed    bool
	coalesced int
	signal    chan struct{} // Buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]engine.Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event. Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e engine.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if e.Name == engine.EventTick && len(q.events) > 0 && q.events[len(q.events)-1].Name == engine.EventTick {
		q.coalesced++
		return true
	}
	q.events = append(q.events, e)
	q.notify()
	return true
}

// notify wakes Run without blocking; the buffer of one merges wakeups.
func (q *eventQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (engine.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return engine.Event{}, false
	}
	e := q.events[0]
	rest := copy(q.events, q.events[1:])
	q.events[rest] = engine.Event{}
	q.events = q.events[:rest]
	return e, true
}

// Coalesced returns how many ticks were merged into an already queued tick.
func (q *eventQueue) Coalesced() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.coalesced
}

// Wait returns a channel that signals when events may be available. It is
// closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops accepting events and wakes waiters.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close was called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
