package engine

import "time"

// Turn is the execution context of one external event. The instant is
// frozen when the turn opens; the queue is FIFO and drained to empty.
type Turn struct {
	seq   int64
	now   time.Time
	event Event

	queue []Action
	head  int

	enqueued  int
	executed  int
	discarded int
}

func newTurn(seq int64, now time.Time, ev Event) *Turn {
	return &Turn{seq: seq, now: now, event: ev}
}

// Seq returns the turn number (1-based).
func (t *Turn) Seq() int64 { return t.seq }

// Now returns the frozen instant.
func (t *Turn) Now() time.Time { return t.now }

// Event returns the event that opened the turn.
func (t *Turn) Event() Event { return t.event }

// Pending returns the number of queued actions.
func (t *Turn) Pending() int { return len(t.queue) - t.head }

func (t *Turn) enqueue(a Action) {
	t.queue = append(t.queue, a)
	t.enqueued++
}

// dequeue returns the next action, or nil when the queue is empty.
func (t *Turn) dequeue() Action {
	if t.head >= len(t.queue) {
		return nil
	}
	a := t.queue[t.head]
	t.queue[t.head] = nil // Allow GC
	t.head++
	if t.head == len(t.queue) {
		t.queue = t.queue[:0]
		t.head = 0
	}
	return a
}

// discard drops every pending action and returns how many were dropped.
func (t *Turn) discard() int {
	n := t.Pending()
	for i := t.head; i < len(t.queue); i++ {
		t.queue[i] = nil
	}
	t.queue = t.queue[:0]
	t.head = 0
	return n
}

// TurnStats summarizes a finished turn.
type TurnStats struct {
	Seq       int64
	Event     string
	Now       time.Time
	Enqueued  int
	Executed  int
	Discarded int
}
