package engine

import (
	"time"

	"github.com/roach88/wodrun/internal/ir"
)

// Well-known event names.
const (
	// EventStart compiles and pushes the root block.
	EventStart = "start"
	// EventNext advances the current block.
	EventNext = "next"
	// EventTick is the host's periodic time signal.
	EventTick = "tick"
	// EventTimerComplete is emitted when a countdown timer expires.
	EventTimerComplete = "timer:complete"
	// EventComplete is emitted when the last block leaves the stack.
	EventComplete = "complete"
	// Wildcard matches every event name on registration.
	Wildcard = "*"
)

// Event is an immutable in-process stimulus.
type Event struct {
	Name      string
	Timestamp time.Time
	Payload   ir.Object
}

// NewEvent creates an event with an optional payload. A zero timestamp is
// replaced with the turn instant when handled.
func NewEvent(name string, payload ir.Object) Event {
	return Event{Name: name, Payload: payload}
}

// Get returns a payload field.
func (e Event) Get(key string) (ir.Value, bool) {
	if e.Payload == nil {
		return nil, false
	}
	v, ok := e.Payload[key]
	return v, ok
}
