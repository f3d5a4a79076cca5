package engine

import (
	"fmt"
	"log/slog"
)

// Scope determines when a handler fires relative to stack position.
// There is no default; every registration states one.
type Scope string

const (
	// ScopeActive handlers fire only while their owner is the current block.
	// Use for foreground behavior that must not react on behalf of a child.
	ScopeActive Scope = "active"
	// ScopeBubble handlers fire on every dispatch regardless of stack
	// position. Use for background observers such as timers.
	ScopeBubble Scope = "bubble"
)

// Validate rejects anything but ScopeActive and ScopeBubble.
func (s Scope) Validate() error {
	switch s {
	case ScopeActive, ScopeBubble:
		return nil
	default:
		return fmt.Errorf("%w %q: must be active or bubble", ErrInvalidScope, string(s))
	}
}

// Handler reacts to an event by returning actions. Handlers must not execute
// actions themselves.
type Handler func(ev Event, rt *Runtime) []Action

type registration struct {
	id      uint64
	name    string
	owner   string
	scope   Scope
	handler Handler
}

// EventBus is the scoped handler registry.
// Not safe for concurrent use; driven from the runtime goroutine.
type EventBus struct {
	regs   []*registration // Registration order; Dispatch follows it
	nextID uint64
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Register adds a handler for name (or Wildcard) owned by owner. The returned
// function unregisters it and is safe to call more than once.
func (b *EventBus) Register(name string, handler Handler, owner string, scope Scope) (func(), error) {
	if name == "" {
		return nil, fmt.Errorf("register: event name is required")
	}
	if owner == "" {
		return nil, fmt.Errorf("register %s: owner is required", name)
	}
	if handler == nil {
		return nil, fmt.Errorf("register %s for %s: handler is required", name, owner)
	}
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("register %s for %s: %w", name, owner, err)
	}

	b.nextID++
	reg := &registration{id: b.nextID, name: name, owner: owner, scope: scope, handler: handler}
	b.regs = append(b.regs, reg)
	return func() { b.remove(reg.id) }, nil
}

// Dispatch invokes every eligible handler in registration order and
// concatenates the actions they return. It performs no other side effects:
// the caller must feed the result into Runtime.Do.
func (b *EventBus) Dispatch(ev Event, rt *Runtime) []Action {
	current := ""
	if rt != nil {
		if top := rt.Stack().Current(); top != nil {
			current = string(top.Key())
		}
	}

	regs := make([]*registration, len(b.regs))
	copy(regs, b.regs)

	var actions []Action
	for _, reg := range regs {
		if reg.name != Wildcard && reg.name != ev.Name {
			continue
		}
		if reg.scope == ScopeActive && reg.owner != current {
			continue
		}
		actions = append(actions, invokeHandler(reg, ev, rt)...)
	}
	return actions
}

func invokeHandler(reg *registration, ev Event, rt *Runtime) (actions []Action) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				"event", ev.Name,
				"owner", reg.owner,
				"panic", r,
			)
			actions = nil
		}
	}()
	return reg.handler(ev, rt)
}

// UnregisterByOwner removes every handler owned by owner and returns how
// many were removed.
func (b *EventBus) UnregisterByOwner(owner string) int {
	kept := b.regs[:0]
	removed := 0
	for _, reg := range b.regs {
		if reg.owner == owner {
			removed++
			continue
		}
		kept = append(kept, reg)
	}
	for i := len(kept); i < len(b.regs); i++ {
		b.regs[i] = nil
	}
	b.regs = kept
	return removed
}

// Count returns the number of registered handlers.
func (b *EventBus) Count() int {
	return len(b.regs)
}

// CountFor returns the number of handlers owned by owner.
func (b *EventBus) CountFor(owner string) int {
	n := 0
	for _, reg := range b.regs {
		if reg.owner == owner {
			n++
		}
	}
	return n
}

func (b *EventBus) remove(id uint64) {
	for i, reg := range b.regs {
		if reg.id == id {
			b.regs = append(b.regs[:i], b.regs[i+1:]...)
			return
		}
	}
}
