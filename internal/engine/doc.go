// Package engine implements the wodrun execution core: a stack of composed
// blocks driven by a turn-based action queue.
//
// ARCHITECTURE:
//
// Single-Threaded Turns:
// Every external stimulus (start, next, tick) enters through Runtime.Handle.
// Handle opens a Turn, freezes the clock for its duration, dispatches the
// event on the EventBus, seeds the Turn's FIFO queue with the returned
// actions and drains it. Actions may push/pop blocks, write memory or emit
// further events; anything they produce is appended to the same queue.
// A turn always runs to completion before Handle returns.
//
// Event Processing Flow:
//  1. Host calls Runtime.Handle(event)
//  2. EventBus.Dispatch collects actions from eligible handlers (no execution)
//  3. Actions enqueued to the turn queue via Runtime.Do
//  4. Driver dequeues and runs actions one at a time until the queue is empty
//
// INVARIANTS:
//
// Single Action Path:
// Runtime.Do is the only way to execute an action. Anything that calls
// EventBus.Dispatch directly must pass every returned action to Do;
// Runtime.Emit does both.
//
// Canonical Teardown:
// Stack.PopWithLifecycle is the only way to remove a block:
// unmount → remove → dispose → release memory → unregister handlers →
// parent.Next.
//
// Explicit Scope:
// Every handler registration states its scope. ScopeActive handlers fire
// only while their owner is the top of the stack; ScopeBubble handlers fire
// regardless of stack position.
//
// Determinism:
// Behaviors run in declaration order, handlers in registration order,
// actions in FIFO order. There is no internal timer; hosts inject ticks.
package engine
