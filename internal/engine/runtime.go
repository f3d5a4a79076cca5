package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/wodrun/internal/ids"
	"github.com/roach88/wodrun/internal/ir"
	"github.com/roach88/wodrun/internal/memory"
	"github.com/roach88/wodrun/internal/tracker"
)

// RuntimeOwner owns the runtime's built-in handlers.
const RuntimeOwner = "runtime"

// Recipe builds fresh blocks for one statement group. Compilers return
// recipes so callers can cache strategy selection without reusing blocks.
type Recipe interface {
	Build(rt *Runtime) *Block
}

// Compiler turns statements into blocks. Implementations never return nil:
// failures produce error blocks.
type Compiler interface {
	// Root builds the synthetic block that runs the script's top-level
	// statements in order.
	Root(rt *Runtime) *Block

	// Compile builds the block for one child group.
	Compile(rt *Runtime, group []*ir.Statement) *Block

	// Prepare selects how a group will be built without building it.
	Prepare(group []*ir.Statement) Recipe
}

// Runtime owns one execution of a script: memory, bus, stack, tracker and
// the turn driver. Handle is its single entry point.
//
// Not safe for concurrent use. Hosts serialize calls to Handle
// (see host.Driver).
type Runtime struct {
	script   *ir.Script
	compiler Compiler
	clock    Clock
	keys     ids.Generator
	maxDepth int
	hooks    []LifecycleHook

	memory  *memory.Store
	bus     *EventBus
	stack   *Stack
	tracker *tracker.Tracker

	turns *Sequence
	turn  *Turn
	last  TurnStats

	errors  []RuntimeError
	started bool
	done    bool
}

// New creates a runtime for script using compiler. A nil script is treated
// as empty.
func New(script *ir.Script, compiler Compiler, opts ...Option) *Runtime {
	if script == nil {
		script = ir.MustScript()
	}
	rt := &Runtime{
		script:   script,
		compiler: compiler,
		clock:    SystemClock{},
		keys:     ids.UUIDv7Generator{},
		maxDepth: DefaultMaxDepth,
		memory:   memory.NewStore(),
		bus:      NewEventBus(),
		turns:    NewSequenceAt(0),
	}

	for _, opt := range opts {
		opt(rt)
	}
	if rt.tracker == nil {
		rt.tracker = tracker.New(nil)
	}
	rt.stack = NewStack(rt.maxDepth)

	rt.mustRegister(EventStart, rt.onStart)
	rt.mustRegister(EventNext, rt.onNext)
	return rt
}

func (rt *Runtime) mustRegister(name string, h Handler) {
	if _, err := rt.bus.Register(name, h, RuntimeOwner, ScopeBubble); err != nil {
		panic(fmt.Sprintf("register built-in %s handler: %v", name, err))
	}
}

// Handle processes one external event as a complete turn: the clock is
// frozen, the event is dispatched, and the resulting actions (plus anything
// they enqueue) run in FIFO order until the queue is empty.
//
// Action failures are logged and recorded in Errors; the turn continues. A
// depth-guard violation aborts the turn and is returned.
func (rt *Runtime) Handle(ev Event) error {
	if rt.turn != nil {
		return fmt.Errorf("handle %s: %w", ev.Name, ErrTurnInProgress)
	}

	now := rt.clock.Now()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	turn := newTurn(rt.turns.Next(), now, ev)
	rt.turn = turn
	defer func() {
		rt.last = TurnStats{
			Seq:       turn.seq,
			Event:     ev.Name,
			Now:       turn.now,
			Enqueued:  turn.enqueued,
			Executed:  turn.executed,
			Discarded: turn.discarded,
		}
		rt.turn = nil
	}()

	slog.Debug("turn started", "turn", turn.seq, "event", ev.Name)

	for _, a := range rt.bus.Dispatch(ev, rt) {
		if a != nil {
			turn.enqueue(a)
		}
	}
	return rt.drain(turn)
}

// drain runs queued actions until the queue is empty.
func (rt *Runtime) drain(turn *Turn) error {
	for {
		a := turn.dequeue()
		if a == nil {
			return nil
		}
		err := runAction(a, rt)
		turn.executed++
		if err == nil {
			continue
		}

		if errors.Is(err, ErrStackOverflow) {
			dropped := turn.discard()
			turn.discarded = dropped
			rt.RecordError(RuntimeError{
				Code:    ErrCodeStackOverflow,
				Message: err.Error(),
				Err:     err,
			})
			slog.Error("turn aborted",
				"turn", turn.seq,
				"action", a.Name(),
				"dropped", dropped,
				"error", err,
			)
			return &RuntimeError{Code: ErrCodeStackOverflow, Message: err.Error(), Turn: turn.seq, Err: err}
		}

		rt.RecordError(RuntimeError{
			Code:    ErrCodeActionFailed,
			Message: fmt.Sprintf("%s: %v", a.Name(), err),
			Err:     err,
		})
		slog.Error("action failed",
			"turn", turn.seq,
			"action", a.Name(),
			"error", err,
		)
	}
}

func runAction(a Action, rt *Runtime) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s panicked: %v", a.Name(), r)
		}
	}()
	return a.Do(rt)
}

// Do appends actions to the current turn's queue. It is the only way to
// execute an action.
func (rt *Runtime) Do(actions ...Action) error {
	if rt.turn == nil {
		return ErrNoTurn
	}
	for _, a := range actions {
		if a != nil {
			rt.turn.enqueue(a)
		}
	}
	return nil
}

// Emit dispatches ev inside the current turn and queues the resulting
// actions.
func (rt *Runtime) Emit(ev Event) error {
	if rt.turn == nil {
		return ErrNoTurn
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = rt.turn.now
	}
	return rt.Do(rt.bus.Dispatch(ev, rt)...)
}

// Now returns the frozen turn instant, or the clock outside a turn.
func (rt *Runtime) Now() time.Time {
	if rt.turn != nil {
		return rt.turn.now
	}
	return rt.clock.Now()
}

// NowMs returns Now in unix milliseconds.
func (rt *Runtime) NowMs() int64 {
	return rt.Now().UnixMilli()
}

// Turn returns the active turn, or nil between turns.
func (rt *Runtime) Turn() *Turn { return rt.turn }

// LastTurn returns statistics of the most recently finished turn.
func (rt *Runtime) LastTurn() TurnStats { return rt.last }

// Script returns the script being executed.
func (rt *Runtime) Script() *ir.Script { return rt.script }

// Compiler returns the compiler passed to New.
func (rt *Runtime) Compiler() Compiler { return rt.compiler }

// Memory returns the memory store.
func (rt *Runtime) Memory() *memory.Store { return rt.memory }

// Bus returns the event bus.
func (rt *Runtime) Bus() *EventBus { return rt.bus }

// Stack returns the block stack. Callers outside the engine should treat it
// as read-only.
func (rt *Runtime) Stack() *Stack { return rt.stack }

// Tracker returns the execution tracker.
func (rt *Runtime) Tracker() *tracker.Tracker { return rt.tracker }

// NewKey returns a fresh block key.
func (rt *Runtime) NewKey() BlockKey { return BlockKey(rt.keys.Generate()) }

// Started reports whether the root block has been pushed.
func (rt *Runtime) Started() bool { return rt.started }

// Done reports whether the stack emptied after start.
func (rt *Runtime) Done() bool { return rt.done }

// RecordError appends an entry to the error list, stamping the turn.
func (rt *Runtime) RecordError(e RuntimeError) {
	if rt.turn != nil && e.Turn == 0 {
		e.Turn = rt.turn.seq
	}
	rt.errors = append(rt.errors, e)
}

// Errors returns a copy of the error list.
func (rt *Runtime) Errors() []RuntimeError {
	out := make([]RuntimeError, len(rt.errors))
	copy(out, rt.errors)
	return out
}

func (rt *Runtime) observe(stage Stage, key BlockKey) {
	for _, h := range rt.hooks {
		h(stage, key)
	}
}

func (rt *Runtime) onStart(ev Event, _ *Runtime) []Action {
	if rt.started {
		slog.Debug("start ignored: already started")
		return nil
	}
	return []Action{NewAction("start", func(rt *Runtime) error {
		if rt.compiler == nil {
			return fmt.Errorf("start: no compiler")
		}
		root := rt.compiler.Root(rt)
		if root == nil {
			return fmt.Errorf("start: compiler returned no root block")
		}
		rt.started = true
		slog.Info("workout started",
			"turn", rt.turn.seq,
			"statements", rt.script.Len(),
		)
		return rt.Do(PushBlock(root))
	})}
}

func (rt *Runtime) onNext(ev Event, _ *Runtime) []Action {
	top := rt.stack.Current()
	if top == nil {
		return nil
	}
	return []Action{NextBlock(top.Key(), NextOptions{Reason: NextAdvance, Event: &ev})}
}
