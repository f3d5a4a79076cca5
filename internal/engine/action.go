package engine

import (
	"fmt"
	"log/slog"
)

// Action is a unit of work executed by the turn driver. Actions are the only
// way handlers and behaviors change runtime state.
type Action interface {
	// Name identifies the action in logs and errors.
	Name() string

	// Do performs the action. Follow-up work is queued with rt.Do.
	Do(rt *Runtime) error
}

type funcAction struct {
	name string
	fn   func(rt *Runtime) error
}

func (a funcAction) Name() string         { return a.name }
func (a funcAction) Do(rt *Runtime) error { return a.fn(rt) }

// NewAction wraps fn as a named action.
func NewAction(name string, fn func(rt *Runtime) error) Action {
	return funcAction{name: name, fn: fn}
}

// PushBlockAction pushes a compiled block, opens its span and mounts it.
type PushBlockAction struct {
	Block *Block
}

// PushBlock returns an action that pushes b.
func PushBlock(b *Block) Action {
	return PushBlockAction{Block: b}
}

func (a PushBlockAction) Name() string { return "push-block" }

func (a PushBlockAction) Do(rt *Runtime) error {
	b := a.Block
	if b == nil {
		return ErrNilBlock
	}

	// A block that already went through the lifecycle is never pushed; it
	// belongs to whoever mounted it, so it is not disposed here either.
	switch b.state {
	case stateConstructed:
	case stateDisposed:
		return fmt.Errorf("push %s: %w", b.Key(), ErrDisposed)
	default:
		return fmt.Errorf("push %s (%s): %w", b.Key(), b.state, ErrAlreadyMounted)
	}

	parentSpan := ""
	if top := rt.stack.Current(); top != nil {
		parentSpan, _ = rt.tracker.SpanID(string(top.Key()))
	}

	if err := rt.stack.Push(b); err != nil {
		// Never mounted: dispose releases what compile allocated.
		b.Dispose(rt)
		return err
	}

	if _, err := rt.tracker.StartSpan(b.spanInfo(parentSpan), rt.Now()); err != nil {
		slog.Warn("start span failed", "block", b.Key(), "error", err)
	}

	actions, err := b.Mount(rt)
	if err != nil {
		// Roll back without lifecycle: no unmount, no parent next.
		rt.stack.dropTop(b)
		if _, spanErr := rt.tracker.EndSpan(string(b.Key()), rt.Now()); spanErr != nil {
			slog.Warn("end span failed", "block", b.Key(), "error", spanErr)
		}
		b.Dispose(rt)
		return fmt.Errorf("mount %s: %w", b.Key(), err)
	}
	return rt.Do(actions...)
}

// PopBlockAction pops the block with Key if it is still the current block.
// A pop for a block that is no longer on top is stale and ignored.
type PopBlockAction struct {
	Key BlockKey
}

// PopBlock returns an action that pops the block identified by key.
func PopBlock(key BlockKey) Action {
	return PopBlockAction{Key: key}
}

func (a PopBlockAction) Name() string { return "pop-block" }

func (a PopBlockAction) Do(rt *Runtime) error {
	top := rt.stack.Current()
	if top == nil || top.Key() != a.Key {
		slog.Debug("stale pop ignored", "block", a.Key)
		return nil
	}

	res, err := rt.stack.PopWithLifecycle(rt)
	if res.Block != nil {
		if _, spanErr := rt.tracker.EndSpan(res.Owner, rt.Now()); spanErr != nil {
			slog.Warn("end span failed", "block", res.Owner, "error", spanErr)
		}
	}
	if err != nil {
		return err
	}

	if rt.stack.Depth() == 0 && rt.started && !rt.done {
		rt.done = true
		slog.Info("workout complete", "turn", rt.turn.Seq())
		return rt.Emit(NewEvent(EventComplete, nil))
	}
	return nil
}

// NextBlockAction advances the block with Key if it is still the current
// block.
type NextBlockAction struct {
	Key     BlockKey
	Options NextOptions
}

// NextBlock returns an action that calls Next on the block identified by key.
func NextBlock(key BlockKey, opts NextOptions) Action {
	return NextBlockAction{Key: key, Options: opts}
}

func (a NextBlockAction) Name() string { return "next-block" }

func (a NextBlockAction) Do(rt *Runtime) error {
	top := rt.stack.Current()
	if top == nil || top.Key() != a.Key {
		slog.Debug("stale next ignored", "block", a.Key)
		return nil
	}
	actions, err := top.Next(rt, a.Options)
	if err != nil {
		return err
	}
	return rt.Do(actions...)
}

// EmitAction emits an event inside the current turn.
type EmitAction struct {
	Event Event
}

// Emit returns an action that dispatches ev and queues the result.
func Emit(ev Event) Action {
	return EmitAction{Event: ev}
}

func (a EmitAction) Name() string { return "emit:" + a.Event.Name }

func (a EmitAction) Do(rt *Runtime) error {
	return rt.Emit(a.Event)
}

// UnwindAction cooperatively unwinds the stack down to Target. Every block
// above Target is marked complete and the top is popped; each parent then
// sees its complete flag in Next and pops itself. With Inclusive set the
// target is marked complete as well and leaves the stack too.
type UnwindAction struct {
	Target    BlockKey
	Inclusive bool
	Reason    string
}

// Unwind returns an action that unwinds the stack to target.
func Unwind(target BlockKey, inclusive bool, reason string) Action {
	return UnwindAction{Target: target, Inclusive: inclusive, Reason: reason}
}

func (a UnwindAction) Name() string { return "unwind" }

func (a UnwindAction) Do(rt *Runtime) error {
	blocks := rt.stack.blocks
	idx := -1
	for i, b := range blocks {
		if b.Key() == a.Target {
			idx = i
			break
		}
	}
	if idx < 0 {
		slog.Debug("unwind target not on stack", "block", a.Target)
		return nil
	}

	from := idx + 1
	if a.Inclusive {
		from = idx
	}
	if from >= len(blocks) {
		return nil
	}
	for _, b := range blocks[from:] {
		b.MarkComplete(a.Reason)
	}
	return rt.Do(PopBlock(blocks[len(blocks)-1].Key()))
}
