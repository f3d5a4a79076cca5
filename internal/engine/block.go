package engine

import (
	"fmt"

	"github.com/roach88/wodrun/internal/tracker"
)

// BlockKey uniquely identifies a block for its lifetime. It doubles as the
// owner id of the block's memory and handlers.
type BlockKey string

type blockState int

const (
	stateConstructed blockState = iota
	stateMounted
	stateUnmounted
	stateDisposed
)

func (s blockState) String() string {
	switch s {
	case stateConstructed:
		return "constructed"
	case stateMounted:
		return "mounted"
	case stateUnmounted:
		return "unmounted"
	case stateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// BlockSpec describes a block to construct.
type BlockSpec struct {
	Type      string  // Strategy-defined, e.g. "rounds", "effort", "error"
	Label     string  // Display label
	SourceIDs []int64 // Statements the block was compiled from
}

// Block is an executable unit composed of an ordered behavior list.
//
// Lifecycle: constructed → mounted → unmounted → disposed. Mount and
// Unmount each happen at most once; Dispose is idempotent and may be called
// on a block that was never mounted.
type Block struct {
	key       BlockKey
	spec      BlockSpec
	behaviors []Behavior
	ctx       *BlockContext

	state          blockState
	complete       bool
	completeReason string
}

// NewBlock constructs a block bound to rt with a fresh key.
func NewBlock(rt *Runtime, spec BlockSpec) *Block {
	b := &Block{
		key:  BlockKey(rt.keys.Generate()),
		spec: spec,
	}
	b.ctx = &BlockContext{rt: rt, block: b}
	return b
}

// Key returns the block's key.
func (b *Block) Key() BlockKey { return b.key }

// Type returns the block type.
func (b *Block) Type() string { return b.spec.Type }

// Label returns the display label.
func (b *Block) Label() string { return b.spec.Label }

// SourceIDs returns the statements the block was compiled from.
func (b *Block) SourceIDs() []int64 {
	out := make([]int64, len(b.spec.SourceIDs))
	copy(out, b.spec.SourceIDs)
	return out
}

// Context returns the block's scoped view of memory and the event bus.
func (b *Block) Context() *BlockContext { return b.ctx }

// Behaviors returns the attached behaviors in execution order.
func (b *Block) Behaviors() []Behavior {
	out := make([]Behavior, len(b.behaviors))
	copy(out, b.behaviors)
	return out
}

// Attach appends behaviors. Only valid before Mount.
func (b *Block) Attach(behaviors ...Behavior) error {
	if b.state != stateConstructed {
		return fmt.Errorf("attach to %s block %s: %w", b.state, b.key, ErrAlreadyMounted)
	}
	for _, bh := range behaviors {
		if bh != nil {
			b.behaviors = append(b.behaviors, bh)
		}
	}
	return nil
}

// MarkComplete flags the block as finished. Completion-aware behaviors pop
// the block on its next Next call.
func (b *Block) MarkComplete(reason string) {
	if b.complete {
		return
	}
	b.complete = true
	b.completeReason = reason
}

// IsComplete reports whether MarkComplete was called.
func (b *Block) IsComplete() bool { return b.complete }

// CompleteReason returns the reason passed to MarkComplete.
func (b *Block) CompleteReason() string { return b.completeReason }

// IsMounted reports whether the block is between Mount and Unmount.
func (b *Block) IsMounted() bool { return b.state == stateMounted }

// IsDisposed reports whether Dispose ran.
func (b *Block) IsDisposed() bool { return b.state == stateDisposed }

// Mount runs every PushHook in order and returns the concatenated actions.
func (b *Block) Mount(rt *Runtime) ([]Action, error) {
	switch b.state {
	case stateConstructed:
	case stateDisposed:
		return nil, fmt.Errorf("mount %s: %w", b.key, ErrDisposed)
	default:
		return nil, fmt.Errorf("mount %s: %w", b.key, ErrAlreadyMounted)
	}
	b.state = stateMounted
	rt.observe(StageMount, b.key)

	var actions []Action
	for _, bh := range b.behaviors {
		if h, ok := bh.(PushHook); ok {
			actions = append(actions, h.OnPush(rt, b)...)
		}
	}
	return actions, nil
}

// Next runs every NextHook in order and returns the concatenated actions.
func (b *Block) Next(rt *Runtime, opts NextOptions) ([]Action, error) {
	switch b.state {
	case stateMounted:
	case stateDisposed:
		return nil, fmt.Errorf("next %s: %w", b.key, ErrDisposed)
	default:
		return nil, fmt.Errorf("next %s (%s): %w", b.key, b.state, ErrNotMounted)
	}
	rt.observe(StageNext, b.key)

	var actions []Action
	for _, bh := range b.behaviors {
		if h, ok := bh.(NextHook); ok {
			actions = append(actions, h.OnNext(rt, b, opts)...)
		}
	}
	return actions, nil
}

// Unmount runs every PopHook in order and returns the concatenated actions.
func (b *Block) Unmount(rt *Runtime) ([]Action, error) {
	switch b.state {
	case stateMounted:
	case stateConstructed:
		return nil, fmt.Errorf("unmount %s: %w", b.key, ErrNotMounted)
	case stateDisposed:
		return nil, fmt.Errorf("unmount %s: %w", b.key, ErrDisposed)
	default:
		return nil, fmt.Errorf("unmount %s: %w", b.key, ErrAlreadyUnmounted)
	}
	b.state = stateUnmounted
	rt.observe(StageUnmount, b.key)

	var actions []Action
	for _, bh := range b.behaviors {
		if h, ok := bh.(PopHook); ok {
			actions = append(actions, h.OnPop(rt, b)...)
		}
	}
	return actions, nil
}

// Dispose runs every DisposeHook, then releases the block's memory, then
// unregisters its handlers. Later calls do nothing.
func (b *Block) Dispose(rt *Runtime) {
	if b.state == stateDisposed {
		return
	}
	b.state = stateDisposed
	rt.observe(StageDispose, b.key)

	for _, bh := range b.behaviors {
		if h, ok := bh.(DisposeHook); ok {
			h.OnDispose(rt, b)
		}
	}

	b.ctx.release()
	rt.observe(StageRelease, b.key)
	b.ctx.unregister()
	rt.observe(StageUnregister, b.key)
}

func (b *Block) spanInfo(parentSpan string) tracker.SpanInfo {
	return tracker.SpanInfo{
		OwnerID:      string(b.key),
		ParentSpanID: parentSpan,
		Label:        b.spec.Label,
		BlockType:    b.spec.Type,
		SourceIDs:    b.SourceIDs(),
	}
}
