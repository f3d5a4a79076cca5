package engine

// NextReason tells a block why Next was called.
type NextReason string

const (
	// NextAdvance is an external "next" routed to the current block.
	NextAdvance NextReason = "advance"
	// NextChildCompleted follows the pop of the block's direct child.
	NextChildCompleted NextReason = "child-completed"
	// NextResume restarts a parked block, e.g. an interval after rest.
	NextResume NextReason = "resume"
)

// NextOptions carries the context of a Next call.
type NextOptions struct {
	Reason NextReason
	Child  BlockKey // Set for NextChildCompleted
	Event  *Event   // Set for NextAdvance
}

// Behavior is a composable unit of block logic. A behavior implements any
// subset of the hook interfaces below; hooks run in the order behaviors
// were attached, and the actions they return are concatenated.
//
// Behaviors that read state written by another behavior in the same hook
// must be attached after it. Each behavior documents that dependency.
type Behavior interface {
	Name() string
}

// PushHook runs when the block is mounted.
type PushHook interface {
	OnPush(rt *Runtime, b *Block) []Action
}

// NextHook runs when the block is advanced.
type NextHook interface {
	OnNext(rt *Runtime, b *Block, opts NextOptions) []Action
}

// PopHook runs when the block is unmounted, while its span is still open.
type PopHook interface {
	OnPop(rt *Runtime, b *Block) []Action
}

// DisposeHook runs once when the block is disposed, before its memory is
// released.
type DisposeHook interface {
	OnDispose(rt *Runtime, b *Block)
}
