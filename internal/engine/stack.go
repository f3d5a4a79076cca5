package engine

import (
	"fmt"
	"log/slog"
)

// DefaultMaxDepth bounds the stack unless overridden with WithMaxDepth.
const DefaultMaxDepth = 32

// PopResult reports what PopWithLifecycle removed.
type PopResult struct {
	Block *Block
	Owner string
}

// Stack is the strict LIFO of active blocks. Blocks()[0] is the root.
// Not safe for concurrent use; driven from the runtime goroutine.
type Stack struct {
	blocks   []*Block
	maxDepth int
}

// NewStack creates a stack bounded at maxDepth (DefaultMaxDepth if <= 0).
func NewStack(maxDepth int) *Stack {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Stack{maxDepth: maxDepth}
}

// Push places b on top after validating it.
func (s *Stack) Push(b *Block) error {
	if b == nil {
		return ErrNilBlock
	}
	for _, existing := range s.blocks {
		if existing.key == b.key {
			return fmt.Errorf("push %s: %w", b.key, ErrDuplicateKey)
		}
	}
	if len(s.blocks) >= s.maxDepth {
		return fmt.Errorf("push %s at depth %d (max %d): %w",
			b.key, len(s.blocks), s.maxDepth, ErrStackOverflow)
	}
	s.blocks = append(s.blocks, b)
	return nil
}

// dropTop removes b if it is the top block. No hooks run.
func (s *Stack) dropTop(b *Block) {
	if n := len(s.blocks); n > 0 && s.blocks[n-1] == b {
		s.blocks[n-1] = nil
		s.blocks = s.blocks[:n-1]
	}
}

// Current returns the top block, or nil if the stack is empty.
func (s *Stack) Current() *Block {
	if len(s.blocks) == 0 {
		return nil
	}
	return s.blocks[len(s.blocks)-1]
}

// Blocks returns a snapshot of the stack, root first.
func (s *Stack) Blocks() []*Block {
	out := make([]*Block, len(s.blocks))
	copy(out, s.blocks)
	return out
}

// Keys returns the keys of the stack, root first.
func (s *Stack) Keys() []BlockKey {
	out := make([]BlockKey, len(s.blocks))
	for i, b := range s.blocks {
		out[i] = b.key
	}
	return out
}

// Depth returns the number of blocks on the stack.
func (s *Stack) Depth() int {
	return len(s.blocks)
}

// MaxDepth returns the depth limit.
func (s *Stack) MaxDepth() int {
	return s.maxDepth
}

// PopWithLifecycle is the only way a block leaves the stack. In order:
//
//  1. unmount the top block (its pop actions are queued)
//  2. remove it from the stack
//  3. dispose it, releasing its memory and then its handlers
//  4. call Next on the new top with NextChildCompleted
//
// Must be called inside a turn.
func (s *Stack) PopWithLifecycle(rt *Runtime) (PopResult, error) {
	cur := s.Current()
	if cur == nil {
		return PopResult{}, ErrEmptyStack
	}

	popActions, err := cur.Unmount(rt)
	if err != nil {
		return PopResult{}, err
	}
	if err := rt.Do(popActions...); err != nil {
		return PopResult{}, err
	}

	s.blocks[len(s.blocks)-1] = nil
	s.blocks = s.blocks[:len(s.blocks)-1]
	rt.observe(StagePop, cur.key)

	cur.Dispose(rt)

	res := PopResult{Block: cur, Owner: string(cur.key)}

	parent := s.Current()
	if parent == nil {
		return res, nil
	}
	nextActions, err := parent.Next(rt, NextOptions{Reason: NextChildCompleted, Child: cur.key})
	if err != nil {
		slog.Error("parent next failed after pop",
			"block", parent.key,
			"child", cur.key,
			"error", err,
		)
		return res, err
	}
	return res, rt.Do(nextActions...)
}
