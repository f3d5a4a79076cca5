package engine

import (
	"fmt"

	"github.com/roach88/wodrun/internal/memory"
)

// BlockContext is a block's scoped view of the memory store and event bus.
// Everything allocated or registered through it is owned by the block and
// released when the block is disposed.
type BlockContext struct {
	rt    *Runtime
	block *Block
}

// Owner returns the owner id used for memory and handlers.
func (c *BlockContext) Owner() string {
	return string(c.block.key)
}

// Allocate creates a reference owned by the block.
func (c *BlockContext) Allocate(kind memory.Kind, initial any, vis memory.Visibility) (memory.Ref, error) {
	if c.block.state == stateDisposed {
		return memory.Ref{}, fmt.Errorf("allocate %s on %s: %w", kind, c.block.key, ErrDisposed)
	}
	return c.rt.memory.Allocate(c.Owner(), kind, initial, vis)
}

// Get reads a reference value.
func (c *BlockContext) Get(ref memory.Ref) (any, bool) {
	return c.rt.memory.Get(ref)
}

// Set writes a reference value and notifies subscribers.
func (c *BlockContext) Set(ref memory.Ref, value any) error {
	return c.rt.memory.Set(ref, value)
}

// Find returns the references matching crit that the block may see: public
// references, its own, and inherited references of blocks beneath it.
func (c *BlockContext) Find(crit memory.Criteria) []memory.Ref {
	return c.rt.memory.Visible(c.Owner(), c.lineage(), crit)
}

// Nearest returns the closest visible reference of kind, searching the
// block itself first and then its ancestors from the nearest down.
func (c *BlockContext) Nearest(kind memory.Kind) (memory.Ref, bool) {
	refs := c.Find(memory.Criteria{Kind: kind})
	if len(refs) == 0 {
		return memory.Ref{}, false
	}
	owners := append([]string{c.Owner()}, c.lineage()...)
	for _, owner := range owners {
		for i := len(refs) - 1; i >= 0; i-- {
			if refs[i].Owner == owner {
				return refs[i], true
			}
		}
	}
	return memory.Ref{}, false
}

// Subscribe observes ref on behalf of the block.
func (c *BlockContext) Subscribe(ref memory.Ref, cb memory.Callback) (memory.SubscriptionID, error) {
	return c.rt.memory.Subscribe(ref, c.Owner(), cb)
}

// On registers a handler owned by the block. scope must be stated.
func (c *BlockContext) On(name string, scope Scope, h Handler) error {
	if c.block.state == stateDisposed {
		return fmt.Errorf("register %s on %s: %w", name, c.block.key, ErrDisposed)
	}
	_, err := c.rt.bus.Register(name, h, c.Owner(), scope)
	return err
}

// lineage lists the owners beneath the block, nearest first. A block that is
// not on the stack yet (during compile) sees the whole stack as ancestors.
func (c *BlockContext) lineage() []string {
	blocks := c.rt.stack.blocks
	end := len(blocks)
	for i, b := range blocks {
		if b == c.block {
			end = i
			break
		}
	}
	out := make([]string, 0, end)
	for i := end - 1; i >= 0; i-- {
		out = append(out, string(blocks[i].key))
	}
	return out
}

func (c *BlockContext) release() int {
	return c.rt.memory.ReleaseAll(c.Owner())
}

func (c *BlockContext) unregister() int {
	return c.rt.bus.UnregisterByOwner(c.Owner())
}
