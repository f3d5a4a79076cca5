package behavior

import (
	"fmt"
	"log/slog"

	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/memory"
)

// ChildIndex owns the private cursor over a block's child groups.
// It advances on push, on every completed child and on resume from a parked
// (-1) position.
type ChildIndex struct {
	ref memory.Ref
}

// NewChildIndex allocates the cursor for count child groups.
func NewChildIndex(b *engine.Block, count int) (*ChildIndex, error) {
	ref, err := b.Context().Allocate(memory.KindChildIndex,
		memory.ChildCursor{Index: -1, Count: count}, memory.Private)
	if err != nil {
		return nil, fmt.Errorf("child index: %w", err)
	}
	return &ChildIndex{ref: ref}, nil
}

func (c *ChildIndex) Name() string { return "child-index" }

// Ref returns the cursor reference.
func (c *ChildIndex) Ref() memory.Ref { return c.ref }

// Cursor returns the current cursor.
func (c *ChildIndex) Cursor(rt *engine.Runtime) memory.ChildCursor {
	cur, _ := memory.Value[memory.ChildCursor](rt.Memory(), c.ref)
	return cur
}

// Seek moves the cursor to index. -1 parks it.
func (c *ChildIndex) Seek(rt *engine.Runtime, index int) {
	_, err := memory.Update(rt.Memory(), c.ref, func(cur memory.ChildCursor) memory.ChildCursor {
		cur.Index = index
		return cur
	})
	if err != nil {
		slog.Warn("seek child cursor failed", "ref", c.ref, "error", err)
	}
}

func (c *ChildIndex) OnPush(rt *engine.Runtime, _ *engine.Block) []engine.Action {
	c.Seek(rt, 0)
	return nil
}

func (c *ChildIndex) OnNext(rt *engine.Runtime, _ *engine.Block, opts engine.NextOptions) []engine.Action {
	cur := c.Cursor(rt)
	switch opts.Reason {
	case engine.NextChildCompleted:
		if cur.Index >= 0 {
			c.Seek(rt, cur.Index+1)
		}
	case engine.NextResume:
		if cur.Index < 0 {
			c.Seek(rt, 0)
		}
	}
	return nil
}

// ChildRunner compiles the child group under the cursor and pushes it.
// Children are compiled lazily, one visit at a time. With caching enabled
// the strategy selection for each index is kept until the block is
// disposed; every visit still builds a fresh block.
//
// Must come after ChildIndex and after anything that moves the cursor.
type ChildRunner struct {
	cursor *ChildIndex
	groups [][]int64

	cache    map[int]engine.Recipe
	compiles int
}

// NewChildRunner runs groups under cursor.
func NewChildRunner(cursor *ChildIndex, groups [][]int64, cache bool) *ChildRunner {
	r := &ChildRunner{cursor: cursor, groups: groups}
	if cache {
		r.cache = make(map[int]engine.Recipe)
	}
	return r
}

func (r *ChildRunner) Name() string { return "child-runner" }

// Compiles returns how many child blocks were built.
func (r *ChildRunner) Compiles() int { return r.compiles }

// Cached returns the number of cached recipes.
func (r *ChildRunner) Cached() int { return len(r.cache) }

func (r *ChildRunner) OnPush(rt *engine.Runtime, b *engine.Block) []engine.Action {
	return r.run(rt, b)
}

func (r *ChildRunner) OnNext(rt *engine.Runtime, b *engine.Block, opts engine.NextOptions) []engine.Action {
	if opts.Reason == engine.NextAdvance {
		return nil
	}
	return r.run(rt, b)
}

func (r *ChildRunner) OnDispose(_ *engine.Runtime, _ *engine.Block) {
	if r.cache != nil {
		clear(r.cache)
	}
}

func (r *ChildRunner) run(rt *engine.Runtime, b *engine.Block) []engine.Action {
	if b.IsComplete() {
		return nil
	}
	cur := r.cursor.Cursor(rt)
	if cur.Index < 0 || cur.Index >= len(r.groups) {
		return nil
	}

	stmts, err := rt.Script().Resolve(r.groups[cur.Index])
	if err != nil {
		rt.RecordError(engine.RuntimeError{
			Code:     engine.ErrCodeCompileFailed,
			Message:  err.Error(),
			BlockKey: b.Key(),
			Err:      err,
		})
		b.MarkComplete("unresolvable child")
		return []engine.Action{engine.PopBlock(b.Key())}
	}

	var child *engine.Block
	if r.cache != nil {
		recipe, ok := r.cache[cur.Index]
		if !ok {
			recipe = rt.Compiler().Prepare(stmts)
			r.cache[cur.Index] = recipe
		}
		child = recipe.Build(rt)
	} else {
		child = rt.Compiler().Compile(rt, stmts)
	}
	r.compiles++

	slog.Debug("child compiled",
		"block", b.Key(),
		"child", child.Key(),
		"index", cur.Index,
		"type", child.Type(),
	)
	return []engine.Action{engine.PushBlock(child)}
}

// Completion pops its block once it is marked complete, or, for parents,
// once a child completes and the cursor is exhausted. Leaf blocks built
// with OnAdvance also pop on an external next.
//
// Must come last in the behavior list.
type Completion struct {
	cursor    *ChildIndex
	onAdvance bool
}

// NewCompletion watches cursor (nil for leaves).
func NewCompletion(cursor *ChildIndex, onAdvance bool) *Completion {
	return &Completion{cursor: cursor, onAdvance: onAdvance}
}

func (c *Completion) Name() string { return "completion" }

func (c *Completion) OnPush(rt *engine.Runtime, b *engine.Block) []engine.Action {
	if c.cursor != nil && c.cursor.Cursor(rt).Exhausted() {
		b.MarkComplete("no children")
		return []engine.Action{engine.PopBlock(b.Key())}
	}
	return nil
}

func (c *Completion) OnNext(rt *engine.Runtime, b *engine.Block, opts engine.NextOptions) []engine.Action {
	pop := []engine.Action{engine.PopBlock(b.Key())}
	if b.IsComplete() {
		return pop
	}
	switch opts.Reason {
	case engine.NextAdvance:
		if c.onAdvance {
			b.MarkComplete("advanced")
			return pop
		}
	case engine.NextChildCompleted:
		if c.cursor != nil && c.cursor.Cursor(rt).Exhausted() {
			b.MarkComplete("children exhausted")
			return pop
		}
	}
	return nil
}
