package engine

import (
	"time"

	"github.com/roach88/wodrun/internal/ids"
	"github.com/roach88/wodrun/internal/ir"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

var epoch = time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

// funcBehavior adapts closures to the hook interfaces.
type funcBehavior struct {
	name    string
	push    func(rt *Runtime, b *Block) []Action
	next    func(rt *Runtime, b *Block, opts NextOptions) []Action
	pop     func(rt *Runtime, b *Block) []Action
	dispose func(rt *Runtime, b *Block)
}

func (f *funcBehavior) Name() string { return f.name }

func (f *funcBehavior) OnPush(rt *Runtime, b *Block) []Action {
	if f.push == nil {
		return nil
	}
	return f.push(rt, b)
}

func (f *funcBehavior) OnNext(rt *Runtime, b *Block, opts NextOptions) []Action {
	if f.next == nil {
		return nil
	}
	return f.next(rt, b, opts)
}

func (f *funcBehavior) OnPop(rt *Runtime, b *Block) []Action {
	if f.pop == nil {
		return nil
	}
	return f.pop(rt, b)
}

func (f *funcBehavior) OnDispose(rt *Runtime, b *Block) {
	if f.dispose != nil {
		f.dispose(rt, b)
	}
}

// popOnNext pops its block on any Next call.
func popOnNext() Behavior {
	return &funcBehavior{
		name: "pop-on-next",
		next: func(_ *Runtime, b *Block, _ NextOptions) []Action {
			return []Action{PopBlock(b.Key())}
		},
	}
}

// stubCompiler builds leaf blocks that pop on next, and a root that pushes
// one leaf per top-level statement.
type stubCompiler struct {
	compiles int
	root     func(rt *Runtime) *Block
}

func (c *stubCompiler) Root(rt *Runtime) *Block {
	if c.root != nil {
		return c.root(rt)
	}
	groups := rt.Script().RootGroups()
	idx := 0
	root := NewBlock(rt, BlockSpec{Type: "root", Label: "root"})
	advance := func(rt *Runtime, b *Block) []Action {
		if idx >= len(groups) {
			return []Action{PopBlock(b.Key())}
		}
		stmts, _ := rt.Script().Resolve(groups[idx])
		idx++
		return []Action{PushBlock(c.Compile(rt, stmts))}
	}
	_ = root.Attach(&funcBehavior{
		name: "children",
		push: advance,
		next: func(rt *Runtime, b *Block, opts NextOptions) []Action {
			if opts.Reason != NextChildCompleted {
				return nil
			}
			return advance(rt, b)
		},
	})
	return root
}

func (c *stubCompiler) Compile(rt *Runtime, group []*ir.Statement) *Block {
	c.compiles++
	var srcs []int64
	for _, s := range group {
		srcs = append(srcs, s.ID)
	}
	b := NewBlock(rt, BlockSpec{Type: "leaf", Label: ir.Label(group[0]), SourceIDs: srcs})
	_ = b.Attach(popOnNext())
	return b
}

func (c *stubCompiler) Prepare(group []*ir.Statement) Recipe {
	return recipeFunc(func(rt *Runtime) *Block { return c.Compile(rt, group) })
}

type recipeFunc func(rt *Runtime) *Block

func (f recipeFunc) Build(rt *Runtime) *Block { return f(rt) }

func effort(id int64, name string) ir.Statement {
	return ir.Statement{
		ID:        id,
		Fragments: []ir.Fragment{{Kind: ir.KindEffort, Value: ir.String(name)}},
	}
}

func newTestRuntime(script *ir.Script, opts ...Option) (*Runtime, *stubCompiler) {
	c := &stubCompiler{}
	base := []Option{
		WithClock(&fixedClock{now: epoch}),
		WithKeyGenerator(ids.NewSequence("blk")),
	}
	return New(script, c, append(base, opts...)...), c
}

// inTurn runs fn inside a turn opened by a private event.
func inTurn(rt *Runtime, fn func(rt *Runtime) error) error {
	const name = "test:in-turn"
	var fnErr error
	unregister, err := rt.Bus().Register(name, func(Event, *Runtime) []Action {
		return []Action{NewAction("in-turn", func(rt *Runtime) error {
			fnErr = fn(rt)
			return nil
		})}
	}, "test", ScopeBubble)
	if err != nil {
		return err
	}
	defer unregister()
	if err := rt.Handle(NewEvent(name, nil)); err != nil {
		return err
	}
	return fnErr
}
