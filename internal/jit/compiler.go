package jit

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/wodrun/internal/behavior"
	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/ir"
	"github.com/roach88/wodrun/internal/memory"
)

// Strategy compiles one kind of statement.
type Strategy interface {
	// Name identifies the strategy in plans and logs.
	Name() string

	// Match reports whether the strategy handles stmt. Must be pure.
	Match(stmt *ir.Statement) bool

	// Compile builds the block for stmt. All memory the block needs is
	// allocated here. On error the compiler disposes any returned block.
	Compile(rt *engine.Runtime, stmt *ir.Statement, opts Options) (*engine.Block, error)
}

// Options are passed to every strategy.
type Options struct {
	// Cache enables per-index child recipe caching in parent blocks.
	Cache bool
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithCache enables child recipe caching in compiled parents.
func WithCache(enabled bool) Option {
	return func(c *Compiler) {
		c.opts.Cache = enabled
	}
}

// Compiler is the ordered strategy list. It is passed to each runtime and
// holds no per-run state.
type Compiler struct {
	strategies []Strategy
	opts       Options
}

var _ engine.Compiler = (*Compiler)(nil)

// New creates a compiler trying strategies in the given order.
func New(strategies []Strategy, opts ...Option) *Compiler {
	c := &Compiler{strategies: append([]Strategy(nil), strategies...)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultStrategies returns the built-in strategies, most specific first.
func DefaultStrategies() []Strategy {
	return []Strategy{
		IntervalStrategy{},
		TimeBoundRoundsStrategy{},
		TimerStrategy{},
		RoundsStrategy{},
		GroupStrategy{},
		EffortStrategy{},
	}
}

// Default creates a compiler with DefaultStrategies.
func Default(opts ...Option) *Compiler {
	return New(DefaultStrategies(), opts...)
}

// Strategies returns the strategy names in match order.
func (c *Compiler) Strategies() []string {
	out := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		out[i] = s.Name()
	}
	return out
}

// Select returns the first strategy matching stmt.
func (c *Compiler) Select(stmt *ir.Statement) (Strategy, bool) {
	for _, s := range c.strategies {
		if s.Match(stmt) {
			return s, true
		}
	}
	return nil, false
}

// Root builds the block that runs the script's top-level statements.
func (c *Compiler) Root(rt *engine.Runtime) *engine.Block {
	groups := rt.Script().RootGroups()
	b := engine.NewBlock(rt, engine.BlockSpec{Type: "root", Label: "Workout"})
	if err := attachChildren(b, groups, nil, c.opts); err != nil {
		b.Dispose(rt)
		return errorBlock(rt, nil, engine.ErrCodeCompileFailed, fmt.Sprintf("root: %v", err), err)
	}
	return b
}

// Compile builds the block for one child group.
func (c *Compiler) Compile(rt *engine.Runtime, group []*ir.Statement) *engine.Block {
	return c.Prepare(group).Build(rt)
}

// Prepare selects the strategy for group without building anything.
func (c *Compiler) Prepare(group []*ir.Statement) engine.Recipe {
	r := &recipe{compiler: c, group: append([]*ir.Statement(nil), group...)}
	if len(group) == 1 {
		r.strategy, _ = c.Select(group[0])
	}
	return r
}

type recipe struct {
	compiler *Compiler
	group    []*ir.Statement
	strategy Strategy
}

func (r *recipe) Build(rt *engine.Runtime) *engine.Block {
	switch {
	case len(r.group) == 0:
		return errorBlock(rt, nil, engine.ErrCodeCompileFailed, "empty statement group", nil)
	case len(r.group) > 1:
		return r.compiler.compileSuperset(rt, r.group)
	case r.strategy == nil:
		stmt := r.group[0]
		slog.Warn("no strategy matched", "statement", stmt.ID, "kinds", stmt.Kinds())
		return errorBlock(rt, stmt, engine.ErrCodeNoStrategy,
			fmt.Sprintf("no strategy matches statement %d", stmt.ID), nil)
	}
	return r.compiler.run(rt, r.strategy, r.group[0])
}

// run invokes a strategy, turning errors and panics into error blocks.
func (c *Compiler) run(rt *engine.Runtime, s Strategy, stmt *ir.Statement) (out *engine.Block) {
	var b *engine.Block
	defer func() {
		if r := recover(); r != nil {
			if b != nil {
				b.Dispose(rt)
			}
			slog.Error("strategy panicked", "strategy", s.Name(), "statement", stmt.ID, "panic", r)
			out = errorBlock(rt, stmt, engine.ErrCodeCompileFailed,
				fmt.Sprintf("%s panicked compiling statement %d: %v", s.Name(), stmt.ID, r), nil)
		}
	}()

	var err error
	b, err = s.Compile(rt, stmt, c.opts)
	if err == nil && b == nil {
		err = fmt.Errorf("strategy returned no block")
	}
	if err != nil {
		if b != nil {
			b.Dispose(rt)
		}
		slog.Warn("compile failed", "strategy", s.Name(), "statement", stmt.ID, "error", err)
		return errorBlock(rt, stmt, engine.ErrCodeCompileFailed,
			fmt.Sprintf("%s: statement %d: %v", s.Name(), stmt.ID, err), err)
	}
	return b
}

// compileSuperset builds a group block whose children are the group's
// members, run one after another.
func (c *Compiler) compileSuperset(rt *engine.Runtime, group []*ir.Statement) *engine.Block {
	ids := make([]int64, len(group))
	labels := make([]string, len(group))
	children := make([][]int64, len(group))
	for i, stmt := range group {
		ids[i] = stmt.ID
		labels[i] = ir.Label(stmt)
		children[i] = []int64{stmt.ID}
	}
	b := engine.NewBlock(rt, engine.BlockSpec{
		Type:      "superset",
		Label:     strings.Join(labels, " + "),
		SourceIDs: ids,
	})
	if err := attachChildren(b, children, nil, c.opts); err != nil {
		b.Dispose(rt)
		return errorBlock(rt, group[0], engine.ErrCodeCompileFailed, err.Error(), err)
	}
	return b
}

// errorBlock builds a block that halts descent and reports the failure.
func errorBlock(rt *engine.Runtime, stmt *ir.Statement, code engine.RuntimeErrorCode, msg string, cause error) *engine.Block {
	spec := engine.BlockSpec{Type: "error", Label: "error"}
	rerr := engine.RuntimeError{Code: code, Message: msg, Err: cause}
	if stmt != nil {
		spec.Label = ir.Label(stmt)
		spec.SourceIDs = []int64{stmt.ID}
		rerr.StatementID = stmt.ID
	}
	b := engine.NewBlock(rt, spec)
	_ = b.Attach(behavior.NewErrorHalt(rerr))
	return b
}

// attachChildren wires the parent behaviors around the given middle
// behaviors: ChildIndex, middle..., ChildRunner, Completion.
func attachChildren(b *engine.Block, groups [][]int64, middle func(*behavior.ChildIndex) ([]engine.Behavior, error), opts Options) error {
	if err := publishLabel(b); err != nil {
		return err
	}
	cursor, err := behavior.NewChildIndex(b, len(groups))
	if err != nil {
		return err
	}
	list := []engine.Behavior{cursor}
	if middle != nil {
		extra, err := middle(cursor)
		if err != nil {
			return err
		}
		list = append(list, extra...)
	}
	list = append(list,
		behavior.NewChildRunner(cursor, groups, opts.Cache),
		behavior.NewCompletion(cursor, false),
	)
	return b.Attach(list...)
}

func publishLabel(b *engine.Block) error {
	_, err := b.Context().Allocate(memory.KindLabel, b.Label(), memory.Public)
	return err
}
