package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wodrun/internal/ids"
	"github.com/roach88/wodrun/internal/ir"
	"github.com/roach88/wodrun/internal/memory"
	"github.com/roach88/wodrun/internal/tracker"
)

type stageRecord struct {
	stage Stage
	key   BlockKey
}

func (r stageRecord) String() string { return fmt.Sprintf("%s %s", r.stage, r.key) }

type recorder struct{ records []string }

func (r *recorder) hook(stage Stage, key BlockKey) {
	r.records = append(r.records, stageRecord{stage, key}.String())
}

func (r *recorder) reset() { r.records = nil }

func twoEfforts() *ir.Script {
	return ir.MustScript(effort(1, "pullups"), effort(2, "pushups"))
}

func TestRuntime_RunsScriptToCompletion(t *testing.T) {
	rt, c := newTestRuntime(twoEfforts(),
		WithTracker(tracker.New(ids.NewSequence("span"))))

	completes := 0
	_, err := rt.Bus().Register(EventComplete, func(Event, *Runtime) []Action {
		completes++
		return nil
	}, "test", ScopeBubble)
	require.NoError(t, err)

	require.NoError(t, rt.Handle(NewEvent(EventStart, nil)))
	assert.True(t, rt.Started())
	assert.Equal(t, []BlockKey{"blk-1", "blk-2"}, rt.Stack().Keys())

	require.NoError(t, rt.Handle(NewEvent(EventNext, nil)))
	assert.Equal(t, []BlockKey{"blk-1", "blk-3"}, rt.Stack().Keys())

	require.NoError(t, rt.Handle(NewEvent(EventNext, nil)))
	assert.Equal(t, 0, rt.Stack().Depth())
	assert.Nil(t, rt.Stack().Current())
	assert.True(t, rt.Done())
	assert.Equal(t, 1, completes)
	assert.Equal(t, 2, c.compiles)
	assert.Empty(t, rt.Errors())

	spans := rt.Tracker().Completed()
	require.Len(t, spans, 3)
	assert.Equal(t, "blk-2", spans[0].OwnerID)
	assert.Equal(t, "blk-3", spans[1].OwnerID)
	assert.Equal(t, "blk-1", spans[2].OwnerID)
	assert.Equal(t, "span-1", spans[2].ID)
	assert.Empty(t, spans[2].ParentSpanID)
	assert.Equal(t, "span-1", spans[0].ParentSpanID)
	assert.Equal(t, "span-1", spans[1].ParentSpanID)
	assert.Equal(t, 0, rt.Tracker().ActiveCount())
}

func TestRuntime_TeardownOrder(t *testing.T) {
	rec := &recorder{}
	rt, _ := newTestRuntime(twoEfforts(), WithLifecycleHook(rec.hook))

	require.NoError(t, rt.Handle(NewEvent(EventStart, nil)))
	rec.reset()

	require.NoError(t, rt.Handle(NewEvent(EventNext, nil)))
	assert.Equal(t, []string{
		"next blk-2",
		"unmount blk-2",
		"pop blk-2",
		"dispose blk-2",
		"release blk-2",
		"unregister blk-2",
		"next blk-1",
		"mount blk-3",
	}, rec.records)
}

func TestRuntime_LastPopCallsNoNext(t *testing.T) {
	rec := &recorder{}
	rt, _ := newTestRuntime(ir.MustScript(effort(1, "run")), WithLifecycleHook(rec.hook))

	require.NoError(t, rt.Handle(NewEvent(EventStart, nil)))
	require.NoError(t, rt.Handle(NewEvent(EventNext, nil)))
	require.NotEmpty(t, rec.records)

	assert.Equal(t, "unregister blk-1", rec.records[len(rec.records)-1])
	assert.Nil(t, rt.Stack().Current())

	// A next on an empty stack is a no-op.
	rec.reset()
	require.NoError(t, rt.Handle(NewEvent(EventNext, nil)))
	assert.Empty(t, rec.records)
}

func TestRuntime_DrainsTransitivelyEnqueuedActions(t *testing.T) {
	rt, _ := newTestRuntime(nil)

	count := 0
	var spawn func(depth int) Action
	spawn = func(depth int) Action {
		return NewAction("count", func(rt *Runtime) error {
			count++
			if depth < 2 {
				return rt.Do(spawn(depth+1), spawn(depth+1))
			}
			return nil
		})
	}
	_, err := rt.Bus().Register("fan-out", func(Event, *Runtime) []Action {
		return []Action{spawn(0)}
	}, "test", ScopeBubble)
	require.NoError(t, err)

	require.NoError(t, rt.Handle(NewEvent("fan-out", nil)))
	assert.Equal(t, 7, count)
	stats := rt.LastTurn()
	assert.Equal(t, 7, stats.Executed)
	assert.Equal(t, 7, stats.Enqueued)
	assert.Equal(t, "fan-out", stats.Event)
	assert.Nil(t, rt.Turn())
}

func TestRuntime_ScopeFiltering(t *testing.T) {
	rt, _ := newTestRuntime(nil)

	var fired []string
	record := func(label string) Handler {
		return func(Event, *Runtime) []Action {
			fired = append(fired, label)
			return nil
		}
	}

	var parent, child *Block
	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		parent = NewBlock(rt, BlockSpec{Type: "group"})
		child = NewBlock(rt, BlockSpec{Type: "leaf"})
		require.NoError(t, parent.Context().On("ping", ScopeActive, record("parent-active")))
		require.NoError(t, parent.Context().On("ping", ScopeBubble, record("parent-bubble")))
		require.NoError(t, child.Context().On("ping", ScopeActive, record("child-active")))
		return rt.Do(PushBlock(parent), PushBlock(child))
	}))
	require.Equal(t, 2, rt.Stack().Depth())

	require.NoError(t, rt.Handle(NewEvent("ping", nil)))
	assert.Equal(t, []string{"parent-bubble", "child-active"}, fired)

	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		return rt.Do(PopBlock(child.Key()))
	}))
	fired = nil
	require.NoError(t, rt.Handle(NewEvent("ping", nil)))
	assert.Equal(t, []string{"parent-active", "parent-bubble"}, fired)
}

func TestRuntime_DepthGuard(t *testing.T) {
	rt, c := newTestRuntime(nil, WithMaxDepth(4))

	var build func(rt *Runtime) *Block
	build = func(rt *Runtime) *Block {
		b := NewBlock(rt, BlockSpec{Type: "self"})
		_ = b.Attach(&funcBehavior{
			name: "recurse",
			push: func(rt *Runtime, _ *Block) []Action {
				return []Action{PushBlock(build(rt))}
			},
		})
		return b
	}
	c.root = build

	err := rt.Handle(NewEvent(EventStart, nil))
	require.Error(t, err)
	assert.True(t, IsOverflowError(err))
	assert.True(t, errors.Is(err, ErrStackOverflow))
	assert.Equal(t, 4, rt.Stack().Depth())

	errs := rt.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeStackOverflow, errs[0].Code)
	assert.Equal(t, int64(1), errs[0].Turn)
}

func TestStack_PushValidation(t *testing.T) {
	rt, _ := newTestRuntime(nil)
	s := NewStack(2)

	b1 := NewBlock(rt, BlockSpec{})
	b2 := NewBlock(rt, BlockSpec{})
	b3 := NewBlock(rt, BlockSpec{})

	assert.ErrorIs(t, s.Push(nil), ErrNilBlock)
	require.NoError(t, s.Push(b1))
	assert.ErrorIs(t, s.Push(b1), ErrDuplicateKey)
	require.NoError(t, s.Push(b2))
	assert.ErrorIs(t, s.Push(b3), ErrStackOverflow)
	assert.Equal(t, 2, s.Depth())
	assert.Same(t, b2, s.Current())

	snapshot := s.Blocks()
	snapshot[0] = nil
	assert.Same(t, b1, s.Blocks()[0])
}

func TestStack_PopEmpty(t *testing.T) {
	rt, _ := newTestRuntime(nil)
	_, err := rt.Stack().PopWithLifecycle(rt)
	assert.ErrorIs(t, err, ErrEmptyStack)
}

func TestBlock_LifecycleGuards(t *testing.T) {
	rt, _ := newTestRuntime(nil)
	disposed := 0
	b := NewBlock(rt, BlockSpec{Type: "leaf"})
	require.NoError(t, b.Attach(&funcBehavior{
		name:    "count",
		dispose: func(*Runtime, *Block) { disposed++ },
	}))

	_, err := b.Unmount(rt)
	assert.ErrorIs(t, err, ErrNotMounted)
	_, err = b.Next(rt, NextOptions{Reason: NextAdvance})
	assert.ErrorIs(t, err, ErrNotMounted)

	_, err = b.Mount(rt)
	require.NoError(t, err)
	_, err = b.Mount(rt)
	assert.ErrorIs(t, err, ErrAlreadyMounted)
	assert.Error(t, b.Attach(popOnNext()))

	_, err = b.Unmount(rt)
	require.NoError(t, err)
	_, err = b.Unmount(rt)
	assert.ErrorIs(t, err, ErrAlreadyUnmounted)

	b.Dispose(rt)
	b.Dispose(rt)
	assert.Equal(t, 1, disposed)
	assert.True(t, b.IsDisposed())

	_, err = b.Mount(rt)
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = b.Next(rt, NextOptions{})
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = b.Unmount(rt)
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestBlock_DisposeNeverMountedReleasesResources(t *testing.T) {
	rt, _ := newTestRuntime(nil)
	b := NewBlock(rt, BlockSpec{Type: "leaf"})

	_, err := b.Context().Allocate(memory.KindLabel, "row", memory.Public)
	require.NoError(t, err)
	require.NoError(t, b.Context().On(EventTick, ScopeBubble, func(Event, *Runtime) []Action { return nil }))
	require.Equal(t, 1, rt.Memory().Len())
	require.Equal(t, 1, rt.Bus().CountFor(string(b.Key())))

	b.Dispose(rt)
	assert.Equal(t, 0, rt.Memory().Len())
	assert.Equal(t, 0, rt.Bus().CountFor(string(b.Key())))

	_, err = b.Context().Allocate(memory.KindLabel, "again", memory.Public)
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestRuntime_PopReleasesMemoryAndHandlers(t *testing.T) {
	rt, _ := newTestRuntime(nil)

	var b *Block
	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		b = NewBlock(rt, BlockSpec{Type: "leaf"})
		if _, err := b.Context().Allocate(memory.KindLabel, "row", memory.Public); err != nil {
			return err
		}
		if err := b.Context().On(EventTick, ScopeBubble, func(Event, *Runtime) []Action { return nil }); err != nil {
			return err
		}
		return rt.Do(PushBlock(b))
	}))
	require.Equal(t, 1, rt.Memory().Len())

	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		return rt.Do(PopBlock(b.Key()))
	}))
	assert.Equal(t, 0, rt.Memory().Len())
	assert.Equal(t, 0, rt.Bus().CountFor(string(b.Key())))
	assert.True(t, b.IsDisposed())
}

func TestRuntime_StalePopIgnored(t *testing.T) {
	rt, _ := newTestRuntime(nil)

	var a, b *Block
	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		a = NewBlock(rt, BlockSpec{})
		b = NewBlock(rt, BlockSpec{})
		return rt.Do(PushBlock(a), PushBlock(b))
	}))
	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		return rt.Do(PopBlock(a.Key()), NextBlock(a.Key(), NextOptions{}))
	}))
	assert.Equal(t, []BlockKey{a.Key(), b.Key()}, rt.Stack().Keys())
	assert.Empty(t, rt.Errors())
}

func TestRuntime_PushRejectsSpentBlock(t *testing.T) {
	rt, _ := newTestRuntime(nil)

	var live, spent *Block
	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		live = NewBlock(rt, BlockSpec{})
		spent = NewBlock(rt, BlockSpec{})
		spent.Dispose(rt)
		return rt.Do(PushBlock(live))
	}))
	require.Equal(t, 1, rt.Tracker().ActiveCount())

	var pushSpent, pushLive error
	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		pushSpent = PushBlock(spent).Do(rt)
		pushLive = PushBlock(live).Do(rt)
		return nil
	}))
	assert.ErrorIs(t, pushSpent, ErrDisposed)
	assert.ErrorIs(t, pushLive, ErrAlreadyMounted)
	assert.Equal(t, []BlockKey{live.Key()}, rt.Stack().Keys())
	assert.Equal(t, 1, rt.Tracker().ActiveCount())
	assert.True(t, live.IsMounted())

	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		return rt.Do(PopBlock(live.Key()))
	}))
	assert.Equal(t, 0, rt.Stack().Depth())
	assert.Equal(t, 0, rt.Tracker().ActiveCount())
}

func TestStack_DropTopOnlyRemovesTop(t *testing.T) {
	rt, _ := newTestRuntime(nil)
	s := NewStack(0)
	a := NewBlock(rt, BlockSpec{})
	b := NewBlock(rt, BlockSpec{})
	require.NoError(t, s.Push(a))
	require.NoError(t, s.Push(b))

	s.dropTop(a)
	assert.Equal(t, 2, s.Depth())
	s.dropTop(b)
	assert.Equal(t, []BlockKey{a.Key()}, s.Keys())
}

func TestRuntime_Unwind(t *testing.T) {
	rt, _ := newTestRuntime(nil)

	completion := func() Behavior {
		return &funcBehavior{
			name: "completion",
			next: func(_ *Runtime, b *Block, _ NextOptions) []Action {
				if b.IsComplete() {
					return []Action{PopBlock(b.Key())}
				}
				return nil
			},
		}
	}

	var a, b, c *Block
	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		a = NewBlock(rt, BlockSpec{Type: "amrap"})
		b = NewBlock(rt, BlockSpec{Type: "rounds"})
		c = NewBlock(rt, BlockSpec{Type: "effort"})
		_ = a.Attach(completion())
		_ = b.Attach(completion())
		return rt.Do(PushBlock(a), PushBlock(b), PushBlock(c))
	}))
	require.Equal(t, 3, rt.Stack().Depth())

	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		return rt.Do(Unwind(a.Key(), false, "expired"))
	}))
	assert.Equal(t, []BlockKey{a.Key()}, rt.Stack().Keys())
	assert.Equal(t, "expired", b.CompleteReason())
	assert.False(t, a.IsComplete())

	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		return rt.Do(Unwind(a.Key(), true, "expired"))
	}))
	assert.Equal(t, 0, rt.Stack().Depth())
	assert.Len(t, rt.Tracker().Completed(), 3)
}

type tickingClock struct{ now time.Time }

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestRuntime_ClockFrozenForTurn(t *testing.T) {
	rt, _ := newTestRuntime(nil, WithClock(&tickingClock{now: epoch}))

	var seen []time.Time
	observe := NewAction("observe", func(rt *Runtime) error {
		seen = append(seen, rt.Now())
		return nil
	})
	_, err := rt.Bus().Register("look", func(ev Event, _ *Runtime) []Action {
		seen = append(seen, ev.Timestamp)
		return []Action{observe, observe}
	}, "test", ScopeBubble)
	require.NoError(t, err)

	require.NoError(t, rt.Handle(NewEvent("look", nil)))
	require.Len(t, seen, 3)
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, seen[1], seen[2])

	require.NoError(t, rt.Handle(NewEvent("look", nil)))
	assert.True(t, seen[3].After(seen[0]))
}

func TestRuntime_DoOutsideTurn(t *testing.T) {
	rt, _ := newTestRuntime(nil)
	assert.ErrorIs(t, rt.Do(NewAction("x", func(*Runtime) error { return nil })), ErrNoTurn)
	assert.ErrorIs(t, rt.Emit(NewEvent("x", nil)), ErrNoTurn)
}

func TestRuntime_NestedHandleRejected(t *testing.T) {
	rt, _ := newTestRuntime(nil)
	var nested error
	_, err := rt.Bus().Register("outer", func(Event, *Runtime) []Action {
		return []Action{NewAction("reenter", func(rt *Runtime) error {
			nested = rt.Handle(NewEvent("inner", nil))
			return nil
		})}
	}, "test", ScopeBubble)
	require.NoError(t, err)

	require.NoError(t, rt.Handle(NewEvent("outer", nil)))
	assert.ErrorIs(t, nested, ErrTurnInProgress)
}

func TestRuntime_FailedActionRecordedAndTurnContinues(t *testing.T) {
	rt, _ := newTestRuntime(nil)
	ran := false
	_, err := rt.Bus().Register("go", func(Event, *Runtime) []Action {
		return []Action{
			NewAction("boom", func(*Runtime) error { return errors.New("boom") }),
			NewAction("panic", func(*Runtime) error { panic("kaboom") }),
			NewAction("after", func(*Runtime) error { ran = true; return nil }),
		}
	}, "test", ScopeBubble)
	require.NoError(t, err)

	require.NoError(t, rt.Handle(NewEvent("go", nil)))
	assert.True(t, ran)
	errs := rt.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, ErrCodeActionFailed, errs[0].Code)
	assert.Contains(t, errs[0].Message, "boom")
	assert.Contains(t, errs[1].Message, "kaboom")
}

func TestRuntime_StartIsIdempotent(t *testing.T) {
	rt, c := newTestRuntime(twoEfforts())
	require.NoError(t, rt.Handle(NewEvent(EventStart, nil)))
	require.NoError(t, rt.Handle(NewEvent(EventStart, nil)))
	assert.Equal(t, 2, rt.Stack().Depth())
	assert.Equal(t, 1, c.compiles)
}

func TestBlockContext_NearestPrefersClosestAncestor(t *testing.T) {
	rt, _ := newTestRuntime(nil)

	var outer, inner *Block
	require.NoError(t, inTurn(rt, func(rt *Runtime) error {
		outer = NewBlock(rt, BlockSpec{})
		inner = NewBlock(rt, BlockSpec{})
		if _, err := outer.Context().Allocate(memory.KindReps, int64(21), memory.Inherited); err != nil {
			return err
		}
		if _, err := inner.Context().Allocate(memory.KindReps, int64(15), memory.Inherited); err != nil {
			return err
		}
		return rt.Do(PushBlock(outer), PushBlock(inner))
	}))

	leaf := NewBlock(rt, BlockSpec{})
	ref, ok := leaf.Context().Nearest(memory.KindReps)
	require.True(t, ok)
	assert.Equal(t, string(inner.Key()), ref.Owner)

	// outer cannot see inner's inherited reference.
	ref, ok = outer.Context().Nearest(memory.KindReps)
	require.True(t, ok)
	assert.Equal(t, string(outer.Key()), ref.Owner)
	assert.Len(t, outer.Context().Find(memory.Criteria{Kind: memory.KindReps}), 1)
}
