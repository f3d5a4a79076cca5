package behavior_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wodrun/internal/behavior"
	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/ids"
	"github.com/roach88/wodrun/internal/ir"
	"github.com/roach88/wodrun/internal/jit"
	"github.com/roach88/wodrun/internal/memory"
	"github.com/roach88/wodrun/internal/testutil"
	"github.com/roach88/wodrun/internal/tracker"
)

func newRuntime(t *testing.T, script *ir.Script) (*engine.Runtime, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(testutil.Epoch)
	rt := engine.New(script, jit.Default(),
		engine.WithClock(clock),
		engine.WithKeyGenerator(ids.NewSequence("blk")),
		engine.WithTracker(tracker.New(ids.NewSequence("span"))),
	)
	return rt, clock
}

func handle(t *testing.T, rt *engine.Runtime, name string) {
	t.Helper()
	require.NoError(t, rt.Handle(engine.NewEvent(name, nil)))
}

// find returns the first behavior of type T on the stack, top first.
func find[T engine.Behavior](t *testing.T, rt *engine.Runtime) T {
	t.Helper()
	blocks := rt.Stack().Blocks()
	for i := len(blocks) - 1; i >= 0; i-- {
		for _, bh := range blocks[i].Behaviors() {
			if v, ok := bh.(T); ok {
				return v
			}
		}
	}
	var zero T
	t.Fatalf("no %T on the stack", zero)
	return zero
}

func TestStatementMetrics(t *testing.T) {
	script := testutil.NewScriptBuilder().
		Add(1, 0, testutil.Effort("deadlift"), testutil.Reps(5), testutil.Resistance(225, "lb")).
		Add(2, 0, testutil.Effort("run"), testutil.Distance(400, "m")).
		Add(3, 0, testutil.Timer(90000), testutil.Effort("rest")).
		MustBuild(t)
	rt, _ := newRuntime(t, script)
	b := engine.NewBlock(rt, engine.BlockSpec{Type: "effort"})
	defer b.Dispose(rt)

	stmt := func(id int64) []*ir.Statement {
		s, ok := script.Get(id)
		require.True(t, ok)
		return []*ir.Statement{s}
	}

	assert.Equal(t, []memory.Metric{
		{Name: "reps", Value: 5},
		{Name: "resistance", Value: 225, Unit: "lb"},
	}, behavior.StatementMetrics(rt, b, stmt(1)))
	assert.Equal(t, []memory.Metric{{Name: "distance", Value: 400, Unit: "m"}},
		behavior.StatementMetrics(rt, b, stmt(2)))
	assert.Equal(t, []memory.Metric{{Name: "duration", Value: 90000, Unit: "ms"}},
		behavior.StatementMetrics(rt, b, stmt(3)))
}

func TestRounds_SchemePublishesReps(t *testing.T) {
	script := testutil.NewScriptBuilder().
		Add(1, 0, testutil.Scheme(21, 15, 9)).
		Add(2, 1, testutil.Effort("thrusters")).
		MustBuild(t)
	rt, _ := newRuntime(t, script)

	handle(t, rt, engine.EventStart)
	rounds := find[*behavior.Rounds](t, rt)
	st := rounds.State(rt)
	assert.Equal(t, 1, st.Current)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, []int64{21, 15, 9}, st.Scheme)

	reps, _, ok := memory.First[int64](rt.Memory(), memory.Criteria{Kind: memory.KindReps})
	require.True(t, ok)
	assert.Equal(t, int64(21), reps)

	handle(t, rt, engine.EventNext)
	assert.Equal(t, 2, rounds.State(rt).Current)
	reps, _, _ = memory.First[int64](rt.Memory(), memory.Criteria{Kind: memory.KindReps})
	assert.Equal(t, int64(15), reps)
}

func TestTimer_CountdownState(t *testing.T) {
	script := testutil.NewScriptBuilder().
		Add(1, 0, testutil.Timer(30000), testutil.Effort("plank")).
		MustBuild(t)
	rt, clock := newRuntime(t, script)

	handle(t, rt, engine.EventStart)
	timer := find[*behavior.Timer](t, rt)
	st := timer.State(rt)
	assert.True(t, st.Countdown)
	assert.True(t, st.Running())
	assert.Equal(t, int64(30000), st.DurationMs)

	clock.Advance(10 * time.Second)
	handle(t, rt, engine.EventTick)
	assert.Equal(t, int64(20000), timer.State(rt).Remaining(clock.Now().UnixMilli()))
	assert.False(t, timer.State(rt).Expired)
}

func TestInterval_RejectsBadParameters(t *testing.T) {
	script := testutil.NewScriptBuilder().Add(1, 0, testutil.Effort("burpees")).MustBuild(t)
	rt, _ := newRuntime(t, script)
	b := engine.NewBlock(rt, engine.BlockSpec{Type: "emom"})
	defer b.Dispose(rt)

	_, err := behavior.NewInterval(b, nil, 0, 3)
	assert.ErrorContains(t, err, "duration must be positive")

	_, err = behavior.NewInterval(b, nil, 60000, 0)
	assert.ErrorContains(t, err, "rounds must be positive")
}

func TestErrorHalt_RecordsAndPops(t *testing.T) {
	script := testutil.NewScriptBuilder().
		Add(1, 0, testutil.Rounds(0)).
		Add(2, 1, testutil.Effort("run")).
		Add(3, 0, testutil.Effort("situps")).
		MustBuild(t)
	rt, _ := newRuntime(t, script)

	handle(t, rt, engine.EventStart)

	errs := rt.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, engine.ErrCodeCompileFailed, errs[0].Code)
	assert.Equal(t, int64(1), errs[0].StatementID)
	assert.NotEmpty(t, errs[0].BlockKey)

	halt := behavior.NewErrorHalt(errs[0])
	assert.Equal(t, "error-halt", halt.Name())
	assert.Equal(t, errs[0].Message, halt.Err().Message)

	assert.Equal(t, "effort", rt.Stack().Current().Type())
}
