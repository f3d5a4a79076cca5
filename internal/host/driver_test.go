package host

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/ids"
	"github.com/roach88/wodrun/internal/jit"
	"github.com/roach88/wodrun/internal/testutil"
	"github.com/roach88/wodrun/internal/tracker"
)

type memorySink struct {
	mu    sync.Mutex
	spans map[string][]tracker.Span
}

func (s *memorySink) WriteSpan(_ context.Context, runID string, span tracker.Span) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spans == nil {
		s.spans = make(map[string][]tracker.Span)
	}
	s.spans[runID] = append(s.spans[runID], span)
	return nil
}

func TestDriver_RunsUntilComplete(t *testing.T) {
	script := testutil.NewScriptBuilder().
		Add(1, 0, testutil.Effort("row"), testutil.Distance(500, "m")).
		Add(2, 0, testutil.Effort("burpees"), testutil.Reps(20)).
		MustBuild(t)
	rt := engine.New(script, jit.Default(),
		engine.WithClock(testutil.NewFakeClock(time.Time{})),
		engine.WithKeyGenerator(ids.NewSequence("blk")))

	sink := &memorySink{}
	var turns []engine.TurnStats
	dr := NewDriver(rt,
		WithSink(sink, "run-1"),
		WithStopOnComplete(true),
		WithOnTurn(func(stats engine.TurnStats, _ []tracker.Span) {
			turns = append(turns, stats)
		}))

	require.True(t, dr.Enqueue(engine.NewEvent(engine.EventStart, nil)))
	require.True(t, dr.Enqueue(engine.NewEvent(engine.EventNext, nil)))
	require.True(t, dr.Enqueue(engine.NewEvent(engine.EventNext, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, dr.Run(ctx))

	assert.True(t, rt.Done())
	require.Len(t, turns, 3)
	assert.Equal(t, int64(3), turns[2].Seq)
	assert.Len(t, sink.spans["run-1"], 3)
	assert.False(t, dr.Enqueue(engine.NewEvent(engine.EventNext, nil)))
}

func TestDriver_StopDrainsQueue(t *testing.T) {
	rt := engine.New(testutil.NewScriptBuilder().Add(1, 0, testutil.Effort("row")).MustBuild(t), jit.Default())
	dr := NewDriver(rt)

	dr.Enqueue(engine.NewEvent(engine.EventStart, nil))
	dr.Stop()
	require.NoError(t, dr.Run(context.Background()))
	assert.True(t, rt.Started())
	assert.Equal(t, 0, dr.Pending())
}

func TestDriver_ContextCancel(t *testing.T) {
	rt := engine.New(nil, jit.Default())
	dr := NewDriver(rt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, dr.Run(ctx), context.Canceled)
}

func TestDriver_TickerExpiresCountdown(t *testing.T) {
	script := testutil.NewScriptBuilder().
		Add(1, 0, testutil.Timer(30), testutil.Effort("hold")).
		MustBuild(t)
	rt := engine.New(script, jit.Default())
	dr := NewDriver(rt, WithTicker(5*time.Millisecond), WithStopOnComplete(true))
	dr.Enqueue(engine.NewEvent(engine.EventStart, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, dr.Run(ctx))
	assert.True(t, rt.Done())
}
