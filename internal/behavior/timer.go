package behavior

import (
	"fmt"
	"log/slog"

	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/ir"
	"github.com/roach88/wodrun/internal/memory"
	"github.com/roach88/wodrun/internal/tracker"
)

// Timer keeps the block's public timer state. A countdown listens to ticks
// in bubble scope, so it keeps running while children are on top; when it
// expires it emits timer:complete and unwinds the block off the stack.
// Count-up timers (duration 0) only measure.
type Timer struct {
	ref memory.Ref
}

// NewTimer allocates the timer state.
func NewTimer(b *engine.Block, durationMs int64) (*Timer, error) {
	state := memory.TimerState{DurationMs: durationMs, Countdown: durationMs > 0}
	ref, err := b.Context().Allocate(memory.KindTimer, state, memory.Public)
	if err != nil {
		return nil, fmt.Errorf("timer: %w", err)
	}
	return &Timer{ref: ref}, nil
}

func (t *Timer) Name() string { return "timer" }

// Ref returns the timer state reference.
func (t *Timer) Ref() memory.Ref { return t.ref }

// State returns the timer state.
func (t *Timer) State(rt *engine.Runtime) memory.TimerState {
	st, _ := memory.Value[memory.TimerState](rt.Memory(), t.ref)
	return st
}

func (t *Timer) OnPush(rt *engine.Runtime, b *engine.Block) []engine.Action {
	now := rt.NowMs()
	if _, err := memory.Update(rt.Memory(), t.ref, func(st memory.TimerState) memory.TimerState {
		st.Spans = append(st.Spans, memory.TimeSpan{Start: now})
		return st
	}); err != nil {
		slog.Warn("start timer failed", "block", b.Key(), "error", err)
		return nil
	}
	if !t.State(rt).Countdown {
		return nil
	}
	if err := b.Context().On(engine.EventTick, engine.ScopeBubble, func(_ engine.Event, rt *engine.Runtime) []engine.Action {
		return t.onTick(rt, b)
	}); err != nil {
		slog.Warn("register timer tick failed", "block", b.Key(), "error", err)
	}
	return nil
}

func (t *Timer) onTick(rt *engine.Runtime, b *engine.Block) []engine.Action {
	st := t.State(rt)
	if st.Expired || !st.Running() || b.IsComplete() {
		return nil
	}
	if st.Remaining(rt.NowMs()) > 0 {
		return nil
	}

	st.Expired = true
	if err := rt.Memory().Set(t.ref, st); err != nil {
		slog.Warn("expire timer failed", "block", b.Key(), "error", err)
		return nil
	}
	slog.Debug("timer expired", "block", b.Key(), "duration_ms", st.DurationMs)
	return []engine.Action{
		engine.Emit(engine.NewEvent(engine.EventTimerComplete,
			ir.NewObject(ir.P("block", ir.String(b.Key()))))),
		engine.Unwind(b.Key(), true, "timer expired"),
	}
}

func (t *Timer) OnPop(rt *engine.Runtime, b *engine.Block) []engine.Action {
	now := rt.NowMs()
	st, err := memory.Update(rt.Memory(), t.ref, func(st memory.TimerState) memory.TimerState {
		if st.Running() {
			st.Spans = append([]memory.TimeSpan(nil), st.Spans...)
			st.Spans[len(st.Spans)-1].Stop = now
		}
		return st
	})
	if err != nil {
		slog.Warn("stop timer failed", "block", b.Key(), "error", err)
		return nil
	}
	elapsed := st.Elapsed(now)
	if st.Countdown && elapsed > st.DurationMs {
		elapsed = st.DurationMs
	}
	recordMetric(rt, b, tracker.Metric{Name: "elapsed", Value: elapsed, Unit: "ms"})
	return nil
}

func recordMetric(rt *engine.Runtime, b *engine.Block, m tracker.Metric) {
	if err := rt.Tracker().RecordMetric(string(b.Key()), m); err != nil {
		slog.Debug("record metric skipped", "block", b.Key(), "metric", m.Name, "error", err)
	}
}
