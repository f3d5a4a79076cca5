package behavior

import (
	"fmt"
	"log/slog"

	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/memory"
)

const (
	segmentWork = "work"
	segmentRest = "rest"
)

// Interval starts a new round of its children every interval (EMOM).
// Children that finish early leave the block resting with the cursor parked
// until the next boundary tick; children still running at a boundary are
// unwound and the next round starts immediately. Work and rest are tracked
// as span segments.
//
// Must come after ChildIndex and before ChildRunner.
type Interval struct {
	cursor  *ChildIndex
	ref     memory.Ref
	pending bool // Boundary passed while children were running
}

// NewInterval allocates the interval state.
func NewInterval(b *engine.Block, cursor *ChildIndex, intervalMs int64, total int) (*Interval, error) {
	if intervalMs <= 0 {
		return nil, fmt.Errorf("interval: duration must be positive, got %d", intervalMs)
	}
	if total <= 0 {
		return nil, fmt.Errorf("interval: rounds must be positive, got %d", total)
	}
	ref, err := b.Context().Allocate(memory.KindInterval,
		memory.IntervalState{IntervalMs: intervalMs, Total: total}, memory.Public)
	if err != nil {
		return nil, fmt.Errorf("interval: %w", err)
	}
	return &Interval{cursor: cursor, ref: ref}, nil
}

func (iv *Interval) Name() string { return "interval" }

// Ref returns the interval state reference.
func (iv *Interval) Ref() memory.Ref { return iv.ref }

// State returns the interval state.
func (iv *Interval) State(rt *engine.Runtime) memory.IntervalState {
	st, _ := memory.Value[memory.IntervalState](rt.Memory(), iv.ref)
	return st
}

func (iv *Interval) OnPush(rt *engine.Runtime, b *engine.Block) []engine.Action {
	now := rt.NowMs()
	iv.update(rt, b, func(st memory.IntervalState) memory.IntervalState {
		st.Round = 1
		st.RoundStart = now
		return st
	})
	iv.roundStarted(rt, b, 1)
	iv.segment(rt, b, "", segmentWork)

	if err := b.Context().On(engine.EventTick, engine.ScopeBubble, func(_ engine.Event, rt *engine.Runtime) []engine.Action {
		return iv.onTick(rt, b)
	}); err != nil {
		slog.Warn("register interval tick failed", "block", b.Key(), "error", err)
	}
	return nil
}

func (iv *Interval) OnNext(rt *engine.Runtime, b *engine.Block, opts engine.NextOptions) []engine.Action {
	if opts.Reason != engine.NextChildCompleted || b.IsComplete() {
		return nil
	}
	if iv.pending {
		iv.pending = false
		iv.cursor.Seek(rt, 0)
		return nil
	}
	if !iv.cursor.Cursor(rt).Exhausted() {
		return nil
	}

	st := iv.State(rt)
	if st.Round >= st.Total {
		b.MarkComplete("intervals done")
		return nil
	}
	iv.cursor.Seek(rt, -1)
	iv.update(rt, b, func(st memory.IntervalState) memory.IntervalState {
		st.Resting = true
		return st
	})
	iv.segment(rt, b, segmentWork, segmentRest)
	return nil
}

func (iv *Interval) onTick(rt *engine.Runtime, b *engine.Block) []engine.Action {
	if b.IsComplete() || !b.IsMounted() {
		return nil
	}
	st := iv.State(rt)
	if rt.NowMs()-st.RoundStart < st.IntervalMs {
		return nil
	}
	if st.Round >= st.Total {
		return []engine.Action{engine.Unwind(b.Key(), true, "intervals done")}
	}

	resting := st.Resting
	round := st.Round + 1
	iv.update(rt, b, func(st memory.IntervalState) memory.IntervalState {
		st.Round = round
		st.RoundStart += st.IntervalMs
		st.Resting = false
		return st
	})
	iv.roundStarted(rt, b, round)

	if resting {
		iv.segment(rt, b, segmentRest, segmentWork)
		return []engine.Action{engine.NextBlock(b.Key(), engine.NextOptions{Reason: engine.NextResume})}
	}
	iv.segment(rt, b, segmentWork, segmentWork)
	iv.pending = true
	return []engine.Action{engine.Unwind(b.Key(), false, "interval elapsed")}
}

func (iv *Interval) OnPop(rt *engine.Runtime, b *engine.Block) []engine.Action {
	name := segmentWork
	if iv.State(rt).Resting {
		name = segmentRest
	}
	iv.segment(rt, b, name, "")
	return nil
}

func (iv *Interval) update(rt *engine.Runtime, b *engine.Block, fn func(memory.IntervalState) memory.IntervalState) {
	if _, err := memory.Update(rt.Memory(), iv.ref, fn); err != nil {
		slog.Warn("update interval failed", "block", b.Key(), "error", err)
	}
}

func (iv *Interval) roundStarted(rt *engine.Runtime, b *engine.Block, round int) {
	if err := rt.Tracker().RecordRound(string(b.Key()), round, rt.Now()); err != nil {
		slog.Debug("record round skipped", "block", b.Key(), "error", err)
	}
}

// segment closes from (if set) and opens to (if set).
func (iv *Interval) segment(rt *engine.Runtime, b *engine.Block, from, to string) {
	owner := string(b.Key())
	if from != "" {
		if err := rt.Tracker().EndSegment(owner, from, rt.Now()); err != nil {
			slog.Debug("end segment skipped", "block", b.Key(), "segment", from, "error", err)
		}
	}
	if to != "" {
		if err := rt.Tracker().StartSegment(owner, to, rt.Now()); err != nil {
			slog.Debug("start segment skipped", "block", b.Key(), "segment", to, "error", err)
		}
	}
}
