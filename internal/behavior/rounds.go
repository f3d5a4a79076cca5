package behavior

import (
	"fmt"
	"log/slog"

	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/memory"
)

// Rounds loops the child cursor. Total of 0 loops until the block is marked
// complete (time-capped blocks). With a rep scheme, the reps of the current
// round are published as an inherited reference for children to pick up.
//
// Must come after ChildIndex and before ChildRunner.
type Rounds struct {
	cursor *ChildIndex
	ref    memory.Ref
	reps   memory.Ref // Zero without a scheme

	startedTurn int64 // Turn in which the current round began
}

// NewRounds allocates the public round counter. A non-empty scheme sets
// Total to its length when total is 0.
func NewRounds(b *engine.Block, cursor *ChildIndex, total int, scheme []int64) (*Rounds, error) {
	if total == 0 && len(scheme) > 0 {
		total = len(scheme)
	}
	state := memory.RoundsState{Total: total, Scheme: append([]int64(nil), scheme...)}
	ref, err := b.Context().Allocate(memory.KindRounds, state, memory.Public)
	if err != nil {
		return nil, fmt.Errorf("rounds: %w", err)
	}
	r := &Rounds{cursor: cursor, ref: ref}
	if len(scheme) > 0 {
		r.reps, err = b.Context().Allocate(memory.KindReps, scheme[0], memory.Inherited)
		if err != nil {
			return nil, fmt.Errorf("rounds reps: %w", err)
		}
	}
	return r, nil
}

func (r *Rounds) Name() string { return "rounds" }

// Ref returns the round counter reference.
func (r *Rounds) Ref() memory.Ref { return r.ref }

// State returns the current round counter.
func (r *Rounds) State(rt *engine.Runtime) memory.RoundsState {
	st, _ := memory.Value[memory.RoundsState](rt.Memory(), r.ref)
	return st
}

func (r *Rounds) OnPush(rt *engine.Runtime, b *engine.Block) []engine.Action {
	r.begin(rt, b, 1)
	return nil
}

func (r *Rounds) OnNext(rt *engine.Runtime, b *engine.Block, opts engine.NextOptions) []engine.Action {
	if opts.Reason != engine.NextChildCompleted || b.IsComplete() {
		return nil
	}
	if !r.cursor.Cursor(rt).Exhausted() {
		return nil
	}
	st := r.State(rt)
	if st.Total > 0 && st.Current >= st.Total {
		return nil
	}
	if st.Total == 0 && r.startedTurn == turnSeq(rt) {
		// A whole round finished inside the turn it began in; nothing
		// external can change the next one, so looping would never drain.
		slog.Warn("unbounded rounds made no progress, stopping",
			"block", b.Key(), "round", st.Current, "turn", r.startedTurn)
		b.MarkComplete("no progress")
		return nil
	}
	r.cursor.Seek(rt, 0)
	r.begin(rt, b, st.Current+1)
	return nil
}

func (r *Rounds) begin(rt *engine.Runtime, b *engine.Block, round int) {
	r.startedTurn = turnSeq(rt)
	st, err := memory.Update(rt.Memory(), r.ref, func(st memory.RoundsState) memory.RoundsState {
		st.Current = round
		return st
	})
	if err != nil {
		slog.Warn("update rounds failed", "block", b.Key(), "error", err)
		return
	}
	if err := rt.Tracker().RecordRound(string(b.Key()), round, rt.Now()); err != nil {
		slog.Debug("record round skipped", "block", b.Key(), "error", err)
	}
	if !r.reps.IsZero() && len(st.Scheme) > 0 {
		reps := st.Scheme[(round-1)%len(st.Scheme)]
		if err := rt.Memory().Set(r.reps, reps); err != nil {
			slog.Warn("update reps failed", "block", b.Key(), "error", err)
		}
	}
}

func turnSeq(rt *engine.Runtime) int64 {
	if t := rt.Turn(); t != nil {
		return t.Seq()
	}
	return 0
}
