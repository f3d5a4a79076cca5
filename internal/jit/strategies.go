package jit

import (
	"fmt"
	"strings"

	"github.com/roach88/wodrun/internal/behavior"
	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/ir"
)

// Block types produced by the built-in strategies.
const (
	TypeInterval = "interval"
	TypeAMRAP    = "amrap"
	TypeTimer    = "timer"
	TypeRounds   = "rounds"
	TypeGroup    = "group"
	TypeEffort   = "effort"
)

func actionIs(stmt *ir.Statement, names ...string) bool {
	action := strings.ToLower(ir.NormalizeText(stmt.ActionName()))
	for _, n := range names {
		if action == n {
			return true
		}
	}
	return false
}

func positiveTimer(stmt *ir.Statement) (int64, bool) {
	ms, ok := stmt.TimerMillis()
	return ms, ok && ms > 0
}

// roundsOf returns the round count and rep scheme of a rounds fragment.
// A single Int is a plain count; an Array is a rep scheme.
func roundsOf(stmt *ir.Statement) (int, []int64, error) {
	f, ok := stmt.First(ir.KindRounds)
	if !ok {
		return 0, nil, nil
	}
	switch v := f.Value.(type) {
	case ir.Int:
		if v <= 0 {
			return 0, nil, fmt.Errorf("rounds must be positive, got %d", v)
		}
		return int(v), nil, nil
	case ir.Array:
		scheme, ok := ir.AsInts(v)
		if !ok || len(scheme) == 0 {
			return 0, nil, fmt.Errorf("rep scheme must be a non-empty list of integers")
		}
		return len(scheme), scheme, nil
	default:
		return 0, nil, fmt.Errorf("rounds value has unsupported type %T", f.Value)
	}
}

func newBlock(rt *engine.Runtime, stmt *ir.Statement, blockType string) *engine.Block {
	return engine.NewBlock(rt, engine.BlockSpec{
		Type:      blockType,
		Label:     ir.Label(stmt),
		SourceIDs: []int64{stmt.ID},
	})
}

// IntervalStrategy compiles every-interval blocks ("EMOM"): a timer, a
// round count and children, restarted each interval.
type IntervalStrategy struct{}

func (IntervalStrategy) Name() string { return "interval" }

func (IntervalStrategy) Match(stmt *ir.Statement) bool {
	_, timed := positiveTimer(stmt)
	return timed && stmt.HasChildren() && stmt.Has(ir.KindRounds) &&
		actionIs(stmt, "emom", "interval")
}

func (IntervalStrategy) Compile(rt *engine.Runtime, stmt *ir.Statement, opts Options) (*engine.Block, error) {
	ms, _ := positiveTimer(stmt)
	total, _, err := roundsOf(stmt)
	if err != nil {
		return nil, err
	}
	b := newBlock(rt, stmt, TypeInterval)
	err = attachChildren(b, stmt.Children, func(cursor *behavior.ChildIndex) ([]engine.Behavior, error) {
		iv, err := behavior.NewInterval(b, cursor, ms, total)
		if err != nil {
			return nil, err
		}
		return []engine.Behavior{iv}, nil
	}, opts)
	return b, err
}

// TimeBoundRoundsStrategy compiles "as many rounds as possible" blocks: a
// countdown over children that loop until time runs out.
type TimeBoundRoundsStrategy struct{}

func (TimeBoundRoundsStrategy) Name() string { return "time-bound-rounds" }

func (TimeBoundRoundsStrategy) Match(stmt *ir.Statement) bool {
	_, timed := positiveTimer(stmt)
	return timed && stmt.HasChildren() && actionIs(stmt, "amrap")
}

func (TimeBoundRoundsStrategy) Compile(rt *engine.Runtime, stmt *ir.Statement, opts Options) (*engine.Block, error) {
	ms, _ := positiveTimer(stmt)
	b := newBlock(rt, stmt, TypeAMRAP)
	err := attachChildren(b, stmt.Children, func(cursor *behavior.ChildIndex) ([]engine.Behavior, error) {
		timer, err := behavior.NewTimer(b, ms)
		if err != nil {
			return nil, err
		}
		rounds, err := behavior.NewRounds(b, cursor, 0, nil)
		if err != nil {
			return nil, err
		}
		return []engine.Behavior{timer, rounds}, nil
	}, opts)
	return b, err
}

// TimerStrategy compiles any other timed statement. With children it runs
// them (looping when a round count is given) until they finish or the
// countdown expires. As a leaf it is a countdown (or stopwatch) that can be
// skipped with next.
type TimerStrategy struct{}

func (TimerStrategy) Name() string { return "timer" }

func (TimerStrategy) Match(stmt *ir.Statement) bool {
	return stmt.Has(ir.KindTimer)
}

func (TimerStrategy) Compile(rt *engine.Runtime, stmt *ir.Statement, opts Options) (*engine.Block, error) {
	ms, _ := stmt.TimerMillis()
	if ms < 0 {
		ms = 0
	}
	b := newBlock(rt, stmt, TypeTimer)

	if stmt.HasChildren() {
		total, scheme, err := roundsOf(stmt)
		if err != nil {
			return nil, err
		}
		err = attachChildren(b, stmt.Children, func(cursor *behavior.ChildIndex) ([]engine.Behavior, error) {
			timer, err := behavior.NewTimer(b, ms)
			if err != nil {
				return nil, err
			}
			list := []engine.Behavior{timer}
			if total > 0 {
				rounds, err := behavior.NewRounds(b, cursor, total, scheme)
				if err != nil {
					return nil, err
				}
				list = append(list, rounds)
			}
			return list, nil
		}, opts)
		return b, err
	}

	if err := publishLabel(b); err != nil {
		return b, err
	}
	timer, err := behavior.NewTimer(b, ms)
	if err != nil {
		return b, err
	}
	segment := "work"
	if actionIs(stmt, "rest") || isRestEffort(stmt) {
		segment = "rest"
	}
	err = b.Attach(
		timer,
		behavior.NewSegment(segment),
		behavior.NewMetrics(behavior.StatementMetrics(rt, b, []*ir.Statement{stmt})),
		behavior.NewCompletion(nil, true),
	)
	return b, err
}

func isRestEffort(stmt *ir.Statement) bool {
	f, ok := stmt.First(ir.KindEffort)
	if !ok {
		return false
	}
	name, _ := ir.AsString(f.Value)
	return strings.EqualFold(strings.TrimSpace(name), "rest")
}

// RoundsStrategy compiles counted rounds over children. A rep scheme
// (21-15-9) publishes each round's reps to the children.
type RoundsStrategy struct{}

func (RoundsStrategy) Name() string { return "rounds" }

func (RoundsStrategy) Match(stmt *ir.Statement) bool {
	return stmt.Has(ir.KindRounds) && stmt.HasChildren()
}

func (RoundsStrategy) Compile(rt *engine.Runtime, stmt *ir.Statement, opts Options) (*engine.Block, error) {
	total, scheme, err := roundsOf(stmt)
	if err != nil {
		return nil, err
	}
	b := newBlock(rt, stmt, TypeRounds)
	err = attachChildren(b, stmt.Children, func(cursor *behavior.ChildIndex) ([]engine.Behavior, error) {
		rounds, err := behavior.NewRounds(b, cursor, total, scheme)
		if err != nil {
			return nil, err
		}
		return []engine.Behavior{rounds}, nil
	}, opts)
	return b, err
}

// GroupStrategy runs children once, in order.
type GroupStrategy struct{}

func (GroupStrategy) Name() string { return "group" }

func (GroupStrategy) Match(stmt *ir.Statement) bool {
	return stmt.HasChildren()
}

func (GroupStrategy) Compile(rt *engine.Runtime, stmt *ir.Statement, opts Options) (*engine.Block, error) {
	b := newBlock(rt, stmt, TypeGroup)
	return b, attachChildren(b, stmt.Children, nil, opts)
}

// EffortStrategy is the catch-all leaf: display the line, wait for next.
type EffortStrategy struct{}

func (EffortStrategy) Name() string { return "effort" }

func (EffortStrategy) Match(*ir.Statement) bool { return true }

func (EffortStrategy) Compile(rt *engine.Runtime, stmt *ir.Statement, _ Options) (*engine.Block, error) {
	b := newBlock(rt, stmt, TypeEffort)
	if err := publishLabel(b); err != nil {
		return b, err
	}
	metrics := behavior.StatementMetrics(rt, b, []*ir.Statement{stmt})
	effort, err := behavior.NewEffort(b, metrics)
	if err != nil {
		return b, err
	}
	return b, b.Attach(effort, behavior.NewMetrics(metrics))
}
