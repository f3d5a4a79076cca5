package behavior

import (
	"fmt"
	"log/slog"

	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/ir"
	"github.com/roach88/wodrun/internal/memory"
	"github.com/roach88/wodrun/internal/tracker"
)

// StatementMetrics derives the display metrics of a leaf from its
// fragments. Statements without a rep fragment take the reps published by
// the nearest enclosing rep scheme visible to b.
func StatementMetrics(rt *engine.Runtime, b *engine.Block, stmts []*ir.Statement) []memory.Metric {
	var out []memory.Metric
	for _, stmt := range stmts {
		if f, ok := stmt.First(ir.KindRep); ok {
			if n, ok := ir.AsInt(f.Value); ok {
				out = append(out, memory.Metric{Name: "reps", Value: n})
			}
		} else if stmt.Has(ir.KindEffort) {
			if ref, ok := b.Context().Nearest(memory.KindReps); ok {
				if n, ok := memory.Value[int64](rt.Memory(), ref); ok {
					out = append(out, memory.Metric{Name: "reps", Value: n})
				}
			}
		}
		for _, f := range stmt.All(ir.KindResistance) {
			out = append(out, amountMetric("resistance", f))
		}
		for _, f := range stmt.All(ir.KindDistance) {
			out = append(out, amountMetric("distance", f))
		}
		if ms, ok := stmt.TimerMillis(); ok && ms > 0 && !stmt.HasChildren() {
			out = append(out, memory.Metric{Name: "duration", Value: ms, Unit: "ms"})
		}
	}
	return out
}

func amountMetric(name string, f ir.Fragment) memory.Metric {
	m := memory.Metric{Name: name}
	if obj, ok := f.Value.(ir.Object); ok {
		m.Value, _ = ir.AsInt(obj["amount"])
		m.Unit, _ = ir.AsString(obj["unit"])
	}
	return m
}

// Effort is the behavior of a plain exercise line: it publishes the line's
// display metrics and completes on the next external advance.
type Effort struct {
	ref memory.Ref
}

// NewEffort allocates the public metrics reference.
func NewEffort(b *engine.Block, metrics []memory.Metric) (*Effort, error) {
	ref, err := b.Context().Allocate(memory.KindMetrics, append([]memory.Metric(nil), metrics...), memory.Public)
	if err != nil {
		return nil, fmt.Errorf("effort: %w", err)
	}
	return &Effort{ref: ref}, nil
}

func (e *Effort) Name() string { return "effort" }

// Ref returns the metrics reference.
func (e *Effort) Ref() memory.Ref { return e.ref }

func (e *Effort) OnNext(_ *engine.Runtime, b *engine.Block, opts engine.NextOptions) []engine.Action {
	if opts.Reason != engine.NextAdvance && !b.IsComplete() {
		return nil
	}
	b.MarkComplete("advanced")
	return []engine.Action{engine.PopBlock(b.Key())}
}

// Metrics writes a fixed set of measurements into the block's span when the
// block is popped.
type Metrics struct {
	metrics []memory.Metric
}

// NewMetrics records metrics at pop.
func NewMetrics(metrics []memory.Metric) *Metrics {
	return &Metrics{metrics: append([]memory.Metric(nil), metrics...)}
}

func (m *Metrics) Name() string { return "metrics" }

func (m *Metrics) OnPop(rt *engine.Runtime, b *engine.Block) []engine.Action {
	for _, metric := range m.metrics {
		recordMetric(rt, b, tracker.Metric{Name: metric.Name, Value: metric.Value, Unit: metric.Unit})
	}
	return nil
}

// Segment opens a named tracker segment on push and closes it on pop.
type Segment struct {
	name string
}

// NewSegment tracks a segment called name.
func NewSegment(name string) *Segment {
	return &Segment{name: name}
}

func (s *Segment) Name() string { return "segment:" + s.name }

func (s *Segment) OnPush(rt *engine.Runtime, b *engine.Block) []engine.Action {
	if err := rt.Tracker().StartSegment(string(b.Key()), s.name, rt.Now()); err != nil {
		slog.Debug("start segment skipped", "block", b.Key(), "segment", s.name, "error", err)
	}
	return nil
}

func (s *Segment) OnPop(rt *engine.Runtime, b *engine.Block) []engine.Action {
	if err := rt.Tracker().EndSegment(string(b.Key()), s.name, rt.Now()); err != nil {
		slog.Debug("end segment skipped", "block", b.Key(), "segment", s.name, "error", err)
	}
	return nil
}

// ErrorHalt is the only behavior of an error block: on push it records the
// compile failure and pops the block, so nothing beneath the failed
// statement runs.
type ErrorHalt struct {
	err engine.RuntimeError
}

// NewErrorHalt records err when pushed.
func NewErrorHalt(err engine.RuntimeError) *ErrorHalt {
	return &ErrorHalt{err: err}
}

func (h *ErrorHalt) Name() string { return "error-halt" }

// Err returns the error the block reports.
func (h *ErrorHalt) Err() engine.RuntimeError { return h.err }

func (h *ErrorHalt) OnPush(rt *engine.Runtime, b *engine.Block) []engine.Action {
	e := h.err
	e.BlockKey = b.Key()
	rt.RecordError(e)
	slog.Warn("error block reached",
		"block", b.Key(),
		"code", e.Code,
		"statement", e.StatementID,
		"message", e.Message,
	)
	b.MarkComplete("error")
	return []engine.Action{engine.PopBlock(b.Key())}
}
