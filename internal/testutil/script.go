package testutil

import (
	"testing"

	"github.com/roach88/wodrun/internal/ir"
)

// ScriptBuilder assembles statements for tests. Add links every statement
// into its parent's children as a single-member group; Superset merges
// existing groups.
type ScriptBuilder struct {
	stmts []ir.Statement
	index map[int64]int
}

// NewScriptBuilder creates an empty builder.
func NewScriptBuilder() *ScriptBuilder {
	return &ScriptBuilder{index: make(map[int64]int)}
}

// Add appends a statement. parent 0 makes it top-level.
func (b *ScriptBuilder) Add(id, parent int64, frags ...ir.Fragment) *ScriptBuilder {
	b.index[id] = len(b.stmts)
	b.stmts = append(b.stmts, ir.Statement{ID: id, ParentID: parent, Fragments: frags})
	if i, ok := b.index[parent]; ok && parent != 0 {
		b.stmts[i].Children = append(b.stmts[i].Children, []int64{id})
	}
	return b
}

// Superset replaces the single-member groups of ids under parent with one
// group containing all of them, placed where the first one was.
func (b *ScriptBuilder) Superset(parent int64, ids ...int64) *ScriptBuilder {
	i, ok := b.index[parent]
	if !ok || len(ids) == 0 {
		return b
	}
	members := make(map[int64]bool, len(ids))
	for _, id := range ids {
		members[id] = true
	}
	var groups [][]int64
	placed := false
	for _, g := range b.stmts[i].Children {
		if len(g) == 1 && members[g[0]] {
			if !placed {
				groups = append(groups, append([]int64(nil), ids...))
				placed = true
			}
			continue
		}
		groups = append(groups, g)
	}
	b.stmts[i].Children = groups
	return b
}

// Build validates and returns the script.
func (b *ScriptBuilder) Build() (*ir.Script, error) {
	return ir.NewScript(b.stmts)
}

// MustBuild builds the script or fails the test.
func (b *ScriptBuilder) MustBuild(t testing.TB) *ir.Script {
	t.Helper()
	s, err := b.Build()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	return s
}

// Effort is an exercise-name fragment.
func Effort(name string) ir.Fragment {
	return ir.Fragment{Kind: ir.KindEffort, Value: ir.String(name), Image: name}
}

// Reps is a repetition-count fragment.
func Reps(n int64) ir.Fragment {
	return ir.Fragment{Kind: ir.KindRep, Value: ir.Int(n)}
}

// Rounds is a round-count fragment.
func Rounds(n int64) ir.Fragment {
	return ir.Fragment{Kind: ir.KindRounds, Value: ir.Int(n)}
}

// Scheme is a rep-scheme rounds fragment, e.g. Scheme(21, 15, 9).
func Scheme(reps ...int64) ir.Fragment {
	arr := make(ir.Array, len(reps))
	for i, r := range reps {
		arr[i] = ir.Int(r)
	}
	return ir.Fragment{Kind: ir.KindRounds, Value: arr}
}

// Timer is a duration fragment in milliseconds.
func Timer(ms int64) ir.Fragment {
	return ir.Fragment{Kind: ir.KindTimer, Value: ir.Int(ms), Image: ir.FormatMillis(ms)}
}

// Action is a workout-modifier fragment such as "AMRAP" or "EMOM".
func Action(name string) ir.Fragment {
	return ir.Fragment{Kind: ir.KindAction, Value: ir.String(name), Image: name}
}

// Resistance is a load fragment.
func Resistance(amount int64, unit string) ir.Fragment {
	return ir.Fragment{Kind: ir.KindResistance, Value: ir.NewObject(
		ir.P("amount", ir.Int(amount)), ir.P("unit", ir.String(unit)))}
}

// Distance is a distance fragment.
func Distance(amount int64, unit string) ir.Fragment {
	return ir.Fragment{Kind: ir.KindDistance, Value: ir.NewObject(
		ir.P("amount", ir.Int(amount)), ir.P("unit", ir.String(unit)))}
}
