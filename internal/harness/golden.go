package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/wodrun/internal/ir"
)

// Snapshot renders a result as canonical JSON: the span log, completion
// and the codes of recorded runtime errors. Span ids and wall time are left
// out so the snapshot depends only on the workout and the events.
func Snapshot(name string, result *Result) ([]byte, error) {
	spans := make(ir.Array, 0, len(result.Spans))
	for _, s := range result.Spans {
		obj := ir.NewObject(
			ir.P("label", ir.String(s.Label)),
			ir.P("block_type", ir.String(s.BlockType)),
			ir.P("start_ms", ir.Int(s.StartMs)),
			ir.P("end_ms", ir.Int(s.EndMs)),
		)
		if len(s.Metrics) > 0 {
			metrics := make(ir.Array, 0, len(s.Metrics))
			for _, m := range s.Metrics {
				mo := ir.NewObject(ir.P("name", ir.String(m.Name)), ir.P("value", ir.Int(m.Value)))
				if m.Unit != "" {
					mo["unit"] = ir.String(m.Unit)
				}
				metrics = append(metrics, mo)
			}
			obj["metrics"] = metrics
		}
		if len(s.Segments) > 0 {
			segments := make(ir.Array, 0, len(s.Segments))
			for _, seg := range s.Segments {
				segments = append(segments, ir.NewObject(
					ir.P("name", ir.String(seg.Name)),
					ir.P("start_ms", ir.Int(seg.StartMs)),
					ir.P("end_ms", ir.Int(seg.EndMs)),
				))
			}
			obj["segments"] = segments
		}
		if s.Rounds > 0 {
			obj["rounds"] = ir.Int(s.Rounds)
		}
		spans = append(spans, obj)
	}

	errs := make(ir.Array, 0, len(result.RuntimeErrors))
	for _, e := range result.RuntimeErrors {
		errs = append(errs, ir.String(string(e.Code)))
	}

	return ir.MarshalCanonical(ir.NewObject(
		ir.P("scenario", ir.String(name)),
		ir.P("complete", ir.Bool(result.Complete)),
		ir.P("errors", errs),
		ir.P("spans", spans),
	))
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. A snapshot mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
