// Package harness runs workout scenarios against the real runtime and checks
// the recorded spans.
//
// A scenario names a workout (a CUE file or inline source), a list of host
// events with the fake-clock advance that precedes each, and assertions over
// the result. Every scenario runs with a fresh runtime, a fake clock starting
// at testutil.Epoch, sequential block keys and span ids, and an in-memory
// span store, so two runs of the same scenario produce identical output.
//
// # Scenario Format
//
//	name: cindy-one-minute
//	description: AMRAP stops mid-round when the clock expires
//	workout: ../workouts/amrap.cue
//	events:
//	  - event: start
//	  - event: next
//	    advance_ms: 20000
//	  - event: tick
//	    advance_ms: 1000
//	    repeat: 20
//	assertions:
//	  - type: span_count
//	    block_type: effort
//	    count: 3
//	  - type: complete
//	    expect: true
//
// # Assertions
//
//   - span_count: number of completed spans matching label/block_type
//   - span_order: labels appear in this relative order in the span log
//   - span_metric: the Nth matching span carries metric = value
//   - span_duration: the Nth matching span lasted duration_ms
//   - complete: whether the runtime finished
//   - error_count: number of recorded runtime errors, optionally by code
//   - stack_depth: blocks left on the stack
//   - memory_count: memory references left allocated
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON span log against
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
