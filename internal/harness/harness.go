package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/ids"
	"github.com/roach88/wodrun/internal/jit"
	"github.com/roach88/wodrun/internal/loader"
	"github.com/roach88/wodrun/internal/store"
	"github.com/roach88/wodrun/internal/testutil"
	"github.com/roach88/wodrun/internal/tracker"
)

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load the workout
//  2. Create a runtime with a fake clock and sequential ids
//  3. Deliver each event, writing the spans it completed to a fresh
//     in-memory store
//  4. Read the span log back and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunWithStore(scenario, nil)
}

// RunWithStore is Run writing spans to st. A nil st uses a fresh in-memory
// store that is closed before returning.
func RunWithStore(scenario *Scenario, st *store.Store) (*Result, error) {
	ctx := context.Background()

	w, err := loadWorkout(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to load workout: %w", err)
	}

	if st == nil {
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	runID := scenario.RunID
	if runID == "" {
		runID = scenario.Name
	}

	clock := testutil.NewFakeClock(testutil.Epoch)
	start := clock.Now()
	if err := st.BeginRun(ctx, store.Run{ID: runID, Workout: w.Name, StartedAt: start}); err != nil {
		return nil, err
	}

	rt := engine.New(w.Script, jit.Default(),
		engine.WithClock(clock),
		engine.WithKeyGenerator(ids.NewSequence("blk")),
		engine.WithTracker(tracker.New(ids.NewSequence("span"))),
	)

	result := NewResult()
	cursor := 0
	for _, step := range scenario.Events {
		repeat := max(step.Repeat, 1)
		for range repeat {
			clock.AdvanceMs(step.AdvanceMs)
			if err := rt.Handle(engine.NewEvent(step.Event, nil)); err != nil {
				slog.Debug("scenario turn failed", "scenario", scenario.Name, "event", step.Event, "error", err)
			}
			result.Turns++

			var done []tracker.Span
			done, cursor = rt.Tracker().CompletedSince(cursor)
			for _, span := range done {
				if err := st.WriteSpan(ctx, runID, span); err != nil {
					return nil, err
				}
			}
		}
	}

	spans, err := st.ReadSpans(ctx, store.SpanQuery{RunID: runID})
	if err != nil {
		return nil, err
	}
	for _, span := range spans {
		result.Spans = append(result.Spans, toRecord(span, start))
	}
	result.RuntimeErrors = rt.Errors()
	result.Complete = rt.Done()
	result.Depth = rt.Stack().Depth()
	result.MemoryRefs = rt.Memory().Len()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// RunFile loads and runs a scenario file.
func RunFile(path string) (*Scenario, *Result, error) {
	s, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := Run(s)
	return s, r, err
}

func loadWorkout(s *Scenario) (*loader.Workout, error) {
	if s.Source != "" {
		return loader.LoadBytes(s.Name+".cue", []byte(s.Source))
	}
	return loader.LoadFile(s.Workout)
}

func toRecord(span tracker.Span, start time.Time) SpanRecord {
	rel := func(t time.Time) int64 { return t.Sub(start).Milliseconds() }
	rec := SpanRecord{
		ID:        span.ID,
		Label:     span.Label,
		BlockType: span.BlockType,
		StartMs:   rel(span.Start),
		EndMs:     rel(span.End),
		Metrics:   span.Metrics,
		Rounds:    len(span.Rounds),
	}
	for _, seg := range span.Segments {
		sr := SegmentRecord{Name: seg.Name, StartMs: rel(seg.Start)}
		if !seg.End.IsZero() {
			sr.EndMs = rel(seg.End)
		}
		rec.Segments = append(rec.Segments, sr)
	}
	return rec
}
