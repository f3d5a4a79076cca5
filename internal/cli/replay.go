package cli

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/wodrun/internal/harness"
	"github.com/roach88/wodrun/internal/ids"
	"github.com/roach88/wodrun/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Check    bool

	// RunIDs overrides the run id generator (for testing).
	RunIDs ids.Generator
}

// ReplayResult is the output of a replay.
type ReplayResult struct {
	RunID         string               `json:"run_id,omitempty"`
	Workout       string               `json:"workout"`
	Complete      bool                 `json:"complete"`
	Turns         int                  `json:"turns"`
	Spans         []harness.SpanRecord `json:"spans"`
	Errors        []string             `json:"errors,omitempty"`
	Deterministic *bool                `json:"deterministic,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	return newReplayCommand(&ReplayOptions{RootOptions: rootOpts})
}

func newReplayCommand(opts *ReplayOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <workout.cue> <events.yaml>",
		Short: "Replay a recorded event sequence on a fake clock",
		Long: `Replay feeds a list of events to a fresh runtime whose clock only moves
by each event's advance_ms, so the same inputs always produce the same
spans.

The events file is a YAML list:

  - event: start
  - event: next
    advance_ms: 20000
  - event: tick
    advance_ms: 1000
    repeat: 60

With --check the replay runs twice and fails if the span logs differ.

Exit codes:
  0 - Replay finished (and was deterministic with --check)
  1 - Replay diverged between runs
  2 - Command error (bad paths, malformed events)`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "also write the spans to this SQLite span log")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "replay twice and verify identical output")

	return cmd
}

// LoadEvents reads a YAML event list.
func LoadEvents(path string) ([]harness.Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	var steps []harness.Step
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&steps); err != nil {
		return nil, fmt.Errorf("failed to parse events %s: %w", path, err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("events %s: no events", path)
	}
	for i, s := range steps {
		if s.Event == "" {
			return nil, fmt.Errorf("events %s: [%d]: event is required", path, i)
		}
		if s.AdvanceMs < 0 || s.Repeat < 0 {
			return nil, fmt.Errorf("events %s: [%d]: advance_ms and repeat must be non-negative", path, i)
		}
	}
	return steps, nil
}

func runReplay(opts *ReplayOptions, workoutPath, eventsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	w, err := loadOne(workoutPath)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return err
	}
	steps, err := LoadEvents(eventsPath)
	if err != nil {
		_ = formatter.Error(ErrCodeBadEvents, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid events", err)
	}

	scenario := &harness.Scenario{Name: w.Name, Workout: w.Source, Events: steps}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()

		gen := opts.RunIDs
		if gen == nil {
			gen = ids.UUIDv7Generator{}
		}
		scenario.RunID = gen.Generate()
	}

	result, err := harness.RunWithStore(scenario, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	out := ReplayResult{
		RunID:    scenario.RunID,
		Workout:  w.Name,
		Complete: result.Complete,
		Turns:    result.Turns,
		Spans:    result.Spans,
	}
	for _, e := range result.RuntimeErrors {
		out.Errors = append(out.Errors, e.Error())
	}

	if opts.Check {
		again, err := harness.Run(&harness.Scenario{Name: w.Name, Workout: w.Source, Events: steps})
		if err != nil {
			return WrapExitError(ExitCommandError, "replay failed", err)
		}
		first, err := harness.Snapshot(w.Name, result)
		if err != nil {
			return err
		}
		second, err := harness.Snapshot(w.Name, again)
		if err != nil {
			return err
		}
		same := bytes.Equal(first, second)
		out.Deterministic = &same
		if !same {
			slog.Error("replay diverged", "workout", w.Name)
			_ = formatter.Success(out, formatReplay(out))
			return NewExitError(ExitFailure, "replay is not deterministic")
		}
	}

	return formatter.Success(out, formatReplay(out))
}

// ErrCodeBadEvents is reported for unreadable or malformed event files.
const ErrCodeBadEvents = "E301"

func formatReplay(r ReplayResult) string {
	var b bytes.Buffer
	state := "stopped"
	if r.Complete {
		state = "complete"
	}
	fmt.Fprintf(&b, "%s %s after %d turns\n", r.Workout, state, r.Turns)
	for _, s := range r.Spans {
		fmt.Fprintf(&b, "  %8d %8d  %-10s %s\n", s.StartMs, s.EndMs, s.BlockType, s.Label)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  error: %s\n", e)
	}
	if r.Deterministic != nil && *r.Deterministic {
		b.WriteString("✓ deterministic\n")
	}
	if r.Deterministic != nil && !*r.Deterministic {
		b.WriteString("✗ output differed between replays\n")
	}
	return string(bytes.TrimRight(b.Bytes(), "\n"))
}
