package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wodrun/internal/ir"
	"github.com/roach88/wodrun/internal/loader"
	"github.com/roach88/wodrun/internal/store"
	"github.com/roach88/wodrun/internal/tracker"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	BlockType string
	Limit     int
}

// TraceResult is the span log of one run.
type TraceResult struct {
	RunID string         `json:"run_id"`
	Spans []tracker.Span `json:"spans"`
	Stats TraceStats     `json:"stats"`
}

// TraceStats holds summary statistics for a run.
type TraceStats struct {
	Spans      int              `json:"spans"`
	DurationMs int64            `json:"duration_ms"`
	Totals     map[string]int64 `json:"totals,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show recorded runs and their spans",
		Long: `Read the SQLite span log.

Without a run id, lists recorded runs. With a run id, prints the run's
completed spans in the order they were written, with per-metric totals
over effort spans.

Examples:
  wodrun trace --db ./wod.db
  wodrun trace --db ./wod.db 0193c3a0-...
  wodrun trace --db ./wod.db 0193c3a0-... --type effort --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runTrace(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite span log (required)")
	cmd.Flags().StringVar(&opts.BlockType, "type", "", "only spans of this block type")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of spans")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// Opening would create an empty database; a missing file is a usage error.
	if _, err := os.Stat(opts.Database); errors.Is(err, os.ErrNotExist) {
		_ = formatter.Error(loader.ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return NewExitError(ExitCommandError, "database not found: "+opts.Database)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if runID == "" {
		runs, err := st.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list runs", err)
		}
		return formatter.Success(runs, formatRuns(runs))
	}

	spans, err := st.ReadSpans(ctx, store.SpanQuery{RunID: runID, BlockType: opts.BlockType, Limit: opts.Limit})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read spans", err)
	}
	if len(spans) == 0 {
		_ = formatter.Error(ErrCodeNoSpans, fmt.Sprintf("no spans for run %s", runID), nil)
		return NewExitError(ExitFailure, "no spans for run "+runID)
	}

	result := TraceResult{RunID: runID, Spans: spans, Stats: traceStats(spans)}
	return formatter.Success(result, formatTrace(result))
}

// ErrCodeNoSpans is reported when a run id has no recorded spans.
const ErrCodeNoSpans = "E302"

func traceStats(spans []tracker.Span) TraceStats {
	stats := TraceStats{Spans: len(spans), Totals: map[string]int64{}}
	if len(spans) == 0 {
		return stats
	}
	first, last := spans[0].Start, spans[0].End
	for _, s := range spans {
		if s.Start.Before(first) {
			first = s.Start
		}
		if s.End.After(last) {
			last = s.End
		}
		if s.BlockType != "effort" {
			continue
		}
		for _, m := range s.Metrics {
			if m.Name == "reps" || m.Name == "distance" {
				stats.Totals[m.Name] += m.Value
			}
		}
	}
	stats.DurationMs = last.Sub(first).Milliseconds()
	return stats
}

func formatRuns(runs []store.Run) string {
	if len(runs) == 0 {
		return "No runs recorded."
	}
	var b strings.Builder
	for _, r := range runs {
		fmt.Fprintf(&b, "%s  %-20s %3d spans  %s\n",
			r.StartedAt.Format("2006-01-02 15:04"), r.Workout, r.Spans, r.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTrace(r TraceResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %d spans over %s\n", r.RunID, r.Stats.Spans, ir.FormatMillis(r.Stats.DurationMs))
	for i, s := range r.Spans {
		fmt.Fprintf(&b, "  [%d] %-10s %-28s %s", i+1, s.BlockType, s.Label, ir.FormatMillis(s.Duration().Milliseconds()))
		for _, m := range s.Metrics {
			fmt.Fprintf(&b, " %s=%d%s", m.Name, m.Value, m.Unit)
		}
		if len(s.Rounds) > 0 {
			fmt.Fprintf(&b, " rounds=%d", len(s.Rounds))
		}
		b.WriteString("\n")
	}
	if reps, ok := r.Stats.Totals["reps"]; ok {
		fmt.Fprintf(&b, "Total reps: %d\n", reps)
	}
	return strings.TrimRight(b.String(), "\n")
}
