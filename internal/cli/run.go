package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/host"
	"github.com/roach88/wodrun/internal/ids"
	"github.com/roach88/wodrun/internal/ir"
	"github.com/roach88/wodrun/internal/jit"
	"github.com/roach88/wodrun/internal/store"
	"github.com/roach88/wodrun/internal/tracker"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Tick     time.Duration
	MaxDepth int
	Cache    bool
	Profile  string

	// RunIDs overrides the run id generator (for testing).
	RunIDs ids.Generator
}

// RunSummary is the result of a run.
type RunSummary struct {
	RunID    string        `json:"run_id"`
	Workout  string        `json:"workout"`
	Complete bool          `json:"complete"`
	Spans    []SpanSummary `json:"spans"`
	Errors   []string      `json:"errors,omitempty"`
}

// SpanSummary is a completed span in command output.
type SpanSummary struct {
	Label      string           `json:"label"`
	BlockType  string           `json:"block_type"`
	DurationMs int64            `json:"duration_ms"`
	Metrics    []tracker.Metric `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workout.cue>",
		Short: "Run a workout interactively",
		Long: `Run a workout against the wall clock.

Each line read from stdin is an event: an empty line, "n" or "next"
advances the current block, "q" or "quit" stops, and any other word is
delivered as an event of that name. Timers advance on tick events sent
every --tick. The run stops when the workout completes, on quit, at end
of input, or on Ctrl-C.

Completed spans are written to --db when given.

Examples:
  wodrun run fran.cue
  wodrun run cindy.cue --db ./wod.db --tick 100ms
  wodrun run emom.cue --profile gym.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Profile != "" {
				p, err := LoadProfile(opts.Profile)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid profile", err)
				}
				p.apply(opts, cmd)
			}
			return runWorkout(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite span log")
	cmd.Flags().DurationVar(&opts.Tick, "tick", time.Second, "tick interval (0 disables ticks)")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", engine.DefaultMaxDepth, "block stack depth limit")
	cmd.Flags().BoolVar(&opts.Cache, "cache", false, "reuse compiled child recipes across rounds")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "YAML file with default run flags")

	return cmd
}

func runWorkout(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	w, err := loadOne(path)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return err
	}

	gen := opts.RunIDs
	if gen == nil {
		gen = ids.UUIDv7Generator{}
	}
	runID := gen.Generate()

	rt := engine.New(w.Script, jit.Default(jit.WithCache(opts.Cache)),
		engine.WithMaxDepth(opts.MaxDepth),
	)

	driverOpts := []host.Option{
		host.WithTicker(opts.Tick),
		host.WithStopOnComplete(true),
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		run := store.Run{ID: runID, Workout: w.Name, StartedAt: time.Now()}
		if roots := w.Script.Roots(); len(roots) > 0 {
			run.Fingerprint, _ = ir.Fingerprint(roots[0])
		}
		if err := st.BeginRun(context.Background(), run); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		driverOpts = append(driverOpts, host.WithSink(st, runID))
	}

	var mu sync.Mutex
	var spans []tracker.Span
	live := !formatter.JSON() && isTerminal(cmd.OutOrStdout())
	driverOpts = append(driverOpts, host.WithOnTurn(func(_ engine.TurnStats, completed []tracker.Span) {
		mu.Lock()
		spans = append(spans, completed...)
		mu.Unlock()
		if live {
			for _, s := range completed {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %-28s %s\n", s.Label, ir.FormatMillis(s.Duration().Milliseconds()))
			}
		}
	}))

	driver := host.NewDriver(rt, driverOpts...)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	driver.Enqueue(engine.NewEvent(engine.EventStart, nil))
	go readEvents(cmd.InOrStdin(), driver)

	if live {
		fmt.Fprintf(cmd.OutOrStdout(), "%s started. Enter to advance, q to quit.\n", w.Name)
	}
	slog.Info("run starting", "workout", w.Name, "run", runID, "db", opts.Database)

	if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "run failed", err)
	}

	mu.Lock()
	defer mu.Unlock()
	summary := RunSummary{RunID: runID, Workout: w.Name, Complete: rt.Done(), Spans: []SpanSummary{}}
	for _, s := range spans {
		summary.Spans = append(summary.Spans, SpanSummary{
			Label:      s.Label,
			BlockType:  s.BlockType,
			DurationMs: s.Duration().Milliseconds(),
			Metrics:    s.Metrics,
		})
	}
	for _, e := range rt.Errors() {
		summary.Errors = append(summary.Errors, e.Error())
	}
	return formatter.Success(summary, formatRunSummary(summary))
}

// readEvents turns input lines into events until end of input or quit.
func readEvents(r io.Reader, driver *host.Driver) {
	defer driver.Stop()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch line := strings.TrimSpace(scanner.Text()); line {
		case "", "n", "next":
			driver.Enqueue(engine.NewEvent(engine.EventNext, nil))
		case "q", "quit":
			return
		default:
			driver.Enqueue(engine.NewEvent(line, nil))
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func formatRunSummary(s RunSummary) string {
	var b strings.Builder
	state := "stopped"
	if s.Complete {
		state = "complete"
	}
	fmt.Fprintf(&b, "%s %s (run %s)\n", s.Workout, state, s.RunID)
	for _, span := range s.Spans {
		fmt.Fprintf(&b, "  %-10s %-28s %s", span.BlockType, span.Label, ir.FormatMillis(span.DurationMs))
		for _, m := range span.Metrics {
			fmt.Fprintf(&b, " %s=%d%s", m.Name, m.Value, m.Unit)
		}
		b.WriteString("\n")
	}
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "  error: %s\n", e)
	}
	return strings.TrimRight(b.String(), "\n")
}
