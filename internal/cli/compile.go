package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/wodrun/internal/jit"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // plan file; .yaml/.yml writes YAML, anything else JSON
}

// CompiledWorkout is the compile plan of one workout.
type CompiledWorkout struct {
	Name   string          `json:"name" yaml:"name"`
	Source string          `json:"source" yaml:"source"`
	Plan   []jit.PlanEntry `json:"plan" yaml:"plan"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <workout.cue|dir>",
		Short: "Show the strategy chosen for every statement",
		Long: `Load CUE workouts and report, for every statement, the compilation
strategy the runtime would use and the statement fingerprint.

Nothing is executed. Fingerprints are stable across runs, so a plan file
can be diffed to spot changes in how a workout compiles.

Examples:
  wodrun compile fran.cue
  wodrun compile ./workouts -o plan.yaml
  wodrun compile cindy.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the plan to a file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	workouts, errs, err := loadWorkouts(path)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "compile failed", err)
	}
	if len(errs) > 0 {
		_ = formatter.Error(errorCode(errs[0]), errs[0].Error(), errorStrings(errs))
		return NewExitError(ExitFailure, fmt.Sprintf("%d workout(s) failed to load", len(errs)))
	}

	compiler := jit.Default()
	var out []CompiledWorkout
	for _, w := range workouts {
		formatter.VerboseLog("Compiling %s (%s)", w.Name, w.Source)
		plan, err := compiler.Plan(w.Script)
		if err != nil {
			return WrapExitError(ExitFailure, "plan "+w.Name, err)
		}
		out = append(out, CompiledWorkout{Name: w.Name, Source: w.Source, Plan: plan})
	}

	if opts.Output != "" {
		if err := writePlan(out, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "write plan", err)
		}
	}

	return formatter.Success(out, formatPlans(out))
}

// ErrCodeWriteFailed is reported when an output file cannot be written.
const ErrCodeWriteFailed = "E004"

func writePlan(plans []CompiledWorkout, path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(plans)
	default:
		data, err = json.MarshalIndent(plans, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// formatPlans renders plans as indented statement trees.
func formatPlans(plans []CompiledWorkout) string {
	var b strings.Builder
	for i, w := range plans {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s (%s)\n", w.Name, w.Source)
		depth := make(map[int64]int, len(w.Plan))
		for _, e := range w.Plan {
			d := 0
			if e.ParentID != 0 {
				d = depth[e.ParentID] + 1
			}
			depth[e.StatementID] = d
			strategy := e.Strategy
			if strategy == "" {
				strategy = "(none)"
			}
			fp := e.Fingerprint
			if len(fp) > 12 {
				fp = fp[:12]
			}
			fmt.Fprintf(&b, "  %s%-3d %-*s %-18s %s\n",
				strings.Repeat("  ", d), e.StatementID, max(28-2*d, 0), e.Label, strategy, fp)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func errorStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
