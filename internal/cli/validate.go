package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wodrun/internal/jit"
	"github.com/roach88/wodrun/internal/loader"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// ValidationIssue is one problem found in a workout.
type ValidationIssue struct {
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Statement int64  `json:"statement,omitempty"`
}

// ValidationResult summarizes a validate run.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Workouts int               `json:"workouts"`
	Issues   []ValidationIssue `json:"issues"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <workout.cue|dir>",
		Short: "Check workouts load and every statement compiles",
		Long: `Validate CUE workouts without running them.

Every file is loaded (collecting all load errors rather than stopping at
the first), then every statement is compiled on its own so statements
that would halt at run time with a compile error are reported up front.

Exit codes:
  0 - All workouts valid
  1 - One or more problems found
  2 - Command error (path not found, no CUE files)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	workouts, loadErrs, err := loadWorkouts(path)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "validate failed", err)
	}

	result := ValidationResult{Workouts: len(workouts) + len(loadErrs), Issues: []ValidationIssue{}}
	for _, err := range loadErrs {
		result.Issues = append(result.Issues, loadIssue(err))
	}

	compiler := jit.Default()
	for _, w := range workouts {
		formatter.VerboseLog("Validating %s (%s)", w.Name, w.Source)
		for _, rerr := range compiler.Verify(w.Script) {
			issue := ValidationIssue{
				File:      w.Source,
				Code:      string(rerr.Code),
				Message:   rerr.Message,
				Statement: rerr.StatementID,
			}
			if stmt, ok := w.Script.Get(rerr.StatementID); ok {
				issue.Line = stmt.Pos.Line
			}
			result.Issues = append(result.Issues, issue)
		}
	}
	result.Valid = len(result.Issues) == 0

	if err := formatter.Success(result, formatValidation(result)); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d problem(s) found", len(result.Issues)))
	}
	return nil
}

func loadIssue(err error) ValidationIssue {
	issue := ValidationIssue{Code: errorCode(err), Message: err.Error()}
	var le *loader.LoadError
	if errors.As(err, &le) {
		issue.Message = le.Message
		if le.Field != "" {
			issue.Message = le.Field + ": " + le.Message
		}
		if le.Pos.IsValid() {
			issue.File = le.Pos.Filename()
			issue.Line = le.Pos.Line()
		}
	}
	return issue
}

func formatValidation(r ValidationResult) string {
	if r.Valid {
		return fmt.Sprintf("✓ All workouts valid (%d checked)", r.Workouts)
	}
	var b strings.Builder
	for _, is := range r.Issues {
		loc := is.File
		if is.Line > 0 {
			loc = fmt.Sprintf("%s:%d", is.File, is.Line)
		}
		if loc != "" {
			loc += ": "
		}
		fmt.Fprintf(&b, "✗ %s[%s] %s\n", loc, is.Code, is.Message)
	}
	fmt.Fprintf(&b, "%d problem(s) in %d workout(s)", len(r.Issues), r.Workouts)
	return b.String()
}
