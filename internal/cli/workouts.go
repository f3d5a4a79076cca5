package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/wodrun/internal/loader"
)

// loadWorkouts loads one CUE file, or every CUE file under a directory.
// Per-file errors are collected; the returned error is set only when the
// path itself is unusable.
func loadWorkouts(path string) ([]*loader.Workout, []error, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, &loader.LoadError{Code: loader.ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}
	}
	if err != nil {
		return nil, nil, &loader.LoadError{Code: loader.ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", path, err)}
	}

	if !info.IsDir() {
		w, err := loader.LoadFile(path)
		if err != nil {
			return nil, []error{err}, nil
		}
		return []*loader.Workout{w}, nil, nil
	}

	files, err := loader.FindCUEFiles(path)
	if err != nil {
		return nil, nil, &loader.LoadError{Code: loader.ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, nil, &loader.LoadError{Code: loader.ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
	}
	workouts, errs := loader.LoadDir(path)
	return workouts, errs, nil
}

// loadOne loads exactly one workout file for commands that run it.
func loadOne(path string) (*loader.Workout, error) {
	workouts, errs, err := loadWorkouts(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot load workout", err)
	}
	if len(errs) > 0 {
		return nil, WrapExitError(ExitFailure, "invalid workout", errs[0])
	}
	if len(workouts) != 1 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("expected one workout in %s, found %d", path, len(workouts)))
	}
	return workouts[0], nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// errorCode returns the loader code of err, or the generic code.
func errorCode(err error) string {
	if code := loader.CodeOf(err); code != "" {
		return code
	}
	return loader.ErrCodeGeneric
}
