package loader

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes for load failures.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeScanError    = "E002" // Directory scan error
	ErrCodeNoFiles      = "E003" // No CUE files found
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // CUE build failed
	ErrCodeNoWorkout    = "E201" // Missing or empty workout list
	ErrCodeUnknownField = "E202" // Field that is not a fragment
	ErrCodeInvalidValue = "E203" // Fragment value of the wrong shape
	ErrCodeInvalidTimer = "E204" // Unparseable timer
	ErrCodeInvalidGroup = "E205" // Empty or malformed child group
	ErrCodeInvalidTree  = "E206" // Statement tree failed validation
)

// LoadError reports a script that could not be loaded.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	prefix := e.Code
	if e.Field != "" {
		prefix = fmt.Sprintf("%s: %s", e.Code, e.Field)
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), prefix, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// CodeOf returns the load error code of err, or "" if err is not a LoadError.
func CodeOf(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// fromCUE extracts position info from CUE errors.
func fromCUE(err error, code string) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
