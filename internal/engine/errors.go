package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrStackOverflow is returned when a push would exceed the max depth.
	ErrStackOverflow = errors.New("stack depth limit exceeded")
	// ErrDuplicateKey is returned when pushing a block already on the stack.
	ErrDuplicateKey = errors.New("block key already on stack")
	// ErrNilBlock is returned when pushing nil.
	ErrNilBlock = errors.New("nil block")
	// ErrEmptyStack is returned when popping an empty stack.
	ErrEmptyStack = errors.New("stack is empty")
	// ErrAlreadyMounted is returned by a second Mount.
	ErrAlreadyMounted = errors.New("block already mounted")
	// ErrNotMounted is returned by Next or Unmount on a block never mounted.
	ErrNotMounted = errors.New("block not mounted")
	// ErrAlreadyUnmounted is returned by a second Unmount.
	ErrAlreadyUnmounted = errors.New("block already unmounted")
	// ErrDisposed is returned by any lifecycle call after Dispose.
	ErrDisposed = errors.New("block disposed")
	// ErrNoTurn is returned by Do and Emit outside Handle.
	ErrNoTurn = errors.New("no active turn")
	// ErrTurnInProgress is returned by a nested Handle call.
	ErrTurnInProgress = errors.New("turn already in progress")
	// ErrInvalidScope is returned when a registration omits or misspells
	// its scope.
	ErrInvalidScope = errors.New("invalid handler scope")
)

// RuntimeErrorCode categorizes entries of the runtime error list.
type RuntimeErrorCode string

const (
	// ErrCodeCompileFailed indicates a strategy failed to build a block.
	ErrCodeCompileFailed RuntimeErrorCode = "COMPILE_FAILED"
	// ErrCodeNoStrategy indicates no strategy matched a statement.
	ErrCodeNoStrategy RuntimeErrorCode = "NO_STRATEGY"
	// ErrCodeActionFailed indicates an action returned an error or panicked.
	ErrCodeActionFailed RuntimeErrorCode = "ACTION_FAILED"
	// ErrCodeStackOverflow indicates a push exceeded the depth limit.
	ErrCodeStackOverflow RuntimeErrorCode = "STACK_OVERFLOW"
	// ErrCodeHandlerPanic indicates an event handler panicked.
	ErrCodeHandlerPanic RuntimeErrorCode = "HANDLER_PANIC"
)

// RuntimeError is one structured entry of the runtime error list. Entries
// are accumulated for the host to display; they are not thrown.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// BlockKey identifies the originating block, if any.
	BlockKey BlockKey

	// StatementID identifies the originating statement, if any.
	StatementID int64

	// Turn is the turn number the error was recorded in.
	Turn int64

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.BlockKey != "" {
		msg += fmt.Sprintf(" (block=%s)", e.BlockKey)
	}
	if e.StatementID != 0 {
		msg += fmt.Sprintf(" (statement=%d)", e.StatementID)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsCompileError reports whether err is a compile or no-strategy entry.
func IsCompileError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCompileFailed || re.Code == ErrCodeNoStrategy
	}
	return false
}

// IsOverflowError reports whether err stems from the depth guard.
func IsOverflowError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) && re.Code == ErrCodeStackOverflow {
		return true
	}
	return errors.Is(err, ErrStackOverflow)
}
