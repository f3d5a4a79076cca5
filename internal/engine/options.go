package engine

import (
	"github.com/roach88/wodrun/internal/ids"
	"github.com/roach88/wodrun/internal/tracker"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithMaxDepth sets the stack depth limit.
//
// Default: 32 (DefaultMaxDepth)
// Use WithMaxDepth(2) for testing the depth guard.
func WithMaxDepth(n int) Option {
	return func(rt *Runtime) {
		rt.maxDepth = n
	}
}

// WithClock sets the clock read at the start of every turn.
func WithClock(c Clock) Option {
	return func(rt *Runtime) {
		if c != nil {
			rt.clock = c
		}
	}
}

// WithKeyGenerator sets the block key generator. Tests use ids.Sequence for
// readable, deterministic keys.
func WithKeyGenerator(g ids.Generator) Option {
	return func(rt *Runtime) {
		if g != nil {
			rt.keys = g
		}
	}
}

// WithLifecycleHook adds a lifecycle observer. Hooks run in the order added.
func WithLifecycleHook(h LifecycleHook) Option {
	return func(rt *Runtime) {
		if h != nil {
			rt.hooks = append(rt.hooks, h)
		}
	}
}

// WithTracker replaces the execution tracker.
func WithTracker(t *tracker.Tracker) Option {
	return func(rt *Runtime) {
		if t != nil {
			rt.tracker = t
		}
	}
}
