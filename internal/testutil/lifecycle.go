package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/wodrun/internal/engine"
)

// LifecycleRecorder collects lifecycle stages via engine.WithLifecycleHook.
//
// Thread-safety: safe for concurrent use via internal mutex.
type LifecycleRecorder struct {
	mu      sync.Mutex
	records []string
}

// NewLifecycleRecorder creates an empty recorder.
func NewLifecycleRecorder() *LifecycleRecorder {
	return &LifecycleRecorder{}
}

// Hook returns the function to pass to engine.WithLifecycleHook.
func (r *LifecycleRecorder) Hook() engine.LifecycleHook {
	return func(stage engine.Stage, key engine.BlockKey) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.records = append(r.records, fmt.Sprintf("%s %s", stage, key))
	}
}

// Records returns "<stage> <key>" entries in the order observed.
func (r *LifecycleRecorder) Records() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.records...)
}

// For returns the stages observed for key, in order.
func (r *LifecycleRecorder) For(key engine.BlockKey) []engine.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []engine.Stage
	var stage, k string
	for _, rec := range r.records {
		if _, err := fmt.Sscanf(rec, "%s %s", &stage, &k); err == nil && k == string(key) {
			out = append(out, engine.Stage(stage))
		}
	}
	return out
}

// Reset discards recorded entries.
func (r *LifecycleRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}
