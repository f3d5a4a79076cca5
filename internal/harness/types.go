package harness

import (
	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/tracker"
)

// SpanRecord is a completed span with instants relative to the start of the
// scenario.
type SpanRecord struct {
	ID        string           `json:"id"`
	Label     string           `json:"label"`
	BlockType string           `json:"block_type"`
	StartMs   int64            `json:"start_ms"`
	EndMs     int64            `json:"end_ms"`
	Metrics   []tracker.Metric `json:"metrics,omitempty"`
	Segments  []SegmentRecord  `json:"segments,omitempty"`
	Rounds    int              `json:"rounds,omitempty"`
}

// DurationMs returns EndMs-StartMs.
func (s SpanRecord) DurationMs() int64 {
	return s.EndMs - s.StartMs
}

// Metric returns the first metric called name.
func (s SpanRecord) Metric(name string) (tracker.Metric, bool) {
	for _, m := range s.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return tracker.Metric{}, false
}

// SegmentRecord is a named sub-interval of a span.
type SegmentRecord struct {
	Name    string `json:"name"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Spans is the run's span log as read back from the store.
	Spans []SpanRecord `json:"spans"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// RuntimeErrors are the errors the runtime recorded while running.
	RuntimeErrors []engine.RuntimeError `json:"runtime_errors,omitempty"`

	// Complete reports whether the root block was popped.
	Complete bool `json:"complete"`

	// Depth and MemoryRefs describe what was left behind.
	Depth      int `json:"depth"`
	MemoryRefs int `json:"memory_refs"`

	// Turns is the number of events handled.
	Turns int `json:"turns"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Spans:  []SpanRecord{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
