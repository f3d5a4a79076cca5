package memory

import "fmt"

// Visibility controls which blocks may discover a reference.
type Visibility string

const (
	Public    Visibility = "public"
	Private   Visibility = "private"
	Inherited Visibility = "inherited"
)

// Validate returns an error for unknown visibilities.
func (v Visibility) Validate() error {
	switch v {
	case Public, Private, Inherited:
		return nil
	default:
		return fmt.Errorf("invalid visibility %q: must be public, private, or inherited", string(v))
	}
}

// Kind tags what a reference holds.
type Kind string

const (
	// KindChildIndex holds a ChildCursor.
	KindChildIndex Kind = "child-index"
	// KindRounds holds a RoundsState.
	KindRounds Kind = "rounds"
	// KindReps holds the rep count (int64) the current round prescribes.
	KindReps Kind = "reps"
	// KindTimer holds a TimerState.
	KindTimer Kind = "timer"
	// KindInterval holds an IntervalState.
	KindInterval Kind = "interval"
	// KindMetrics holds the display metrics ([]Metric) of a block.
	KindMetrics Kind = "metrics"
	// KindLabel holds the display label (string) of a block.
	KindLabel Kind = "label"
)

// RefID identifies a reference. Ids are never reused within a store.
type RefID uint64

// Ref is a handle to a stored reference. The value itself lives in the store,
// so a handle to a released reference can never observe a stale value.
type Ref struct {
	ID         RefID
	Owner      string
	Kind       Kind
	Visibility Visibility
}

// IsZero reports whether the handle is unset.
func (r Ref) IsZero() bool {
	return r.ID == 0
}

func (r Ref) String() string {
	return fmt.Sprintf("ref#%d(%s/%s/%s)", r.ID, r.Owner, r.Kind, r.Visibility)
}

// Criteria is a partial match over reference fields. Zero fields match
// anything.
type Criteria struct {
	ID         RefID
	Owner      string
	Kind       Kind
	Visibility Visibility
}

func (c Criteria) matches(r Ref) bool {
	if c.ID != 0 && c.ID != r.ID {
		return false
	}
	if c.Owner != "" && c.Owner != r.Owner {
		return false
	}
	if c.Kind != "" && c.Kind != r.Kind {
		return false
	}
	if c.Visibility != "" && c.Visibility != r.Visibility {
		return false
	}
	return true
}

// Callback observes a value change. previous is the value before Set.
type Callback func(value, previous any)

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64

// Metric is one displayed measurement, e.g. {reps 21} or {resistance 95 lb}.
type Metric struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// ChildCursor tracks which child group a parent block runs next.
// Index is -1 before the first advance.
type ChildCursor struct {
	Index int
	Count int
}

// Exhausted reports whether every child group has been visited.
func (c ChildCursor) Exhausted() bool {
	return c.Index >= c.Count
}

// RoundsState is the public round counter of a looping block.
// Total of 0 means unbounded (time-capped blocks).
type RoundsState struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Scheme  []int64 `json:"scheme,omitempty"`
}

// Done reports whether the last round has finished.
func (r RoundsState) Done() bool {
	return r.Total > 0 && r.Current > r.Total
}

// TimeSpan is one running stretch of a timer in unix milliseconds.
// Stop is 0 while the span is open.
type TimeSpan struct {
	Start int64 `json:"start"`
	Stop  int64 `json:"stop,omitempty"`
}

// TimerState is the public state of a block timer.
type TimerState struct {
	DurationMs int64      `json:"duration_ms"` // 0 for count-up timers
	Countdown  bool       `json:"countdown"`
	Spans      []TimeSpan `json:"spans"`
	Expired    bool       `json:"expired"`
}

// Elapsed returns the accumulated running time at nowMs.
func (t TimerState) Elapsed(nowMs int64) int64 {
	var total int64
	for _, s := range t.Spans {
		stop := s.Stop
		if stop == 0 {
			stop = nowMs
		}
		if stop > s.Start {
			total += stop - s.Start
		}
	}
	return total
}

// Remaining returns the countdown time left at nowMs (never negative).
func (t TimerState) Remaining(nowMs int64) int64 {
	if !t.Countdown {
		return 0
	}
	left := t.DurationMs - t.Elapsed(nowMs)
	if left < 0 {
		return 0
	}
	return left
}

// Running reports whether the last span is open.
func (t TimerState) Running() bool {
	return len(t.Spans) > 0 && t.Spans[len(t.Spans)-1].Stop == 0
}

// IntervalState is the public state of an every-interval block.
type IntervalState struct {
	IntervalMs int64 `json:"interval_ms"`
	Round      int   `json:"round"`
	Total      int   `json:"total"`
	RoundStart int64 `json:"round_start"`
	Resting    bool  `json:"resting"`
}
