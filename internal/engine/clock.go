package engine

import (
	"sync/atomic"
	"time"
)

// Clock supplies the current instant. The runtime reads it once per turn.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall-clock time.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sequence is a monotonic logical counter used to number turns.
//
// Thread-safety: safe for concurrent use (atomic operations), though the
// runtime's single-threaded design means one goroutine calls Next.
type Sequence struct {
	seq atomic.Int64
}

// NewSequenceAt creates a counter whose next value is start+1.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next increments and returns the counter.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the counter without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
