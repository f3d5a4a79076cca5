// Package tracker records one span per active block, with typed metrics,
// round marks and named sub-interval segments, and keeps an append-only log
// of completed spans for history and analytics consumers.
//
// Every started span is ended exactly once. Times are supplied by the caller
// (the runtime's frozen turn clock) so all records made in one turn share an
// instant.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/wodrun/internal/ids"
)

var (
	// ErrSpanActive is returned when starting a span for an owner that
	// already has one open.
	ErrSpanActive = errors.New("span already active")
	// ErrNoSpan is returned when an owner has no open span.
	ErrNoSpan = errors.New("no active span")
)

// Metric is one typed measurement attached to a span.
type Metric struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// Segment is a named sub-interval of a span, e.g. "work" or "rest".
type Segment struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the segment length, zero while open.
func (s Segment) Duration() time.Duration {
	if s.End.IsZero() {
		return 0
	}
	return s.End.Sub(s.Start)
}

// Round marks the start of a round inside a span.
type Round struct {
	Number int       `json:"number"`
	At     time.Time `json:"at"`
}

// Span is the tracked record of one block's active lifetime.
type Span struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	ParentSpanID string    `json:"parent_span_id,omitempty"`
	Label        string    `json:"label"`
	BlockType    string    `json:"block_type"`
	SourceIDs    []int64   `json:"source_ids,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Metrics      []Metric  `json:"metrics,omitempty"`
	Segments     []Segment `json:"segments,omitempty"`
	Rounds       []Round   `json:"rounds,omitempty"`
}

// Open reports whether the span has not ended.
func (s Span) Open() bool {
	return s.End.IsZero()
}

// Duration returns End-Start, zero while open.
func (s Span) Duration() time.Duration {
	if s.Open() {
		return 0
	}
	return s.End.Sub(s.Start)
}

// Metric returns the first metric with the given name.
func (s Span) Metric(name string) (Metric, bool) {
	for _, m := range s.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

func (s Span) clone() Span {
	out := s
	out.SourceIDs = append([]int64(nil), s.SourceIDs...)
	out.Metrics = append([]Metric(nil), s.Metrics...)
	out.Segments = append([]Segment(nil), s.Segments...)
	out.Rounds = append([]Round(nil), s.Rounds...)
	return out
}

// SpanInfo describes the block a span is started for.
type SpanInfo struct {
	OwnerID      string
	ParentSpanID string
	Label        string
	BlockType    string
	SourceIDs    []int64
}

// Tracker owns active spans and the completed-span log.
// Not safe for concurrent use; driven from the runtime goroutine.
type Tracker struct {
	ids       ids.Generator
	active    map[string]*Span
	completed []Span
}

// New creates a tracker. A nil generator defaults to UUIDv7 span ids.
func New(gen ids.Generator) *Tracker {
	if gen == nil {
		gen = ids.UUIDv7Generator{}
	}
	return &Tracker{
		ids:    gen,
		active: make(map[string]*Span),
	}
}

// StartSpan opens a span for info.OwnerID at the given instant. The parent
// span id is captured here and never re-derived.
func (t *Tracker) StartSpan(info SpanInfo, at time.Time) (string, error) {
	if info.OwnerID == "" {
		return "", fmt.Errorf("start span: owner is required")
	}
	if _, ok := t.active[info.OwnerID]; ok {
		return "", fmt.Errorf("start span for %s: %w", info.OwnerID, ErrSpanActive)
	}
	span := &Span{
		ID:           t.ids.Generate(),
		OwnerID:      info.OwnerID,
		ParentSpanID: info.ParentSpanID,
		Label:        info.Label,
		BlockType:    info.BlockType,
		SourceIDs:    append([]int64(nil), info.SourceIDs...),
		Start:        at,
	}
	t.active[info.OwnerID] = span
	slog.Debug("span started", "span", span.ID, "owner", span.OwnerID, "parent", span.ParentSpanID)
	return span.ID, nil
}

// EndSpan closes owner's span, closing any open segments at the same
// instant, and appends it to the completed log.
func (t *Tracker) EndSpan(owner string, at time.Time) (Span, error) {
	span, ok := t.active[owner]
	if !ok {
		return Span{}, fmt.Errorf("end span for %s: %w", owner, ErrNoSpan)
	}
	delete(t.active, owner)
	for i := range span.Segments {
		if span.Segments[i].End.IsZero() {
			span.Segments[i].End = at
		}
	}
	span.End = at
	done := span.clone()
	t.completed = append(t.completed, done)
	slog.Debug("span ended", "span", done.ID, "owner", owner, "duration", done.Duration())
	return done.clone(), nil
}

// SpanID returns the id of owner's open span.
func (t *Tracker) SpanID(owner string) (string, bool) {
	span, ok := t.active[owner]
	if !ok {
		return "", false
	}
	return span.ID, true
}

// Active returns a copy of owner's open span.
func (t *Tracker) Active(owner string) (Span, bool) {
	span, ok := t.active[owner]
	if !ok {
		return Span{}, false
	}
	return span.clone(), true
}

// ActiveCount returns the number of open spans.
func (t *Tracker) ActiveCount() int {
	return len(t.active)
}

// RecordMetric attaches a measurement to owner's open span.
func (t *Tracker) RecordMetric(owner string, m Metric) error {
	span, ok := t.active[owner]
	if !ok {
		return fmt.Errorf("record metric %s for %s: %w", m.Name, owner, ErrNoSpan)
	}
	span.Metrics = append(span.Metrics, m)
	return nil
}

// RecordRound marks the start of round n in owner's open span.
func (t *Tracker) RecordRound(owner string, n int, at time.Time) error {
	span, ok := t.active[owner]
	if !ok {
		return fmt.Errorf("record round %d for %s: %w", n, owner, ErrNoSpan)
	}
	span.Rounds = append(span.Rounds, Round{Number: n, At: at})
	return nil
}

// StartSegment opens a named segment. A segment with the same name must not
// already be open.
func (t *Tracker) StartSegment(owner, name string, at time.Time) error {
	span, ok := t.active[owner]
	if !ok {
		return fmt.Errorf("start segment %q for %s: %w", name, owner, ErrNoSpan)
	}
	if openSegment(span, name) >= 0 {
		return fmt.Errorf("start segment %q for %s: already open", name, owner)
	}
	span.Segments = append(span.Segments, Segment{Name: name, Start: at})
	return nil
}

// EndSegment closes the open segment with the given name.
func (t *Tracker) EndSegment(owner, name string, at time.Time) error {
	span, ok := t.active[owner]
	if !ok {
		return fmt.Errorf("end segment %q for %s: %w", name, owner, ErrNoSpan)
	}
	i := openSegment(span, name)
	if i < 0 {
		return fmt.Errorf("end segment %q for %s: not open", name, owner)
	}
	span.Segments[i].End = at
	return nil
}

func openSegment(span *Span, name string) int {
	for i := len(span.Segments) - 1; i >= 0; i-- {
		if span.Segments[i].Name == name && span.Segments[i].End.IsZero() {
			return i
		}
	}
	return -1
}

// Completed returns a copy of the completed-span log in close order.
func (t *Tracker) Completed() []Span {
	out := make([]Span, len(t.completed))
	for i, s := range t.completed {
		out[i] = s.clone()
	}
	return out
}

// CompletedSince returns spans closed after cursor and the new cursor.
// Hosts use it to persist the log incrementally.
func (t *Tracker) CompletedSince(cursor int) ([]Span, int) {
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(t.completed) {
		return nil, len(t.completed)
	}
	out := make([]Span, 0, len(t.completed)-cursor)
	for _, s := range t.completed[cursor:] {
		out = append(out, s.clone())
	}
	return out, len(t.completed)
}
