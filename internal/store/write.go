package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/wodrun/internal/tracker"
)

// ErrEmptyRunID is returned when a write names no run.
var ErrEmptyRunID = errors.New("run id is required")

// Run describes one recorded workout session.
type Run struct {
	ID          string
	Workout     string
	Fingerprint string
	StartedAt   time.Time
	// Spans is the number of spans recorded, filled by Runs.
	Spans int
}

// BeginRun records a run header. Writing the same run id twice keeps the
// first header.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("begin run: %w", ErrEmptyRunID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, workout, fingerprint, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Workout, run.Fingerprint, run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// WriteSpan appends a completed span to the run's log. A run header is
// created on first use if BeginRun was never called. Duplicate span ids are
// ignored, so the write is idempotent.
func (s *Store) WriteSpan(ctx context.Context, runID string, span tracker.Span) error {
	if runID == "" {
		return fmt.Errorf("write span: %w", ErrEmptyRunID)
	}
	if span.Open() {
		return fmt.Errorf("write span %s: span is still open", span.ID)
	}

	cols, err := marshalSpan(span)
	if err != nil {
		return fmt.Errorf("write span %s: %w", span.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write span: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, runID, span.Start.UnixMilli()); err != nil {
		return fmt.Errorf("write span: ensure run: %w", err)
	}

	// The WHERE true keeps SQLite from reading ON CONFLICT as a join clause.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO spans
		(run_id, id, seq, owner_id, parent_span_id, label, block_type,
		 source_ids, start_ms, end_ms, metrics, segments, rounds)
		SELECT ?, ?, COALESCE((SELECT MAX(seq) FROM spans WHERE run_id = ?), 0) + 1,
		       ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE true
		ON CONFLICT(run_id, id) DO NOTHING
	`,
		runID, span.ID, runID,
		span.OwnerID,
		span.ParentSpanID,
		span.Label,
		span.BlockType,
		cols.sourceIDs,
		span.Start.UnixMilli(),
		span.End.UnixMilli(),
		cols.metrics,
		cols.segments,
		cols.rounds,
	); err != nil {
		return fmt.Errorf("write span %s: %w", span.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write span %s: commit: %w", span.ID, err)
	}
	return nil
}

// DeleteRun removes a run and its spans. Deleting an unknown run is a no-op.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

type spanColumns struct {
	sourceIDs string
	metrics   string
	segments  string
	rounds    string
}

// segmentRow and roundRow store instants as epoch milliseconds, matching the
// span columns.
type segmentRow struct {
	Name  string `json:"name"`
	Start int64  `json:"start_ms"`
	End   int64  `json:"end_ms"`
}

type roundRow struct {
	Number int   `json:"number"`
	At     int64 `json:"at_ms"`
}

func marshalSpan(span tracker.Span) (spanColumns, error) {
	var cols spanColumns
	var err error

	if cols.sourceIDs, err = marshalList(span.SourceIDs); err != nil {
		return cols, fmt.Errorf("marshal source ids: %w", err)
	}
	if cols.metrics, err = marshalList(span.Metrics); err != nil {
		return cols, fmt.Errorf("marshal metrics: %w", err)
	}

	segments := make([]segmentRow, 0, len(span.Segments))
	for _, seg := range span.Segments {
		row := segmentRow{Name: seg.Name, Start: seg.Start.UnixMilli()}
		if !seg.End.IsZero() {
			row.End = seg.End.UnixMilli()
		}
		segments = append(segments, row)
	}
	if cols.segments, err = marshalList(segments); err != nil {
		return cols, fmt.Errorf("marshal segments: %w", err)
	}

	rounds := make([]roundRow, 0, len(span.Rounds))
	for _, r := range span.Rounds {
		rounds = append(rounds, roundRow{Number: r.Number, At: r.At.UnixMilli()})
	}
	if cols.rounds, err = marshalList(rounds); err != nil {
		return cols, fmt.Errorf("marshal rounds: %w", err)
	}
	return cols, nil
}

// marshalList encodes a slice as JSON TEXT, writing "[]" for nil.
func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
