package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/wodrun/internal/tracker"
)

// SpanQuery filters ReadSpans. Zero fields match everything except RunID,
// which is required.
type SpanQuery struct {
	RunID     string
	BlockType string
	// Limit caps the number of spans returned when positive.
	Limit int
}

// ReadSpans returns the spans of one run in write order.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadSpans(ctx context.Context, q SpanQuery) ([]tracker.Span, error) {
	if q.RunID == "" {
		return nil, fmt.Errorf("read spans: %w", ErrEmptyRunID)
	}

	var b strings.Builder
	b.WriteString(`
		SELECT id, owner_id, parent_span_id, label, block_type, source_ids,
		       start_ms, end_ms, metrics, segments, rounds
		FROM spans
		WHERE run_id = ?`)
	args := []any{q.RunID}
	if q.BlockType != "" {
		b.WriteString(` AND block_type = ?`)
		args = append(args, q.BlockType)
	}
	b.WriteString(` ORDER BY seq ASC, id COLLATE BINARY ASC`)
	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	spans := []tracker.Span{}
	for rows.Next() {
		span, err := scanSpan(rows)
		if err != nil {
			return nil, err
		}
		spans = append(spans, span)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spans: %w", err)
	}
	return spans, nil
}

// Runs lists recorded runs, oldest first, with their span counts.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.workout, r.fingerprint, r.started_at, COUNT(sp.id)
		FROM runs r
		LEFT JOIN spans sp ON sp.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at ASC, r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		var startedAt int64
		if err := rows.Scan(&run.ID, &run.Workout, &run.Fingerprint, &startedAt, &run.Spans); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = fromMillis(startedAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanSpan(rows *sql.Rows) (tracker.Span, error) {
	var span tracker.Span
	var sourceIDs, metrics, segments, rounds string
	var startMs, endMs int64

	if err := rows.Scan(
		&span.ID,
		&span.OwnerID,
		&span.ParentSpanID,
		&span.Label,
		&span.BlockType,
		&sourceIDs,
		&startMs,
		&endMs,
		&metrics,
		&segments,
		&rounds,
	); err != nil {
		return tracker.Span{}, fmt.Errorf("scan span: %w", err)
	}
	span.Start = fromMillis(startMs)
	span.End = fromMillis(endMs)

	if err := unmarshalList(sourceIDs, &span.SourceIDs); err != nil {
		return tracker.Span{}, fmt.Errorf("span %s: source ids: %w", span.ID, err)
	}
	if err := unmarshalList(metrics, &span.Metrics); err != nil {
		return tracker.Span{}, fmt.Errorf("span %s: metrics: %w", span.ID, err)
	}

	var segRows []segmentRow
	if err := unmarshalList(segments, &segRows); err != nil {
		return tracker.Span{}, fmt.Errorf("span %s: segments: %w", span.ID, err)
	}
	for _, row := range segRows {
		seg := tracker.Segment{Name: row.Name, Start: fromMillis(row.Start)}
		if row.End != 0 {
			seg.End = fromMillis(row.End)
		}
		span.Segments = append(span.Segments, seg)
	}

	var roundRows []roundRow
	if err := unmarshalList(rounds, &roundRows); err != nil {
		return tracker.Span{}, fmt.Errorf("span %s: rounds: %w", span.ID, err)
	}
	for _, row := range roundRows {
		span.Rounds = append(span.Rounds, tracker.Round{Number: row.Number, At: fromMillis(row.At)})
	}
	return span, nil
}

// unmarshalList decodes JSON TEXT. Empty lists leave out untouched.
func unmarshalList[T any](text string, out *[]T) error {
	var items []T
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return err
	}
	if len(items) > 0 {
		*out = items
	}
	return nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
