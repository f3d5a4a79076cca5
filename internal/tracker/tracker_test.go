package tracker

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wodrun/internal/ids"
)

var t0 = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

func TestTracker_SpanLifecycle(t *testing.T) {
	tr := New(ids.NewSequence("span"))

	id, err := tr.StartSpan(SpanInfo{OwnerID: "blk-1", Label: "Cindy", BlockType: "amrap", SourceIDs: []int64{1}}, t0)
	require.NoError(t, err)
	assert.Equal(t, "span-1", id)

	childID, err := tr.StartSpan(SpanInfo{OwnerID: "blk-2", ParentSpanID: id, Label: "5 Pullups"}, t0.Add(time.Second))
	require.NoError(t, err)

	require.NoError(t, tr.RecordMetric("blk-2", Metric{Name: "reps", Value: 5}))
	child, err := tr.EndSpan("blk-2", t0.Add(31*time.Second))
	require.NoError(t, err)

	assert.Equal(t, childID, child.ID)
	assert.Equal(t, "span-1", child.ParentSpanID)
	assert.Equal(t, 30*time.Second, child.Duration())
	m, ok := child.Metric("reps")
	require.True(t, ok)
	assert.Equal(t, int64(5), m.Value)

	_, err = tr.EndSpan("blk-2", t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNoSpan, "a span ends exactly once")

	assert.Equal(t, 1, tr.ActiveCount())
	assert.Len(t, tr.Completed(), 1)
}

func TestTracker_StartTwiceFails(t *testing.T) {
	tr := New(nil)
	_, err := tr.StartSpan(SpanInfo{OwnerID: "blk-1"}, t0)
	require.NoError(t, err)

	_, err = tr.StartSpan(SpanInfo{OwnerID: "blk-1"}, t0)
	assert.ErrorIs(t, err, ErrSpanActive)

	_, err = tr.StartSpan(SpanInfo{}, t0)
	assert.Error(t, err)
}

func TestTracker_SegmentsAndRounds(t *testing.T) {
	tr := New(ids.NewSequence("span"))
	_, err := tr.StartSpan(SpanInfo{OwnerID: "emom"}, t0)
	require.NoError(t, err)

	require.NoError(t, tr.RecordRound("emom", 1, t0))
	require.NoError(t, tr.StartSegment("emom", "work", t0))
	assert.Error(t, tr.StartSegment("emom", "work", t0), "same segment cannot open twice")
	require.NoError(t, tr.EndSegment("emom", "work", t0.Add(40*time.Second)))
	assert.Error(t, tr.EndSegment("emom", "work", t0.Add(41*time.Second)))
	require.NoError(t, tr.StartSegment("emom", "rest", t0.Add(40*time.Second)))
	require.NoError(t, tr.RecordRound("emom", 2, t0.Add(time.Minute)))

	span, err := tr.EndSpan("emom", t0.Add(time.Minute))
	require.NoError(t, err)

	want := []Segment{
		{Name: "work", Start: t0, End: t0.Add(40 * time.Second)},
		{Name: "rest", Start: t0.Add(40 * time.Second), End: t0.Add(time.Minute)},
	}
	if diff := cmp.Diff(want, span.Segments); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 20*time.Second, span.Segments[1].Duration())
	assert.Equal(t, []Round{{Number: 1, At: t0}, {Number: 2, At: t0.Add(time.Minute)}}, span.Rounds)
}

func TestTracker_RecordWithoutSpan(t *testing.T) {
	tr := New(nil)
	assert.ErrorIs(t, tr.RecordMetric("x", Metric{Name: "reps"}), ErrNoSpan)
	assert.ErrorIs(t, tr.RecordRound("x", 1, t0), ErrNoSpan)
	assert.ErrorIs(t, tr.StartSegment("x", "work", t0), ErrNoSpan)
	assert.ErrorIs(t, tr.EndSegment("x", "work", t0), ErrNoSpan)
}

func TestTracker_CompletedIsACopy(t *testing.T) {
	tr := New(ids.NewSequence("span"))
	_, _ = tr.StartSpan(SpanInfo{OwnerID: "a"}, t0)
	_ = tr.RecordMetric("a", Metric{Name: "reps", Value: 1})
	_, _ = tr.EndSpan("a", t0.Add(time.Second))

	log := tr.Completed()
	log[0].Metrics[0].Value = 99
	log[0].Label = "mutated"

	again := tr.Completed()
	assert.Equal(t, int64(1), again[0].Metrics[0].Value)
	assert.Equal(t, "", again[0].Label)
}

func TestTracker_CompletedSince(t *testing.T) {
	tr := New(ids.NewSequence("span"))
	for _, owner := range []string{"a", "b", "c"} {
		_, _ = tr.StartSpan(SpanInfo{OwnerID: owner}, t0)
		_, _ = tr.EndSpan(owner, t0.Add(time.Second))
	}

	first, cursor := tr.CompletedSince(0)
	assert.Len(t, first, 3)
	assert.Equal(t, 3, cursor)

	none, cursor := tr.CompletedSince(cursor)
	assert.Empty(t, none)
	assert.Equal(t, 3, cursor)

	tail, _ := tr.CompletedSince(2)
	require.Len(t, tail, 1)
	assert.Equal(t, "c", tail[0].OwnerID)
}

func TestTracker_ActiveSnapshot(t *testing.T) {
	tr := New(ids.NewSequence("span"))
	id, _ := tr.StartSpan(SpanInfo{OwnerID: "a", Label: "Run"}, t0)

	got, ok := tr.SpanID("a")
	require.True(t, ok)
	assert.Equal(t, id, got)

	span, ok := tr.Active("a")
	require.True(t, ok)
	assert.True(t, span.Open())
	assert.Equal(t, time.Duration(0), span.Duration())

	_, ok = tr.Active("missing")
	assert.False(t, ok)
}
