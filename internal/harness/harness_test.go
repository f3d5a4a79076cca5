package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ScenarioFiles(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".yaml"), func(t *testing.T) {
			_, result, err := RunFile(path)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_SpansAreRelativeToStart(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: relative
description: span instants are offsets from the first event
source: |
  workout: [{reps: 3, effort: "burpees"}]
events:
  - event: start
    advance_ms: 5000
  - event: next
    advance_ms: 7000
assertions:
  - type: span_count
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)
	require.Len(t, result.Spans, 2)

	burpees := result.Spans[0]
	assert.Equal(t, "3 Burpees", burpees.Label)
	assert.Equal(t, int64(5000), burpees.StartMs)
	assert.Equal(t, int64(12000), burpees.EndMs)
	assert.Equal(t, "span-2", burpees.ID, "the root opens span-1")
	assert.Equal(t, 2, result.Turns)
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: unfinished
description: the workout is left running
source: |
  workout: [{effort: "row"}, {effort: "run"}]
events:
  - event: start
  - event: next
    advance_ms: 1000
assertions:
  - type: complete
    expect: true
  - type: stack_depth
    depth: 2
  - type: span_count
    label: "Row"
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "complete=true")
	assert.Equal(t, 2, result.Depth)
}

func TestRun_CompileErrorsAreRecorded(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad-rounds
description: a non-positive round count halts its subtree
source: |
  workout: [{rounds: 0, children: [{effort: "run"}]}, {effort: "walk"}]
events:
  - event: start
  - event: next
assertions:
  - type: error_count
    code: COMPILE_FAILED
    count: 1
  - type: span_count
    label: "Run"
    count: 0
  - type: span_count
    label: "Walk"
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures:\n%s", strings.Join(result.Errors, "\n"))
}

func TestRun_LoadFailure(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: broken
description: the workout does not parse
source: |
  workout: [{effort: }]
events:
  - event: start
assertions:
  - type: complete
    expect: false
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load workout")
}
