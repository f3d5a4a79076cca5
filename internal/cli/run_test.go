package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wodrun/internal/ids"
	"github.com/roach88/wodrun/internal/store"
)

var franPath = filepath.Join("testdata", "workouts", "fran.cue")

func TestRunCompletesFromStdin(t *testing.T) {
	db := filepath.Join(t.TempDir(), "wod.db")
	cmd := newRunCommand(&RunOptions{RootOptions: textOpts(), RunIDs: ids.NewFixed("run-1")})

	out, err := execute(t, cmd, strings.Repeat("next\n", 6), franPath, "--tick", "0", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Fran complete (run run-1)")
	assert.Contains(t, out, "reps=21")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "Fran", runs[0].Workout)
	assert.NotEmpty(t, runs[0].Fingerprint)

	efforts, err := st.ReadSpans(context.Background(), store.SpanQuery{RunID: "run-1", BlockType: "effort"})
	require.NoError(t, err)
	require.Len(t, efforts, 6)

	var reps int64
	for _, s := range efforts {
		for _, m := range s.Metrics {
			if m.Name == "reps" {
				reps += m.Value
			}
		}
	}
	assert.Equal(t, int64(90), reps)
}

func TestRunStopsAtEndOfInput(t *testing.T) {
	cmd := newRunCommand(&RunOptions{RootOptions: jsonOpts(), RunIDs: ids.NewFixed("run-2")})

	out, err := execute(t, cmd, "next\nnext\n", franPath, "--tick", "0")
	require.NoError(t, err)

	var resp struct {
		Data RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "run-2", resp.Data.RunID)
	assert.False(t, resp.Data.Complete)
	require.Len(t, resp.Data.Spans, 2)
	assert.Equal(t, "Thrusters 95lb", resp.Data.Spans[0].Label)
	assert.Equal(t, "Pullups", resp.Data.Spans[1].Label)
}

func TestRunQuit(t *testing.T) {
	cmd := newRunCommand(&RunOptions{RootOptions: textOpts(), RunIDs: ids.NewFixed("run-3")})

	out, err := execute(t, cmd, "next\nq\nnext\nnext\n", franPath, "--tick", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Fran stopped (run run-3)")
	assert.Contains(t, out, "Thrusters 95lb")
	assert.NotContains(t, out, "Pullups")
}

func TestRunMissingWorkout(t *testing.T) {
	_, err := execute(t, NewRunCommand(textOpts()), "", filepath.Join("testdata", "nope.cue"), "--tick", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunInvalidWorkout(t *testing.T) {
	out, err := execute(t, NewRunCommand(textOpts()), "", filepath.Join("testdata", "broken", "bad-timer.cue"), "--tick", "0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E204")
}

func TestRunUsesProfile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "profile.db")
	profile := filepath.Join(dir, "gym.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("db: "+db+"\ncache: true\n"), 0o644))

	cmd := newRunCommand(&RunOptions{RootOptions: textOpts(), RunIDs: ids.NewFixed("run-4")})
	_, err := execute(t, cmd, strings.Repeat("\n", 6), franPath, "--tick", "0", "--profile", profile)
	require.NoError(t, err)

	_, err = os.Stat(db)
	require.NoError(t, err)
}

func TestRunBadProfile(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("speed: 11\n"), 0o644))

	_, err := execute(t, NewRunCommand(textOpts()), "", franPath, "--profile", profile)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
