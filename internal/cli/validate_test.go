package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValidWorkouts(t *testing.T) {
	out, err := execute(t, NewValidateCommand(textOpts()), "", filepath.Join("testdata", "workouts"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All workouts valid (2 checked)")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	out, err := execute(t, NewValidateCommand(jsonOpts()), "", filepath.Join("testdata", "broken"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Workouts)

	var codes []string
	for _, is := range resp.Data.Issues {
		codes = append(codes, is.Code)
	}
	assert.ElementsMatch(t, []string{"E204", "COMPILE_FAILED"}, codes)
}

func TestValidateCompileIssueHasStatementAndLine(t *testing.T) {
	out, err := execute(t, NewValidateCommand(textOpts()), "", filepath.Join("testdata", "broken", "zero-rounds.cue"))
	require.Error(t, err)
	assert.Contains(t, out, "[COMPILE_FAILED]")
	assert.Contains(t, out, "zero-rounds.cue:2")
	assert.Contains(t, out, "rounds must be positive")
}

func TestValidateNonExistentPath(t *testing.T) {
	_, err := execute(t, NewValidateCommand(textOpts()), "", filepath.Join("testdata", "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
