package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wodrun/internal/ir"
)

func TestLoadFile_Fran(t *testing.T) {
	w, err := LoadFile(filepath.Join("testdata", "fran.cue"))
	require.NoError(t, err)
	assert.Equal(t, "Fran", w.Name)
	require.Equal(t, 3, w.Script.Len())

	root, ok := w.Script.Get(1)
	require.True(t, ok)
	assert.Equal(t, [][]int64{{2}, {3}}, root.Children)
	scheme, ok := ir.AsInts(root.Fragments[0].Value)
	require.True(t, ok)
	assert.Equal(t, []int64{21, 15, 9}, scheme)

	thrusters, _ := w.Script.Get(2)
	assert.Equal(t, int64(1), thrusters.ParentID)
	res, ok := thrusters.First(ir.KindResistance)
	require.True(t, ok)
	assert.Equal(t, "95lb", res.Image)
}

func TestLoadFile_TimerAndAction(t *testing.T) {
	w, err := LoadFile(filepath.Join("testdata", "cindy.cue"))
	require.NoError(t, err)

	root, _ := w.Script.Get(1)
	ms, ok := root.TimerMillis()
	require.True(t, ok)
	assert.Equal(t, int64(20*60*1000), ms)
	assert.Equal(t, "AMRAP", root.ActionName())
	assert.Len(t, root.Children, 3)

	squats, _ := w.Script.Get(4)
	reps, ok := squats.First(ir.KindRep)
	require.True(t, ok)
	assert.Equal(t, ir.Int(15), reps.Value)
}

func TestLoadFile_Superset(t *testing.T) {
	w, err := LoadFile(filepath.Join("testdata", "emom.cue"))
	require.NoError(t, err)
	root, _ := w.Script.Get(1)
	assert.Equal(t, [][]int64{{2, 3}}, root.Children)
}

func TestLoadDir(t *testing.T) {
	workouts, errs := LoadDir("testdata")
	require.Empty(t, errs)
	require.Len(t, workouts, 3)
	assert.Equal(t, "Cindy", workouts[0].Name)
}

func TestLoadBytes_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"syntax", `workout: [`, ErrCodeBuildFailed},
		{"missing workout", `name: "x"`, ErrCodeNoWorkout},
		{"empty workout", `workout: []`, ErrCodeNoWorkout},
		{"unknown fragment", `workout: [{effrot: "run"}]`, ErrCodeUnknownField},
		{"bad reps", `workout: [{effort: "run", reps: "ten"}]`, ErrCodeInvalidValue},
		{"bad timer", `workout: [{timer: "1:75"}]`, ErrCodeInvalidTimer},
		{"bad distance", `workout: [{distance: 400}]`, ErrCodeInvalidValue},
		{"empty group", `workout: [{effort: "x", children: [[]]}]`, ErrCodeInvalidGroup},
		{"grouped top level", `workout: [[{effort: "a"}, {effort: "b"}]]`, ErrCodeInvalidGroup},
		{"not a struct", `workout: ["run"]`, ErrCodeInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes("inline.cue", []byte(tt.src))
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err), err.Error())
		})
	}
}

func TestLoadBytes_ErrorHasPosition(t *testing.T) {
	_, err := LoadBytes("pos.cue", []byte("workout: [{\n\teffort: \"run\"\n\treps: \"ten\"\n}]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pos.cue:3:")
}

func TestLoadFile_NotFound(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Equal(t, ErrCodeNotFound, CodeOf(err))
}

func TestLoadDir_NoFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	_, errs := LoadDir(dir)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeNoFiles, CodeOf(errs[0]))
}

func TestParseClock(t *testing.T) {
	tests := map[string]int64{
		"20:00":   1200000,
		"1:00":    60000,
		"0:30":    30000,
		"1:00:00": 3600000,
		"45s":     45000,
		"^":       0,
	}
	for in, want := range tests {
		got, err := ParseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "20", "1:60", "a:00", "-5s", "1:2:3:4"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}
