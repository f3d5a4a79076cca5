package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cindy() []Statement {
	return []Statement{
		{ID: 1, Children: [][]int64{{2}, {3}, {4}}, Fragments: []Fragment{
			{Kind: KindTimer, Value: Int(1_200_000), Image: "20:00"},
			{Kind: KindAction, Value: String("AMRAP")},
		}},
		{ID: 2, ParentID: 1, Fragments: []Fragment{{Kind: KindRep, Value: Int(5)}, {Kind: KindEffort, Value: String("pullups")}}},
		{ID: 3, ParentID: 1, Fragments: []Fragment{{Kind: KindRep, Value: Int(10)}, {Kind: KindEffort, Value: String("pushups")}}},
		{ID: 4, ParentID: 1, Fragments: []Fragment{{Kind: KindRep, Value: Int(15)}, {Kind: KindEffort, Value: String("air squats")}}},
	}
}

func TestNewScript_Valid(t *testing.T) {
	s, err := NewScript(cindy())
	require.NoError(t, err)

	assert.Equal(t, 4, s.Len())
	roots := s.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, int64(1), roots[0].ID)
	assert.Equal(t, [][]int64{{1}}, s.RootGroups())

	stmts, err := s.Resolve([]int64{3, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stmts[0].ID)
	assert.Equal(t, int64(2), stmts[1].ID)
}

func TestNewScript_DeepChain(t *testing.T) {
	stmts := []Statement{
		{ID: 1, Children: [][]int64{{2}}, Fragments: []Fragment{{Kind: KindRounds, Value: Int(3)}}},
		{ID: 2, ParentID: 1, Children: [][]int64{{3}}, Fragments: []Fragment{{Kind: KindRounds, Value: Int(2)}}},
		{ID: 3, ParentID: 2, Children: [][]int64{{4}}, Fragments: []Fragment{{Kind: KindTimer, Value: Int(60_000)}}},
		{ID: 4, ParentID: 3, Fragments: []Fragment{{Kind: KindEffort, Value: String("row")}}},
	}
	s, err := NewScript(stmts)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{1}}, s.RootGroups())

	leaf, ok := s.Get(4)
	require.True(t, ok)
	assert.Equal(t, int64(3), leaf.ParentID)
}

func TestNewScript_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		stmts []Statement
		want  string
	}{
		{
			name:  "zero id",
			stmts: []Statement{{ID: 0}},
			want:  "reserved",
		},
		{
			name:  "duplicate id",
			stmts: []Statement{{ID: 1}, {ID: 1}},
			want:  "duplicate",
		},
		{
			name:  "unknown parent",
			stmts: []Statement{{ID: 1, ParentID: 9}},
			want:  "parent 9",
		},
		{
			name:  "unknown child",
			stmts: []Statement{{ID: 1, Children: [][]int64{{2}}}},
			want:  "child 2",
		},
		{
			name:  "child with wrong parent",
			stmts: []Statement{{ID: 1, Children: [][]int64{{2}}}, {ID: 2}},
			want:  "declares parent 0",
		},
		{
			name:  "cycle",
			stmts: []Statement{{ID: 1, ParentID: 2}, {ID: 2, ParentID: 1}},
			want:  "cycle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScript(tt.stmts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStatement_Accessors(t *testing.T) {
	s := MustScript(cindy()...)
	root, ok := s.Get(1)
	require.True(t, ok)

	assert.True(t, root.Has(KindTimer))
	assert.False(t, root.Has(KindRep))
	assert.Equal(t, "AMRAP", root.ActionName())
	ms, ok := root.TimerMillis()
	require.True(t, ok)
	assert.Equal(t, int64(1_200_000), ms)
	assert.Equal(t, []FragmentKind{KindTimer, KindAction}, root.Kinds())
	assert.True(t, root.HasChildren())
	assert.False(t, root.HasParent())
}
