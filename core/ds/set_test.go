package ds

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet_JSON(t *testing.T) {
	s := NewStringSet("node-b", "node-a", "node-c")

	data, err := json.Marshal(s)
	require.NoError(t, err)
	require.Equal(t, `["node-b","node-a","node-c"]`, string(data))

	var out StringSet
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, s.Values(), out.Values())
}

func TestSet_AddRemove(t *testing.T) {
	s := NewStringSet()
	require.True(t, s.IsEmpty())

	require.True(t, s.Add("a"))
	require.False(t, s.Add("a"))
	require.Equal(t, 1, s.Len())

	require.False(t, s.Remove("zzz"))
	require.True(t, s.Remove("a"))
	require.True(t, s.IsEmpty())
}

func TestSet_RemoveKeepsOrder(t *testing.T) {
	s := NewStringSet("a", "b", "c", "d")
	s.Remove("b", "d")
	require.Equal(t, []string{"a", "c"}, s.Values())
	s.Add("b")
	require.Equal(t, []string{"a", "c", "b"}, s.Values())
}

func TestSet_Diff(t *testing.T) {
	current := NewStringSet("a", "b", "c")
	next := NewStringSet("c", "d", "a", "e")

	add, remove := current.Diff(next)
	require.Equal(t, []string{"d", "e"}, add.Values())
	require.Equal(t, []string{"b"}, remove.Values())

	add, remove = current.Diff(current.Copy())
	require.True(t, add.IsEmpty())
	require.True(t, remove.IsEmpty())
}

func TestSet_ValuesIsCopy(t *testing.T) {
	s := NewStringSet("a")
	vs := s.Values()
	vs[0] = "mutated"
	require.True(t, s.Contains("a"))
	require.False(t, s.Contains("mutated"))
}
