package keydir_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-savestate/savestate/internal/keydir"
)

func snapshot(k *keydir.KeyDir) map[string]keydir.Entry {
	out := make(map[string]keydir.Entry, k.Len())
	k.Each(func(key string, e keydir.Entry) bool {
		out[key] = e
		return true
	})
	return out
}

// Put, then Remove half the keys, then Put them back with new entries:
// the resulting snapshot must match one built directly, independent of
// the history that produced it.
func TestSnapshotMatchesDirectConstruction(t *testing.T) {
	k := keydir.New()
	k.Put("a", keydir.Entry{Offset: 1, Size: 1})
	k.Put("b", keydir.Entry{Offset: 2, Size: 2})
	k.Remove("a")
	k.Put("a", keydir.Entry{Offset: 3, Size: 3})

	want := map[string]keydir.Entry{
		"a": {Offset: 3, Size: 3},
		"b": {Offset: 2, Size: 2},
	}
	if diff := cmp.Diff(want, snapshot(k)); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestPutThenGet(t *testing.T) {
	k := keydir.New()
	k.Put("a", keydir.Entry{Offset: 10, Size: 3})

	got, ok := k.Get("a")
	require.True(t, ok)
	assert.Equal(t, keydir.Entry{Offset: 10, Size: 3}, got)
}

func TestOverwritePreservesInsertionPosition(t *testing.T) {
	k := keydir.New()
	k.Put("a", keydir.Entry{Offset: 1})
	k.Put("b", keydir.Entry{Offset: 2})
	k.Put("a", keydir.Entry{Offset: 3}) // overwrite, should not move

	assert.Equal(t, []string{"a", "b"}, k.Keys())

	got, _ := k.Get("a")
	assert.Equal(t, int64(3), got.Offset)
}

func TestRemoveDeletesEntry(t *testing.T) {
	k := keydir.New()
	k.Put("a", keydir.Entry{})
	require.True(t, k.Remove("a"))
	assert.False(t, k.Contains("a"))
	assert.False(t, k.Remove("a"))
}

func TestForwardIterationIsInsertionOrder(t *testing.T) {
	k := keydir.New()
	for _, key := range []string{"c", "a", "b"} {
		k.Put(key, keydir.Entry{})
	}
	assert.Equal(t, []string{"c", "a", "b"}, k.Keys())

	var reverse []string
	k.EachReverse(func(key string, _ keydir.Entry) bool {
		reverse = append(reverse, key)
		return true
	})
	assert.Equal(t, []string{"b", "a", "c"}, reverse)
}

func TestLastIsLIFO(t *testing.T) {
	k := keydir.New()
	k.Put("a", keydir.Entry{})
	k.Put("b", keydir.Entry{})
	k.Put("c", keydir.Entry{})

	key, _, ok := k.Last()
	require.True(t, ok)
	assert.Equal(t, "c", key)

	k.Remove("c")
	key, _, ok = k.Last()
	require.True(t, ok)
	assert.Equal(t, "b", key)
}

func TestLastOnEmptyReportsFalse(t *testing.T) {
	k := keydir.New()
	_, _, ok := k.Last()
	assert.False(t, ok)
}

func TestClearRemovesEverything(t *testing.T) {
	k := keydir.New()
	k.Put("a", keydir.Entry{})
	k.Put("b", keydir.Entry{})
	k.Clear()

	assert.Equal(t, 0, k.Len())
	assert.Empty(t, k.Keys())
	_, _, ok := k.Last()
	assert.False(t, ok)
}
