package engine_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-savestate/savestate/internal/engine"
	saverrors "github.com/go-savestate/savestate/pkg/errors"
)

func openEngine(t *testing.T, mode engine.Mode, cfg engine.Config) (*engine.Engine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.savestate")
	e, err := engine.Open(path, mode, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(false) })
	return e, path
}

// S1: basic round-trip.
func TestBasicRoundTrip(t *testing.T) {
	e, _ := openEngine(t, engine.ModeNew, engine.Config{})

	require.NoError(t, e.Put([]byte("foo"), []byte("bar")))

	got, err := e.Get([]byte("foo"))
	require.NoError(t, err)
	assert.Equal(t, "bar", string(got))
	assert.True(t, e.Contains([]byte("foo")))
	assert.Equal(t, 1, e.Len())
}

func TestLastWriteWins(t *testing.T) {
	e, _ := openEngine(t, engine.ModeNew, engine.Config{})

	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(t, e.Put([]byte("k"), []byte(v)))
	}

	got, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v3", string(got))
	assert.Equal(t, 1, e.Len())
}

func TestDeleteRemoves(t *testing.T) {
	e, _ := openEngine(t, engine.ModeNew, engine.Config{})

	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	require.NoError(t, e.Delete([]byte("k")))

	assert.False(t, e.Contains([]byte("k")))
	_, err := e.Get([]byte("k"))
	assert.ErrorIs(t, err, saverrors.NotFound)
}

func TestDeleteMissingKeyFails(t *testing.T) {
	e, _ := openEngine(t, engine.ModeNew, engine.Config{})
	err := e.Delete([]byte("missing"))
	assert.ErrorIs(t, err, saverrors.NotFound)
}

func TestPutEmptyKeyFails(t *testing.T) {
	e, _ := openEngine(t, engine.ModeNew, engine.Config{})
	err := e.Put(nil, []byte("v"))
	assert.ErrorIs(t, err, saverrors.InvalidKey)
}

// Iteration order is insertion order, and overwriting a key does not
// move it.
func TestIterationOrderIsInsertionOrder(t *testing.T) {
	e, _ := openEngine(t, engine.ModeNew, engine.Config{})

	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, e.Put([]byte(k), []byte("v-"+k)))
	}
	require.NoError(t, e.Put([]byte("a"), []byte("v-a-2")))

	var keys []string
	for k := range e.Keys() {
		keys = append(keys, string(k))
	}
	assert.Equal(t, []string{"c", "a", "b"}, keys)

	var items [][2]string
	for k, v := range e.Items() {
		items = append(items, [2]string{string(k), string(v)})
	}
	assert.Equal(t, [][2]string{{"c", "v-c"}, {"a", "v-a-2"}, {"b", "v-b"}}, items)
}

// S3: delete and reopen.
func TestDeleteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.savestate")

	e, err := engine.Open(path, engine.ModeNew, engine.Config{})
	require.NoError(t, err)
	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Put([]byte("b"), []byte("2")))
	require.NoError(t, e.Delete([]byte("a")))
	require.NoError(t, e.Close(false))

	reopened, err := engine.Open(path, engine.ModeRead, engine.Config{})
	require.NoError(t, err)
	defer reopened.Close(false)

	assert.False(t, reopened.Contains([]byte("a")))
	got, err := reopened.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))
	assert.Equal(t, 1, reopened.Len())
}

// S4: trailing garbage is ignored and, in a writable mode, truncated.
func TestTrailingGarbageIsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.savestate")

	e, err := engine.Open(path, engine.ModeNew, engine.Config{})
	require.NoError(t, err)
	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	require.NoError(t, e.Close(false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	validLen := info.Size()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := engine.Open(path, engine.ModeReadWrite, engine.Config{})
	require.NoError(t, err)
	defer reopened.Close(false)

	assert.Equal(t, 1, reopened.Len())
	got, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, validLen, info.Size())
}

// S5: a bit flip inside one record's region is detected on Get when
// verification is enabled, without disturbing the other keys.
func TestChecksumMismatchDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.savestate")

	e, err := engine.Open(path, engine.ModeNew, engine.Config{})
	require.NoError(t, err)
	require.NoError(t, e.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, e.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, e.Put([]byte("k3"), []byte("v3")))
	require.NoError(t, e.Close(false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Each record is 8 (header) + 2 (key) + 2 (value) + 4 (crc) = 16 bytes.
	// k2's record starts at offset 16; flip a bit inside its value.
	data[16+8+2] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0o644))

	reopened, err := engine.Open(path, engine.ModeRead, engine.Config{VerifyChecksum: true})
	require.NoError(t, err)
	defer reopened.Close(false)

	v1, err := reopened.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v1))

	v3, err := reopened.Get([]byte("k3"))
	require.NoError(t, err)
	assert.Equal(t, "v3", string(v3))

	_, err = reopened.Get([]byte("k2"))
	assert.ErrorIs(t, err, saverrors.ChecksumMismatch)
}

// S6: popitem removes in LIFO order and fails with Empty once drained.
func TestPopItemIsLIFO(t *testing.T) {
	e, _ := openEngine(t, engine.ModeNew, engine.Config{})

	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Put([]byte("b"), []byte("2")))
	require.NoError(t, e.Put([]byte("c"), []byte("3")))

	for _, want := range []string{"c", "b", "a"} {
		k, v, err := e.PopItem()
		require.NoError(t, err)
		assert.Equal(t, want, string(k))
		assert.NotEmpty(t, v)
	}

	_, _, err := e.PopItem()
	assert.ErrorIs(t, err, saverrors.Empty)
}

func TestReadOnlyModeRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.savestate")
	e, err := engine.Open(path, engine.ModeNew, engine.Config{})
	require.NoError(t, err)
	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	require.NoError(t, e.Close(false))

	ro, err := engine.Open(path, engine.ModeRead, engine.Config{})
	require.NoError(t, err)
	defer ro.Close(false)

	assert.ErrorIs(t, ro.Put([]byte("k2"), []byte("v2")), saverrors.ReadOnly)
	assert.ErrorIs(t, ro.Delete([]byte("k")), saverrors.ReadOnly)
	assert.ErrorIs(t, ro.Compact(), saverrors.ReadOnly)
}

func TestOpenModeRRequiresExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.savestate")
	_, err := engine.Open(path, engine.ModeRead, engine.Config{})
	assert.ErrorIs(t, err, saverrors.NotFound)
}

func TestOpenModeCCreatesIfMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.savestate")
	e, err := engine.Open(path, engine.ModeCreate, engine.Config{})
	require.NoError(t, err)
	defer e.Close(false)
	assert.FileExists(t, path)
}

func TestClosedEngineRejectsOperations(t *testing.T) {
	e, _ := openEngine(t, engine.ModeNew, engine.Config{})
	require.NoError(t, e.Close(false))

	_, err := e.Get([]byte("k"))
	assert.ErrorIs(t, err, saverrors.AlreadyClosed)
	assert.ErrorIs(t, e.Put([]byte("k"), []byte("v")), saverrors.AlreadyClosed)
	assert.ErrorIs(t, e.Close(false), saverrors.AlreadyClosed)
}

func TestSetDefault(t *testing.T) {
	e, _ := openEngine(t, engine.ModeNew, engine.Config{})

	got, err := e.SetDefault([]byte("k"), []byte("default"))
	require.NoError(t, err)
	assert.Equal(t, "default", string(got))

	got, err = e.SetDefault([]byte("k"), []byte("other"))
	require.NoError(t, err)
	assert.Equal(t, "default", string(got))
}

func TestClearRemovesAllKeys(t *testing.T) {
	e, _ := openEngine(t, engine.ModeNew, engine.Config{})
	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Put([]byte("b"), []byte("2")))

	require.NoError(t, e.Clear())
	assert.Equal(t, 0, e.Len())
}

func TestCopyRejectsSamePath(t *testing.T) {
	e, path := openEngine(t, engine.ModeNew, engine.Config{})
	err := e.Copy(path)
	assert.ErrorIs(t, err, saverrors.InvalidArgument)
}

// Reopening an existing, non-empty file in a writable mode and then
// writing must append after the existing records, not clobber them
// from offset 0 — the canonical "reopen a save file and keep writing"
// flow the mode table exists for.
func TestPutAfterReopenAppendsPastExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.savestate")

	e, err := engine.Open(path, engine.ModeNew, engine.Config{})
	require.NoError(t, err)
	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Put([]byte("b"), []byte("2")))
	require.NoError(t, e.Close(false))

	reopened, err := engine.Open(path, engine.ModeReadWrite, engine.Config{})
	require.NoError(t, err)
	defer reopened.Close(false)

	require.NoError(t, reopened.Put([]byte("c"), []byte("3")))

	for k, want := range map[string]string{"a": "1", "b": "2", "c": "3"} {
		got, err := reopened.Get([]byte(k))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	assert.Equal(t, 3, reopened.Len())
}

// A Put issued after Compact must append past the compacted image
// rather than overwriting it from offset 0.
func TestPutAfterCompactAppendsPastCompactedImage(t *testing.T) {
	e, _ := openEngine(t, engine.ModeNew, engine.Config{})

	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Put([]byte("a"), []byte("2")))
	require.NoError(t, e.Compact())
	require.NoError(t, e.Put([]byte("b"), []byte("3")))

	gotA, err := e.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(gotA))

	gotB, err := e.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "3", string(gotB))
	assert.Equal(t, 2, e.Len())
}

func TestCopyWritesDenseLiveSet(t *testing.T) {
	e, _ := openEngine(t, engine.ModeNew, engine.Config{})
	require.NoError(t, e.Put([]byte("k"), []byte("v1")))
	require.NoError(t, e.Put([]byte("k"), []byte("v2")))

	dest := filepath.Join(t.TempDir(), "copy.savestate")
	require.NoError(t, e.Copy(dest))

	copied, err := engine.Open(dest, engine.ModeRead, engine.Config{})
	require.NoError(t, err)
	defer copied.Close(false)

	assert.Equal(t, 1, copied.Len())
	got, err := copied.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}
