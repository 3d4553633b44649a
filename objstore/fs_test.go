package objstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	store, err := NewFS(t.TempDir(), WithAtomicWriteDir(".tmp"))
	require.NoError(t, err)
	return store
}

func writeObject(t *testing.T, store ObjectStore, path string, data []byte) {
	t.Helper()
	w, err := store.Writer(context.Background(), path)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readObject(t *testing.T, store ObjectStore, path string) []byte {
	t.Helper()
	r, err := store.Reader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func TestFS_WriteReadRoundTrip(t *testing.T) {
	store := newTestFS(t)

	writeObject(t, store, "region/a.sst", []byte("hello sst"))
	got := readObject(t, store, "region/a.sst")
	assert.Equal(t, []byte("hello sst"), got)

	r, err := store.Reader(context.Background(), "region/a.sst")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(9), r.Size())
}

func TestFS_WriteIsInvisibleUntilClose(t *testing.T) {
	store := newTestFS(t)

	w, err := store.Writer(context.Background(), "region/pending.sst")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	// Not committed yet: the path must not resolve.
	_, err = store.Reader(context.Background(), "region/pending.sst")
	require.Error(t, err)
	assert.True(t, IsStoreError(err))

	require.NoError(t, w.Close())
	assert.Equal(t, []byte("partial"), readObject(t, store, "region/pending.sst"))
}

func TestFS_AbandonedWriterLeavesNothingAddressable(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFS(dir, WithAtomicWriteDir(".tmp"))
	require.NoError(t, err)

	w, err := store.Writer(context.Background(), "region/abandoned.sst")
	require.NoError(t, err)
	_, err = w.Write([]byte("to be dropped"))
	require.NoError(t, err)
	// Close is never called; the temp file stays in staging only.

	_, err = store.Reader(context.Background(), "region/abandoned.sst")
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, ".tmp"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "staged temp file should linger until the next provisioning pass")
}

func TestFS_AbortDiscardsStagedWrite(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFS(dir, WithAtomicWriteDir(".tmp"))
	require.NoError(t, err)

	w, err := store.Writer(context.Background(), "region/aborted.sst")
	require.NoError(t, err)
	_, err = w.Write([]byte("discard me"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	_, err = store.Reader(context.Background(), "region/aborted.sst")
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, ".tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries, "abort must release the staged temp file")

	// Abort twice is a no-op.
	require.NoError(t, w.Abort())
}

func TestFS_AbortAfterCloseKeepsObject(t *testing.T) {
	store := newTestFS(t)
	w, err := store.Writer(context.Background(), "region/kept.sst")
	require.NoError(t, err)
	_, err = w.Write([]byte("committed"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Abort())

	assert.Equal(t, []byte("committed"), readObject(t, store, "region/kept.sst"))
}

func TestFS_DeleteMissingIsSuccess(t *testing.T) {
	store := newTestFS(t)
	require.NoError(t, store.Delete(context.Background(), "region/nothing.sst"))
}

func TestFS_ListSkipsIntoDirsAndMissingPrefix(t *testing.T) {
	store := newTestFS(t)
	writeObject(t, store, "idx/tag0/0000000010", []byte("hello"))
	writeObject(t, store, "idx/tag0/0000000100", []byte("world"))
	writeObject(t, store, "idx/tag1/0000000010", []byte("foo"))

	entries, err := store.List(context.Background(), "idx/tag0")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.False(t, e.IsDir)
		assert.Greater(t, e.Size, int64(0))
	}

	// Listing the parent surfaces directory markers.
	entries, err = store.List(context.Background(), "idx")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, e.IsDir)
	}

	entries, err = store.List(context.Background(), "idx/absent")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFS_RemoveAllIdempotent(t *testing.T) {
	store := newTestFS(t)
	writeObject(t, store, "scratch/c1/r1", []byte("a"))
	writeObject(t, store, "scratch/c2/r1", []byte("b"))

	require.NoError(t, store.RemoveAll(context.Background(), "scratch"))
	entries, err := store.List(context.Background(), "scratch")
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Nothing present: still success.
	require.NoError(t, store.RemoveAll(context.Background(), "scratch"))
}

func TestFS_RejectsEscapingPaths(t *testing.T) {
	store := newTestFS(t)
	_, err := store.Writer(context.Background(), "../escape")
	require.Error(t, err)
	assert.True(t, IsStoreError(err))
}
