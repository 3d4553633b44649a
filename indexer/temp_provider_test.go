package indexer

import (
	"context"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basaltdb/basalt/core"
	"github.com/basaltdb/basalt/objstore"
	"github.com/basaltdb/basalt/storage"
)

func newTestProvider(t *testing.T) (*TempFileProvider, *objstore.Memory, *storage.Metrics) {
	t.Helper()
	backend := objstore.NewMemory()
	metrics := storage.NewMetrics(false, "")
	location := storage.NewIntermediateLocation("data/region-1", core.NewFileID())
	provider := NewTempFileProvider(location, objstore.NewInstrumentedStore(backend), metrics, nil)
	return provider, backend, metrics
}

func writeRunFile(t *testing.T, p *TempFileProvider, column, run string, content []byte) {
	t.Helper()
	w, err := p.Create(context.Background(), column, run)
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())
}

func readAllRuns(t *testing.T, p *TempFileProvider, column string) []string {
	t.Helper()
	readers, err := p.ReadAll(context.Background(), column)
	require.NoError(t, err)
	contents := make([]string, 0, len(readers))
	for _, r := range readers {
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		contents = append(contents, string(data))
	}
	sort.Strings(contents)
	return contents
}

func TestTempFileProvider_CreateReadCleanup(t *testing.T) {
	provider, backend, metrics := newTestProvider(t)

	writeRunFile(t, provider, "tag0", "0000000010", []byte("hello"))
	writeRunFile(t, provider, "tag0", "0000000100", []byte("world"))
	writeRunFile(t, provider, "tag1", "0000000010", []byte("foo"))

	assert.Equal(t, []string{"hello", "world"}, readAllRuns(t, provider, "tag0"))
	assert.Equal(t, []string{"foo"}, readAllRuns(t, provider, "tag1"))

	assert.Equal(t, int64(13), metrics.IndexIntermediateWriteBytesTotal.Value())
	assert.Equal(t, int64(3), metrics.IndexIntermediateWriteOpTotal.Value())
	assert.Equal(t, int64(13), metrics.IndexIntermediateReadBytesTotal.Value())

	require.NoError(t, provider.Cleanup(context.Background()))
	assert.Equal(t, 0, backend.Len())
	assert.Empty(t, readAllRuns(t, provider, "tag0"))
	assert.Empty(t, readAllRuns(t, provider, "tag1"))

	// Cleanup is idempotent.
	require.NoError(t, provider.Cleanup(context.Background()))
}

func TestTempFileProvider_ReadAllUnknownColumnIsEmpty(t *testing.T) {
	provider, _, _ := newTestProvider(t)
	readers, err := provider.ReadAll(context.Background(), "never-written")
	require.NoError(t, err)
	assert.Empty(t, readers)
}

func TestTempFileProvider_BuildsAreIsolated(t *testing.T) {
	backend := objstore.NewMemory()
	store := objstore.NewInstrumentedStore(backend)
	metrics := storage.NewMetrics(false, "")

	buildA := NewTempFileProvider(
		storage.NewIntermediateLocation("data/region-1", core.NewFileID()), store, metrics, nil)
	buildB := NewTempFileProvider(
		storage.NewIntermediateLocation("data/region-1", core.NewFileID()), store, metrics, nil)

	writeRunFile(t, buildA, "tag0", "0000000001", []byte("a-run"))
	writeRunFile(t, buildB, "tag0", "0000000001", []byte("b-run"))

	assert.Equal(t, []string{"a-run"}, readAllRuns(t, buildA, "tag0"))
	assert.Equal(t, []string{"b-run"}, readAllRuns(t, buildB, "tag0"))

	require.NoError(t, buildA.Cleanup(context.Background()))
	assert.Empty(t, readAllRuns(t, buildA, "tag0"))
	assert.Equal(t, []string{"b-run"}, readAllRuns(t, buildB, "tag0"))
}
