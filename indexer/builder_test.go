package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basaltdb/basalt/core"
	"github.com/basaltdb/basalt/objstore"
)

func indexTestMetadata() core.RegionMetadataRef {
	return &core.RegionMetadata{
		RegionID:      core.NewRegionID(1, 2),
		SchemaVersion: 1,
		Columns: []core.ColumnMetadata{
			{ColumnID: 0, Name: "ts", Semantic: core.SemanticTimestamp},
			{ColumnID: 1, Name: "host", Semantic: core.SemanticTag},
			{ColumnID: 2, Name: "dc", Semantic: core.SemanticTag},
			{ColumnID: 3, Name: "usage", Semantic: core.SemanticField},
		},
	}
}

func tagBatch(timestamps []int64, hosts, dcs []string) *core.Batch {
	b := &core.Batch{
		Timestamps: timestamps,
		Columns: []core.ColumnSlice{
			{ColumnID: 1},
			{ColumnID: 2},
		},
	}
	for i := range hosts {
		b.Columns[0].Values = append(b.Columns[0].Values, []byte(hosts[i]))
		b.Columns[1].Values = append(b.Columns[1].Values, []byte(dcs[i]))
	}
	return b
}

func postingsList(t *testing.T, r *IndexReader, column string, value []byte) []uint64 {
	t.Helper()
	bm, err := r.Postings(column, value)
	require.NoError(t, err)
	return bm.ToArray()
}

func TestBuilder_BuildAndQuery(t *testing.T) {
	provider, scratchBackend, _ := newTestProvider(t)
	out := objstore.NewMemory()
	ctx := context.Background()

	b := NewBuilder(indexTestMetadata(), provider, BuilderOptions{MemoryBudgetBytes: 48})
	require.NoError(t, b.Update(ctx, tagBatch(
		[]int64{100, 101, 102},
		[]string{"web-1", "web-2", "web-1"},
		[]string{"us-east", "us-east", "eu-west"},
	)))
	require.NoError(t, b.Update(ctx, tagBatch(
		[]int64{103, 104},
		[]string{"web-2", "web-3"},
		[]string{"eu-west", "us-east"},
	)))
	assert.Equal(t, uint64(5), b.RowCount())

	w, err := out.Writer(ctx, "region/index/f1.bidx")
	require.NoError(t, err)
	written, err := b.Finish(ctx, w)
	require.NoError(t, err)
	assert.Greater(t, written, int64(0))
	assert.Equal(t, 0, scratchBackend.Len(), "scratch files must not outlive the build")

	r, err := out.Reader(ctx, "region/index/f1.bidx")
	require.NoError(t, err)
	idx, err := OpenIndex(r)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, []string{"dc", "host"}, idx.Columns())
	assert.Equal(t, []uint64{0, 2}, postingsList(t, idx, "host", []byte("web-1")))
	assert.Equal(t, []uint64{1, 3}, postingsList(t, idx, "host", []byte("web-2")))
	assert.Equal(t, []uint64{4}, postingsList(t, idx, "host", []byte("web-3")))
	assert.Equal(t, []uint64{2, 3}, postingsList(t, idx, "dc", []byte("eu-west")))
	assert.Equal(t, []uint64{0, 1, 4}, postingsList(t, idx, "dc", []byte("us-east")))

	assert.Empty(t, postingsList(t, idx, "host", []byte("web-9")))
	assert.Empty(t, postingsList(t, idx, "rack", []byte("r1")))
}

func TestBuilder_SkipsEmptyTagValues(t *testing.T) {
	provider, _, _ := newTestProvider(t)
	out := objstore.NewMemory()
	ctx := context.Background()

	b := NewBuilder(indexTestMetadata(), provider, BuilderOptions{})
	require.NoError(t, b.Update(ctx, tagBatch(
		[]int64{1, 2},
		[]string{"", "web-1"},
		[]string{"", ""},
	)))

	w, err := out.Writer(ctx, "region/index/f2.bidx")
	require.NoError(t, err)
	written, err := b.Finish(ctx, w)
	require.NoError(t, err)
	require.Greater(t, written, int64(0))

	r, err := out.Reader(ctx, "region/index/f2.bidx")
	require.NoError(t, err)
	idx, err := OpenIndex(r)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, []string{"host"}, idx.Columns())
	assert.Equal(t, []uint64{1}, postingsList(t, idx, "host", []byte("web-1")))
}

func TestBuilder_NoPostingsWritesNothing(t *testing.T) {
	provider, _, _ := newTestProvider(t)
	out := objstore.NewMemory()
	ctx := context.Background()

	b := NewBuilder(indexTestMetadata(), provider, BuilderOptions{})
	require.NoError(t, b.Update(ctx, tagBatch([]int64{1}, []string{""}, []string{""})))

	w, err := out.Writer(ctx, "region/index/f3.bidx")
	require.NoError(t, err)
	written, err := b.Finish(ctx, w)
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Equal(t, 0, out.Len(), "an uncommitted writer must leave nothing addressable")

	// Finishing twice is an error.
	_, err = b.Finish(ctx, w)
	require.Error(t, err)
}

func TestBuilder_ToleratesReusedValueBuffers(t *testing.T) {
	provider, _, _ := newTestProvider(t)
	out := objstore.NewMemory()
	ctx := context.Background()

	b := NewBuilder(indexTestMetadata(), provider, BuilderOptions{})

	// Sources are allowed to reuse their batch buffers between Next
	// calls; postings must reflect the value at Update time.
	buf := []byte("web-1")
	batch := &core.Batch{
		Timestamps: []int64{100},
		Columns:    []core.ColumnSlice{{ColumnID: 1, Values: [][]byte{buf}}},
	}
	require.NoError(t, b.Update(ctx, batch))

	copy(buf, "web-2")
	require.NoError(t, b.Update(ctx, batch))

	w, err := out.Writer(ctx, "region/index/f4.bidx")
	require.NoError(t, err)
	written, err := b.Finish(ctx, w)
	require.NoError(t, err)
	require.Greater(t, written, int64(0))

	r, err := out.Reader(ctx, "region/index/f4.bidx")
	require.NoError(t, err)
	idx, err := OpenIndex(r)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, []uint64{0}, postingsList(t, idx, "host", []byte("web-1")))
	assert.Equal(t, []uint64{1}, postingsList(t, idx, "host", []byte("web-2")))
}

func TestBuilder_AbortCleansScratch(t *testing.T) {
	provider, scratchBackend, _ := newTestProvider(t)
	ctx := context.Background()

	b := NewBuilder(indexTestMetadata(), provider, BuilderOptions{MemoryBudgetBytes: 16})
	require.NoError(t, b.Update(ctx, tagBatch(
		[]int64{1, 2, 3},
		[]string{"web-1", "web-2", "web-3"},
		[]string{"us", "us", "eu"},
	)))
	assert.Greater(t, scratchBackend.Len(), 0, "tiny budget should have spilled runs")

	require.NoError(t, b.Abort(ctx))
	assert.Equal(t, 0, scratchBackend.Len())
	// Abort after Finish/Abort is a no-op.
	require.NoError(t, b.Abort(ctx))
}
