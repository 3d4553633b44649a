package sstable

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basaltdb/basalt/core"
	"github.com/basaltdb/basalt/objstore"
)

func testRegionMetadata() core.RegionMetadataRef {
	return &core.RegionMetadata{
		RegionID:      core.NewRegionID(1, 1),
		SchemaVersion: 1,
		Columns: []core.ColumnMetadata{
			{ColumnID: 0, Name: "ts", Semantic: core.SemanticTimestamp},
			{ColumnID: 1, Name: "host", Semantic: core.SemanticTag},
			{ColumnID: 2, Name: "usage", Semantic: core.SemanticField},
		},
	}
}

func testBatch(start int64, rows int) *core.Batch {
	b := &core.Batch{
		Columns: []core.ColumnSlice{
			{ColumnID: 1},
			{ColumnID: 2},
		},
	}
	for i := 0; i < rows; i++ {
		b.Timestamps = append(b.Timestamps, start+int64(i))
		b.Columns[0].Values = append(b.Columns[0].Values, []byte("host-a"))
		b.Columns[1].Values = append(b.Columns[1].Values, []byte{byte(i)})
	}
	return b
}

func writeTestSST(t *testing.T, store objstore.ObjectStore, path string, opts *core.WriteOptions, batches ...*core.Batch) *core.SSTInfo {
	t.Helper()
	w := NewWriter(path, testRegionMetadata(), store, WriterOptions{})
	info, err := w.WriteAll(context.Background(), core.NewSliceSource(batches...), opts)
	require.NoError(t, err)
	return info
}

func drain(t *testing.T, r *Reader) []*core.Batch {
	t.Helper()
	var batches []*core.Batch
	for {
		b, err := r.Next(context.Background())
		require.NoError(t, err)
		if b == nil {
			return batches
		}
		batches = append(batches, b)
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	store := objstore.NewMemory()
	info := writeTestSST(t, store, "r1/a.sst", nil, testBatch(100, 10), testBatch(110, 5))

	require.NotNil(t, info)
	assert.Equal(t, uint64(15), info.NumRows)
	assert.Equal(t, core.TimeRange{Min: 100, Max: 114}, info.TimeRange)
	assert.Greater(t, info.FileSize, uint64(0))
	require.NotNil(t, info.Metadata)
	assert.Equal(t, core.CompressionSnappy, info.Metadata.Compression)

	handle := core.NewFileHandle(&core.FileMeta{FileID: core.NewFileID()})
	reader, err := NewReaderBuilder("r1/a.sst", handle, store).Build(context.Background())
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, info.NumRows, reader.Metadata().NumRows)
	assert.Equal(t, handle.FileID(), reader.FileHandle().FileID())

	var rows int
	var minTs, maxTs int64 = 1 << 62, -1 << 62
	for _, b := range drain(t, reader) {
		rows += b.Len()
		require.NotNil(t, b.Column(1))
		require.NotNil(t, b.Column(2))
		assert.Len(t, b.Column(1).Values, b.Len())
		for _, ts := range b.Timestamps {
			if ts < minTs {
				minTs = ts
			}
			if ts > maxTs {
				maxTs = ts
			}
		}
	}
	assert.Equal(t, 15, rows)
	assert.Equal(t, int64(100), minTs)
	assert.Equal(t, int64(114), maxTs)
}

func TestWriter_EmptySourceCreatesNothing(t *testing.T) {
	store := objstore.NewMemory()
	info := writeTestSST(t, store, "r1/empty.sst", nil)
	assert.Nil(t, info)
	assert.Equal(t, 0, store.Len())

	// A source of empty batches behaves the same.
	info = writeTestSST(t, store, "r1/empty.sst", nil, &core.Batch{})
	assert.Nil(t, info)
	assert.Equal(t, 0, store.Len())
}

func TestWriter_AllCompressionTypes(t *testing.T) {
	for _, ct := range []core.CompressionType{
		core.CompressionNone,
		core.CompressionSnappy,
		core.CompressionLZ4,
		core.CompressionZSTD,
	} {
		t.Run(ct.String(), func(t *testing.T) {
			store := objstore.NewMemory()
			opts := core.DefaultWriteOptions()
			opts.Compression = ct
			info := writeTestSST(t, store, "r1/c.sst", opts, testBatch(0, 100))
			require.NotNil(t, info)

			reader, err := NewReaderBuilder("r1/c.sst", core.FileHandle{}, store).Build(context.Background())
			require.NoError(t, err)
			defer reader.Close()
			assert.Equal(t, ct, reader.Metadata().Compression)

			var rows int
			for _, b := range drain(t, reader) {
				rows += b.Len()
			}
			assert.Equal(t, 100, rows)
		})
	}
}

func TestWriter_SmallBlocksProduceMultipleBlockMetas(t *testing.T) {
	store := objstore.NewMemory()
	opts := core.DefaultWriteOptions()
	opts.BlockSizeBytes = 32
	info := writeTestSST(t, store, "r1/b.sst", opts, testBatch(0, 50))
	require.NotNil(t, info)
	assert.Greater(t, len(info.Metadata.Blocks), 1)

	var total uint32
	for _, bm := range info.Metadata.Blocks {
		total += bm.NumRows
		assert.LessOrEqual(t, bm.MinTimestamp, bm.MaxTimestamp)
	}
	assert.Equal(t, uint32(50), total)
}

func TestReader_TimeRangeSkipsBlocks(t *testing.T) {
	store := objstore.NewMemory()
	opts := core.DefaultWriteOptions()
	opts.BlockSizeBytes = 32
	writeTestSST(t, store, "r1/t.sst", opts, testBatch(0, 100))

	reader, err := NewReaderBuilder("r1/t.sst", core.FileHandle{}, store).
		WithTimeRange(40, 59).
		Build(context.Background())
	require.NoError(t, err)
	defer reader.Close()

	var rows int
	for _, b := range drain(t, reader) {
		rows += b.Len()
		for _, ts := range b.Timestamps {
			assert.GreaterOrEqual(t, ts, int64(40))
			assert.LessOrEqual(t, ts, int64(59))
		}
	}
	assert.Equal(t, 20, rows)
}

func TestReader_Projection(t *testing.T) {
	store := objstore.NewMemory()
	writeTestSST(t, store, "r1/p.sst", nil, testBatch(0, 10))

	reader, err := NewReaderBuilder("r1/p.sst", core.FileHandle{}, store).
		WithProjection(2).
		Build(context.Background())
	require.NoError(t, err)
	defer reader.Close()

	batches := drain(t, reader)
	require.NotEmpty(t, batches)
	for _, b := range batches {
		assert.Nil(t, b.Column(1))
		require.NotNil(t, b.Column(2))
		assert.Len(t, b.Column(2).Values, b.Len())
	}
}

// errSource fails after yielding its batches.
type errSource struct {
	batches []*core.Batch
	next    int
}

func (s *errSource) Next(ctx context.Context) (*core.Batch, error) {
	if s.next < len(s.batches) {
		b := s.batches[s.next]
		s.next++
		return b, nil
	}
	return nil, errors.New("source failed")
}

func TestWriter_SourceFailureReleasesStagedWrite(t *testing.T) {
	dir := t.TempDir()
	store, err := objstore.NewFS(dir, objstore.WithAtomicWriteDir(".tmp"))
	require.NoError(t, err)

	w := NewWriter("r1/failed.sst", testRegionMetadata(), store, WriterOptions{})
	_, err = w.WriteAll(context.Background(), &errSource{batches: []*core.Batch{testBatch(0, 4)}}, nil)
	require.Error(t, err)

	_, err = store.Reader(context.Background(), "r1/failed.sst")
	require.Error(t, err, "nothing must be addressable after a failed write")

	entries, err := os.ReadDir(filepath.Join(dir, ".tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries, "the aborted writer must release its staged temp file")
}

func TestReaderBuilder_RejectsCorruptFiles(t *testing.T) {
	store := objstore.NewMemory()
	ctx := context.Background()

	t.Run("truncated", func(t *testing.T) {
		w, err := store.Writer(ctx, "bad/short.sst")
		require.NoError(t, err)
		_, err = w.Write([]byte("tiny"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = NewReaderBuilder("bad/short.sst", core.FileHandle{}, store).Build(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "truncated")
	})

	t.Run("bad magic", func(t *testing.T) {
		writeTestSST(t, store, "bad/magic.sst", nil, testBatch(0, 4))
		r, err := store.Reader(ctx, "bad/magic.sst")
		require.NoError(t, err)
		data := make([]byte, r.Size())
		_, err = r.ReadAt(data, 0)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		data[0] ^= 0xff

		w, err := store.Writer(ctx, "bad/magic.sst")
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = NewReaderBuilder("bad/magic.sst", core.FileHandle{}, store).Build(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad magic")
	})

	t.Run("footer checksum", func(t *testing.T) {
		writeTestSST(t, store, "bad/crc.sst", nil, testBatch(0, 4))
		r, err := store.Reader(ctx, "bad/crc.sst")
		require.NoError(t, err)
		data := make([]byte, r.Size())
		_, err = r.ReadAt(data, 0)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		// Flip a footer byte; the footer sits just before the 12-byte tail.
		data[len(data)-13] ^= 0xff

		w, err := store.Writer(ctx, "bad/crc.sst")
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = NewReaderBuilder("bad/crc.sst", core.FileHandle{}, store).Build(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "checksum")
	})
}
