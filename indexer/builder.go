package indexer

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/basaltdb/basalt/core"
	"github.com/basaltdb/basalt/objstore"
)

// Builder constructs the inverted index of one SST: for every tag column,
// a sorted mapping from tag value to the roaring bitmap of row positions
// holding that value. Rows are fed in write order via Update; Finish merges
// everything (including spilled runs) and writes the index file.
type Builder struct {
	meta     core.RegionMetadataRef
	provider ExternalTempFileProvider
	sorter   *Sorter
	logger   *slog.Logger

	tagColumns []core.ColumnMetadata
	rowCount   uint64
	finished   bool
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// MemoryBudgetBytes bounds buffered pairs before spilling. Zero
	// disables spilling.
	MemoryBudgetBytes int64
	Logger            *slog.Logger
}

// NewBuilder returns a Builder spilling through the given provider.
func NewBuilder(meta core.RegionMetadataRef, provider ExternalTempFileProvider, opts BuilderOptions) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "IndexBuilder", "region_id", meta.RegionID.String())
	return &Builder{
		meta:       meta,
		provider:   provider,
		sorter:     NewSorter(provider, opts.MemoryBudgetBytes, logger),
		logger:     logger,
		tagColumns: meta.TagColumns(),
	}
}

// Update feeds one batch of rows, in the same order the SST writer
// persists them.
func (b *Builder) Update(ctx context.Context, batch *core.Batch) error {
	baseRow := b.rowCount
	for _, col := range b.tagColumns {
		cs := batch.Column(col.ColumnID)
		if cs == nil {
			continue
		}
		for row, value := range cs.Values {
			if len(value) == 0 {
				// Absent tag values carry no postings.
				continue
			}
			if err := b.sorter.Push(ctx, col.Name, value, baseRow+uint64(row)); err != nil {
				return err
			}
		}
	}
	b.rowCount += uint64(batch.Len())
	return nil
}

// RowCount returns the number of rows fed so far.
func (b *Builder) RowCount() uint64 {
	return b.rowCount
}

// Finish merges all runs, writes the index file through out, and cleans up
// every scratch file. It returns the number of bytes written; zero with a
// nil error means no column had postings and nothing was written (the
// caller should not commit an index file in that case).
func (b *Builder) Finish(ctx context.Context, out objstore.Writer) (written int64, err error) {
	if b.finished {
		return 0, fmt.Errorf("index builder already finished")
	}
	b.finished = true
	defer func() {
		// Scratch files never outlive the build, even on failure.
		if cleanupErr := b.provider.Cleanup(ctx); cleanupErr != nil {
			if err == nil {
				err = cleanupErr
			} else {
				b.logger.Warn("failed to clean up index scratch files", "error", cleanupErr)
			}
		}
	}()

	columns := b.sorter.Columns()
	if len(columns) == 0 {
		return 0, nil
	}

	header := core.NewFileHeader(core.TagIndexMagicNumber, core.CompressionNone)
	var headerBuf bytes.Buffer
	if err := binary.Write(&headerBuf, binary.LittleEndian, &header); err != nil {
		return 0, fmt.Errorf("failed to encode index header: %w", err)
	}
	if _, err := out.Write(headerBuf.Bytes()); err != nil {
		return 0, err
	}
	offset := int64(headerBuf.Len())

	toc := make([]columnBlock, 0, len(columns))
	for _, columnID := range columns {
		blockBytes, err := b.encodeColumn(ctx, columnID)
		if err != nil {
			return 0, err
		}
		if blockBytes == nil {
			continue
		}
		if _, err := out.Write(blockBytes); err != nil {
			return 0, err
		}
		toc = append(toc, columnBlock{
			name:   columnID,
			offset: uint64(offset),
			length: uint64(len(blockBytes)),
		})
		offset += int64(len(blockBytes))
	}
	if len(toc) == 0 {
		return 0, nil
	}

	tocBytes := encodeTOC(toc)
	if _, err := out.Write(tocBytes); err != nil {
		return 0, err
	}
	var tail [indexTailSize]byte
	binary.LittleEndian.PutUint32(tail[0:4], checksum(tocBytes))
	binary.LittleEndian.PutUint32(tail[4:8], uint32(len(tocBytes)))
	binary.LittleEndian.PutUint32(tail[8:12], core.TagIndexMagicNumber)
	if _, err := out.Write(tail[:]); err != nil {
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}
	written = offset + int64(len(tocBytes)) + indexTailSize

	b.logger.Debug("inverted index committed", "columns", len(toc), "rows", b.rowCount, "size_bytes", written)
	return written, nil
}

// Abort discards the build, removing all scratch files.
func (b *Builder) Abort(ctx context.Context) error {
	if b.finished {
		return nil
	}
	b.finished = true
	return b.provider.Cleanup(ctx)
}

// encodeColumn merges the column's runs and encodes its postings block:
// name, entry count, then (value, bitmap) entries sorted by value.
func (b *Builder) encodeColumn(ctx context.Context, columnID string) ([]byte, error) {
	merged, err := b.sorter.Output(ctx, columnID)
	if err != nil {
		return nil, err
	}
	defer merged.Close()

	var entries bytes.Buffer
	var entryCount uint64
	var currentValue []byte
	var currentBitmap *roaring64.Bitmap

	flushEntry := func() error {
		if currentBitmap == nil {
			return nil
		}
		bitmapBytes, err := currentBitmap.ToBytes()
		if err != nil {
			return fmt.Errorf("failed to serialize postings bitmap: %w", err)
		}
		var lenBuf [2 * binary.MaxVarintLen64]byte
		n := binary.PutUvarint(lenBuf[:], uint64(len(currentValue)))
		entries.Write(lenBuf[:n])
		entries.Write(currentValue)
		n = binary.PutUvarint(lenBuf[:], uint64(len(bitmapBytes)))
		entries.Write(lenBuf[:n])
		entries.Write(bitmapBytes)
		entryCount++
		return nil
	}

	for {
		value, rowID, ok, err := merged.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if currentBitmap == nil || !bytes.Equal(value, currentValue) {
			if err := flushEntry(); err != nil {
				return nil, err
			}
			currentValue = append([]byte(nil), value...)
			currentBitmap = roaring64.New()
		}
		currentBitmap.Add(rowID)
	}
	if err := flushEntry(); err != nil {
		return nil, err
	}
	if entryCount == 0 {
		return nil, nil
	}

	block := make([]byte, 0, entries.Len()+len(columnID)+16)
	block = binary.AppendUvarint(block, uint64(len(columnID)))
	block = append(block, columnID...)
	block = binary.AppendUvarint(block, entryCount)
	block = append(block, entries.Bytes()...)
	return block, nil
}
