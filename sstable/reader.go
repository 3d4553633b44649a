package sstable

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/basaltdb/basalt/compressors"
	"github.com/basaltdb/basalt/core"
	"github.com/basaltdb/basalt/objstore"
)

// ReaderBuilder configures a Reader without performing any I/O. Callers
// attach projection and time-range predicates before Build fetches the
// first byte.
type ReaderBuilder struct {
	path       string
	file       core.FileHandle
	store      objstore.ObjectStore
	projection map[uint64]struct{}
	minTs      int64
	maxTs      int64
}

// NewReaderBuilder returns a builder bound to the given file path, handle
// and store.
func NewReaderBuilder(path string, file core.FileHandle, store objstore.ObjectStore) *ReaderBuilder {
	return &ReaderBuilder{
		path:  path,
		file:  file,
		store: store,
		minTs: math.MinInt64,
		maxTs: math.MaxInt64,
	}
}

// WithProjection restricts the decoded columns to the given ids.
func (b *ReaderBuilder) WithProjection(columnIDs ...uint64) *ReaderBuilder {
	b.projection = make(map[uint64]struct{}, len(columnIDs))
	for _, id := range columnIDs {
		b.projection[id] = struct{}{}
	}
	return b
}

// WithTimeRange restricts decoded rows to the inclusive [min, max] span.
// Blocks entirely outside the span are never fetched.
func (b *ReaderBuilder) WithTimeRange(min, max int64) *ReaderBuilder {
	b.minTs, b.maxTs = min, max
	return b
}

// Build opens the file, verifies header and footer, and returns a Reader.
func (b *ReaderBuilder) Build(ctx context.Context) (*Reader, error) {
	src, err := b.store.Reader(ctx, b.path)
	if err != nil {
		return nil, err
	}

	reader, err := b.build(src)
	if err != nil {
		src.Close()
		return nil, err
	}
	return reader, nil
}

func (b *ReaderBuilder) build(src objstore.Reader) (*Reader, error) {
	size := src.Size()

	var header core.FileHeader
	headerSize := int64(header.Size())
	if size < headerSize+fileTailSize {
		return nil, fmt.Errorf("sst file %q truncated: %d bytes", b.path, size)
	}
	headerBuf := make([]byte, headerSize)
	if _, err := src.ReadAt(headerBuf, 0); err != nil {
		return nil, fmt.Errorf("failed to read sst header of %q: %w", b.path, err)
	}
	if err := binary.Read(bytes.NewReader(headerBuf), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to decode sst header of %q: %w", b.path, err)
	}
	if header.Magic != core.SSTableMagicNumber {
		return nil, fmt.Errorf("sst file %q has bad magic 0x%08X", b.path, header.Magic)
	}
	if header.Version != core.FormatVersion {
		return nil, fmt.Errorf("sst file %q has unsupported version %d", b.path, header.Version)
	}
	compressor, err := compressors.GetCompressor(header.CompressorType)
	if err != nil {
		return nil, err
	}

	var tail [fileTailSize]byte
	if _, err := src.ReadAt(tail[:], size-fileTailSize); err != nil {
		return nil, fmt.Errorf("failed to read sst tail of %q: %w", b.path, err)
	}
	if magic := binary.LittleEndian.Uint32(tail[8:12]); magic != core.SSTableMagicNumber {
		return nil, fmt.Errorf("sst file %q has bad tail magic 0x%08X", b.path, magic)
	}
	footerLen := int64(binary.LittleEndian.Uint32(tail[4:8]))
	if footerLen <= 0 || footerLen > size-headerSize-fileTailSize {
		return nil, fmt.Errorf("sst file %q has invalid footer length %d", b.path, footerLen)
	}
	footerBuf := make([]byte, footerLen)
	if _, err := src.ReadAt(footerBuf, size-fileTailSize-footerLen); err != nil {
		return nil, fmt.Errorf("failed to read sst footer of %q: %w", b.path, err)
	}
	if crc := binary.LittleEndian.Uint32(tail[0:4]); crc != blockChecksum(footerBuf) {
		return nil, fmt.Errorf("sst file %q footer checksum mismatch", b.path)
	}
	ftr, err := decodeFooter(footerBuf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sst footer of %q: %w", b.path, err)
	}

	return &Reader{
		path:       b.path,
		file:       b.file,
		src:        src,
		compressor: compressor,
		footer:     ftr,
		projection: b.projection,
		minTs:      b.minTs,
		maxTs:      b.maxTs,
	}, nil
}

// Reader iterates the blocks of one SST file, yielding one Batch per block
// that overlaps the configured time range.
type Reader struct {
	path       string
	file       core.FileHandle
	src        objstore.Reader
	compressor core.Compressor
	footer     *footer
	projection map[uint64]struct{}
	minTs      int64
	maxTs      int64

	nextBlock int
}

// FileHandle returns the handle the reader was built for.
func (r *Reader) FileHandle() core.FileHandle {
	return r.file
}

// Metadata returns the parsed file-level metadata.
func (r *Reader) Metadata() *core.SSTMetadata {
	return &core.SSTMetadata{
		NumRows:     r.footer.numRows,
		TimeRange:   r.footer.timeRange,
		Compression: r.compressor.Type(),
		Blocks:      r.footer.blocks,
	}
}

// Next returns the next non-empty batch, or (nil, nil) once exhausted.
func (r *Reader) Next(ctx context.Context) (*core.Batch, error) {
	for r.nextBlock < len(r.footer.blocks) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta := r.footer.blocks[r.nextBlock]
		r.nextBlock++

		blockRange := core.TimeRange{Min: meta.MinTimestamp, Max: meta.MaxTimestamp}
		if !blockRange.Overlaps(r.minTs, r.maxTs) {
			continue
		}
		batch, err := r.readBlock(meta)
		if err != nil {
			return nil, err
		}
		if batch.Len() == 0 {
			continue
		}
		return batch, nil
	}
	return nil, nil
}

func (r *Reader) readBlock(meta core.BlockMeta) (*core.Batch, error) {
	raw := make([]byte, meta.Length+core.ChecksumSize)
	if _, err := r.src.ReadAt(raw, int64(meta.Offset)); err != nil {
		return nil, fmt.Errorf("failed to read sst block of %q at %d: %w", r.path, meta.Offset, err)
	}
	compressed := raw[:meta.Length]
	crc := binary.LittleEndian.Uint32(raw[meta.Length:])
	if crc != blockChecksum(compressed) {
		return nil, fmt.Errorf("sst file %q block at %d checksum mismatch", r.path, meta.Offset)
	}
	payload, err := r.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress sst block of %q at %d: %w", r.path, meta.Offset, err)
	}
	return decodeBlock(payload, meta.NumRows, r.footer.columns, r.projection, r.minTs, r.maxTs)
}

// Close releases the underlying store handle.
func (r *Reader) Close() error {
	return r.src.Close()
}
