package sstable

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/basaltdb/basalt/compressors"
	"github.com/basaltdb/basalt/core"
	"github.com/basaltdb/basalt/objstore"
)

// Writer builds one SST file at a fixed path by draining a Source. The
// store handle is opened lazily on the first row, so a source yielding no
// rows leaves nothing addressable at the path.
type Writer struct {
	path     string
	metadata core.RegionMetadataRef
	store    objstore.ObjectStore
	logger   *slog.Logger
	tracer   trace.Tracer
}

// WriterOptions configures optional collaborators of a Writer.
type WriterOptions struct {
	Logger *slog.Logger
	Tracer trace.Tracer
}

// NewWriter returns a Writer targeting the given store path.
func NewWriter(path string, metadata core.RegionMetadataRef, store objstore.ObjectStore, opts WriterOptions) *Writer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Writer{
		path:     path,
		metadata: metadata,
		store:    store,
		logger:   opts.Logger.With("component", "SSTWriter", "path", path),
		tracer:   opts.Tracer,
	}
}

// WriteAll drains the source into the file and commits it. Returns nil
// when the source yielded no rows (no file is created). On failure the
// store writer is abandoned uncommitted, so no partial file is addressable.
func (w *Writer) WriteAll(ctx context.Context, source core.Source, opts *core.WriteOptions) (info *core.SSTInfo, err error) {
	if opts == nil {
		opts = core.DefaultWriteOptions()
	}
	if w.tracer != nil {
		var span trace.Span
		ctx, span = w.tracer.Start(ctx, "SSTWriter.WriteAll",
			trace.WithAttributes(attribute.String("path", w.path)))
		defer func() {
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}

	compressor, err := compressors.GetCompressor(opts.Compression)
	if err != nil {
		return nil, err
	}

	// Non-timestamp columns, in schema order; this order is persisted in
	// the footer and governs the row encoding.
	var columns []uint64
	for _, col := range w.metadata.Columns {
		if col.Semantic != core.SemanticTimestamp {
			columns = append(columns, col.ColumnID)
		}
	}

	enc := &blockEncoder{
		columns:    columns,
		compressor: compressor,
		blockSize:  opts.BlockSizeBytes,
	}

	for {
		batch, err := source.Next(ctx)
		if err != nil {
			enc.abandon()
			return nil, fmt.Errorf("sst source failed for %q: %w", w.path, err)
		}
		if batch == nil {
			break
		}
		if batch.Len() == 0 {
			continue
		}
		if err := enc.appendBatch(ctx, w, batch); err != nil {
			enc.abandon()
			return nil, err
		}
	}

	if enc.out == nil {
		// Zero rows written: a valid terminal outcome, not an error.
		w.logger.Debug("sst source yielded no rows, skipping file creation")
		return nil, nil
	}

	sstInfo, err := enc.finish(w)
	if err != nil {
		enc.abandon()
		return nil, err
	}
	return sstInfo, nil
}

// blockEncoder accumulates rows into blocks and streams them to the store.
type blockEncoder struct {
	columns    []uint64
	compressor core.Compressor
	blockSize  int

	out    objstore.Writer
	offset uint64

	buf       []byte
	blockRows uint32
	blockMin  int64
	blockMax  int64

	blocks    []core.BlockMeta
	numRows   uint64
	timeRange core.TimeRange
}

// open creates the store writer and emits the file header.
func (e *blockEncoder) open(ctx context.Context, w *Writer) error {
	out, err := w.store.Writer(ctx, w.path)
	if err != nil {
		return err
	}
	header := core.NewFileHeader(core.SSTableMagicNumber, e.compressor.Type())
	var headerBuf bytes.Buffer
	if err := binary.Write(&headerBuf, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to encode sst header for %q: %w", w.path, err)
	}
	if _, err := out.Write(headerBuf.Bytes()); err != nil {
		return err
	}
	e.out = out
	e.offset = uint64(headerBuf.Len())
	return nil
}

func (e *blockEncoder) appendBatch(ctx context.Context, w *Writer, batch *core.Batch) error {
	if e.out == nil {
		if err := e.open(ctx, w); err != nil {
			return err
		}
	}
	for row := 0; row < batch.Len(); row++ {
		ts := batch.Timestamps[row]
		e.buf = encodeRow(e.buf, ts, batch, row, e.columns)
		if e.blockRows == 0 {
			e.blockMin, e.blockMax = ts, ts
		} else {
			if ts < e.blockMin {
				e.blockMin = ts
			}
			if ts > e.blockMax {
				e.blockMax = ts
			}
		}
		if e.numRows == 0 {
			e.timeRange = core.TimeRange{Min: ts, Max: ts}
		} else {
			e.timeRange.Extend(ts)
		}
		e.blockRows++
		e.numRows++

		if len(e.buf) >= e.blockSize {
			if err := e.flushBlock(); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushBlock compresses, checksums and writes the buffered block.
func (e *blockEncoder) flushBlock() error {
	if e.blockRows == 0 {
		return nil
	}
	compressed, err := e.compressor.Compress(e.buf)
	if err != nil {
		return fmt.Errorf("failed to compress sst block: %w", err)
	}
	if _, err := e.out.Write(compressed); err != nil {
		return err
	}
	var crcBuf [core.ChecksumSize]byte
	binary.LittleEndian.PutUint32(crcBuf[:], blockChecksum(compressed))
	if _, err := e.out.Write(crcBuf[:]); err != nil {
		return err
	}

	e.blocks = append(e.blocks, core.BlockMeta{
		Offset:       e.offset,
		Length:       uint32(len(compressed)),
		NumRows:      e.blockRows,
		MinTimestamp: e.blockMin,
		MaxTimestamp: e.blockMax,
	})
	e.offset += uint64(len(compressed)) + core.ChecksumSize
	e.buf = e.buf[:0]
	e.blockRows = 0
	return nil
}

// finish flushes the last block, writes the footer and commits the file.
func (e *blockEncoder) finish(w *Writer) (*core.SSTInfo, error) {
	if err := e.flushBlock(); err != nil {
		return nil, err
	}

	footerBytes := encodeFooter(&footer{
		columns:   e.columns,
		blocks:    e.blocks,
		numRows:   e.numRows,
		timeRange: e.timeRange,
	})
	if _, err := e.out.Write(footerBytes); err != nil {
		return nil, err
	}
	var tail [fileTailSize]byte
	binary.LittleEndian.PutUint32(tail[0:4], blockChecksum(footerBytes))
	binary.LittleEndian.PutUint32(tail[4:8], uint32(len(footerBytes)))
	binary.LittleEndian.PutUint32(tail[8:12], core.SSTableMagicNumber)
	if _, err := e.out.Write(tail[:]); err != nil {
		return nil, err
	}
	if err := e.out.Close(); err != nil {
		return nil, err
	}
	fileSize := e.offset + uint64(len(footerBytes)) + fileTailSize
	e.out = nil

	w.logger.Debug("sst file committed",
		"rows", e.numRows, "blocks", len(e.blocks), "size_bytes", fileSize)

	return &core.SSTInfo{
		TimeRange: e.timeRange,
		FileSize:  fileSize,
		NumRows:   e.numRows,
		Metadata: &core.SSTMetadata{
			NumRows:     e.numRows,
			TimeRange:   e.timeRange,
			Compression: e.compressor.Type(),
			Blocks:      e.blocks,
		},
	}, nil
}

// abandon aborts the uncommitted store writer, leaving nothing addressable.
func (e *blockEncoder) abandon() {
	if e.out != nil {
		_ = e.out.Abort()
		e.out = nil
	}
}
