// Package sstable implements the block-based SST data file: a writer that
// drains a row-batch source through the object store, and a lazily
// configured reader builder. The layout is a fixed header, compressed and
// checksummed data blocks, and a footer holding the block index and file
// stats:
//
//	header | block 0 | crc | block 1 | crc | ... | footer | crc | len | magic
//
// Rows inside a block are encoded as the timestamp followed by each
// non-timestamp column value, length-prefixed, in footer column order.
package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/basaltdb/basalt/core"
)

// fileTailSize is crc32 + footer length + magic, each uint32.
const fileTailSize = 12

// footer carries everything a reader needs to locate and decode blocks.
type footer struct {
	columns   []uint64
	blocks    []core.BlockMeta
	numRows   uint64
	timeRange core.TimeRange
}

func encodeFooter(f *footer) []byte {
	buf := make([]byte, 0, 64+len(f.blocks)*24)

	buf = binary.AppendUvarint(buf, uint64(len(f.columns)))
	for _, id := range f.columns {
		buf = binary.AppendUvarint(buf, id)
	}

	buf = binary.AppendUvarint(buf, uint64(len(f.blocks)))
	for _, b := range f.blocks {
		buf = binary.AppendUvarint(buf, b.Offset)
		buf = binary.AppendUvarint(buf, uint64(b.Length))
		buf = binary.AppendUvarint(buf, uint64(b.NumRows))
		buf = binary.AppendVarint(buf, b.MinTimestamp)
		buf = binary.AppendVarint(buf, b.MaxTimestamp)
	}

	buf = binary.AppendUvarint(buf, f.numRows)
	buf = binary.AppendVarint(buf, f.timeRange.Min)
	buf = binary.AppendVarint(buf, f.timeRange.Max)
	return buf
}

func decodeFooter(data []byte) (*footer, error) {
	r := bytes.NewReader(data)

	numCols, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("footer column count: %w", err)
	}
	f := &footer{columns: make([]uint64, numCols)}
	for i := range f.columns {
		if f.columns[i], err = binary.ReadUvarint(r); err != nil {
			return nil, fmt.Errorf("footer column id: %w", err)
		}
	}

	numBlocks, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("footer block count: %w", err)
	}
	f.blocks = make([]core.BlockMeta, numBlocks)
	for i := range f.blocks {
		b := &f.blocks[i]
		if b.Offset, err = binary.ReadUvarint(r); err != nil {
			return nil, fmt.Errorf("footer block offset: %w", err)
		}
		length, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("footer block length: %w", err)
		}
		b.Length = uint32(length)
		numRows, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("footer block rows: %w", err)
		}
		b.NumRows = uint32(numRows)
		if b.MinTimestamp, err = binary.ReadVarint(r); err != nil {
			return nil, fmt.Errorf("footer block min ts: %w", err)
		}
		if b.MaxTimestamp, err = binary.ReadVarint(r); err != nil {
			return nil, fmt.Errorf("footer block max ts: %w", err)
		}
	}

	if f.numRows, err = binary.ReadUvarint(r); err != nil {
		return nil, fmt.Errorf("footer row count: %w", err)
	}
	if f.timeRange.Min, err = binary.ReadVarint(r); err != nil {
		return nil, fmt.Errorf("footer min ts: %w", err)
	}
	if f.timeRange.Max, err = binary.ReadVarint(r); err != nil {
		return nil, fmt.Errorf("footer max ts: %w", err)
	}
	return f, nil
}

// encodeRow appends one row: timestamp then each column value in column
// order, length-prefixed. Missing columns encode as empty values.
func encodeRow(buf []byte, ts int64, batch *core.Batch, row int, columns []uint64) []byte {
	buf = binary.AppendVarint(buf, ts)
	for _, colID := range columns {
		var value []byte
		if cs := batch.Column(colID); cs != nil {
			value = cs.Values[row]
		}
		buf = binary.AppendUvarint(buf, uint64(len(value)))
		buf = append(buf, value...)
	}
	return buf
}

// decodeBlock turns an uncompressed block payload back into a Batch,
// keeping only rows inside [minTs, maxTs] and the projected columns.
// A nil projection keeps every column.
func decodeBlock(payload []byte, numRows uint32, columns []uint64, projection map[uint64]struct{}, minTs, maxTs int64) (*core.Batch, error) {
	r := bytes.NewReader(payload)

	kept := make([]uint64, 0, len(columns))
	for _, id := range columns {
		if projection == nil {
			kept = append(kept, id)
			continue
		}
		if _, ok := projection[id]; ok {
			kept = append(kept, id)
		}
	}

	batch := &core.Batch{
		Timestamps: make([]int64, 0, numRows),
		Columns:    make([]core.ColumnSlice, len(kept)),
	}
	for i, id := range kept {
		batch.Columns[i] = core.ColumnSlice{ColumnID: id, Values: make([][]byte, 0, numRows)}
	}
	keptIdx := make(map[uint64]int, len(kept))
	for i, id := range kept {
		keptIdx[id] = i
	}

	for row := uint32(0); row < numRows; row++ {
		ts, err := binary.ReadVarint(r)
		if err != nil {
			return nil, fmt.Errorf("block row %d timestamp: %w", row, err)
		}
		include := ts >= minTs && ts <= maxTs
		if include {
			batch.Timestamps = append(batch.Timestamps, ts)
		}
		for _, colID := range columns {
			length, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("block row %d column %d length: %w", row, colID, err)
			}
			value := make([]byte, length)
			if _, err := io.ReadFull(r, value); err != nil {
				return nil, fmt.Errorf("block row %d column %d value: %w", row, colID, err)
			}
			if !include {
				continue
			}
			if i, ok := keptIdx[colID]; ok {
				batch.Columns[i].Values = append(batch.Columns[i].Values, value)
			}
		}
	}
	return batch, nil
}

func blockChecksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
