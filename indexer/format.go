package indexer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/basaltdb/basalt/core"
	"github.com/basaltdb/basalt/objstore"
)

// Index file layout:
//
//	header | column block ... | toc | crc | toc len | magic
//
// Each column block is the column name, an entry count, and sorted
// (value, bitmap) entries. The TOC maps column names to block locations.

// indexTailSize is crc32 + toc length + magic, each uint32.
const indexTailSize = 12

type columnBlock struct {
	name   string
	offset uint64
	length uint64
}

func encodeTOC(blocks []columnBlock) []byte {
	buf := make([]byte, 0, 16+len(blocks)*24)
	buf = binary.AppendUvarint(buf, uint64(len(blocks)))
	for _, b := range blocks {
		buf = binary.AppendUvarint(buf, uint64(len(b.name)))
		buf = append(buf, b.name...)
		buf = binary.AppendUvarint(buf, b.offset)
		buf = binary.AppendUvarint(buf, b.length)
	}
	return buf
}

func decodeTOC(data []byte) ([]columnBlock, error) {
	r := bytes.NewReader(data)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("toc column count: %w", err)
	}
	blocks := make([]columnBlock, count)
	for i := range blocks {
		nameLen, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("toc name length: %w", err)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("toc name: %w", err)
		}
		blocks[i].name = string(name)
		if blocks[i].offset, err = binary.ReadUvarint(r); err != nil {
			return nil, fmt.Errorf("toc offset: %w", err)
		}
		if blocks[i].length, err = binary.ReadUvarint(r); err != nil {
			return nil, fmt.Errorf("toc length: %w", err)
		}
	}
	return blocks, nil
}

func checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// IndexReader answers postings lookups against one committed index file.
type IndexReader struct {
	src objstore.Reader
	toc []columnBlock
}

// OpenIndex verifies the file's header and TOC and returns a reader.
func OpenIndex(src objstore.Reader) (*IndexReader, error) {
	size := src.Size()
	var header core.FileHeader
	headerSize := int64(header.Size())
	if size < headerSize+indexTailSize {
		return nil, fmt.Errorf("index file truncated: %d bytes", size)
	}
	headerBuf := make([]byte, headerSize)
	if _, err := src.ReadAt(headerBuf, 0); err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}
	if err := binary.Read(bytes.NewReader(headerBuf), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to decode index header: %w", err)
	}
	if header.Magic != core.TagIndexMagicNumber {
		return nil, fmt.Errorf("index file has bad magic 0x%08X", header.Magic)
	}

	var tail [indexTailSize]byte
	if _, err := src.ReadAt(tail[:], size-indexTailSize); err != nil {
		return nil, fmt.Errorf("failed to read index tail: %w", err)
	}
	if magic := binary.LittleEndian.Uint32(tail[8:12]); magic != core.TagIndexMagicNumber {
		return nil, fmt.Errorf("index file has bad tail magic 0x%08X", magic)
	}
	tocLen := int64(binary.LittleEndian.Uint32(tail[4:8]))
	if tocLen <= 0 || tocLen > size-headerSize-indexTailSize {
		return nil, fmt.Errorf("index file has invalid toc length %d", tocLen)
	}
	tocBuf := make([]byte, tocLen)
	if _, err := src.ReadAt(tocBuf, size-indexTailSize-tocLen); err != nil {
		return nil, fmt.Errorf("failed to read index toc: %w", err)
	}
	if crc := binary.LittleEndian.Uint32(tail[0:4]); crc != checksum(tocBuf) {
		return nil, fmt.Errorf("index toc checksum mismatch")
	}
	toc, err := decodeTOC(tocBuf)
	if err != nil {
		return nil, err
	}
	return &IndexReader{src: src, toc: toc}, nil
}

// Columns returns the indexed column names.
func (r *IndexReader) Columns() []string {
	names := make([]string, len(r.toc))
	for i, b := range r.toc {
		names[i] = b.name
	}
	return names
}

// Postings returns the bitmap of row positions holding the given value in
// the given column. A missing column or value yields an empty bitmap.
func (r *IndexReader) Postings(column string, value []byte) (*roaring64.Bitmap, error) {
	var block *columnBlock
	for i := range r.toc {
		if r.toc[i].name == column {
			block = &r.toc[i]
			break
		}
	}
	if block == nil {
		return roaring64.New(), nil
	}

	buf := make([]byte, block.length)
	if _, err := r.src.ReadAt(buf, int64(block.offset)); err != nil {
		return nil, fmt.Errorf("failed to read index column block %q: %w", column, err)
	}
	br := bytes.NewReader(buf)

	nameLen, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("column block name length: %w", err)
	}
	if _, err := br.Seek(int64(nameLen), io.SeekCurrent); err != nil {
		return nil, fmt.Errorf("column block name: %w", err)
	}
	entryCount, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("column block entry count: %w", err)
	}

	for i := uint64(0); i < entryCount; i++ {
		valueLen, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, fmt.Errorf("column block value length: %w", err)
		}
		entryValue := make([]byte, valueLen)
		if _, err := io.ReadFull(br, entryValue); err != nil {
			return nil, fmt.Errorf("column block value: %w", err)
		}
		bitmapLen, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, fmt.Errorf("column block bitmap length: %w", err)
		}
		// Entries are sorted by value.
		switch c := bytes.Compare(entryValue, value); {
		case c == 0:
			bitmapBytes := make([]byte, bitmapLen)
			if _, err := io.ReadFull(br, bitmapBytes); err != nil {
				return nil, fmt.Errorf("column block bitmap: %w", err)
			}
			bm := roaring64.New()
			if err := bm.UnmarshalBinary(bitmapBytes); err != nil {
				return nil, fmt.Errorf("failed to decode postings bitmap: %w", err)
			}
			return bm, nil
		case c > 0:
			return roaring64.New(), nil
		default:
			if _, err := br.Seek(int64(bitmapLen), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("column block bitmap skip: %w", err)
			}
		}
	}
	return roaring64.New(), nil
}

// Close releases the underlying store handle.
func (r *IndexReader) Close() error {
	return r.src.Close()
}
