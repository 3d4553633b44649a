package core

import (
	"encoding/binary"
	"time"
)

// --- Magic numbers ---
const (
	// SSTableMagicNumber identifies an SST data file.
	SSTableMagicNumber uint32 = 0x42534C54 // "BSLT"
	// TagIndexMagicNumber identifies an inverted index file.
	TagIndexMagicNumber uint32 = 0x42544758 // "BTGX"
)

// FormatVersion is the current version for all persistent file formats.
const FormatVersion uint8 = 1

// FileHeader is the standard fixed-size header at the start of every
// persistent data/index file.
type FileHeader struct {
	Magic          uint32
	Version        uint8
	CreatedAt      int64 // UnixNano timestamp
	CompressorType CompressionType
}

// Size returns the encoded size of the header in bytes.
func (h *FileHeader) Size() int {
	return binary.Size(h)
}

// NewFileHeader creates a header with the current time and given magic.
func NewFileHeader(magic uint32, compressorType CompressionType) FileHeader {
	return FileHeader{
		Magic:          magic,
		Version:        FormatVersion,
		CreatedAt:      time.Now().UnixNano(),
		CompressorType: compressorType,
	}
}
