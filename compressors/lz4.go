package compressors

import (
	"encoding/binary"
	"fmt"

	lz4 "github.com/pierrec/lz4/v4"

	"github.com/basaltdb/basalt/core"
)

// LZ4Compressor implements the Compressor interface using LZ4 block
// compression. Each output is framed as a uint32 uncompressed length, a
// one-byte raw/compressed flag, and the payload; incompressible input is
// stored raw.
type LZ4Compressor struct{}

const (
	lz4FrameRaw        byte = 0
	lz4FrameCompressed byte = 1
)

var _ core.Compressor = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	dst := make([]byte, 5+lz4.CompressBlockBound(len(data)))
	binary.LittleEndian.PutUint32(dst[:4], uint32(len(data)))
	n, err := lz4.CompressBlock(data, dst[5:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 {
		dst[4] = lz4FrameRaw
		dst = append(dst[:5], data...)
		return dst, nil
	}
	dst[4] = lz4FrameCompressed
	return dst[:5+n], nil
}

func (c *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("lz4 decompress error: input too short (%d bytes)", len(data))
	}
	origLen := binary.LittleEndian.Uint32(data[:4])
	flag := data[4]
	payload := data[5:]
	if flag == lz4FrameRaw {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}
	out := make([]byte, origLen)
	n, err := lz4.UncompressBlock(payload, out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
	return out[:n], nil
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}
