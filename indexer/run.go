package indexer

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// A run is a sorted sequence of (value, rowID) pairs spilled to one scratch
// file. Each pair is encoded as a length-prefixed value followed by the row
// id, both varint. Runs are written once and read back once during merge.

type pair struct {
	value []byte
	rowID uint64
}

// less orders pairs by value, then row id, so merged streams group equal
// values together with ascending rows.
func (p pair) less(other pair) bool {
	switch c := bytes.Compare(p.value, other.value); {
	case c < 0:
		return true
	case c > 0:
		return false
	default:
		return p.rowID < other.rowID
	}
}

// writeRun encodes the already-sorted pairs into w and commits it.
func writeRun(w RunWriter, pairs []pair) error {
	buf := make([]byte, 0, 256)
	for _, p := range pairs {
		buf = buf[:0]
		buf = binary.AppendUvarint(buf, uint64(len(p.value)))
		buf = append(buf, p.value...)
		buf = binary.AppendUvarint(buf, p.rowID)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return w.Close()
}

// runDecoder streams pairs back from one spilled run.
type runDecoder struct {
	src io.ReadCloser
	r   *bufio.Reader
}

func newRunDecoder(src io.ReadCloser) *runDecoder {
	return &runDecoder{src: src, r: bufio.NewReader(src)}
}

// next returns the next pair, or ok=false at end of run.
func (d *runDecoder) next() (pair, bool, error) {
	length, err := binary.ReadUvarint(d.r)
	if err == io.EOF {
		return pair{}, false, nil
	}
	if err != nil {
		return pair{}, false, fmt.Errorf("run value length: %w", err)
	}
	value := make([]byte, length)
	if _, err := io.ReadFull(d.r, value); err != nil {
		return pair{}, false, fmt.Errorf("run value: %w", err)
	}
	rowID, err := binary.ReadUvarint(d.r)
	if err != nil {
		return pair{}, false, fmt.Errorf("run row id: %w", err)
	}
	return pair{value: value, rowID: rowID}, true, nil
}

func (d *runDecoder) close() error {
	return d.src.Close()
}
