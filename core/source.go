package core

import "context"

// ColumnSlice carries the values of one column for every row of a Batch.
// Values are stored in the column's wire encoding; the storage layer treats
// them as opaque bytes.
type ColumnSlice struct {
	ColumnID uint64
	Values   [][]byte
}

// Batch is a columnar group of rows flowing from a producer into an SST
// writer. Timestamps and every column slice must have the same length.
type Batch struct {
	Timestamps []int64
	Columns    []ColumnSlice
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	return len(b.Timestamps)
}

// Column returns the slice for the given column id, or nil.
func (b *Batch) Column(id uint64) *ColumnSlice {
	for i := range b.Columns {
		if b.Columns[i].ColumnID == id {
			return &b.Columns[i]
		}
	}
	return nil
}

// Source is a lazy sequence of row batches produced by the caller and
// consumed exactly once by the write path. Next returns (nil, nil) when the
// sequence is exhausted. Implementations are not required to be restartable.
type Source interface {
	Next(ctx context.Context) (*Batch, error)
}

// SliceSource adapts a fixed set of batches into a Source. Useful for
// flush paths that already hold their batches in memory, and for tests.
type SliceSource struct {
	batches []*Batch
	next    int
}

// NewSliceSource returns a Source yielding the given batches in order.
func NewSliceSource(batches ...*Batch) *SliceSource {
	return &SliceSource{batches: batches}
}

func (s *SliceSource) Next(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.batches) {
		return nil, nil
	}
	b := s.batches[s.next]
	s.next++
	return b, nil
}
