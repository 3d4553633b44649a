package indexer

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Sorter accumulates (value, rowID) pairs per column and keeps total memory
// use under a budget by spilling sorted runs through the temp file
// provider. Output merges the spilled runs with the in-memory remainder
// into one sorted stream per column.
//
// A Sorter is single-writer: the index build drives Push to completion (or
// abort) before calling Output, which fences all writes for the column.
type Sorter struct {
	provider ExternalTempFileProvider
	budget   int64
	logger   *slog.Logger

	columns map[string]*columnBuffer
	memUsed int64
}

type columnBuffer struct {
	pairs    []pair
	bytes    int64
	runCount int
}

// NewSorter returns a sorter spilling through the given provider once
// buffered pairs exceed budgetBytes.
func NewSorter(provider ExternalTempFileProvider, budgetBytes int64, logger *slog.Logger) *Sorter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sorter{
		provider: provider,
		budget:   budgetBytes,
		logger:   logger.With("component", "ExternalSorter"),
		columns:  make(map[string]*columnBuffer),
	}
}

// Push buffers one pair, spilling when the memory budget is exceeded.
// The value is copied; callers may reuse its backing array after Push
// returns.
func (s *Sorter) Push(ctx context.Context, columnID string, value []byte, rowID uint64) error {
	col, ok := s.columns[columnID]
	if !ok {
		col = &columnBuffer{}
		s.columns[columnID] = col
	}
	cost := int64(len(value)) + 16
	col.pairs = append(col.pairs, pair{value: append([]byte(nil), value...), rowID: rowID})
	col.bytes += cost
	s.memUsed += cost

	if s.budget > 0 && s.memUsed > s.budget {
		return s.spillAll(ctx)
	}
	return nil
}

// spillAll writes every non-empty column buffer out as one sorted run.
func (s *Sorter) spillAll(ctx context.Context) error {
	for columnID, col := range s.columns {
		if len(col.pairs) == 0 {
			continue
		}
		if err := s.spillColumn(ctx, columnID, col); err != nil {
			return err
		}
	}
	s.memUsed = 0
	return nil
}

func (s *Sorter) spillColumn(ctx context.Context, columnID string, col *columnBuffer) error {
	sortPairs(col.pairs)
	col.runCount++
	runID := fmt.Sprintf("%010d", col.runCount)

	writer, err := s.provider.Create(ctx, columnID, runID)
	if err != nil {
		return err
	}
	if err := writeRun(writer, col.pairs); err != nil {
		return &ExternalIndexError{Err: err}
	}
	s.logger.Debug("spilled sorted run",
		"column", columnID, "run", runID, "pairs", len(col.pairs), "bytes", col.bytes)

	col.pairs = col.pairs[:0]
	col.bytes = 0
	return nil
}

// Output returns a merged, sorted stream over everything pushed for the
// column: all spilled runs plus the in-memory remainder. The runs arrive
// from the provider in unspecified order; each is already sorted, which is
// all the merge requires. Callers must not Push for this column afterwards.
func (s *Sorter) Output(ctx context.Context, columnID string) (*MergeIterator, error) {
	readers, err := s.provider.ReadAll(ctx, columnID)
	if err != nil {
		return nil, err
	}

	m := &MergeIterator{}
	for _, r := range readers {
		m.decoders = append(m.decoders, newRunDecoder(r))
	}
	if col, ok := s.columns[columnID]; ok && len(col.pairs) > 0 {
		sortPairs(col.pairs)
		m.mem = col.pairs
	}
	if err := m.init(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// Columns returns the ids of every column pushed into the sorter.
func (s *Sorter) Columns() []string {
	ids := make([]string, 0, len(s.columns))
	for id := range s.columns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortPairs(pairs []pair) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].less(pairs[j]) })
}

// MergeIterator is a k-way merge over sorted run streams and an optional
// in-memory tail.
type MergeIterator struct {
	decoders []*runDecoder
	mem      []pair
	memNext  int
	h        mergeHeap
	inited   bool
}

type mergeSource struct {
	current pair
	decoder *runDecoder // nil for the in-memory stream
	it      *MergeIterator
}

type mergeHeap []*mergeSource

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].current.less(h[j].current) }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(*mergeSource)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (m *MergeIterator) init() error {
	for _, d := range m.decoders {
		p, ok, err := d.next()
		if err != nil {
			return &ExternalIndexError{Err: err}
		}
		if ok {
			m.h = append(m.h, &mergeSource{current: p, decoder: d, it: m})
		}
	}
	if len(m.mem) > 0 {
		m.h = append(m.h, &mergeSource{current: m.mem[0], it: m})
		m.memNext = 1
	}
	heap.Init(&m.h)
	m.inited = true
	return nil
}

// Next returns the smallest remaining pair, ok=false when exhausted.
func (m *MergeIterator) Next() (value []byte, rowID uint64, ok bool, err error) {
	if !m.inited || m.h.Len() == 0 {
		return nil, 0, false, nil
	}
	src := m.h[0]
	out := src.current

	advanced, has, err := src.advance()
	if err != nil {
		return nil, 0, false, &ExternalIndexError{Err: err}
	}
	if has {
		src.current = advanced
		heap.Fix(&m.h, 0)
	} else {
		heap.Pop(&m.h)
	}
	return out.value, out.rowID, true, nil
}

func (s *mergeSource) advance() (pair, bool, error) {
	if s.decoder != nil {
		return s.decoder.next()
	}
	if s.it.memNext < len(s.it.mem) {
		p := s.it.mem[s.it.memNext]
		s.it.memNext++
		return p, true, nil
	}
	return pair{}, false, nil
}

// Close releases every underlying run handle.
func (m *MergeIterator) Close() error {
	var firstErr error
	for _, d := range m.decoders {
		if err := d.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
