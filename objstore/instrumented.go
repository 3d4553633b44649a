package objstore

import (
	"context"
	"expvar"
)

// Metrics holds the per-operation counters applied by WithMetrics. Fields
// may be nil; nil counters are simply not incremented.
type Metrics struct {
	ReadBytesTotal  *expvar.Int
	ReadOpsTotal    *expvar.Int
	WriteBytesTotal *expvar.Int
	WriteOpsTotal   *expvar.Int
	FlushOpsTotal   *expvar.Int
	DeleteOpsTotal  *expvar.Int
	ListOpsTotal    *expvar.Int
}

// NewMetrics returns a Metrics set with fresh, unpublished counters.
func NewMetrics() *Metrics {
	return &Metrics{
		ReadBytesTotal:  new(expvar.Int),
		ReadOpsTotal:    new(expvar.Int),
		WriteBytesTotal: new(expvar.Int),
		WriteOpsTotal:   new(expvar.Int),
		FlushOpsTotal:   new(expvar.Int),
		DeleteOpsTotal:  new(expvar.Int),
		ListOpsTotal:    new(expvar.Int),
	}
}

func add(c *expvar.Int, delta int64) {
	if c != nil {
		c.Add(delta)
	}
}

// WithMetrics wraps a store so every operation increments the given
// counters. The wrapper is stateless beyond the two references and safe to
// share across goroutines.
func WithMetrics(inner ObjectStore, m *Metrics) ObjectStore {
	return &metricsStore{inner: inner, metrics: m}
}

type metricsStore struct {
	inner   ObjectStore
	metrics *Metrics
}

var _ ObjectStore = (*metricsStore)(nil)

func (s *metricsStore) Writer(ctx context.Context, path string) (Writer, error) {
	w, err := s.inner.Writer(ctx, path)
	if err != nil {
		return nil, err
	}
	return &countingWriter{
		inner: w,
		bytes: s.metrics.WriteBytesTotal,
		ops:   s.metrics.WriteOpsTotal,
		flush: s.metrics.FlushOpsTotal,
	}, nil
}

func (s *metricsStore) Reader(ctx context.Context, path string) (Reader, error) {
	r, err := s.inner.Reader(ctx, path)
	if err != nil {
		return nil, err
	}
	return &countingReader{
		Reader: r,
		bytes:  s.metrics.ReadBytesTotal,
		ops:    s.metrics.ReadOpsTotal,
	}, nil
}

func (s *metricsStore) Delete(ctx context.Context, path string) error {
	add(s.metrics.DeleteOpsTotal, 1)
	return s.inner.Delete(ctx, path)
}

func (s *metricsStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	add(s.metrics.ListOpsTotal, 1)
	return s.inner.List(ctx, prefix)
}

func (s *metricsStore) RemoveAll(ctx context.Context, prefix string) error {
	add(s.metrics.DeleteOpsTotal, 1)
	return s.inner.RemoveAll(ctx, prefix)
}

// InstrumentedStore wraps an ObjectStore so each handle charges explicit
// counter references supplied per call. The index build path uses this to
// account logical build cost separately from physical store cost.
type InstrumentedStore struct {
	store ObjectStore
}

// NewInstrumentedStore wraps the given store.
func NewInstrumentedStore(store ObjectStore) *InstrumentedStore {
	return &InstrumentedStore{store: store}
}

// Writer opens a write handle at path; writes charge bytesTotal and
// opsTotal, Flush and Close charge flushTotal.
func (s *InstrumentedStore) Writer(ctx context.Context, path string, bytesTotal, opsTotal, flushTotal *expvar.Int) (Writer, error) {
	w, err := s.store.Writer(ctx, path)
	if err != nil {
		return nil, err
	}
	return &countingWriter{inner: w, bytes: bytesTotal, ops: opsTotal, flush: flushTotal}, nil
}

// Reader opens a read handle on path; reads charge bytesTotal and opsTotal,
// seeks charge seeksTotal.
func (s *InstrumentedStore) Reader(ctx context.Context, path string, bytesTotal, opsTotal, seeksTotal *expvar.Int) (Reader, error) {
	r, err := s.store.Reader(ctx, path)
	if err != nil {
		return nil, err
	}
	return &countingReader{Reader: r, bytes: bytesTotal, ops: opsTotal, seeks: seeksTotal}, nil
}

// List returns the entries directly under prefix.
func (s *InstrumentedStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	return s.store.List(ctx, prefix)
}

// RemoveAll recursively deletes everything under prefix.
func (s *InstrumentedStore) RemoveAll(ctx context.Context, prefix string) error {
	return s.store.RemoveAll(ctx, prefix)
}

type countingWriter struct {
	inner Writer
	bytes *expvar.Int
	ops   *expvar.Int
	flush *expvar.Int
}

var _ Writer = (*countingWriter)(nil)

func (w *countingWriter) Write(b []byte) (int, error) {
	n, err := w.inner.Write(b)
	add(w.bytes, int64(n))
	add(w.ops, 1)
	return n, err
}

func (w *countingWriter) Flush() error {
	add(w.flush, 1)
	return w.inner.Flush()
}

func (w *countingWriter) Close() error {
	// Close performs the final flush/commit.
	add(w.flush, 1)
	return w.inner.Close()
}

func (w *countingWriter) Abort() error {
	return w.inner.Abort()
}

type countingReader struct {
	Reader
	bytes *expvar.Int
	ops   *expvar.Int
	seeks *expvar.Int
}

func (r *countingReader) Read(b []byte) (int, error) {
	n, err := r.Reader.Read(b)
	add(r.bytes, int64(n))
	add(r.ops, 1)
	return n, err
}

func (r *countingReader) ReadAt(b []byte, off int64) (int, error) {
	n, err := r.Reader.ReadAt(b, off)
	add(r.bytes, int64(n))
	add(r.ops, 1)
	return n, err
}

func (r *countingReader) Seek(offset int64, whence int) (int64, error) {
	add(r.seeks, 1)
	return r.Reader.Seek(offset, whence)
}
