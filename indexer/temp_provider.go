package indexer

import (
	"context"
	"io"
	"log/slog"

	"github.com/basaltdb/basalt/objstore"
	"github.com/basaltdb/basalt/storage"
)

// TempFileProvider implements ExternalTempFileProvider on an instrumented
// object store, keyed by an IntermediateLocation. Instrumentation lives
// here rather than in the backend so the counters reflect logical
// index-build cost, not physical store cost.
type TempFileProvider struct {
	location storage.IntermediateLocation
	store    *objstore.InstrumentedStore
	metrics  *storage.Metrics
	logger   *slog.Logger
}

var _ ExternalTempFileProvider = (*TempFileProvider)(nil)

// NewTempFileProvider returns a provider scoped to the given build
// location. A nil logger falls back to slog.Default().
func NewTempFileProvider(location storage.IntermediateLocation, store *objstore.InstrumentedStore, metrics *storage.Metrics, logger *slog.Logger) *TempFileProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &TempFileProvider{
		location: location,
		store:    store,
		metrics:  metrics,
		logger:   logger.With("component", "TempFileProvider"),
	}
}

func (p *TempFileProvider) Create(ctx context.Context, columnID, runID string) (RunWriter, error) {
	path := p.location.RunPath(columnID, runID)
	writer, err := p.store.Writer(ctx, path,
		p.metrics.IndexIntermediateWriteBytesTotal,
		p.metrics.IndexIntermediateWriteOpTotal,
		p.metrics.IndexIntermediateFlushOpTotal,
	)
	if err != nil {
		return nil, &ExternalIndexError{Err: err}
	}
	return writer, nil
}

func (p *TempFileProvider) ReadAll(ctx context.Context, columnID string) ([]io.ReadCloser, error) {
	columnPath := p.location.ColumnPath(columnID)
	entries, err := p.store.List(ctx, columnPath)
	if err != nil {
		return nil, &ExternalIndexError{Err: err}
	}

	readers := make([]io.ReadCloser, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir {
			p.logger.Warn("unexpected directory entry in index scratch dir", "path", entry.Path)
			continue
		}
		reader, err := p.store.Reader(ctx, entry.Path,
			p.metrics.IndexIntermediateReadBytesTotal,
			p.metrics.IndexIntermediateReadOpTotal,
			p.metrics.IndexIntermediateSeekOpTotal,
		)
		if err != nil {
			closeAll(readers)
			return nil, &ExternalIndexError{Err: err}
		}
		readers = append(readers, reader)
	}
	return readers, nil
}

// Cleanup removes all intermediate files of this build.
func (p *TempFileProvider) Cleanup(ctx context.Context) error {
	return p.store.RemoveAll(ctx, p.location.RootPath())
}

func closeAll(readers []io.ReadCloser) {
	for _, r := range readers {
		r.Close()
	}
}
