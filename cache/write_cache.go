package cache

import (
	"context"
	"io"
	"log/slog"
	"path"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/basaltdb/basalt/core"
	"github.com/basaltdb/basalt/indexer"
	"github.com/basaltdb/basalt/objstore"
	"github.com/basaltdb/basalt/sstable"
	"github.com/basaltdb/basalt/storage"
)

// DefaultUploadRetries bounds upload attempts per file before the write
// surfaces a StoreError. A failed upload removes the local copy, so no
// orphan survives the failure.
const DefaultUploadRetries = 3

// WriteCache persists SSTs (and their inverted indexes) on a local
// filesystem store first, then uploads them to the remote store. Local
// files are keyed by the same paths used remotely, so a region's cache
// tree mirrors its durable tree.
type WriteCache struct {
	localStore    objstore.ObjectStore
	metrics       *storage.Metrics
	logger        *slog.Logger
	tracer        trace.Tracer
	uploadRetries uint
}

var _ storage.WriteCache = (*WriteCache)(nil)

// WriteCacheOptions configures a WriteCache.
type WriteCacheOptions struct {
	// UploadRetries is the maximum attempts per uploaded file; zero
	// means DefaultUploadRetries.
	UploadRetries uint
	Metrics       *storage.Metrics
	Logger        *slog.Logger
	Tracer        trace.Tracer
}

// NewWriteCache provisions the local tier rooted at cacheDir, wiping any
// stale atomic-write staging from a previous process.
func NewWriteCache(cacheDir string, opts WriteCacheOptions) (*WriteCache, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = storage.NewMetrics(false, "")
	}
	if opts.UploadRetries == 0 {
		opts.UploadRetries = DefaultUploadRetries
	}
	localStore, err := storage.NewFSObjectStore(cacheDir, nil)
	if err != nil {
		return nil, err
	}
	return &WriteCache{
		localStore:    localStore,
		metrics:       opts.Metrics,
		logger:        opts.Logger.With("component", "WriteCache", "cache_dir", cacheDir),
		tracer:        opts.Tracer,
		uploadRetries: opts.UploadRetries,
	}, nil
}

// newWriteCacheWithStore is used by tests to substitute the local tier.
func newWriteCacheWithStore(localStore objstore.ObjectStore, opts WriteCacheOptions) *WriteCache {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = storage.NewMetrics(false, "")
	}
	if opts.UploadRetries == 0 {
		opts.UploadRetries = DefaultUploadRetries
	}
	return &WriteCache{
		localStore:    localStore,
		metrics:       opts.Metrics,
		logger:        opts.Logger.With("component", "WriteCache"),
		tracer:        opts.Tracer,
		uploadRetries: opts.UploadRetries,
	}
}

// LocalStore exposes the local tier, e.g. for read-side file caching.
func (c *WriteCache) LocalStore() objstore.ObjectStore {
	return c.localStore
}

// WriteAndUpload drains the request's source into a local SST (building
// the inverted index alongside when enabled), then uploads the SST and
// index to the remote store concurrently. Returns nil for an empty source,
// same as a direct write.
//
// Upload failures are retried with exponential backoff up to the
// configured attempt bound; after that the error surfaces and the local
// copies are removed so nothing stale lingers in the cache.
func (c *WriteCache) WriteAndUpload(ctx context.Context, req *storage.SSTUploadRequest, opts *core.WriteOptions) (*core.SSTInfo, error) {
	if opts == nil {
		opts = core.DefaultWriteOptions()
	}

	source := req.Source
	var builder *indexer.Builder
	if opts.InvertedIndex {
		location := storage.NewIntermediateLocation(path.Dir(req.UploadPath), req.FileID)
		provider := indexer.NewTempFileProvider(
			location, objstore.NewInstrumentedStore(c.localStore), c.metrics, c.logger)
		builder = indexer.NewBuilder(req.Metadata, provider, indexer.BuilderOptions{
			MemoryBudgetBytes: opts.IndexMemoryBudgetBytes,
			Logger:            c.logger,
		})
		source = &indexingSource{inner: req.Source, builder: builder}
	}

	writer := sstable.NewWriter(req.UploadPath, req.Metadata, c.localStore, sstable.WriterOptions{
		Logger: c.logger,
		Tracer: c.tracer,
	})
	info, err := writer.WriteAll(ctx, source, opts)
	if err != nil {
		if builder != nil {
			c.abortBuilder(ctx, builder)
		}
		return nil, err
	}
	if info == nil {
		if builder != nil {
			c.abortBuilder(ctx, builder)
		}
		return nil, nil
	}

	if builder != nil {
		idxWriter, err := c.localStore.Writer(ctx, req.IndexUploadPath)
		if err != nil {
			c.abortBuilder(ctx, builder)
			c.removeLocal(ctx, req, false)
			return nil, err
		}
		written, err := builder.Finish(ctx, idxWriter)
		if err != nil {
			c.abortWriter(idxWriter, req.IndexUploadPath)
			c.removeLocal(ctx, req, false)
			return nil, err
		}
		if written > 0 {
			info.IndexAvailable = true
			info.IndexFileSize = uint64(written)
		} else {
			// No postings: nothing was written through the handle.
			c.abortWriter(idxWriter, req.IndexUploadPath)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.upload(gctx, req.RemoteStore, req.UploadPath)
	})
	if info.IndexAvailable {
		g.Go(func() error {
			return c.upload(gctx, req.RemoteStore, req.IndexUploadPath)
		})
	}
	if err := g.Wait(); err != nil {
		c.removeLocal(ctx, req, info.IndexAvailable)
		return nil, err
	}
	return info, nil
}

// upload copies one local file to the remote store, retrying with
// exponential backoff up to the configured attempt bound.
func (c *WriteCache) upload(ctx context.Context, remote objstore.ObjectStore, filePath string) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			c.metrics.UploadRetriesTotal.Add(1)
			c.logger.Warn("retrying upload", "path", filePath, "attempt", attempt)
		}
		return struct{}{}, c.uploadOnce(ctx, remote, filePath)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(c.uploadRetries))
	if err != nil {
		return err
	}
	c.metrics.UploadTotal.Add(1)
	return nil
}

func (c *WriteCache) uploadOnce(ctx context.Context, remote objstore.ObjectStore, filePath string) error {
	src, err := c.localStore.Reader(ctx, filePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := remote.Writer(ctx, filePath)
	if err != nil {
		return err
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		// Nothing partial becomes addressable remotely.
		c.abortWriter(dst, filePath)
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	c.metrics.UploadBytesTotal.Add(n)
	return nil
}

// removeLocal drops the local copies after a failed upload, best effort.
func (c *WriteCache) removeLocal(ctx context.Context, req *storage.SSTUploadRequest, indexToo bool) {
	if err := c.localStore.Delete(ctx, req.UploadPath); err != nil {
		c.logger.Warn("failed to remove local sst after failed upload", "path", req.UploadPath, "error", err)
	}
	if !indexToo {
		return
	}
	if err := c.localStore.Delete(ctx, req.IndexUploadPath); err != nil {
		c.logger.Warn("failed to remove local index after failed upload", "path", req.IndexUploadPath, "error", err)
	}
}

func (c *WriteCache) abortWriter(w objstore.Writer, path string) {
	if err := w.Abort(); err != nil {
		c.logger.Warn("failed to abort store writer", "path", path, "error", err)
	}
}

func (c *WriteCache) abortBuilder(ctx context.Context, builder *indexer.Builder) {
	if err := builder.Abort(ctx); err != nil {
		c.logger.Warn("failed to abort index build", "error", err)
	}
}

// indexingSource forwards batches from the inner source into the index
// builder before handing them to the SST writer, so both consume the
// one-shot source in a single pass.
type indexingSource struct {
	inner   core.Source
	builder *indexer.Builder
}

var _ core.Source = (*indexingSource)(nil)

func (s *indexingSource) Next(ctx context.Context) (*core.Batch, error) {
	batch, err := s.inner.Next(ctx)
	if err != nil || batch == nil {
		return batch, err
	}
	if err := s.builder.Update(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}
