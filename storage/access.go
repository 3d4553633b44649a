package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/basaltdb/basalt/core"
	"github.com/basaltdb/basalt/objstore"
	"github.com/basaltdb/basalt/sstable"
)

// AccessLayer is the single entry point for all durable SST and index I/O
// under one region directory. The store handle is a read-only capability;
// the layer holds no mutable state and is safe to share across goroutines.
type AccessLayer struct {
	regionDir string
	store     objstore.ObjectStore
	metrics   *Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// AccessLayerOptions configures optional collaborators of an AccessLayer.
type AccessLayerOptions struct {
	Metrics *Metrics
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

// NewAccessLayer returns an AccessLayer for the given region directory.
func NewAccessLayer(regionDir string, store objstore.ObjectStore, opts AccessLayerOptions) *AccessLayer {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(false, "")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &AccessLayer{
		regionDir: regionDir,
		store:     store,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "AccessLayer", "region_dir", regionDir),
		tracer:    opts.Tracer,
	}
}

// RegionDir returns the directory of the region.
func (a *AccessLayer) RegionDir() string {
	return a.regionDir
}

// Store returns the object store of the layer.
func (a *AccessLayer) Store() objstore.ObjectStore {
	return a.store
}

// Metrics returns the layer's metrics set.
func (a *AccessLayer) Metrics() *Metrics {
	return a.metrics
}

// SSTWriteRequest bundles the contents of one SST write. It is constructed
// by the caller and consumed by WriteSST; the Source is drained exactly
// once.
type SSTWriteRequest struct {
	FileID   core.FileID
	Metadata core.RegionMetadataRef
	Source   core.Source
	// CacheManager supplies the optional write cache and receives parsed
	// metadata on success. May be nil, which disables both.
	CacheManager CacheManager
	// Storage is an optional storage-tier label.
	Storage string
}

// ReadSST returns a lazily-configured reader builder for the given file.
// No I/O happens until the builder's Build is called, so callers can attach
// projection and time-range configuration first.
func (a *AccessLayer) ReadSST(file core.FileHandle) *sstable.ReaderBuilder {
	return sstable.NewReaderBuilder(SSTFilePath(a.regionDir, file.FileID()), file, a.store)
}

// WriteSST writes an SST with the request's FileID and metadata. When the
// cache manager supplies a write cache the entire write (including upload
// and index construction) is delegated to it; otherwise the source is
// drained through a direct writer against the region store.
//
// Returns nil when the source yielded no rows; no file is created in that
// case and callers must not treat it as an error. On success, parsed file
// metadata is pushed into the cache manager; that is a best-effort side
// effect and never fails the write.
func (a *AccessLayer) WriteSST(ctx context.Context, req *SSTWriteRequest, opts *core.WriteOptions) (*core.SSTInfo, error) {
	if opts == nil {
		opts = core.DefaultWriteOptions()
	}
	var span trace.Span
	if a.tracer != nil {
		ctx, span = a.tracer.Start(ctx, "AccessLayer.WriteSST", trace.WithAttributes(
			attribute.String("file_id", req.FileID.String()),
			attribute.String("region_id", req.Metadata.RegionID.String()),
		))
		defer span.End()
	}

	filePath := SSTFilePath(a.regionDir, req.FileID)
	indexFilePath := IndexFilePath(a.regionDir, req.FileID)
	regionID := req.Metadata.RegionID

	var writeCache WriteCache
	if req.CacheManager != nil {
		writeCache = req.CacheManager.WriteCache()
	}

	var info *core.SSTInfo
	var err error
	if writeCache != nil {
		// Write through the cache; it persists locally and uploads.
		info, err = writeCache.WriteAndUpload(ctx, &SSTUploadRequest{
			FileID:          req.FileID,
			Metadata:        req.Metadata,
			Source:          req.Source,
			Storage:         req.Storage,
			UploadPath:      filePath,
			IndexUploadPath: indexFilePath,
			RemoteStore:     a.store,
		}, opts)
	} else {
		// Write cache is disabled.
		writer := sstable.NewWriter(filePath, req.Metadata, a.store, sstable.WriterOptions{
			Logger: a.logger,
			Tracer: a.tracer,
		})
		info, err = writer.WriteAll(ctx, req.Source, opts)
	}
	if err != nil {
		if span != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	if info == nil {
		return nil, nil
	}
	a.metrics.SSTWriteTotal.Add(1)

	// Memoize parsed metadata for later reads. Failure here only costs a
	// footer round-trip on first read, so it never propagates.
	if info.Metadata != nil && req.CacheManager != nil {
		req.CacheManager.PutSSTMeta(regionID, req.FileID, info.Metadata)
	}
	return info, nil
}

// DeleteSST deletes the SST file of the given meta, then its index file if
// one exists. The order is deliberate: a dangling index with no SST is
// preferable to a dangling SST with no index, since correctness downstream
// depends only on "index implies SST exists". A failed SST delete aborts
// the sequence.
func (a *AccessLayer) DeleteSST(ctx context.Context, meta *core.FileMeta) error {
	path := SSTFilePath(a.regionDir, meta.FileID)
	if err := a.store.Delete(ctx, path); err != nil {
		return &DeleteError{FileID: meta.FileID, Artifact: ArtifactSST, Err: err}
	}
	a.metrics.SSTDeleteTotal.Add(1)

	if meta.IndexAvailable {
		path := IndexFilePath(a.regionDir, meta.FileID)
		if err := a.store.Delete(ctx, path); err != nil {
			return &DeleteError{FileID: meta.FileID, Artifact: ArtifactIndex, Err: err}
		}
		a.metrics.IndexDeleteTotal.Add(1)
	}
	return nil
}

// NewFSObjectStore provisions a filesystem-backed object store rooted at
// the given directory, with a dedicated atomic-write staging subdirectory.
// Any pre-existing staging contents are cleared first so stale partial
// writes from a previous process never resurface. The returned store is
// wrapped with the given metrics when non-nil.
func NewFSObjectStore(root string, metrics *objstore.Metrics) (objstore.ObjectStore, error) {
	atomicWriteDir := filepath.Join(root, AtomicWriteDir)
	if err := cleanDir(atomicWriteDir); err != nil {
		return nil, err
	}

	store, err := objstore.NewFS(root, objstore.WithAtomicWriteDir(AtomicWriteDir))
	if err != nil {
		return nil, err
	}
	if metrics != nil {
		return objstore.WithMetrics(store, metrics), nil
	}
	return store, nil
}

// cleanDir removes the directory tree if it exists.
func cleanDir(dir string) error {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &CleanDirError{Dir: dir, Err: err}
	}
	if err := os.RemoveAll(dir); err != nil {
		return &CleanDirError{Dir: dir, Err: err}
	}
	return nil
}
