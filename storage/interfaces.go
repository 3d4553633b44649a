package storage

import (
	"context"

	"github.com/basaltdb/basalt/core"
	"github.com/basaltdb/basalt/objstore"
)

// WriteCache is the optional local durability tier. WriteAndUpload persists
// the SST (and its inverted index, when enabled) locally, uploads both to
// the remote store, and returns the same result contract as a direct write:
// nil info for an empty source.
type WriteCache interface {
	WriteAndUpload(ctx context.Context, req *SSTUploadRequest, opts *core.WriteOptions) (*core.SSTInfo, error)
}

// CacheManager supplies the optional write cache and memoizes parsed file
// metadata for later reads. PutSSTMeta is fire-and-forget: implementations
// must never fail a write through it.
type CacheManager interface {
	// WriteCache returns the write cache, or nil when disabled.
	WriteCache() WriteCache
	// PutSSTMeta memoizes parsed SST metadata keyed by (region, file).
	PutSSTMeta(regionID core.RegionID, fileID core.FileID, meta *core.SSTMetadata)
}

// SSTUploadRequest bundles everything a write cache needs to produce and
// upload one SST/index pair.
type SSTUploadRequest struct {
	FileID   core.FileID
	Metadata core.RegionMetadataRef
	// Source is consumed exactly once.
	Source core.Source
	// Storage is an optional storage-tier label, informational only.
	Storage string
	// UploadPath and IndexUploadPath are the remote destinations.
	UploadPath      string
	IndexUploadPath string
	// RemoteStore is the durable tier to upload into.
	RemoteStore objstore.ObjectStore
}
