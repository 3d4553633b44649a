package storage

import (
	"github.com/basaltdb/basalt/core"
	"github.com/basaltdb/basalt/objstore"
)

// File layout under one region directory:
//
//	<region_dir>/<file_id>.sst                          SST data files
//	<region_dir>/index/<file_id>.bidx                   inverted index files
//	<region_dir>/index/__intm/<build_id>/<col>/<run>    index-build scratch
//	<region_dir>/.tmp/                                  atomic-write staging
//
// Every derived path is unique per (FileID, purpose, column, run) tuple.
const (
	sstFileSuffix       = ".sst"
	indexFileSuffix     = ".bidx"
	indexDirName        = "index"
	intermediateDirName = "__intm"

	// AtomicWriteDir is the staging subdirectory reserved for the fs
	// backend's write-then-rename commits. Wiped on every provisioning
	// call.
	AtomicWriteDir = ".tmp"
)

// SSTFilePath returns the storage path of the SST file with the given id.
func SSTFilePath(regionDir string, fileID core.FileID) string {
	return objstore.JoinPath(regionDir, fileID.String()+sstFileSuffix)
}

// IndexFilePath returns the storage path of the inverted index file with
// the given id.
func IndexFilePath(regionDir string, fileID core.FileID) string {
	return objstore.JoinPath(regionDir, indexDirName, fileID.String()+indexFileSuffix)
}

// IntermediateLocation resolves the scratch paths of one index build. It is
// an immutable value, cheap to copy, and performs no I/O.
type IntermediateLocation struct {
	root string
}

// NewIntermediateLocation scopes scratch paths to (regionDir, buildID).
func NewIntermediateLocation(regionDir string, buildID core.FileID) IntermediateLocation {
	return IntermediateLocation{
		root: objstore.JoinPath(regionDir, indexDirName, intermediateDirName, buildID.String()),
	}
}

// RootPath is the build's scratch root; Cleanup removes everything under it.
func (l IntermediateLocation) RootPath() string {
	return l.root
}

// ColumnPath is the directory holding all spilled runs of one column.
func (l IntermediateLocation) ColumnPath(columnID string) string {
	return objstore.JoinPath(l.root, columnID)
}

// RunPath is the scratch file of one (column, run) pair.
func (l IntermediateLocation) RunPath(columnID, runID string) string {
	return objstore.JoinPath(l.ColumnPath(columnID), runID)
}
