// Package indexer builds the secondary inverted index for SST files. Tag
// values are mapped to roaring bitmaps of row positions; when the working
// set exceeds the memory budget, partially sorted runs are spilled through
// an ExternalTempFileProvider and merged back in one pass at finish time.
package indexer

import (
	"context"
	"io"
)

// RunWriter is an open write handle on one spilled run.
type RunWriter interface {
	io.Writer
	Flush() error
	Close() error
}

// ExternalTempFileProvider is the entire storage contract the external
// sort needs: keyed scratch-file creation, one-pass re-reading, and full
// cleanup. Implementations decide where the files live; the sort is
// unaware of paths or backend identity.
type ExternalTempFileProvider interface {
	// Create opens a new scratch file for the given (column, run) pair.
	// Creating the same pair twice within one build is not expected;
	// behavior is backend-defined (typically overwrite).
	Create(ctx context.Context, columnID, runID string) (RunWriter, error)
	// ReadAll opens every run spilled for the column, in unspecified
	// order. A column with no runs yields an empty slice, not an error.
	// Callers must fence all writers for the column first.
	ReadAll(ctx context.Context, columnID string) ([]io.ReadCloser, error)
	// Cleanup removes every scratch file of this build. Idempotent. Must
	// be invoked exactly once per build lifecycle, including on aborts.
	Cleanup(ctx context.Context) error
}
