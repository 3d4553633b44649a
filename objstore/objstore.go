// Package objstore defines the uniform object store capability consumed by
// the storage layer, together with a local filesystem backend, an in-memory
// backend for tests, and instrumentation wrappers. Paths are slash-separated
// keys relative to the store root; backends translate their native errors to
// StoreError at this boundary.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Writer is an open write handle on one object. Nothing is addressable at
// the object's path until Close returns nil; backends with atomic staging
// commit via rename on Close.
type Writer interface {
	io.Writer
	// Flush pushes buffered bytes toward the backend.
	Flush() error
	// Close finalizes and commits the object.
	Close() error
	// Abort discards the handle and any staged bytes without committing.
	// A no-op after Close or a prior Abort.
	Abort() error
}

// Reader is an open read handle on one object.
type Reader interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
	// Size returns the object's size in bytes.
	Size() int64
}

// Entry is one result of a List call.
type Entry struct {
	// Path of the entry, relative to the store root.
	Path string
	// IsDir reports a directory marker rather than an object. Some
	// backends include these in listings; callers decide how to treat
	// them.
	IsDir bool
	// Size of the object in bytes; zero for directories.
	Size int64
}

// ObjectStore is the uniform storage capability. Every operation takes a
// context and is a suspension point; implementations must be safe for
// concurrent use and hold no locks across I/O.
type ObjectStore interface {
	// Writer opens a new write handle at path, replacing any existing
	// object once committed.
	Writer(ctx context.Context, path string) (Writer, error)
	// Reader opens a read handle on the object at path.
	Reader(ctx context.Context, path string) (Reader, error)
	// Delete removes the object at path. A missing object is success.
	Delete(ctx context.Context, path string) error
	// List returns the entries directly under prefix. A missing prefix
	// yields an empty slice, not an error.
	List(ctx context.Context, prefix string) ([]Entry, error)
	// RemoveAll recursively deletes everything under prefix. Idempotent.
	RemoveAll(ctx context.Context, prefix string) error
}

// StoreError is the uniform translation of a backend I/O failure. It keeps
// the operation and path so callers can correlate with store-side logs.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("object store %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError checks if an error is a StoreError anywhere in its chain.
func IsStoreError(err error) bool {
	var target *StoreError
	return errors.As(err, &target)
}

// JoinPath joins key segments with "/", dropping empty segments.
func JoinPath(parts ...string) string {
	var kept []string
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

// validatePath rejects empty and escaping keys.
func validatePath(p string) error {
	if p == "" {
		return errors.New("empty path")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("path %q escapes store root", p)
		}
	}
	return nil
}
