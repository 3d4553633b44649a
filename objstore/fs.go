package objstore

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
)

// FS is an ObjectStore rooted at a local directory. When an atomic write
// directory is configured, writers stage into it and rename into place on
// Close, so readers never observe a partial object.
type FS struct {
	root           string
	atomicWriteDir string // absolute; empty disables staging
	logger         *slog.Logger
}

var _ ObjectStore = (*FS)(nil)

// FSOption configures an FS store.
type FSOption func(*FS)

// WithAtomicWriteDir stages writes under the given directory (relative to
// the store root) and commits them with a rename.
func WithAtomicWriteDir(rel string) FSOption {
	return func(f *FS) {
		f.atomicWriteDir = filepath.Join(f.root, filepath.FromSlash(rel))
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) FSOption {
	return func(f *FS) {
		f.logger = logger
	}
}

// NewFS creates the root directory (and staging directory, if configured)
// and returns the store.
func NewFS(root string, opts ...FSOption) (*FS, error) {
	f := &FS{
		root:   root,
		logger: slog.Default().With("component", "objstore.FS"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return nil, &StoreError{Op: "create", Path: root, Err: err}
	}
	if f.atomicWriteDir != "" {
		if err := os.MkdirAll(f.atomicWriteDir, 0o755); err != nil {
			return nil, &StoreError{Op: "create", Path: f.atomicWriteDir, Err: err}
		}
	}
	return f, nil
}

// full maps a store key to an absolute filesystem path.
func (f *FS) full(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

func (f *FS) Writer(ctx context.Context, p string) (Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "write", Path: p, Err: err}
	}
	if err := validatePath(p); err != nil {
		return nil, &StoreError{Op: "write", Path: p, Err: err}
	}
	dst := f.full(p)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, &StoreError{Op: "write", Path: p, Err: err}
	}

	if f.atomicWriteDir == "" {
		file, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, &StoreError{Op: "write", Path: p, Err: err}
		}
		return &fsWriter{file: file, key: p}, nil
	}

	tmp, err := os.CreateTemp(f.atomicWriteDir, "write-*.tmp")
	if err != nil {
		return nil, &StoreError{Op: "write", Path: p, Err: err}
	}
	return &fsWriter{file: tmp, key: p, renameTo: dst}, nil
}

// fsWriter commits either in place or via rename from the staging dir.
type fsWriter struct {
	file     *os.File
	key      string
	renameTo string // empty when writing in place
	closed   bool
}

func (w *fsWriter) Write(b []byte) (int, error) {
	n, err := w.file.Write(b)
	if err != nil {
		return n, &StoreError{Op: "write", Path: w.key, Err: err}
	}
	return n, nil
}

func (w *fsWriter) Flush() error {
	if err := w.file.Sync(); err != nil {
		return &StoreError{Op: "flush", Path: w.key, Err: err}
	}
	return nil
}

func (w *fsWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.file.Sync(); err != nil {
		w.abort()
		return &StoreError{Op: "write", Path: w.key, Err: err}
	}
	if err := w.file.Close(); err != nil {
		w.abort()
		return &StoreError{Op: "write", Path: w.key, Err: err}
	}
	if w.renameTo != "" {
		if err := os.Rename(w.file.Name(), w.renameTo); err != nil {
			os.Remove(w.file.Name())
			return &StoreError{Op: "write", Path: w.key, Err: err}
		}
	}
	return nil
}

func (w *fsWriter) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.abort()
	return nil
}

// abort closes and removes the underlying file so nothing partial
// survives: the staged temp when staging, the truncated target otherwise.
func (w *fsWriter) abort() {
	w.file.Close()
	os.Remove(w.file.Name())
}

func (f *FS) Reader(ctx context.Context, p string) (Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "read", Path: p, Err: err}
	}
	if err := validatePath(p); err != nil {
		return nil, &StoreError{Op: "read", Path: p, Err: err}
	}
	file, err := os.Open(f.full(p))
	if err != nil {
		return nil, &StoreError{Op: "read", Path: p, Err: err}
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, &StoreError{Op: "read", Path: p, Err: err}
	}
	return &fsReader{File: file, size: info.Size()}, nil
}

type fsReader struct {
	*os.File
	size int64
}

func (r *fsReader) Size() int64 {
	return r.size
}

func (f *FS) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "delete", Path: p, Err: err}
	}
	if err := validatePath(p); err != nil {
		return &StoreError{Op: "delete", Path: p, Err: err}
	}
	if err := os.Remove(f.full(p)); err != nil && !os.IsNotExist(err) {
		return &StoreError{Op: "delete", Path: p, Err: err}
	}
	return nil
}

func (f *FS) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "list", Path: prefix, Err: err}
	}
	dir := f.root
	if prefix != "" {
		if err := validatePath(prefix); err != nil {
			return nil, &StoreError{Op: "list", Path: prefix, Err: err}
		}
		dir = f.full(prefix)
	}
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StoreError{Op: "list", Path: prefix, Err: err}
	}
	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		entry := Entry{
			Path:  path.Join(prefix, de.Name()),
			IsDir: de.IsDir(),
		}
		if !de.IsDir() {
			info, err := de.Info()
			if err != nil {
				// Raced with a concurrent delete; skip the entry.
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, &StoreError{Op: "list", Path: entry.Path, Err: err}
			}
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (f *FS) RemoveAll(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "remove_all", Path: prefix, Err: err}
	}
	if err := validatePath(prefix); err != nil {
		return &StoreError{Op: "remove_all", Path: prefix, Err: err}
	}
	if err := os.RemoveAll(f.full(prefix)); err != nil {
		return &StoreError{Op: "remove_all", Path: prefix, Err: err}
	}
	return nil
}
