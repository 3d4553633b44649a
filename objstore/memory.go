package objstore

import (
	"bytes"
	"context"
	"io/fs"
	"sort"
	"strings"
	"sync"
)

// Memory is a map-backed ObjectStore used as a test double and by the
// write cache tests. It mirrors the FS semantics: writes are invisible
// until Close, listings are non-recursive and include directory markers.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ ObjectStore = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Writer(ctx context.Context, p string) (Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "write", Path: p, Err: err}
	}
	if err := validatePath(p); err != nil {
		return nil, &StoreError{Op: "write", Path: p, Err: err}
	}
	return &memWriter{store: m, key: p}, nil
}

type memWriter struct {
	store  *Memory
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *memWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func (w *memWriter) Flush() error {
	return nil
}

func (w *memWriter) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.buf.Reset()
	return nil
}

func (w *memWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	data := make([]byte, w.buf.Len())
	copy(data, w.buf.Bytes())
	w.store.mu.Lock()
	w.store.objects[w.key] = data
	w.store.mu.Unlock()
	return nil
}

func (m *Memory) Reader(ctx context.Context, p string) (Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "read", Path: p, Err: err}
	}
	m.mu.RLock()
	data, ok := m.objects[p]
	m.mu.RUnlock()
	if !ok {
		return nil, &StoreError{Op: "read", Path: p, Err: fs.ErrNotExist}
	}
	return &memReader{Reader: bytes.NewReader(data), size: int64(len(data))}, nil
}

type memReader struct {
	*bytes.Reader
	size int64
}

func (r *memReader) Size() int64 {
	return r.size
}

func (r *memReader) Close() error {
	return nil
}

func (m *Memory) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "delete", Path: p, Err: err}
	}
	m.mu.Lock()
	delete(m.objects, p)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "list", Path: prefix, Err: err}
	}
	dir := prefix
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	dirs := make(map[string]struct{})
	var entries []Entry
	for key, data := range m.objects {
		if !strings.HasPrefix(key, dir) {
			continue
		}
		rest := key[len(dir):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			// Deeper object: surface its immediate subdirectory once.
			name := dir + rest[:i]
			if _, seen := dirs[name]; !seen {
				dirs[name] = struct{}{}
				entries = append(entries, Entry{Path: name, IsDir: true})
			}
			continue
		}
		entries = append(entries, Entry{Path: key, Size: int64(len(data))})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (m *Memory) RemoveAll(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "remove_all", Path: prefix, Err: err}
	}
	dir := strings.TrimSuffix(prefix, "/")
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.objects {
		if key == dir || strings.HasPrefix(key, dir+"/") {
			delete(m.objects, key)
		}
	}
	return nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
