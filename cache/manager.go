package cache

import (
	"fmt"
	"log/slog"

	"github.com/basaltdb/basalt/core"
	"github.com/basaltdb/basalt/storage"
)

// Manager implements storage.CacheManager: it memoizes parsed SST metadata
// in an LRU and hands out the optional write cache. The metadata map is
// mutated by multiple concurrent writers of the same region; updates are
// additive inserts only, so no cross-task coordination is needed beyond
// the LRU's own lock.
type Manager struct {
	metaCache  *LRUCache
	writeCache storage.WriteCache
	logger     *slog.Logger
}

var _ storage.CacheManager = (*Manager)(nil)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// MetaCacheCapacity is the maximum number of memoized SST metadata
	// entries. Zero disables memoization.
	MetaCacheCapacity int
	// WriteCache, when non-nil, routes SST writes through the local tier.
	WriteCache storage.WriteCache
	Logger     *slog.Logger
}

// NewManager returns a Manager.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		metaCache:  NewLRUCache(opts.MetaCacheCapacity, nil),
		writeCache: opts.WriteCache,
		logger:     logger.With("component", "CacheManager"),
	}
}

// WriteCache returns the write cache, or nil when disabled.
func (m *Manager) WriteCache() storage.WriteCache {
	return m.writeCache
}

// PutSSTMeta memoizes parsed SST metadata. It is fire-and-forget: a full
// or disabled cache only costs a footer round-trip on first read.
func (m *Manager) PutSSTMeta(regionID core.RegionID, fileID core.FileID, meta *core.SSTMetadata) {
	m.metaCache.Put(metaKey(regionID, fileID), meta)
}

// GetSSTMeta returns memoized metadata for the given file, if present.
func (m *Manager) GetSSTMeta(regionID core.RegionID, fileID core.FileID) (*core.SSTMetadata, bool) {
	v, ok := m.metaCache.Get(metaKey(regionID, fileID))
	if !ok {
		return nil, false
	}
	return v.(*core.SSTMetadata), true
}

// MetaCacheLen returns the number of memoized metadata entries.
func (m *Manager) MetaCacheLen() int {
	return m.metaCache.Len()
}

func metaKey(regionID core.RegionID, fileID core.FileID) string {
	return fmt.Sprintf("%d/%s", uint64(regionID), fileID)
}
