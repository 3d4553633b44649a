package core

import (
	"fmt"

	"github.com/google/uuid"
)

// FileID uniquely identifies one SST file and its associated index file.
// It is a 128-bit random value generated by the producer before any I/O.
type FileID struct {
	id uuid.UUID
}

// NewFileID returns a new random FileID.
func NewFileID() FileID {
	return FileID{id: uuid.New()}
}

// ParseFileID parses the textual form produced by String.
func ParseFileID(s string) (FileID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return FileID{}, fmt.Errorf("invalid file id %q: %w", s, err)
	}
	return FileID{id: id}, nil
}

// String renders the FileID in its canonical textual form.
func (f FileID) String() string {
	return f.id.String()
}

// IsZero reports whether the FileID is the zero value.
func (f FileID) IsZero() bool {
	return f.id == uuid.UUID{}
}

// RegionID identifies a logical region: the table id in the high 32 bits
// and the region sequence number in the low 32 bits.
type RegionID uint64

// NewRegionID builds a RegionID from a table id and a region number.
func NewRegionID(tableID uint32, regionNum uint32) RegionID {
	return RegionID(uint64(tableID)<<32 | uint64(regionNum))
}

// TableID returns the table id part of the RegionID.
func (r RegionID) TableID() uint32 {
	return uint32(r >> 32)
}

// RegionNum returns the region sequence number part of the RegionID.
func (r RegionID) RegionNum() uint32 {
	return uint32(r)
}

func (r RegionID) String() string {
	return fmt.Sprintf("%d(%d, %d)", uint64(r), r.TableID(), r.RegionNum())
}

// TimeRange is the inclusive [Min, Max] timestamp span of a file, in the
// region's native timestamp unit.
type TimeRange struct {
	Min int64
	Max int64
}

// Extend widens the range to include ts. The zero value does not denote an
// empty range; callers seed the range with the first timestamp.
func (t *TimeRange) Extend(ts int64) {
	if ts < t.Min {
		t.Min = ts
	}
	if ts > t.Max {
		t.Max = ts
	}
}

// Overlaps reports whether two inclusive ranges intersect.
func (t TimeRange) Overlaps(min, max int64) bool {
	return t.Min <= max && t.Max >= min
}

// FileMeta describes one committed SST file. It is constructed at
// write-completion time and read-only thereafter.
type FileMeta struct {
	// RegionID is the region this file belongs to.
	RegionID RegionID
	// FileID identifies the SST file and its index file.
	FileID FileID
	// TimeRange is the timestamp span covered by the file.
	TimeRange TimeRange
	// FileSize is the size of the SST file in bytes.
	FileSize uint64
	// IndexAvailable reports whether an inverted index file exists for
	// this SST.
	IndexAvailable bool
}

// FileHandle is a cheap, copyable reference to a committed file used when
// constructing readers.
type FileHandle struct {
	meta *FileMeta
}

// NewFileHandle wraps a FileMeta in a handle.
func NewFileHandle(meta *FileMeta) FileHandle {
	return FileHandle{meta: meta}
}

// FileID returns the id of the referenced file.
func (h FileHandle) FileID() FileID {
	return h.meta.FileID
}

// Meta returns the underlying descriptor. Callers must not mutate it.
func (h FileHandle) Meta() *FileMeta {
	return h.meta
}
