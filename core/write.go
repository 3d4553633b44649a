package core

// BlockMeta locates one data block inside an SST file and summarizes its
// contents for pruning.
type BlockMeta struct {
	// Offset is the byte offset of the block from the start of the file.
	Offset uint64
	// Length is the on-disk (compressed) length of the block, excluding
	// its trailing checksum.
	Length uint32
	// NumRows is the number of rows encoded in the block.
	NumRows uint32
	// MinTimestamp and MaxTimestamp bound the rows in the block.
	MinTimestamp int64
	MaxTimestamp int64
}

// SSTMetadata is the parsed file-level metadata of a committed SST,
// suitable for memoization by the cache manager so later reads skip the
// footer round-trip.
type SSTMetadata struct {
	NumRows     uint64
	TimeRange   TimeRange
	Compression CompressionType
	Blocks      []BlockMeta
}

// SSTInfo is the result of a successful SST write. A nil *SSTInfo from the
// write path means the source yielded zero rows and no file was created;
// that is a valid terminal outcome, not an error.
type SSTInfo struct {
	// TimeRange covered by the written file.
	TimeRange TimeRange
	// FileSize of the SST file in bytes.
	FileSize uint64
	// NumRows written.
	NumRows uint64
	// Metadata is the parsed file-level metadata, if available.
	Metadata *SSTMetadata
	// IndexAvailable reports whether an inverted index file was built
	// alongside the SST.
	IndexAvailable bool
	// IndexFileSize of the index file in bytes, when IndexAvailable.
	IndexFileSize uint64
}

// WriteOptions tunes one SST write.
type WriteOptions struct {
	// BlockSizeBytes is the target uncompressed size of one data block.
	BlockSizeBytes int
	// Compression selects the block compression codec.
	Compression CompressionType
	// InvertedIndex enables inverted index construction on write paths
	// that support it.
	InvertedIndex bool
	// IndexMemoryBudgetBytes bounds the index builder's in-memory buffer
	// before it spills sorted runs to intermediate storage.
	IndexMemoryBudgetBytes int64
}

// DefaultWriteOptions returns the options used when the caller passes nil.
func DefaultWriteOptions() *WriteOptions {
	return &WriteOptions{
		BlockSizeBytes:         64 * 1024,
		Compression:            CompressionSnappy,
		IndexMemoryBudgetBytes: 64 * 1024 * 1024,
	}
}
