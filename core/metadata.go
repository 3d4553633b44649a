package core

// SemanticType classifies the role a column plays in a region's schema.
type SemanticType byte

const (
	// SemanticTag columns form the series key and are indexed by the
	// inverted index.
	SemanticTag SemanticType = iota
	// SemanticField columns carry measured values.
	SemanticField
	// SemanticTimestamp is the single time index column.
	SemanticTimestamp
)

func (s SemanticType) String() string {
	switch s {
	case SemanticTag:
		return "tag"
	case SemanticField:
		return "field"
	case SemanticTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// ColumnMetadata describes one column of a region's schema.
type ColumnMetadata struct {
	ColumnID uint64
	Name     string
	Semantic SemanticType
}

// RegionMetadata is the schema and physical-layout description of a region.
// It is owned by the region engine and shared read-only across concurrent
// writers and readers; the storage layer only borrows it for the duration
// of a write or read.
type RegionMetadata struct {
	RegionID      RegionID
	SchemaVersion uint64
	Columns       []ColumnMetadata
}

// RegionMetadataRef is a shared read-only reference to a RegionMetadata.
type RegionMetadataRef = *RegionMetadata

// TagColumns returns the columns indexed by the inverted index.
func (m *RegionMetadata) TagColumns() []ColumnMetadata {
	var tags []ColumnMetadata
	for _, c := range m.Columns {
		if c.Semantic == SemanticTag {
			tags = append(tags, c)
		}
	}
	return tags
}

// Column returns the column with the given id, or nil.
func (m *RegionMetadata) Column(id uint64) *ColumnMetadata {
	for i := range m.Columns {
		if m.Columns[i].ColumnID == id {
			return &m.Columns[i]
		}
	}
	return nil
}
