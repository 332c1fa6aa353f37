// Package store defines the external-collaborator contracts the retrieval
// core consumes (document source, vector store) along with their shared
// record and result types, and provides the default in-process
// implementations: a SQLite-backed document source and an HNSW-backed
// vector store.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// RecordFields holds the analyzable text fields of a source record.
type RecordFields struct {
	Subject       string
	Summary       string
	Tags          []string
	Category      string
	ExtractedText string
}

// Organization describes a post-analysis relocation or rename of a file.
// When present it is preferred over the record's original path and name.
type Organization struct {
	// Actual is the path the file was moved to.
	Actual string
	// NewName is the name the file was renamed to.
	NewName string
}

// SourceRecord is one analyzable unit from the document source. Multiple
// records may refer to the same logical file over time (re-analysis); the
// canonical file key distinguishes logical files, not analysis events.
type SourceRecord struct {
	ID           string
	CurrentPath  string
	CurrentName  string
	Fields       RecordFields
	Organization *Organization
	Timestamp    time.Time
}

// EffectivePath returns the post-organization path when one exists,
// otherwise the record's current path.
func (r *SourceRecord) EffectivePath() string {
	if r.Organization != nil && r.Organization.Actual != "" {
		return r.Organization.Actual
	}
	return r.CurrentPath
}

// EffectiveName returns the post-organization name when one exists,
// otherwise the record's current name.
func (r *SourceRecord) EffectiveName() string {
	if r.Organization != nil && r.Organization.NewName != "" {
		return r.Organization.NewName
	}
	return r.CurrentName
}

// CanonicalKey derives the stable identifier for a logical file from its
// normalized path. Re-analyses of the same file map to the same key.
func CanonicalKey(path string) string {
	normalized := strings.ToLower(filepath.ToSlash(filepath.Clean(strings.TrimSpace(path))))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// DocumentSource supplies source records for indexing.
type DocumentSource interface {
	// Initialize prepares the source for use (schema creation, migrations).
	Initialize(ctx context.Context) error

	// GetAllRecords returns every source record, one per analysis event.
	GetAllRecords(ctx context.Context) ([]*SourceRecord, error)

	// Count returns the number of records without materializing them.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// CollectionKind names a vector collection.
type CollectionKind string

const (
	// CollectionFiles holds one embedding per logical file.
	CollectionFiles CollectionKind = "files"
	// CollectionChunks holds one embedding per extracted-text chunk.
	CollectionChunks CollectionKind = "chunks"
)

// VectorHit is a file-level nearest-neighbor result. Stores that report an
// explicit similarity set Score and HasScore; otherwise only Distance is set
// and the caller converts it.
type VectorHit struct {
	ID       string
	Score    float32 // similarity in [0,1], valid only when HasScore
	HasScore bool
	Distance float32 // cosine distance in [0,2]
	Metadata map[string]string
}

// ChunkMeta identifies the file and span a chunk embedding was taken from.
type ChunkMeta struct {
	FileID     string
	Path       string
	Name       string
	Snippet    string
	ChunkIndex int
	CharStart  int
	CharEnd    int
}

// ChunkHit is a chunk-level nearest-neighbor result.
type ChunkHit struct {
	Meta     ChunkMeta
	Score    float32
	HasScore bool
	Distance float32
}

// VectorStore performs nearest-neighbor search over the file and chunk
// collections and reports each collection's embedding dimensionality.
type VectorStore interface {
	// CollectionDimension returns the embedding width of the collection.
	// ok is false when the collection is absent or empty; any query width
	// is then acceptable.
	CollectionDimension(kind CollectionKind) (dim int, ok bool)

	// QuerySimilarFiles returns the topK nearest file-level neighbors.
	QuerySimilarFiles(ctx context.Context, vector []float32, topK int) ([]*VectorHit, error)

	// QuerySimilarChunks returns the topK nearest chunk-level neighbors.
	// An absent or empty chunk collection yields an empty slice, not an error.
	QuerySimilarChunks(ctx context.Context, vector []float32, topK int) ([]*ChunkHit, error)

	// Count returns the number of vectors in the collection.
	Count(kind CollectionKind) int

	// Close releases resources.
	Close() error
}

// ErrDimensionMismatch indicates a vector whose width differs from the
// collection it is being added to or queried against.
type ErrDimensionMismatch struct {
	Collection CollectionKind
	Expected   int
	Got        int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("collection %q dimension mismatch: expected %d, got %d", e.Collection, e.Expected, e.Got)
}
