package search

import (
	"context"
	"fmt"
	"math"

	loupeerrors "github.com/loupe-search/loupe/internal/errors"
	"github.com/loupe-search/loupe/internal/store"
)

// VectorQueryAdapter wraps the external vector store: it validates query
// embedding width against the live collection before every query and maps
// store-reported distances to similarity scores.
type VectorQueryAdapter struct {
	store store.VectorStore
}

// NewVectorQueryAdapter creates an adapter over the given store.
func NewVectorQueryAdapter(s store.VectorStore) (*VectorQueryAdapter, error) {
	if s == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	return &VectorQueryAdapter{store: s}, nil
}

// ValidateDimension checks the query vector's width against the collection's
// live embedding width. An absent or empty collection accepts any width; a
// populated one must match exactly. Mismatches fail loudly naming both
// widths; reshaping the vector to fit would silently corrupt similarity
// semantics.
func (a *VectorQueryAdapter) ValidateDimension(vector []float32, kind store.CollectionKind) error {
	expected, ok := a.store.CollectionDimension(kind)
	if !ok {
		return nil
	}
	if len(vector) != expected {
		return loupeerrors.DimensionMismatch(string(kind), expected, len(vector))
	}
	return nil
}

// FileSearch returns the nearest file-level neighbors as candidates. Stores
// that report an explicit similarity are trusted; otherwise the cosine
// distance is converted. A similarity of exactly 0 is a valid score, not a
// missing value.
func (a *VectorQueryAdapter) FileSearch(ctx context.Context, vector []float32, topK int) ([]*SearchCandidate, error) {
	if err := a.ValidateDimension(vector, store.CollectionFiles); err != nil {
		return nil, err
	}

	hits, err := a.store.QuerySimilarFiles(ctx, vector, topK)
	if err != nil {
		return nil, loupeerrors.StoreUnavailable("file similarity query failed", err)
	}

	candidates := make([]*SearchCandidate, 0, len(hits))
	for _, h := range hits {
		score := float64(h.Score)
		if !h.HasScore {
			score = SimilarityFromDistance(h.Distance)
		}
		candidates = append(candidates, &SearchCandidate{
			ID:       h.ID,
			Score:    score,
			Source:   SourceVector,
			Metadata: h.Metadata,
		})
	}
	return candidates, nil
}

// ChunkSearch returns the nearest chunk-level hits with similarity scores
// filled in. An absent or empty chunk collection yields an empty slice, not
// an error.
func (a *VectorQueryAdapter) ChunkSearch(ctx context.Context, vector []float32, topK int) ([]*store.ChunkHit, error) {
	if _, ok := a.store.CollectionDimension(store.CollectionChunks); !ok {
		return []*store.ChunkHit{}, nil
	}
	if err := a.ValidateDimension(vector, store.CollectionChunks); err != nil {
		return nil, err
	}

	hits, err := a.store.QuerySimilarChunks(ctx, vector, topK)
	if err != nil {
		return nil, loupeerrors.StoreUnavailable("chunk similarity query failed", err)
	}

	for _, h := range hits {
		if !h.HasScore {
			h.Score = float32(SimilarityFromDistance(h.Distance))
			h.HasScore = true
		}
	}
	return hits, nil
}

// SimilarityFromDistance maps a cosine distance in [0,2] to a similarity in
// [0,1], clamping numeric noise below zero.
func SimilarityFromDistance(distance float32) float64 {
	return math.Max(0, 1-float64(distance)/2)
}
