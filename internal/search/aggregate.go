package search

import (
	"sort"

	"github.com/loupe-search/loupe/internal/store"
)

// ChunkAggregator collapses chunk-level hits into file-level candidates.
// A file with many matching chunks ranks by its single best chunk, not by
// chunk count; the winning chunk's snippet and offsets are carried into the
// candidate's match details.
type ChunkAggregator struct{}

// NewChunkAggregator creates a chunk aggregator.
func NewChunkAggregator() *ChunkAggregator {
	return &ChunkAggregator{}
}

// Aggregate groups hits by file id, keeps the highest-scoring chunk per file
// and returns the top-K files by that score descending. Hits must carry a
// similarity score (the adapter converts distances before aggregation).
func (a *ChunkAggregator) Aggregate(hits []*store.ChunkHit, topK int) []*SearchCandidate {
	if len(hits) == 0 {
		return []*SearchCandidate{}
	}

	best := make(map[string]*SearchCandidate, len(hits))
	for _, h := range hits {
		fileID := h.Meta.FileID
		if fileID == "" {
			continue
		}
		score := float64(h.Score)
		if existing, ok := best[fileID]; ok && existing.Score >= score {
			continue
		}
		best[fileID] = &SearchCandidate{
			ID:     fileID,
			Score:  score,
			Source: SourceChunk,
			Metadata: map[string]string{
				"path": h.Meta.Path,
				"name": h.Meta.Name,
			},
			Match: MatchDetails{
				Snippet:    h.Meta.Snippet,
				ChunkIndex: h.Meta.ChunkIndex,
				CharStart:  h.Meta.CharStart,
				CharEnd:    h.Meta.CharEnd,
			},
		}
	}

	candidates := make([]*SearchCandidate, 0, len(best))
	for _, c := range best {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}
