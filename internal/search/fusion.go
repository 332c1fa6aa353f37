package search

import (
	"sort"
)

// DefaultRRFConstant is the standard RRF smoothing parameter, empirically
// validated across domains.
const DefaultRRFConstant = 60

// rrfEpsilon floors the normalization divisor so a set whose maximum RRF
// score is vanishingly small still normalizes without dividing by zero.
const rrfEpsilon = 1e-9

// FusionEngine combines per-source ranked candidate lists into one ranked
// list. Two methods are offered: rank-based RRF and a weighted blend of
// normalized scores. Both merge match details by union across sources and
// break score ties in favor of vector-sourced metadata (the store's view of
// a file is fresher than the lexical index's, which may predate a rename).
type FusionEngine struct {
	// K is the RRF smoothing constant (default 60).
	K int
}

// NewFusionEngine creates a fusion engine with the given RRF constant.
// Non-positive k falls back to the default.
func NewFusionEngine(k int) *FusionEngine {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &FusionEngine{K: k}
}

// FuseRRF combines the source lists by reciprocal rank: each candidate
// accumulates 1/(k+rank+1) per list it appears in (rank 0-based within the
// list), then the set is normalized against its maximum. Input lists must be
// rank-ordered best first; their score scales are irrelevant.
//
// The output order depends only on the fused scores and documented
// tie-breaks, never on which source settled first.
func (f *FusionEngine) FuseRRF(lexical, vector, chunk []*SearchCandidate) []*FusedResult {
	acc := make(map[string]*FusedResult, len(lexical)+len(vector)+len(chunk))

	for _, list := range []struct {
		src        Source
		candidates []*SearchCandidate
	}{
		{SourceLexical, lexical},
		{SourceVector, vector},
		{SourceChunk, chunk},
	} {
		for rank, c := range list.candidates {
			r := f.getOrCreate(acc, c)
			r.Score += 1.0 / float64(f.K+rank+1)
			f.absorb(r, c, list.src)
		}
	}

	results := f.sorted(acc)

	if len(results) > 0 {
		maxScore := results[0].Score
		if maxScore < rrfEpsilon {
			maxScore = rrfEpsilon
		}
		for _, r := range results {
			r.Score /= maxScore
		}
	}
	return results
}

// FuseWeighted blends normalized per-source scores linearly:
//
//	score = β·lexical + (1-β)·((1-chunkShare)·vector + chunkShare·chunk)
//
// where β is weights.Lexical. Inputs must already be normalized to [0,1];
// a source that did not rank a candidate contributes zero.
func (f *FusionEngine) FuseWeighted(lexical, vector, chunk []*SearchCandidate, weights BlendWeights) []*FusedResult {
	acc := make(map[string]*FusedResult, len(lexical)+len(vector)+len(chunk))

	for _, c := range lexical {
		f.absorb(f.getOrCreate(acc, c), c, SourceLexical)
	}
	for _, c := range vector {
		f.absorb(f.getOrCreate(acc, c), c, SourceVector)
	}
	for _, c := range chunk {
		f.absorb(f.getOrCreate(acc, c), c, SourceChunk)
	}

	beta := weights.Lexical
	vectorWeight := (1 - beta) * (1 - weights.ChunkShare)
	chunkWeight := (1 - beta) * weights.ChunkShare
	for _, r := range acc {
		r.Score = beta*r.LexicalScore + vectorWeight*r.VectorScore + chunkWeight*r.ChunkScore
	}

	return f.sorted(acc)
}

func (f *FusionEngine) getOrCreate(acc map[string]*FusedResult, c *SearchCandidate) *FusedResult {
	if r, ok := acc[c.ID]; ok {
		return r
	}
	r := &FusedResult{ID: c.ID}
	acc[c.ID] = r
	return r
}

// absorb records one source's contribution: per-source score, provenance,
// merged metadata and match details. Vector-sourced metadata overwrites
// lexical-sourced values for the same key.
func (f *FusionEngine) absorb(r *FusedResult, c *SearchCandidate, src Source) {
	switch src {
	case SourceLexical:
		r.LexicalScore = c.Score
	case SourceVector:
		r.VectorScore = c.Score
	case SourceChunk:
		r.ChunkScore = c.Score
	}

	if !r.hasSource(src) {
		r.Sources = append(r.Sources, src)
	}

	if len(c.Metadata) > 0 {
		if r.Metadata == nil {
			r.Metadata = make(map[string]string, len(c.Metadata))
		}
		for k, v := range c.Metadata {
			_, exists := r.Metadata[k]
			if !exists || src != SourceLexical {
				r.Metadata[k] = v
			}
		}
	}

	mergeMatchDetails(&r.Match, c.Match)
}

// mergeMatchDetails unions terms and adopts the first snippet seen, so a
// fused result explains every source that contributed to it.
func mergeMatchDetails(dst *MatchDetails, src MatchDetails) {
	for _, term := range src.Terms {
		if !containsString(dst.Terms, term) {
			dst.Terms = append(dst.Terms, term)
		}
	}
	if !dst.hasSnippet() && src.hasSnippet() {
		dst.Snippet = src.Snippet
		dst.ChunkIndex = src.ChunkIndex
		dst.CharStart = src.CharStart
		dst.CharEnd = src.CharEnd
	}
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// sorted flattens the accumulator into a deterministic ranking:
// score descending, then vector-sourced metadata first, then ID ascending.
func (f *FusionEngine) sorted(acc map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(acc))
	for _, r := range acc {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.fromVector() != b.fromVector() {
			return a.fromVector()
		}
		return a.ID < b.ID
	})
	return results
}
