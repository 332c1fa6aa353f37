// Package search implements the hybrid retrieval core: per-source candidate
// generation (lexical, file-level vector, chunk-level vector), min-max score
// normalization, Reciprocal Rank Fusion and weighted blending, timeout-bounded
// degradation, and the orchestrator tying them together.
package search

import (
	"time"
)

// Source identifies which ranker produced a candidate.
type Source string

const (
	// SourceLexical marks candidates from the keyword index.
	SourceLexical Source = "lexical"

	// SourceVector marks candidates from file-level vector similarity.
	SourceVector Source = "vector"

	// SourceChunk marks candidates aggregated from chunk-level hits.
	SourceChunk Source = "chunk"
)

// MatchDetails explains why a candidate matched. Fused results carry the
// union of details from every contributing source.
type MatchDetails struct {
	// Terms are the lexical query terms that matched.
	Terms []string `json:"terms,omitempty"`

	// Snippet is the best-matching chunk's text, when a chunk contributed.
	Snippet string `json:"snippet,omitempty"`

	// ChunkIndex, CharStart and CharEnd locate the snippet in the file.
	ChunkIndex int `json:"chunk_index,omitempty"`
	CharStart  int `json:"char_start,omitempty"`
	CharEnd    int `json:"char_end,omitempty"`
}

// hasSnippet reports whether chunk-level provenance is present.
func (m MatchDetails) hasSnippet() bool {
	return m.Snippet != ""
}

// SearchCandidate is one result produced independently by a single source
// before fusion. Score is on the source's local scale until Normalize runs;
// RawScore preserves the pre-normalization value for diagnostics.
type SearchCandidate struct {
	ID       string
	Score    float64
	RawScore float64
	Source   Source
	Metadata map[string]string
	Match    MatchDetails
}

// FusedResult is one ranked result after fusion. Sources is never empty and
// Score is in [0,1], determined solely by the fusion formula and the
// documented tie-breaks.
type FusedResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`

	// Per-source normalized scores, zero when the source did not rank
	// this candidate.
	LexicalScore float64 `json:"lexical_score,omitempty"`
	VectorScore  float64 `json:"vector_score,omitempty"`
	ChunkScore   float64 `json:"chunk_score,omitempty"`

	Sources  []Source          `json:"sources"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Match    MatchDetails      `json:"match"`
}

// fromVector reports whether any vector-backed source contributed. Vector
// metadata reflects the store's current view of the file and is preferred
// over lexical metadata, which may reference a stale name.
func (r *FusedResult) fromVector() bool {
	for _, s := range r.Sources {
		if s == SourceVector || s == SourceChunk {
			return true
		}
	}
	return false
}

// hasSource reports whether the given source contributed to this result.
func (r *FusedResult) hasSource(src Source) bool {
	for _, s := range r.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// Meta carries per-query diagnostics alongside the results. Degradation is
// reported here as flags, never as errors.
type Meta struct {
	Duration     time.Duration `json:"duration"`
	IndexVersion int           `json:"index_version"`

	// Raw candidate counts per source, before normalization and fusion.
	LexicalHits int `json:"lexical_hits"`
	VectorHits  int `json:"vector_hits"`
	ChunkHits   int `json:"chunk_hits"`

	// TimedOut is set when the vector path exceeded its deadline.
	TimedOut bool `json:"timed_out,omitempty"`

	// Fallback is set when the query degraded from the requested mode;
	// FallbackReason says why.
	Fallback       bool   `json:"fallback,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`

	// DimensionMismatch is set when the query embedding width differed
	// from a stored collection's width.
	DimensionMismatch bool `json:"dimension_mismatch,omitempty"`

	// FilteredOut counts fused candidates dropped by the minScore filter.
	FilteredOut int `json:"filtered_out,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// Response is the outcome of one search. A degraded query still succeeds:
// Mode and Meta describe what actually ran.
type Response struct {
	Results []*FusedResult `json:"results"`
	Mode    Mode           `json:"mode"`
	Meta    Meta           `json:"meta"`
}

// AnomalyObserver is notified when a query exhibits symptoms worth a deeper
// look (zero vector results against lexical matches, a filter emptying the
// candidate set, a dimension mismatch). Implementations must not block.
type AnomalyObserver interface {
	Observe(reason string)
}
