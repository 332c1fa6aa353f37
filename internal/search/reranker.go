package search

import (
	"context"
)

// Reranker reorders fused results using an external relevance model.
// Reranking is a quality enhancement, never a required step: callers keep
// the pre-rerank order when a reranker fails or is unavailable.
type Reranker interface {
	// Rerank reorders results by relevance to the query, returning at
	// most topN of them. The input order is the fused ranking.
	Rerank(ctx context.Context, query string, results []*FusedResult, topN int) ([]*FusedResult, error)

	// Available checks if the reranker can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// NoOpReranker keeps the fused order. Used when reranking is disabled.
type NoOpReranker struct{}

// Rerank returns the results unchanged, truncated to topN.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, results []*FusedResult, topN int) ([]*FusedResult, error) {
	if topN > 0 && topN < len(results) {
		results = results[:topN]
	}
	return results, nil
}

// Available always returns true.
func (n *NoOpReranker) Available(_ context.Context) bool { return true }

// Close is a no-op.
func (n *NoOpReranker) Close() error { return nil }

var _ Reranker = (*NoOpReranker)(nil)
