package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id string, score float64, src Source) *SearchCandidate {
	return &SearchCandidate{ID: id, Score: score, Source: src}
}

func TestFuseRRF_MonotoneOrder(t *testing.T) {
	f := NewFusionEngine(0)
	lexical := []*SearchCandidate{
		candidate("a", 10, SourceLexical),
		candidate("b", 8, SourceLexical),
		candidate("c", 2, SourceLexical),
	}
	vector := []*SearchCandidate{
		candidate("b", 0.9, SourceVector),
		candidate("d", 0.7, SourceVector),
	}
	chunk := []*SearchCandidate{
		candidate("a", 0.8, SourceChunk),
	}

	results := f.FuseRRF(lexical, vector, chunk)
	require.Len(t, results, 4)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestFuseRRF_MultiSourceBeatsSingleSource(t *testing.T) {
	f := NewFusionEngine(60)
	lexical := []*SearchCandidate{
		candidate("both", 5, SourceLexical),
		candidate("lexonly", 4, SourceLexical),
	}
	vector := []*SearchCandidate{
		candidate("both", 0.9, SourceVector),
	}

	results := f.FuseRRF(lexical, vector, nil)
	require.Len(t, results, 2)
	assert.Equal(t, "both", results[0].ID)
	assert.ElementsMatch(t, []Source{SourceLexical, SourceVector}, results[0].Sources)
}

func TestFuseRRF_NormalizedAgainstMax(t *testing.T) {
	f := NewFusionEngine(60)
	results := f.FuseRRF([]*SearchCandidate{
		candidate("a", 1, SourceLexical),
		candidate("b", 0.5, SourceLexical),
	}, nil, nil)

	require.Len(t, results, 2)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Less(t, results[1].Score, 1.0)
	assert.Greater(t, results[1].Score, 0.0)
}

func TestFuseRRF_SingleCandidate(t *testing.T) {
	f := NewFusionEngine(60)
	results := f.FuseRRF([]*SearchCandidate{candidate("only", 3, SourceLexical)}, nil, nil)
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestFuseRRF_Empty(t *testing.T) {
	f := NewFusionEngine(60)
	assert.Empty(t, f.FuseRRF(nil, nil, nil))
}

func TestFuseRRF_RankDrivenNotScoreDriven(t *testing.T) {
	f := NewFusionEngine(60)
	// Wildly different score scales: only list positions matter.
	bigScores := f.FuseRRF([]*SearchCandidate{
		candidate("a", 10000, SourceLexical),
		candidate("b", 9999, SourceLexical),
	}, nil, nil)
	smallScores := f.FuseRRF([]*SearchCandidate{
		candidate("a", 0.02, SourceLexical),
		candidate("b", 0.01, SourceLexical),
	}, nil, nil)

	require.Len(t, bigScores, 2)
	require.Len(t, smallScores, 2)
	assert.Equal(t, bigScores[0].Score, smallScores[0].Score)
	assert.Equal(t, bigScores[1].Score, smallScores[1].Score)
}

func TestFuseWeighted_Formula(t *testing.T) {
	f := NewFusionEngine(60)
	weights := BlendWeights{Lexical: 0.4, ChunkShare: 0.5}

	lexical := []*SearchCandidate{candidate("a", 1.0, SourceLexical)}
	vector := []*SearchCandidate{candidate("a", 0.5, SourceVector)}
	chunk := []*SearchCandidate{candidate("a", 0.8, SourceChunk)}

	results := f.FuseWeighted(lexical, vector, chunk, weights)
	require.Len(t, results, 1)

	// 0.4·1.0 + 0.3·0.5 + 0.3·0.8
	assert.InDelta(t, 0.79, results[0].Score, 1e-9)
	assert.Equal(t, 1.0, results[0].LexicalScore)
	assert.Equal(t, 0.5, results[0].VectorScore)
	assert.Equal(t, 0.8, results[0].ChunkScore)
}

func TestFuseWeighted_MissingSourceContributesZero(t *testing.T) {
	f := NewFusionEngine(60)
	weights := BlendWeights{Lexical: 0.4, ChunkShare: 0.5}

	results := f.FuseWeighted(
		[]*SearchCandidate{candidate("lexonly", 1.0, SourceLexical)},
		[]*SearchCandidate{candidate("veconly", 1.0, SourceVector)},
		nil, weights)

	require.Len(t, results, 2)
	byID := map[string]*FusedResult{results[0].ID: results[0], results[1].ID: results[1]}
	assert.InDelta(t, 0.4, byID["lexonly"].Score, 1e-9)
	assert.InDelta(t, 0.3, byID["veconly"].Score, 1e-9)
}

func TestFuseWeighted_TieBreakPrefersVectorMetadata(t *testing.T) {
	f := NewFusionEngine(60)
	// β=0.5, chunkShare=0: lexical-only at 1.0 and vector-only at 1.0
	// both fuse to 0.5.
	weights := BlendWeights{Lexical: 0.5, ChunkShare: 0}

	results := f.FuseWeighted(
		[]*SearchCandidate{candidate("z-lexical", 1.0, SourceLexical)},
		[]*SearchCandidate{candidate("a-vector", 1.0, SourceVector)},
		nil, weights)

	require.Len(t, results, 2)
	assert.Equal(t, results[0].Score, results[1].Score)
	assert.Equal(t, "a-vector", results[0].ID, "vector-sourced metadata wins the tie")
}

func TestFuse_MergesMatchDetails(t *testing.T) {
	f := NewFusionEngine(60)
	lex := candidate("a", 1.0, SourceLexical)
	lex.Match = MatchDetails{Terms: []string{"invoice", "total"}}
	chk := candidate("a", 0.9, SourceChunk)
	chk.Match = MatchDetails{Snippet: "total due: 1042", ChunkIndex: 3, CharStart: 120, CharEnd: 135}

	results := f.FuseRRF([]*SearchCandidate{lex}, nil, []*SearchCandidate{chk})
	require.Len(t, results, 1)

	assert.Equal(t, []string{"invoice", "total"}, results[0].Match.Terms)
	assert.Equal(t, "total due: 1042", results[0].Match.Snippet)
	assert.Equal(t, 3, results[0].Match.ChunkIndex)
	assert.Equal(t, 120, results[0].Match.CharStart)
	assert.Equal(t, 135, results[0].Match.CharEnd)
}

func TestFuse_VectorMetadataOverridesLexical(t *testing.T) {
	f := NewFusionEngine(60)
	lex := candidate("a", 1.0, SourceLexical)
	lex.Metadata = map[string]string{"path": "old/stale.pdf", "category": "reports"}
	vec := candidate("a", 1.0, SourceVector)
	vec.Metadata = map[string]string{"path": "new/current.pdf"}

	results := f.FuseRRF([]*SearchCandidate{lex}, []*SearchCandidate{vec}, nil)
	require.Len(t, results, 1)

	assert.Equal(t, "new/current.pdf", results[0].Metadata["path"])
	assert.Equal(t, "reports", results[0].Metadata["category"], "lexical-only keys survive")
}

func TestFuse_DeterministicAcrossInputPermutations(t *testing.T) {
	f := NewFusionEngine(60)
	lexical := []*SearchCandidate{
		candidate("a", 5, SourceLexical),
		candidate("b", 4, SourceLexical),
	}
	vector := []*SearchCandidate{
		candidate("c", 0.9, SourceVector),
		candidate("a", 0.8, SourceVector),
	}

	first := f.FuseRRF(lexical, vector, nil)
	for i := 0; i < 20; i++ {
		again := f.FuseRRF(lexical, vector, nil)
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].ID, again[j].ID)
			assert.Equal(t, first[j].Score, again[j].Score)
		}
	}
}
