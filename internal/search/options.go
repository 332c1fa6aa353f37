package search

import (
	"time"
)

// Mode selects which sources a query consults.
type Mode string

const (
	// ModeHybrid fans out to the lexical index and both vector collections.
	ModeHybrid Mode = "hybrid"

	// ModeLexical queries the keyword index only.
	ModeLexical Mode = "lexical"

	// ModeVector queries the vector collections only.
	ModeVector Mode = "vector"

	// ModeLexicalFallback is reported (never requested) when the vector
	// path was dropped and the query completed on lexical results alone.
	ModeLexicalFallback Mode = "lexical-fallback"
)

// FusionMethod selects how per-source rankings are combined.
type FusionMethod string

const (
	// FusionRRF combines sources by reciprocal rank, robust to score
	// scale differences between rankers.
	FusionRRF FusionMethod = "rrf"

	// FusionWeighted blends normalized per-source scores linearly.
	FusionWeighted FusionMethod = "weighted"
)

// BlendWeights parameterizes the weighted blend. The lexical weight takes
// its share first; the remainder is split between the file-vector and chunk
// sources by ChunkShare.
type BlendWeights struct {
	// Lexical is the keyword-score weight in [0,1].
	Lexical float64

	// ChunkShare is the fraction of the non-lexical weight given to
	// chunk-aggregated scores, in [0,1].
	ChunkShare float64
}

// DefaultBlendWeights favors vector recall slightly over keyword precision.
func DefaultBlendWeights() BlendWeights {
	return BlendWeights{Lexical: 0.4, ChunkShare: 0.5}
}

// SearchOptions configures a single query.
type SearchOptions struct {
	// TopK is the maximum number of fused results (default 10, max 100).
	TopK int

	// Mode selects the sources to consult (default hybrid).
	Mode Mode

	// MinScore drops fused results scoring below it. Zero keeps all.
	MinScore float64

	// Fusion selects the combination method (default RRF).
	Fusion FusionMethod

	// Weights overrides the engine's blend weights for this query.
	// Only meaningful with FusionWeighted.
	Weights *BlendWeights
}

// EngineConfig holds the engine-wide defaults a query can override.
type EngineConfig struct {
	// DefaultTopK is used when SearchOptions.TopK is zero (default 10).
	DefaultTopK int

	// MaxTopK caps SearchOptions.TopK (default 100).
	MaxTopK int

	// RRFConstant is the RRF smoothing constant k (default 60).
	RRFConstant int

	// Weights are the default blend weights.
	Weights BlendWeights

	// MinScore is the default minimum fused score.
	MinScore float64

	// Fusion is the default fusion method.
	Fusion FusionMethod

	// VectorTimeout bounds the vector path per query (default 5s).
	VectorTimeout time.Duration
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultTopK:   10,
		MaxTopK:       100,
		RRFConstant:   DefaultRRFConstant,
		Weights:       DefaultBlendWeights(),
		Fusion:        FusionRRF,
		VectorTimeout: 5 * time.Second,
	}
}

// withDefaults fills unset options from the engine config and clamps TopK.
func (o SearchOptions) withDefaults(cfg EngineConfig) SearchOptions {
	if o.TopK <= 0 {
		o.TopK = cfg.DefaultTopK
	}
	if cfg.MaxTopK > 0 && o.TopK > cfg.MaxTopK {
		o.TopK = cfg.MaxTopK
	}
	if o.Mode == "" {
		o.Mode = ModeHybrid
	}
	if o.Fusion == "" {
		o.Fusion = cfg.Fusion
	}
	if o.MinScore <= 0 {
		o.MinScore = cfg.MinScore
	}
	if o.Weights == nil {
		w := cfg.Weights
		o.Weights = &w
	}
	return o
}
