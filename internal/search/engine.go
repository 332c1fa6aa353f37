package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/loupe-search/loupe/internal/embed"
	loupeerrors "github.com/loupe-search/loupe/internal/errors"
	"github.com/loupe-search/loupe/internal/index"
	"github.com/loupe-search/loupe/internal/store"
	"github.com/loupe-search/loupe/internal/telemetry"
)

// Engine is the public entry point of the retrieval core. Per query it
// sequences validation, an index staleness check, concurrent fan-out to the
// lexical and vector sources, per-source normalization, fusion, minScore
// filtering and optional external reranking.
//
// The engine owns no mutable query state; the lexical index snapshot is the
// only shared mutable resource and it is managed by the index itself.
type Engine struct {
	cfg      EngineConfig
	index    *index.LexicalIndex
	vectors  *VectorQueryAdapter
	embedder embed.Embedder
	fusion   *FusionEngine
	chunks   *ChunkAggregator
	guard    *TimeoutGuard
	reranker Reranker                // optional
	observer AnomalyObserver         // optional
	metrics  *telemetry.QueryMetrics // optional
}

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithReranker sets an external reranker applied to the fused top results.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// WithObserver sets the anomaly observer notified of suspicious query
// outcomes. Observers run diagnostics out-of-band and must not block.
func WithObserver(o AnomalyObserver) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithMetrics sets the query telemetry collector.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates the orchestrator. The lexical index, vector store and
// embedder are required and missing ones fail fast at construction.
func NewEngine(
	lexical *index.LexicalIndex,
	vectors store.VectorStore,
	embedder embed.Embedder,
	cfg EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("lexical index is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	adapter, err := NewVectorQueryAdapter(vectors)
	if err != nil {
		return nil, err
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultEngineConfig().DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = DefaultEngineConfig().MaxTopK
	}
	if cfg.Fusion == "" {
		cfg.Fusion = FusionRRF
	}
	e := &Engine{
		cfg:      cfg,
		index:    lexical,
		vectors:  adapter,
		embedder: embedder,
		fusion:   NewFusionEngine(cfg.RRFConstant),
		chunks:   NewChunkAggregator(),
		guard:    NewTimeoutGuard(cfg.VectorTimeout),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// vectorOutcome collects everything the vector path produced. The path
// absorbs its own failures: a hard failure or mismatch is recorded here as
// flags and warnings, never surfaced as an error past the orchestrator.
type vectorOutcome struct {
	files             []*SearchCandidate
	chunks            []*SearchCandidate
	rawChunkHits      int
	dimensionMismatch bool
	failed            bool
	failReason        string
	warnings          []string
}

// Search executes one query. Degraded queries still succeed: the response's
// Mode and Meta describe which sources actually contributed. The only errors
// returned are invalid input (query too short) and parent-context
// cancellation.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) (*Response, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < 2 {
		return nil, loupeerrors.QueryTooShort(query)
	}
	opts = opts.withDefaults(e.cfg)

	meta := Meta{}

	// INDEX-CHECK: a stale index is rebuilt synchronously before the
	// fan-out; concurrent queries coalesce on the same build. A failed
	// rebuild leaves the previous snapshot serving.
	if opts.Mode != ModeVector && e.index.IsStale() {
		if _, err := e.index.Build(ctx); err != nil {
			slog.Warn("index_rebuild_failed",
				slog.String("query", query),
				slog.String("error", err.Error()))
			meta.Warnings = append(meta.Warnings, "index rebuild failed: "+err.Error())
		}
	}

	fetchK := opts.TopK * 2

	// FAN-OUT: the lexical search and the guarded vector path run
	// concurrently; fusion sees both as settled inputs, never as a race.
	var (
		lexical  []*SearchCandidate
		vout     *vectorOutcome
		timedOut bool
	)
	g, gctx := errgroup.WithContext(ctx)
	if opts.Mode != ModeVector {
		g.Go(func() error {
			lexical = e.lexicalSearch(gctx, query, fetchK, &meta)
			return nil
		})
	}
	if opts.Mode != ModeLexical {
		g.Go(func() error {
			var err error
			timedOut, err = e.guard.Run(gctx, func(vctx context.Context) error {
				vout = e.runVectorPath(vctx, query, fetchK)
				return nil
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var files, chunks []*SearchCandidate
	mode := opts.Mode
	switch {
	case timedOut:
		meta.TimedOut = true
		e.degrade(&mode, &meta, "vector search timed out")
	case opts.Mode != ModeLexical && vout != nil:
		files, chunks = vout.files, vout.chunks
		meta.VectorHits = len(files)
		meta.ChunkHits = vout.rawChunkHits
		meta.DimensionMismatch = vout.dimensionMismatch
		meta.Warnings = append(meta.Warnings, vout.warnings...)
		if vout.dimensionMismatch {
			e.degrade(&mode, &meta, "embedding dimension mismatch")
			e.observe("dimension mismatch between query embedding and stored collections")
		} else if vout.failed {
			e.degrade(&mode, &meta, vout.failReason)
		}
	}
	meta.LexicalHits = len(lexical)

	if opts.Mode == ModeHybrid && !meta.Fallback && !meta.TimedOut &&
		len(files) == 0 && len(chunks) == 0 && len(lexical) > 0 {
		e.observe("vector sources returned no candidates while the lexical index matched")
	}

	// NORMALIZE then FUSE. Normalization is monotone so the per-source
	// rank order RRF depends on is preserved.
	Normalize(lexical)
	Normalize(files)
	Normalize(chunks)

	var fused []*FusedResult
	if opts.Fusion == FusionWeighted {
		fused = e.fusion.FuseWeighted(lexical, files, chunks, *opts.Weights)
	} else {
		fused = e.fusion.FuseRRF(lexical, files, chunks)
	}

	// FILTER.
	if opts.MinScore > 0 {
		kept := fused[:0]
		for _, r := range fused {
			if r.Score >= opts.MinScore {
				kept = append(kept, r)
			}
		}
		meta.FilteredOut = len(fused) - len(kept)
		if len(kept) == 0 && len(fused) > 0 {
			warning := fmt.Sprintf("minScore %.2f filtered out all %d candidates", opts.MinScore, len(fused))
			meta.Warnings = append(meta.Warnings, warning)
			e.observe(warning)
		}
		fused = kept
	}

	if len(fused) > opts.TopK {
		fused = fused[:opts.TopK]
	}

	// RERANK: best effort; a reranker failure keeps the fused order.
	if e.reranker != nil && len(fused) > 1 && e.reranker.Available(ctx) {
		reranked, err := e.reranker.Rerank(ctx, query, fused, opts.TopK)
		if err != nil {
			slog.Warn("rerank_failed", slog.String("error", err.Error()))
		} else {
			fused = reranked
		}
	}

	meta.Duration = time.Since(start)
	meta.IndexVersion = e.index.Status().Version

	e.record(query, mode, len(fused), meta)

	slog.Debug("search_done",
		slog.String("query", query),
		slog.String("mode", string(mode)),
		slog.Int("results", len(fused)),
		slog.Int("lexical_hits", meta.LexicalHits),
		slog.Int("vector_hits", meta.VectorHits),
		slog.Int("chunk_hits", meta.ChunkHits),
		slog.Bool("timed_out", meta.TimedOut),
		slog.Duration("duration", meta.Duration))

	return &Response{Results: fused, Mode: mode, Meta: meta}, nil
}

// degrade marks the response as fallen back to lexical-only. Vector-only
// queries keep their mode; there is nothing to fall back to.
func (e *Engine) degrade(mode *Mode, meta *Meta, reason string) {
	meta.Fallback = true
	meta.FallbackReason = reason
	if *mode == ModeHybrid {
		*mode = ModeLexicalFallback
	}
}

// lexicalSearch queries the keyword index, absorbing failures: an unbuilt or
// broken index yields an empty candidate list and a warning, not an error.
func (e *Engine) lexicalSearch(ctx context.Context, query string, topK int, meta *Meta) []*SearchCandidate {
	hits, err := e.index.Search(ctx, query, topK)
	if err != nil {
		slog.Warn("lexical_search_failed", slog.String("error", err.Error()))
		meta.Warnings = append(meta.Warnings, "lexical search failed: "+err.Error())
		return nil
	}
	candidates := make([]*SearchCandidate, 0, len(hits))
	for _, h := range hits {
		c := &SearchCandidate{
			ID:     h.Key,
			Score:  h.Score,
			Source: SourceLexical,
			Match:  MatchDetails{Terms: h.MatchedTerms},
		}
		if h.Record != nil {
			c.Metadata = map[string]string{
				"path": h.Record.EffectivePath(),
				"name": h.Record.EffectiveName(),
			}
			if h.Record.Fields.Category != "" {
				c.Metadata["category"] = h.Record.Fields.Category
			}
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// runVectorPath embeds the query and fans out to the file and chunk
// collections in parallel, aggregating chunk hits to file candidates. All
// failures are absorbed into the outcome as flags and warnings.
func (e *Engine) runVectorPath(ctx context.Context, query string, topK int) *vectorOutcome {
	out := &vectorOutcome{}

	if !e.embedder.Available(ctx) {
		out.failed = true
		out.failReason = "embedder unavailable"
		return out
	}
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		out.failed = true
		out.failReason = "query embedding failed: " + err.Error()
		return out
	}

	var rawChunks []*store.ChunkHit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		files, err := e.vectors.FileSearch(gctx, vector, topK)
		if err != nil {
			return err
		}
		out.files = files
		return nil
	})
	g.Go(func() error {
		hits, err := e.vectors.ChunkSearch(gctx, vector, topK*3)
		if err != nil {
			// A broken chunk collection only costs deep-content
			// recall; the file-level path keeps serving.
			if loupeerrors.HasCode(err, loupeerrors.ErrCodeDimensionMismatch) {
				out.dimensionMismatch = true
			}
			out.warnings = append(out.warnings, "chunk search degraded: "+err.Error())
			return nil
		}
		rawChunks = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		out.files = nil
		if loupeerrors.HasCode(err, loupeerrors.ErrCodeDimensionMismatch) {
			out.dimensionMismatch = true
			out.warnings = append(out.warnings, err.Error())
		} else {
			out.failed = true
			out.failReason = err.Error()
		}
		return out
	}

	out.rawChunkHits = len(rawChunks)
	out.chunks = e.chunks.Aggregate(rawChunks, topK)
	return out
}

// observe forwards an anomaly to the observer, if any.
func (e *Engine) observe(reason string) {
	if e.observer != nil {
		e.observer.Observe(reason)
	}
}

// record forwards query telemetry to the collector, if any.
func (e *Engine) record(query string, mode Mode, results int, meta Meta) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:             query,
		Mode:              string(mode),
		ResultCount:       results,
		Latency:           meta.Duration,
		Timestamp:         time.Now(),
		Fallback:          meta.Fallback,
		TimedOut:          meta.TimedOut,
		DimensionMismatch: meta.DimensionMismatch,
	})
}

// BuildIndex rebuilds the lexical index from the document source.
// Concurrent calls coalesce onto one build.
func (e *Engine) BuildIndex(ctx context.Context) (*index.BuildResult, error) {
	return e.index.Build(ctx)
}

// IndexStatus reports the lexical index's externally visible state.
func (e *Engine) IndexStatus() index.Status {
	return e.index.Status()
}

// InvalidateIndex forces a rebuild on the next access without discarding
// the current snapshot.
func (e *Engine) InvalidateIndex(reason string) {
	e.index.Invalidate(reason)
}

// Close releases the engine's optional collaborators.
func (e *Engine) Close() error {
	if e.reranker != nil {
		return e.reranker.Close()
	}
	return nil
}
