package cmd

import (
	"context"
	"strings"

	"github.com/loupe-search/loupe/internal/config"
	"github.com/loupe-search/loupe/internal/diag"
	"github.com/loupe-search/loupe/internal/embed"
	"github.com/loupe-search/loupe/internal/index"
	"github.com/loupe-search/loupe/internal/search"
	"github.com/loupe-search/loupe/internal/store"
	"github.com/loupe-search/loupe/internal/telemetry"
	"github.com/loupe-search/loupe/pkg/indexer"
)

// app wires the default collaborators behind the CLI commands: the SQLite
// document source, the in-process HNSW vector store, the static embedder,
// the lexical index and the search engine on top of them.
type app struct {
	cfg      *config.Config
	source   *store.SQLiteDocumentSource
	vectors  *store.HNSWVectorStore
	embedder embed.Embedder
	idx      *index.LexicalIndex
	metrics  *telemetry.QueryMetrics
	runner   *diag.Runner
	engine   *search.Engine
	pipeline *indexer.Pipeline
}

func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.LoadFile(flagConfig)
	}
	return config.Load(".")
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	source, err := store.NewSQLiteDocumentSource(cfg.Source.Path)
	if err != nil {
		return nil, err
	}
	if err := source.Initialize(ctx); err != nil {
		_ = source.Close()
		return nil, err
	}

	vectors := store.NewHNSWVectorStore(store.HNSWConfig{})

	var embedder embed.Embedder = embed.NewStaticEmbedder(cfg.Embeddings.Dimensions)
	if cfg.Embeddings.CacheSize > 0 {
		embedder = embed.NewCachedEmbedder(embedder, cfg.Embeddings.CacheSize)
	}

	idx, err := index.NewLexicalIndex(source, index.Config{
		StaleThreshold: cfg.Index.StaleThreshold.Std(),
		CachePath:      cfg.Index.CachePath,
		CacheMaxBytes:  cfg.Index.CacheMaxBytes,
	})
	if err != nil {
		_ = source.Close()
		return nil, err
	}

	runner, err := diag.NewRunner(idx, vectors, source, embedder)
	if err != nil {
		_ = idx.Close()
		_ = source.Close()
		return nil, err
	}
	trigger := diag.NewTrigger(runner, 0)
	metrics := telemetry.NewQueryMetrics()

	engine, err := search.NewEngine(idx, vectors, embedder, search.EngineConfig{
		DefaultTopK:   cfg.Search.TopK,
		MaxTopK:       cfg.Search.MaxTopK,
		RRFConstant:   cfg.Search.RRFConstant,
		Weights:       search.BlendWeights{Lexical: cfg.Search.LexicalWeight, ChunkShare: cfg.Search.ChunkShare},
		MinScore:      cfg.Search.MinScore,
		Fusion:        search.FusionMethod(strings.ToLower(cfg.Search.Fusion)),
		VectorTimeout: cfg.Search.VectorTimeout.Std(),
	}, search.WithMetrics(metrics), search.WithObserver(trigger))
	if err != nil {
		_ = idx.Close()
		_ = source.Close()
		return nil, err
	}

	pipeline, err := indexer.New(source, idx, vectors, embedder, indexer.Config{})
	if err != nil {
		_ = idx.Close()
		_ = source.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		source:   source,
		vectors:  vectors,
		embedder: embedder,
		idx:      idx,
		metrics:  metrics,
		runner:   runner,
		engine:   engine,
		pipeline: pipeline,
	}, nil
}

// ensureIngested populates the in-process collections when the vector store
// is empty, so a one-shot search command serves hybrid results.
func (a *app) ensureIngested(ctx context.Context) (*indexer.Stats, error) {
	if a.vectors.Count(store.CollectionFiles) > 0 {
		return nil, nil
	}
	return a.pipeline.Run(ctx)
}

func (a *app) Close() {
	_ = a.engine.Close()
	_ = a.idx.Close()
	_ = a.vectors.Close()
	_ = a.embedder.Close()
	_ = a.source.Close()
}
