// Package indexer populates the retrieval collaborators from the document
// source: it builds the lexical index and fills the file and chunk vector
// collections, embedding concurrently with a bounded worker pool. The
// pipeline is what the CLI's index command (and any embedding process) runs;
// querying lives in the search engine.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loupe-search/loupe/internal/chunk"
	"github.com/loupe-search/loupe/internal/embed"
	"github.com/loupe-search/loupe/internal/index"
	"github.com/loupe-search/loupe/internal/store"
)

const snippetChars = 160

// VectorSink receives embeddings. The HNSW vector store satisfies it.
type VectorSink interface {
	AddFile(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	AddChunk(ctx context.Context, meta store.ChunkMeta, vector []float32) error
}

// Config tunes the pipeline.
type Config struct {
	// Workers bounds concurrent embedding calls. Default: NumCPU, max 8.
	Workers int

	// ChunkMaxChars and ChunkOverlap configure the text windows embedded
	// into the chunk collection.
	ChunkMaxChars int
	ChunkOverlap  int
}

// Stats reports one pipeline run.
type Stats struct {
	Documents    int
	IndexVersion int
	FileVectors  int
	ChunkVectors int
	// VectorsSkipped is true when the embedder was unavailable and only
	// the lexical index was built.
	VectorsSkipped bool
	Duration       time.Duration
}

// Pipeline builds every retrieval collection from the document source.
type Pipeline struct {
	source   store.DocumentSource
	index    *index.LexicalIndex
	sink     VectorSink
	embedder embed.Embedder
	splitter *chunk.Splitter
	workers  int
}

// New creates a pipeline. All collaborators are required.
func New(source store.DocumentSource, idx *index.LexicalIndex, sink VectorSink, embedder embed.Embedder, cfg Config) (*Pipeline, error) {
	if source == nil {
		return nil, fmt.Errorf("document source is required")
	}
	if idx == nil {
		return nil, fmt.Errorf("lexical index is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("vector sink is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 8 {
			workers = 8
		}
	}
	return &Pipeline{
		source:   source,
		index:    idx,
		sink:     sink,
		embedder: embedder,
		splitter: chunk.NewSplitter(cfg.ChunkMaxChars, cfg.ChunkOverlap),
		workers:  workers,
	}, nil
}

// Run builds the lexical index, then embeds one file-level vector per
// logical file and one chunk-level vector per text window. An unavailable
// embedder skips the vector half; the lexical index still serves.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()

	built, err := p.index.Build(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Documents: built.Indexed, IndexVersion: built.Version}

	if !p.embedder.Available(ctx) {
		slog.Warn("embedder_unavailable_skipping_vectors")
		stats.VectorsSkipped = true
		stats.Duration = time.Since(start)
		return stats, nil
	}

	records, err := p.source.GetAllRecords(ctx)
	if err != nil {
		return nil, err
	}

	var fileCount, chunkCount atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, r := range latestPerFile(records) {
		g.Go(func() error {
			n, err := p.embedRecord(gctx, r, &fileCount)
			if err != nil {
				return err
			}
			chunkCount.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.FileVectors = int(fileCount.Load())
	stats.ChunkVectors = int(chunkCount.Load())
	stats.Duration = time.Since(start)

	slog.Info("ingest_complete",
		slog.Int("documents", stats.Documents),
		slog.Int("file_vectors", stats.FileVectors),
		slog.Int("chunk_vectors", stats.ChunkVectors),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// embedRecord adds the record's file-level vector and one vector per text
// window, returning the number of chunks written.
func (p *Pipeline) embedRecord(ctx context.Context, r *store.SourceRecord, fileCount *atomic.Int64) (int, error) {
	key := store.CanonicalKey(r.EffectivePath())

	vec, err := p.embedder.Embed(ctx, fileText(r))
	if err != nil {
		return 0, fmt.Errorf("embed %s: %w", r.EffectivePath(), err)
	}
	meta := map[string]string{
		"path": r.EffectivePath(),
		"name": r.EffectiveName(),
	}
	if r.Fields.Category != "" {
		meta["category"] = r.Fields.Category
	}
	if err := p.sink.AddFile(ctx, key, vec, meta); err != nil {
		return 0, fmt.Errorf("add file vector %s: %w", r.EffectivePath(), err)
	}
	fileCount.Add(1)

	written := 0
	for _, span := range p.splitter.Split(r.Fields.ExtractedText) {
		cvec, err := p.embedder.Embed(ctx, span.Text)
		if err != nil {
			return written, fmt.Errorf("embed chunk %d of %s: %w", span.Index, r.EffectivePath(), err)
		}
		cm := store.ChunkMeta{
			FileID:     key,
			Path:       r.EffectivePath(),
			Name:       r.EffectiveName(),
			Snippet:    chunk.Snippet(span.Text, snippetChars),
			ChunkIndex: span.Index,
			CharStart:  span.Start,
			CharEnd:    span.End,
		}
		if err := p.sink.AddChunk(ctx, cm, cvec); err != nil {
			return written, fmt.Errorf("add chunk vector %d of %s: %w", span.Index, r.EffectivePath(), err)
		}
		written++
	}
	return written, nil
}

// latestPerFile keeps the newest analysis of each logical file, mirroring
// what the lexical index serves.
func latestPerFile(records []*store.SourceRecord) []*store.SourceRecord {
	sorted := make([]*store.SourceRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	seen := make(map[string]struct{}, len(sorted))
	out := make([]*store.SourceRecord, 0, len(sorted))
	for _, r := range sorted {
		key := store.CanonicalKey(r.EffectivePath())
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// fileText assembles the record fields into one embeddable document.
func fileText(r *store.SourceRecord) string {
	parts := []string{r.EffectiveName(), r.Fields.Subject, r.Fields.Summary}
	if len(r.Fields.Tags) > 0 {
		parts = append(parts, strings.Join(r.Fields.Tags, " "))
	}
	parts = append(parts, r.Fields.ExtractedText)

	nonEmpty := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}
