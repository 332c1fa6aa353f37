// Package diag provides read-only introspection over the retrieval core:
// collection populations, lexical index health, embedding-dimension
// consistency and population skew. Reports are safe to generate concurrently
// with live queries and never mutate index or store state.
package diag

import (
	"context"
	"fmt"
	"time"

	"github.com/loupe-search/loupe/internal/embed"
	"github.com/loupe-search/loupe/internal/index"
	"github.com/loupe-search/loupe/internal/store"
)

// Severity classifies a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Finding is one observation from a diagnostic pass.
type Finding struct {
	Check    string            `json:"check"`
	Severity Severity          `json:"severity"`
	Message  string            `json:"message"`
	Details  map[string]string `json:"details,omitempty"`
}

// Report is the outcome of one diagnostic pass.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Findings    []Finding `json:"findings"`

	IndexDocuments int  `json:"index_documents"`
	FileVectors    int  `json:"file_vectors"`
	ChunkVectors   int  `json:"chunk_vectors"`
	SourceRecords  int  `json:"source_records"`
	IndexStale     bool `json:"index_stale"`
}

// Healthy reports whether the pass found nothing critical or high.
func (r *Report) Healthy() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical || f.Severity == SeverityHigh {
			return false
		}
	}
	return true
}

// HasSeverity reports whether any finding carries the given severity.
func (r *Report) HasSeverity(s Severity) bool {
	for _, f := range r.Findings {
		if f.Severity == s {
			return true
		}
	}
	return false
}

// dimensionProbeText is embedded once per pass to learn the live query
// embedding width without touching any stored vector.
const dimensionProbeText = "dimension probe"

// skewTolerance is the population difference ratio above which the lexical
// index and the file-vector collection are considered out of sync.
const skewTolerance = 0.1

// Runner generates diagnostic reports over the engine's collaborators.
type Runner struct {
	index    *index.LexicalIndex
	vectors  store.VectorStore
	source   store.DocumentSource
	embedder embed.Embedder
}

// NewRunner creates a diagnostics runner. All collaborators are required.
func NewRunner(idx *index.LexicalIndex, vectors store.VectorStore, source store.DocumentSource, embedder embed.Embedder) (*Runner, error) {
	if idx == nil || vectors == nil || source == nil || embedder == nil {
		return nil, fmt.Errorf("diagnostics require index, vector store, source and embedder")
	}
	return &Runner{index: idx, vectors: vectors, source: source, embedder: embedder}, nil
}

// Diagnose runs every check and returns the report. The pass only reads:
// index status, collection counts, a source record count and one throwaway
// query embedding.
func (r *Runner) Diagnose(ctx context.Context) *Report {
	report := &Report{GeneratedAt: time.Now()}

	status := r.index.Status()
	report.IndexDocuments = status.DocumentCount
	report.IndexStale = status.IsStale
	report.FileVectors = r.vectors.Count(store.CollectionFiles)
	report.ChunkVectors = r.vectors.Count(store.CollectionChunks)

	r.checkIndex(report, status)
	r.checkCollections(report)
	r.checkDimensions(ctx, report)
	r.checkSkew(ctx, report)

	return report
}

func (r *Runner) checkIndex(report *Report, status index.Status) {
	switch {
	case !status.HasIndex:
		report.add("lexical_index", SeverityHigh,
			"lexical index has not been built", nil)
	case status.DocumentCount == 0:
		report.add("lexical_index", SeverityHigh,
			"lexical index is built but holds no documents", nil)
	case status.IsStale:
		report.add("lexical_index", SeverityMedium,
			"lexical index is stale and will rebuild on next access",
			map[string]string{"built_at": status.BuiltAt.Format(time.RFC3339)})
	}
}

func (r *Runner) checkCollections(report *Report) {
	if report.FileVectors == 0 && report.IndexDocuments > 0 {
		report.add("vector_collections", SeverityCritical,
			fmt.Sprintf("file-vector collection is empty while the lexical index holds %d documents; hybrid queries are effectively lexical-only", report.IndexDocuments),
			nil)
	}
	if report.ChunkVectors == 0 && report.FileVectors > 0 {
		report.add("vector_collections", SeverityLow,
			"chunk collection is empty; deep-content recall is disabled", nil)
	}
}

func (r *Runner) checkDimensions(ctx context.Context, report *Report) {
	if !r.embedder.Available(ctx) {
		report.add("embedding_dimensions", SeverityHigh,
			"embedder is unavailable; vector queries will degrade to lexical", nil)
		return
	}
	probe, err := r.embedder.Embed(ctx, dimensionProbeText)
	if err != nil {
		report.add("embedding_dimensions", SeverityHigh,
			"probe embedding failed: "+err.Error(), nil)
		return
	}

	for _, kind := range []store.CollectionKind{store.CollectionFiles, store.CollectionChunks} {
		expected, ok := r.vectors.CollectionDimension(kind)
		if !ok {
			continue
		}
		if len(probe) != expected {
			report.add("embedding_dimensions", SeverityCritical,
				fmt.Sprintf("collection %q stores %d-dimensional embeddings but the live embedder produces %d; rebuild the vector collections", kind, expected, len(probe)),
				map[string]string{
					"collection": string(kind),
					"stored":     fmt.Sprintf("%d", expected),
					"live":       fmt.Sprintf("%d", len(probe)),
				})
		}
	}
}

func (r *Runner) checkSkew(ctx context.Context, report *Report) {
	records, err := r.source.Count(ctx)
	if err != nil {
		report.add("population_skew", SeverityMedium,
			"source record count unavailable: "+err.Error(), nil)
		return
	}
	report.SourceRecords = records

	if report.IndexDocuments == 0 || report.FileVectors == 0 {
		return // emptiness is reported by the collection checks
	}
	diff := report.IndexDocuments - report.FileVectors
	if diff < 0 {
		diff = -diff
	}
	if float64(diff) > skewTolerance*float64(report.IndexDocuments) {
		report.add("population_skew", SeverityMedium,
			fmt.Sprintf("lexical index (%d documents) and file-vector collection (%d vectors) have drifted apart", report.IndexDocuments, report.FileVectors),
			nil)
	}
}

func (report *Report) add(check string, severity Severity, message string, details map[string]string) {
	report.Findings = append(report.Findings, Finding{
		Check:    check,
		Severity: severity,
		Message:  message,
		Details:  details,
	})
}
