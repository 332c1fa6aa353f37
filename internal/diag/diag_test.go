package diag

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-search/loupe/internal/embed"
	"github.com/loupe-search/loupe/internal/index"
	"github.com/loupe-search/loupe/internal/store"
)

type fakeSource struct {
	records []*store.SourceRecord
}

func (f *fakeSource) Initialize(ctx context.Context) error { return nil }

func (f *fakeSource) GetAllRecords(ctx context.Context) ([]*store.SourceRecord, error) {
	return f.records, nil
}

func (f *fakeSource) Count(ctx context.Context) (int, error) { return len(f.records), nil }

func (f *fakeSource) Close() error { return nil }

// fakeVectors reports fixed populations and dimensions; queries are never
// issued by diagnostics.
type fakeVectors struct {
	fileCount  int
	chunkCount int
	fileDim    int
	chunkDim   int
	countCalls atomic.Int64
}

func (f *fakeVectors) CollectionDimension(kind store.CollectionKind) (int, bool) {
	if kind == store.CollectionFiles {
		return f.fileDim, f.fileDim > 0
	}
	return f.chunkDim, f.chunkDim > 0
}

func (f *fakeVectors) QuerySimilarFiles(ctx context.Context, vector []float32, topK int) ([]*store.VectorHit, error) {
	panic("diagnostics must not query vectors")
}

func (f *fakeVectors) QuerySimilarChunks(ctx context.Context, vector []float32, topK int) ([]*store.ChunkHit, error) {
	panic("diagnostics must not query vectors")
}

func (f *fakeVectors) Count(kind store.CollectionKind) int {
	f.countCalls.Add(1)
	if kind == store.CollectionFiles {
		return f.fileCount
	}
	return f.chunkCount
}

func (f *fakeVectors) Close() error { return nil }

func records(n int) []*store.SourceRecord {
	out := make([]*store.SourceRecord, n)
	for i := range out {
		out[i] = &store.SourceRecord{
			ID:          string(rune('a' + i)),
			CurrentPath: "docs/" + string(rune('a'+i)) + ".txt",
			CurrentName: string(rune('a'+i)) + ".txt",
			Fields:      store.RecordFields{Subject: "subject"},
			Timestamp:   time.Now(),
		}
	}
	return out
}

func builtIndex(t *testing.T, src store.DocumentSource) *index.LexicalIndex {
	t.Helper()
	li, err := index.NewLexicalIndex(src, index.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = li.Close() })
	_, err = li.Build(context.Background())
	require.NoError(t, err)
	return li
}

func newRunner(t *testing.T, src *fakeSource, vectors *fakeVectors, embedder embed.Embedder) *Runner {
	t.Helper()
	r, err := NewRunner(builtIndex(t, src), vectors, src, embedder)
	require.NoError(t, err)
	return r
}

func findBySeverity(report *Report, s Severity) []Finding {
	var out []Finding
	for _, f := range report.Findings {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

func TestDiagnose_HealthySystem(t *testing.T) {
	src := &fakeSource{records: records(5)}
	embedder := embed.NewStaticEmbedder(64)
	vectors := &fakeVectors{fileCount: 5, chunkCount: 20, fileDim: 64, chunkDim: 64}

	report := newRunner(t, src, vectors, embedder).Diagnose(context.Background())

	assert.True(t, report.Healthy())
	assert.Equal(t, 5, report.IndexDocuments)
	assert.Equal(t, 5, report.FileVectors)
	assert.Equal(t, 20, report.ChunkVectors)
	assert.Equal(t, 5, report.SourceRecords)
}

func TestDiagnose_EmptyVectorCollectionIsCritical(t *testing.T) {
	src := &fakeSource{records: records(3)}
	embedder := embed.NewStaticEmbedder(64)
	vectors := &fakeVectors{fileCount: 0, chunkCount: 0}

	report := newRunner(t, src, vectors, embedder).Diagnose(context.Background())

	assert.False(t, report.Healthy())
	require.True(t, report.HasSeverity(SeverityCritical))
	assert.Equal(t, "vector_collections", findBySeverity(report, SeverityCritical)[0].Check)
}

func TestDiagnose_DimensionMismatchIsCritical(t *testing.T) {
	src := &fakeSource{records: records(3)}
	embedder := embed.NewStaticEmbedder(1024)
	vectors := &fakeVectors{fileCount: 3, chunkCount: 9, fileDim: 768, chunkDim: 768}

	report := newRunner(t, src, vectors, embedder).Diagnose(context.Background())

	criticals := findBySeverity(report, SeverityCritical)
	require.Len(t, criticals, 2, "one finding per mismatched collection")
	for _, f := range criticals {
		assert.Equal(t, "embedding_dimensions", f.Check)
		assert.Contains(t, f.Message, "768")
		assert.Contains(t, f.Message, "1024")
	}
}

func TestDiagnose_PopulationSkew(t *testing.T) {
	src := &fakeSource{records: records(10)}
	embedder := embed.NewStaticEmbedder(64)
	vectors := &fakeVectors{fileCount: 4, chunkCount: 8, fileDim: 64, chunkDim: 64}

	report := newRunner(t, src, vectors, embedder).Diagnose(context.Background())

	require.True(t, report.HasSeverity(SeverityMedium))
	assert.Equal(t, "population_skew", findBySeverity(report, SeverityMedium)[0].Check)
}

func TestDiagnose_UnbuiltIndex(t *testing.T) {
	src := &fakeSource{}
	li, err := index.NewLexicalIndex(src, index.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = li.Close() })

	r, err := NewRunner(li, &fakeVectors{}, src, embed.NewStaticEmbedder(64))
	require.NoError(t, err)

	report := r.Diagnose(context.Background())
	assert.False(t, report.Healthy())
	require.True(t, report.HasSeverity(SeverityHigh))
	assert.Equal(t, "lexical_index", findBySeverity(report, SeverityHigh)[0].Check)
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	_, err := NewRunner(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestTrigger_Debounces(t *testing.T) {
	src := &fakeSource{records: records(2)}
	vectors := &fakeVectors{fileCount: 2, chunkCount: 2, fileDim: 64, chunkDim: 64}
	r := newRunner(t, src, vectors, embed.NewStaticEmbedder(64))

	trigger := NewTrigger(r, time.Hour)
	trigger.Observe("vector anomaly")

	require.Eventually(t, func() bool {
		return vectors.countCalls.Load() >= 2 // files + chunks counted once each
	}, time.Second, 10*time.Millisecond)
	firstPass := vectors.countCalls.Load()

	// Within the debounce window nothing new runs.
	trigger.Observe("vector anomaly again")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, firstPass, vectors.countCalls.Load())
}
