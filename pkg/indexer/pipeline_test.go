package indexer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-search/loupe/internal/embed"
	"github.com/loupe-search/loupe/internal/index"
	"github.com/loupe-search/loupe/internal/store"
)

type memSource struct {
	records []*store.SourceRecord
}

func (s *memSource) Initialize(ctx context.Context) error { return nil }

func (s *memSource) GetAllRecords(ctx context.Context) ([]*store.SourceRecord, error) {
	return s.records, nil
}

func (s *memSource) Count(ctx context.Context) (int, error) { return len(s.records), nil }

func (s *memSource) Close() error { return nil }

type unavailableEmbedder struct{ embed.Embedder }

func (unavailableEmbedder) Available(ctx context.Context) bool { return false }

func record(id, path, text string, at time.Time) *store.SourceRecord {
	return &store.SourceRecord{
		ID:          id,
		CurrentPath: path,
		CurrentName: path,
		Fields:      store.RecordFields{Subject: "doc " + id, ExtractedText: text},
		Timestamp:   at,
	}
}

func newPipeline(t *testing.T, src store.DocumentSource, vs *store.HNSWVectorStore, emb embed.Embedder, cfg Config) *Pipeline {
	t.Helper()
	idx, err := index.NewLexicalIndex(src, index.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	p, err := New(src, idx, vs, emb, cfg)
	require.NoError(t, err)
	return p
}

func TestRun_PopulatesAllCollections(t *testing.T) {
	now := time.Now()
	src := &memSource{records: []*store.SourceRecord{
		record("a", "docs/a.txt", strings.Repeat("alpha ", 100), now),
		record("b", "docs/b.txt", "short body", now),
	}}
	vs := store.NewHNSWVectorStore(store.HNSWConfig{})
	defer vs.Close()

	p := newPipeline(t, src, vs, embed.NewStaticEmbedder(32), Config{ChunkMaxChars: 120, ChunkOverlap: 20})

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.FileVectors)
	assert.False(t, stats.VectorsSkipped)
	assert.Greater(t, stats.ChunkVectors, 2, "long text splits into several windows")

	assert.Equal(t, 2, vs.Count(store.CollectionFiles))
	assert.Equal(t, stats.ChunkVectors, vs.Count(store.CollectionChunks))

	dim, ok := vs.CollectionDimension(store.CollectionFiles)
	require.True(t, ok)
	assert.Equal(t, 32, dim)
}

func TestRun_ChunkMetadataMapsBackToFile(t *testing.T) {
	src := &memSource{records: []*store.SourceRecord{
		record("a", "docs/a.txt", strings.Repeat("alpha beta ", 60), time.Now()),
	}}
	vs := store.NewHNSWVectorStore(store.HNSWConfig{})
	defer vs.Close()
	emb := embed.NewStaticEmbedder(16)

	p := newPipeline(t, src, vs, emb, Config{ChunkMaxChars: 100, ChunkOverlap: 10})
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	vec, err := emb.Embed(context.Background(), "alpha beta")
	require.NoError(t, err)
	hits, err := vs.QuerySimilarChunks(context.Background(), vec, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	key := store.CanonicalKey("docs/a.txt")
	for _, h := range hits {
		assert.Equal(t, key, h.Meta.FileID)
		assert.Equal(t, "docs/a.txt", h.Meta.Path)
		assert.NotEmpty(t, h.Meta.Snippet)
		assert.Less(t, h.Meta.CharStart, h.Meta.CharEnd)
	}
}

func TestRun_LatestAnalysisWinsPerFile(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	src := &memSource{records: []*store.SourceRecord{
		record("a1", "docs/a.txt", "first analysis", old),
		record("a2", "docs/a.txt", "second analysis", time.Now()),
	}}
	vs := store.NewHNSWVectorStore(store.HNSWConfig{})
	defer vs.Close()

	p := newPipeline(t, src, vs, embed.NewStaticEmbedder(16), Config{})

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.FileVectors)
	assert.Equal(t, 1, vs.Count(store.CollectionFiles))
}

func TestRun_UnavailableEmbedderBuildsLexicalOnly(t *testing.T) {
	src := &memSource{records: []*store.SourceRecord{
		record("a", "docs/a.txt", "body text", time.Now()),
	}}
	vs := store.NewHNSWVectorStore(store.HNSWConfig{})
	defer vs.Close()

	p := newPipeline(t, src, vs, unavailableEmbedder{embed.NewStaticEmbedder(16)}, Config{})

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Documents)
	assert.True(t, stats.VectorsSkipped)
	assert.Zero(t, stats.FileVectors)
	assert.Zero(t, vs.Count(store.CollectionFiles))
}

func TestRun_OrganizationPathDrivesVectorIdentity(t *testing.T) {
	r := record("a", "inbox/scan.pdf", "invoice body", time.Now())
	r.Organization = &store.Organization{Actual: "invoices/acme.pdf", NewName: "acme.pdf"}
	src := &memSource{records: []*store.SourceRecord{r}}
	vs := store.NewHNSWVectorStore(store.HNSWConfig{})
	defer vs.Close()
	emb := embed.NewStaticEmbedder(16)

	p := newPipeline(t, src, vs, emb, Config{})
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	vec, err := emb.Embed(context.Background(), "invoice body")
	require.NoError(t, err)
	hits, err := vs.QuerySimilarFiles(context.Background(), vec, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, store.CanonicalKey("invoices/acme.pdf"), hits[0].ID)
	assert.Equal(t, "invoices/acme.pdf", hits[0].Metadata["path"])
}

func TestNew_RequiresCollaborators(t *testing.T) {
	src := &memSource{}
	idx, err := index.NewLexicalIndex(src, index.Config{})
	require.NoError(t, err)
	defer idx.Close()
	vs := store.NewHNSWVectorStore(store.HNSWConfig{})
	defer vs.Close()
	emb := embed.NewStaticEmbedder(16)

	_, err = New(nil, idx, vs, emb, Config{})
	assert.Error(t, err)
	_, err = New(src, nil, vs, emb, Config{})
	assert.Error(t, err)
	_, err = New(src, idx, nil, emb, Config{})
	assert.Error(t, err)
	_, err = New(src, idx, vs, nil, Config{})
	assert.Error(t, err)
}
