package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWVectorStore implements VectorStore with two in-process HNSW graphs,
// one per collection. It reports raw cosine distances and leaves the
// distance-to-similarity mapping to the query adapter.
type HNSWVectorStore struct {
	mu       sync.RWMutex
	files    *collection
	chunks   *collection
	closed   bool
	m        int
	efSearch int
}

// collection is one HNSW graph plus the key bookkeeping around it.
type collection struct {
	kind    CollectionKind
	graph   *hnsw.Graph[uint64]
	dim     int // 0 until the first vector is added
	nextKey uint64

	// file collection: key -> file id + metadata
	ids  map[uint64]string
	meta map[uint64]map[string]string

	// chunk collection: key -> chunk metadata
	chunkMeta map[uint64]ChunkMeta
}

// HNSWConfig tunes the underlying graphs.
type HNSWConfig struct {
	// M is HNSW max connections per layer (default: 16).
	M int
	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int
}

// NewHNSWVectorStore creates an empty vector store with a files and a
// chunks collection.
func NewHNSWVectorStore(cfg HNSWConfig) *HNSWVectorStore {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	s := &HNSWVectorStore{m: cfg.M, efSearch: cfg.EfSearch}
	s.files = s.newCollection(CollectionFiles)
	s.chunks = s.newCollection(CollectionChunks)
	return s
}

func (s *HNSWVectorStore) newCollection(kind CollectionKind) *collection {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = s.m
	graph.EfSearch = s.efSearch
	graph.Ml = 0.25
	return &collection{
		kind:      kind,
		graph:     graph,
		ids:       make(map[uint64]string),
		meta:      make(map[uint64]map[string]string),
		chunkMeta: make(map[uint64]ChunkMeta),
	}
}

// AddFile inserts a file-level embedding with optional metadata.
// The collection's dimensionality is fixed by the first vector added.
func (s *HNSWVectorStore) AddFile(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	key, err := s.files.add(vector)
	if err != nil {
		return err
	}
	s.files.ids[key] = id
	s.files.meta[key] = metadata
	return nil
}

// AddChunk inserts a chunk-level embedding keyed by its chunk metadata.
func (s *HNSWVectorStore) AddChunk(ctx context.Context, meta ChunkMeta, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	key, err := s.chunks.add(vector)
	if err != nil {
		return err
	}
	s.chunks.chunkMeta[key] = meta
	return nil
}

func (c *collection) add(vector []float32) (uint64, error) {
	if len(vector) == 0 {
		return 0, fmt.Errorf("empty vector")
	}
	if c.dim == 0 {
		c.dim = len(vector)
	} else if len(vector) != c.dim {
		return 0, ErrDimensionMismatch{Collection: c.kind, Expected: c.dim, Got: len(vector)}
	}

	key := c.nextKey
	c.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeVectorInPlace(vec)

	c.graph.Add(hnsw.MakeNode(key, vec))
	return key, nil
}

// CollectionDimension returns the embedding width of the collection.
// ok is false when the collection is absent or empty.
func (s *HNSWVectorStore) CollectionDimension(kind CollectionKind) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collectionFor(kind)
	if c == nil || c.dim == 0 || c.graph.Len() == 0 {
		return 0, false
	}
	return c.dim, true
}

// QuerySimilarFiles returns the topK nearest file-level neighbors with raw
// cosine distances.
func (s *HNSWVectorStore) QuerySimilarFiles(ctx context.Context, vector []float32, topK int) ([]*VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}

	c := s.files
	if c.graph.Len() == 0 {
		return []*VectorHit{}, nil
	}
	if len(vector) != c.dim {
		return nil, ErrDimensionMismatch{Collection: CollectionFiles, Expected: c.dim, Got: len(vector)}
	}

	query := normalizedCopy(vector)
	nodes := c.graph.Search(query, topK)

	hits := make([]*VectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, exists := c.ids[node.Key]
		if !exists {
			continue // lazily deleted
		}
		hits = append(hits, &VectorHit{
			ID:       id,
			Distance: c.graph.Distance(query, node.Value),
			Metadata: c.meta[node.Key],
		})
	}
	return hits, nil
}

// QuerySimilarChunks returns the topK nearest chunk-level neighbors with raw
// cosine distances. An empty chunk collection yields an empty slice.
func (s *HNSWVectorStore) QuerySimilarChunks(ctx context.Context, vector []float32, topK int) ([]*ChunkHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}

	c := s.chunks
	if c.graph.Len() == 0 {
		return []*ChunkHit{}, nil
	}
	if len(vector) != c.dim {
		return nil, ErrDimensionMismatch{Collection: CollectionChunks, Expected: c.dim, Got: len(vector)}
	}

	query := normalizedCopy(vector)
	nodes := c.graph.Search(query, topK)

	hits := make([]*ChunkHit, 0, len(nodes))
	for _, node := range nodes {
		meta, exists := c.chunkMeta[node.Key]
		if !exists {
			continue
		}
		hits = append(hits, &ChunkHit{
			Meta:     meta,
			Distance: c.graph.Distance(query, node.Value),
		})
	}
	return hits, nil
}

// Count returns the number of vectors in the collection.
func (s *HNSWVectorStore) Count(kind CollectionKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collectionFor(kind)
	if c == nil {
		return 0
	}
	switch kind {
	case CollectionFiles:
		return len(c.ids)
	case CollectionChunks:
		return len(c.chunkMeta)
	}
	return 0
}

// Close releases the graphs.
func (s *HNSWVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *HNSWVectorStore) collectionFor(kind CollectionKind) *collection {
	switch kind {
	case CollectionFiles:
		return s.files
	case CollectionChunks:
		return s.chunks
	}
	return nil
}

var _ VectorStore = (*HNSWVectorStore)(nil)

// normalizeVectorInPlace scales the vector to unit length.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return
	}
	for i, val := range v {
		v[i] = float32(float64(val) / magnitude)
	}
}

func normalizedCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	normalizeVectorInPlace(out)
	return out
}
