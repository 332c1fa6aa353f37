// Package index owns the lexical keyword index: a bleve-backed in-memory
// index plus a document map keyed by canonical file key, published as an
// immutable snapshot that is replaced whole on rebuild.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/sync/singleflight"

	loupeerrors "github.com/loupe-search/loupe/internal/errors"
	"github.com/loupe-search/loupe/internal/store"
)

// DefaultStaleThreshold is how old a snapshot may get before IsStale
// reports true and the next search triggers a rebuild.
const DefaultStaleThreshold = 15 * time.Minute

// Config tunes the lexical index lifecycle.
type Config struct {
	// StaleThreshold is the snapshot age after which a rebuild is forced.
	StaleThreshold time.Duration
	// CachePath is where the serialized document map is persisted.
	// Empty disables the cache.
	CachePath string
	// CacheMaxBytes caps the serialized cache size; larger payloads are
	// silently dropped and rebuilt on demand. Zero means DefaultCacheMaxBytes.
	CacheMaxBytes int64
}

// Snapshot describes one committed build of the index.
type Snapshot struct {
	Version       int
	BuiltAt       time.Time
	DocumentCount int
}

// Status is the externally visible index state.
type Status struct {
	HasIndex      bool
	DocumentCount int
	BuiltAt       time.Time
	Version       int
	IsStale       bool
}

// BuildResult is the outcome of one build.
type BuildResult struct {
	Indexed int
	Version int
}

// Hit is one lexical search result, already joined back through the
// document map.
type Hit struct {
	Key          string // canonical file key
	Score        float64
	MatchedTerms []string
	Record       *store.SourceRecord
}

// lexicalDoc is the document structure committed into bleve.
type lexicalDoc struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Subject  string `json:"subject"`
	Content  string `json:"content"`
	Tags     string `json:"tags"`
	Category string `json:"category"`
}

// state is the immutable unit the readers see. Replaced whole on rebuild so
// concurrent readers never observe a half-built index.
type state struct {
	idx  bleve.Index
	docs map[string]*store.SourceRecord
	snap Snapshot
}

// LexicalIndex builds and serves the keyword index. The only shared mutable
// resource is the current state pointer, swapped atomically under mu; builds
// coalesce through a single-flight group.
type LexicalIndex struct {
	cfg    Config
	source store.DocumentSource

	mu          sync.RWMutex
	current     *state
	invalidated bool
	version     int

	group singleflight.Group
}

// NewLexicalIndex creates an index over the given document source.
// The index starts empty; call Build (or let a stale check trigger it).
func NewLexicalIndex(source store.DocumentSource, cfg Config) (*LexicalIndex, error) {
	if source == nil {
		return nil, fmt.Errorf("document source is required")
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = DefaultStaleThreshold
	}
	li := &LexicalIndex{cfg: cfg, source: source}
	if cfg.CachePath != "" {
		if err := li.loadCache(); err != nil {
			slog.Debug("lexical_cache_unusable",
				slog.String("path", cfg.CachePath),
				slog.String("error", err.Error()))
		}
	}
	return li, nil
}

// Build consumes all source records and replaces the live snapshot.
// Concurrent callers coalesce onto one in-flight build and share its result.
// A failed build leaves the previous snapshot fully intact.
func (li *LexicalIndex) Build(ctx context.Context) (*BuildResult, error) {
	v, err, _ := li.group.Do("build", func() (interface{}, error) {
		records, err := li.source.GetAllRecords(ctx)
		if err != nil {
			return nil, loupeerrors.IndexBuild("read source records", err)
		}
		res, err := li.buildFromRecords(records)
		if err != nil {
			return nil, err
		}
		if li.cfg.CachePath != "" {
			if cacheErr := li.writeCache(); cacheErr != nil {
				slog.Debug("lexical_cache_write_failed", slog.String("error", cacheErr.Error()))
			}
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*BuildResult), nil
}

// buildFromRecords constructs a fresh index and document map in locals and
// only swaps them into the live state on success.
func (li *LexicalIndex) buildFromRecords(records []*store.SourceRecord) (*BuildResult, error) {
	start := time.Now()

	// Latest analysis of each logical file wins: sort by timestamp
	// descending, keep the first record per canonical key.
	sorted := make([]*store.SourceRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	docs := make(map[string]*store.SourceRecord, len(sorted))
	order := make([]string, 0, len(sorted))
	for _, r := range sorted {
		key := store.CanonicalKey(r.EffectivePath())
		if _, seen := docs[key]; seen {
			continue
		}
		docs[key] = r
		order = append(order, key)
	}

	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, loupeerrors.IndexBuild("create index", err)
	}

	batch := idx.NewBatch()
	for _, key := range order {
		r := docs[key]
		doc := lexicalDoc{
			Name:     r.EffectiveName(),
			Path:     r.EffectivePath(),
			Subject:  r.Fields.Subject,
			Content:  strings.TrimSpace(r.Fields.Summary + "\n" + r.Fields.ExtractedText),
			Tags:     strings.Join(r.Fields.Tags, " "),
			Category: r.Fields.Category,
		}
		if err := batch.Index(key, doc); err != nil {
			_ = idx.Close()
			return nil, loupeerrors.IndexBuild(fmt.Sprintf("index document %s", r.ID), err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, loupeerrors.IndexBuild("commit batch", err)
	}

	li.mu.Lock()
	old := li.current
	li.version++
	li.current = &state{
		idx:  idx,
		docs: docs,
		snap: Snapshot{
			Version:       li.version,
			BuiltAt:       time.Now(),
			DocumentCount: len(docs),
		},
	}
	li.invalidated = false
	result := &BuildResult{Indexed: len(docs), Version: li.version}
	li.mu.Unlock()

	if old != nil {
		_ = old.idx.Close()
	}

	slog.Info("lexical_index_built",
		slog.Int("documents", len(docs)),
		slog.Int("records", len(records)),
		slog.Int("version", result.Version),
		slog.Duration("duration", time.Since(start)))

	return result, nil
}

// IsStale reports whether the next search should rebuild first: no snapshot
// yet, explicit invalidation, or snapshot older than the stale threshold.
func (li *LexicalIndex) IsStale() bool {
	li.mu.RLock()
	defer li.mu.RUnlock()

	if li.current == nil {
		return true
	}
	if li.invalidated {
		return true
	}
	return time.Since(li.current.snap.BuiltAt) > li.cfg.StaleThreshold
}

// Invalidate marks the snapshot stale without discarding it. Searches keep
// serving the old snapshot until a rebuild succeeds.
func (li *LexicalIndex) Invalidate(reason string) {
	li.mu.Lock()
	li.invalidated = true
	li.mu.Unlock()

	slog.Info("lexical_index_invalidated", slog.String("reason", reason))
}

// Search runs a keyword query against the current snapshot. An empty or
// absent index yields an empty result, not an error.
func (li *LexicalIndex) Search(ctx context.Context, queryStr string, topK int) ([]*Hit, error) {
	li.mu.RLock()
	st := li.current
	li.mu.RUnlock()

	if st == nil {
		return []*Hit{}, nil
	}
	queryStr = strings.TrimSpace(queryStr)
	if queryStr == "" {
		return []*Hit{}, nil
	}
	if topK <= 0 {
		topK = 10
	}

	req := bleve.NewSearchRequest(buildQuery(queryStr))
	req.Size = topK
	req.IncludeLocations = true // for matched terms

	result, err := st.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	hits := make([]*Hit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		record, ok := st.docs[hit.ID]
		if !ok {
			continue // index and document map swap together as one snapshot
		}
		terms := make(map[string]struct{})
		for _, locations := range hit.Locations {
			for term := range locations {
				terms[term] = struct{}{}
			}
		}
		matched := make([]string, 0, len(terms))
		for term := range terms {
			matched = append(matched, term)
		}
		sort.Strings(matched)

		hits = append(hits, &Hit{
			Key:          hit.ID,
			Score:        hit.Score,
			MatchedTerms: matched,
			Record:       record,
		})
	}

	return hits, nil
}

// buildQuery matches the query text against all indexed fields, boosting
// name and subject so direct title hits outrank body mentions.
func buildQuery(queryStr string) query.Query {
	name := bleve.NewMatchQuery(queryStr)
	name.SetField("name")
	name.SetBoost(2.0)

	subject := bleve.NewMatchQuery(queryStr)
	subject.SetField("subject")
	subject.SetBoost(2.0)

	content := bleve.NewMatchQuery(queryStr)
	content.SetField("content")

	tags := bleve.NewMatchQuery(queryStr)
	tags.SetField("tags")
	tags.SetBoost(1.5)

	category := bleve.NewMatchQuery(queryStr)
	category.SetField("category")

	return bleve.NewDisjunctionQuery(name, subject, content, tags, category)
}

// Status returns the externally visible index state.
func (li *LexicalIndex) Status() Status {
	li.mu.RLock()
	defer li.mu.RUnlock()

	if li.current == nil {
		return Status{IsStale: true}
	}
	snap := li.current.snap
	stale := li.invalidated || time.Since(snap.BuiltAt) > li.cfg.StaleThreshold
	return Status{
		HasIndex:      true,
		DocumentCount: snap.DocumentCount,
		BuiltAt:       snap.BuiltAt,
		Version:       snap.Version,
		IsStale:       stale,
	}
}

// DocumentCount returns the committed document count, zero when unbuilt.
func (li *LexicalIndex) DocumentCount() int {
	li.mu.RLock()
	defer li.mu.RUnlock()

	if li.current == nil {
		return 0
	}
	return li.current.snap.DocumentCount
}

// Close releases the underlying bleve index.
func (li *LexicalIndex) Close() error {
	li.mu.Lock()
	defer li.mu.Unlock()

	if li.current == nil {
		return nil
	}
	err := li.current.idx.Close()
	li.current = nil
	return err
}
