package index

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	loupeerrors "github.com/loupe-search/loupe/internal/errors"
	"github.com/loupe-search/loupe/internal/store"
)

// DefaultCacheMaxBytes caps the serialized snapshot cache. Payloads above
// the cap are dropped rather than written; the index rebuilds on demand.
const DefaultCacheMaxBytes = 8 << 20 // 8 MiB

// serializedForm is the on-disk shape of a snapshot cache: the de-duplicated
// document map plus enough header to restore version and staleness.
type serializedForm struct {
	Version int
	BuiltAt time.Time
	Records []*store.SourceRecord
}

// SerializedForm encodes the current snapshot for caching.
// Returns an error when no snapshot exists.
func (li *LexicalIndex) SerializedForm() ([]byte, error) {
	li.mu.RLock()
	st := li.current
	li.mu.RUnlock()

	if st == nil {
		return nil, fmt.Errorf("no snapshot to serialize")
	}

	form := serializedForm{
		Version: st.snap.Version,
		BuiltAt: st.snap.BuiltAt,
		Records: make([]*store.SourceRecord, 0, len(st.docs)),
	}
	for _, r := range st.docs {
		form.Records = append(form.Records, r)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(form); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// writeCache persists the serialized snapshot behind an advisory file lock.
// Payloads above the size cap are dropped silently.
func (li *LexicalIndex) writeCache() error {
	data, err := li.SerializedForm()
	if err != nil {
		return err
	}

	maxBytes := li.cfg.CacheMaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultCacheMaxBytes
	}
	if int64(len(data)) > maxBytes {
		slog.Debug("lexical_cache_skipped",
			slog.Int("bytes", len(data)),
			slog.Int64("cap", maxBytes))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(li.cfg.CachePath), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	lock := flock.New(li.cfg.CachePath + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire cache lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp := li.cfg.CachePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return os.Rename(tmp, li.cfg.CachePath)
}

// loadCache restores a snapshot from the cache file, keeping the cached
// version and build time so staleness still applies to a cold start.
func (li *LexicalIndex) loadCache() error {
	lock := flock.New(li.cfg.CachePath + ".lock")
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("acquire cache lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	info, err := os.Stat(li.cfg.CachePath)
	if err != nil {
		return err // commonly fs.ErrNotExist on first run
	}

	maxBytes := li.cfg.CacheMaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultCacheMaxBytes
	}
	if info.Size() > maxBytes {
		return loupeerrors.New(loupeerrors.ErrCodeCacheTooLarge,
			fmt.Sprintf("cache is %d bytes, cap is %d", info.Size(), maxBytes), nil)
	}

	data, err := os.ReadFile(li.cfg.CachePath)
	if err != nil {
		return fmt.Errorf("read cache: %w", err)
	}

	var form serializedForm
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&form); err != nil {
		return loupeerrors.Wrap(loupeerrors.ErrCodeCacheCorrupt, err)
	}

	if _, err := li.buildFromRecords(form.Records); err != nil {
		return err
	}

	// Restore the cached header so a cold start from an old cache is
	// still considered stale.
	li.mu.Lock()
	li.version = form.Version
	li.current.snap.Version = form.Version
	li.current.snap.BuiltAt = form.BuiltAt
	li.mu.Unlock()

	slog.Info("lexical_index_restored",
		slog.Int("documents", len(form.Records)),
		slog.Int("version", form.Version),
		slog.Time("built_at", form.BuiltAt))
	return nil
}

// DropCache removes the serialized snapshot cache file if present.
func DropCache(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
