package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, 100, cfg.Search.MaxTopK)
	assert.Equal(t, "rrf", cfg.Search.Fusion)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.InDelta(t, 0.4, cfg.Search.LexicalWeight, 1e-9)
	assert.InDelta(t, 0.5, cfg.Search.ChunkShare, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Search.VectorTimeout.Std())
	assert.Equal(t, 15*time.Minute, cfg.Index.StaleThreshold.Std())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	body := `
source:
  path: /data/records.db
search:
  top_k: 25
  fusion: weighted
  lexical_weight: 0.6
  vector_timeout: 2s
index:
  stale_threshold: 5m
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".loupe.yaml"), []byte(body), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "/data/records.db", cfg.Source.Path)
	assert.Equal(t, 25, cfg.Search.TopK)
	assert.Equal(t, "weighted", cfg.Search.Fusion)
	assert.InDelta(t, 0.6, cfg.Search.LexicalWeight, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.Search.VectorTimeout.Std())
	assert.Equal(t, 5*time.Minute, cfg.Index.StaleThreshold.Std())
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.InDelta(t, 0.5, cfg.Search.ChunkShare, 1e-9)
}

func TestLoad_YmlFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".loupe.yml"),
		[]byte("search:\n  top_k: 7\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.TopK)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".loupe.yaml"),
		[]byte("search:\n  top_k: 25\n  lexical_weight: 0.6\n"), 0o644))

	t.Setenv("LOUPE_TOP_K", "3")
	t.Setenv("LOUPE_LEXICAL_WEIGHT", "0.8")
	t.Setenv("LOUPE_VECTOR_TIMEOUT", "250ms")
	t.Setenv("LOUPE_LOG_LEVEL", "warn")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Search.TopK)
	assert.InDelta(t, 0.8, cfg.Search.LexicalWeight, 1e-9)
	assert.Equal(t, 250*time.Millisecond, cfg.Search.VectorTimeout.Std())
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".loupe.yaml"),
		[]byte("search: [not a mapping"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadFile_MissingFileFails(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(c *Config) {}, ""},
		{"missing source path", func(c *Config) { c.Source.Path = "" }, "source.path"},
		{"zero top_k", func(c *Config) { c.Search.TopK = 0 }, "top_k"},
		{"max below default", func(c *Config) { c.Search.MaxTopK = 5 }, "max_top_k"},
		{"unknown fusion", func(c *Config) { c.Search.Fusion = "borda" }, "fusion"},
		{"zero rrf constant", func(c *Config) { c.Search.RRFConstant = 0 }, "rrf_constant"},
		{"lexical weight above one", func(c *Config) { c.Search.LexicalWeight = 1.2 }, "lexical_weight"},
		{"negative chunk share", func(c *Config) { c.Search.ChunkShare = -0.1 }, "chunk_share"},
		{"min score above one", func(c *Config) { c.Search.MinScore = 1.5 }, "min_score"},
		{"zero vector timeout", func(c *Config) { c.Search.VectorTimeout = 0 }, "vector_timeout"},
		{"zero stale threshold", func(c *Config) { c.Index.StaleThreshold = 0 }, "stale_threshold"},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }, "dimensions"},
		{"negative embed cache", func(c *Config) { c.Embeddings.CacheSize = -1 }, "cache_size"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".loupe.yaml")

	cfg := New()
	cfg.Search.TopK = 42
	cfg.Search.Fusion = "weighted"
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Search.TopK)
	assert.Equal(t, "weighted", loaded.Search.Fusion)
}
