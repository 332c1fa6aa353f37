// Package config loads the engine configuration from YAML with environment
// variable overrides. Precedence, lowest to highest: built-in defaults, the
// project file (.loupe.yaml or .loupe.yml in the working directory), then
// LOUPE_* environment variables. A missing file is not an error.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectFileName is the canonical project config file name.
const ProjectFileName = ".loupe.yaml"

// Duration is a time.Duration that YAML-decodes from strings like "250ms"
// or "15m" and encodes back to the same form.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML encodes the duration in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		var n int64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("invalid duration %q", node.Value)
		}
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the complete loupe configuration.
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Search     SearchConfig     `yaml:"search"`
	Index      IndexConfig      `yaml:"index"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Watch      WatchConfig      `yaml:"watch"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SourceConfig locates the document source database.
type SourceConfig struct {
	// Path is the SQLite database holding the analyzed records.
	Path string `yaml:"path"`
}

// SearchConfig tunes the hybrid retrieval pipeline.
type SearchConfig struct {
	// TopK is the default result count when a query does not set one.
	TopK int `yaml:"top_k"`

	// MaxTopK caps per-query result counts.
	MaxTopK int `yaml:"max_top_k"`

	// Fusion selects the rank combiner: "rrf" or "weighted".
	Fusion string `yaml:"fusion"`

	// RRFConstant is the RRF smoothing parameter k. Higher values reduce
	// the impact of rank differences. Default: 60.
	RRFConstant int `yaml:"rrf_constant"`

	// LexicalWeight is the weighted-blend share of the keyword score
	// (0.0-1.0). The vector side receives the remainder.
	LexicalWeight float64 `yaml:"lexical_weight"`

	// ChunkShare splits the vector side of the blend between chunk-level
	// and file-level similarity (0.0-1.0).
	ChunkShare float64 `yaml:"chunk_share"`

	// MinScore drops fused results below this threshold. Zero disables.
	MinScore float64 `yaml:"min_score"`

	// VectorTimeout bounds the vector path before the query degrades to
	// lexical-only results.
	VectorTimeout Duration `yaml:"vector_timeout"`
}

// IndexConfig tunes the lexical index lifecycle.
type IndexConfig struct {
	// StaleThreshold is the snapshot age after which a search rebuilds
	// the index first.
	StaleThreshold Duration `yaml:"stale_threshold"`

	// CachePath persists the document map between runs. Empty disables.
	CachePath string `yaml:"cache_path"`

	// CacheMaxBytes caps the persisted cache size.
	CacheMaxBytes int64 `yaml:"cache_max_bytes"`
}

// EmbeddingsConfig configures the query embedder.
type EmbeddingsConfig struct {
	// Dimensions is the embedding width. Must match the width the vector
	// collections were built with.
	Dimensions int `yaml:"dimensions"`

	// CacheSize is the number of query embeddings kept in the LRU.
	// Zero disables the cache.
	CacheSize int `yaml:"cache_size"`
}

// WatchConfig configures the optional source watcher.
type WatchConfig struct {
	// Enabled turns the watcher on.
	Enabled bool `yaml:"enabled"`

	// Debounce is the quiet window before changes invalidate the index.
	Debounce Duration `yaml:"debounce"`

	// Extensions limits which files count as source changes.
	Extensions []string `yaml:"extensions"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// FilePath is the log file. Empty logs to stderr only.
	FilePath string `yaml:"file_path"`

	// MaxSizeMB is the log size before rotation.
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxFiles is the number of rotated files kept.
	MaxFiles int `yaml:"max_files"`
}

// New returns the built-in defaults.
func New() *Config {
	return &Config{
		Source: SourceConfig{
			Path: "loupe.db",
		},
		Search: SearchConfig{
			TopK:          10,
			MaxTopK:       100,
			Fusion:        "rrf",
			RRFConstant:   60,
			LexicalWeight: 0.4,
			ChunkShare:    0.5,
			MinScore:      0,
			VectorTimeout: Duration(5 * time.Second),
		},
		Index: IndexConfig{
			StaleThreshold: Duration(15 * time.Minute),
		},
		Embeddings: EmbeddingsConfig{
			Dimensions: 256,
			CacheSize:  512,
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: Duration(200 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// Load builds the effective configuration for a working directory:
// defaults, then the project file if present, then LOUPE_* overrides,
// validated as a whole.
func Load(dir string) (*Config, error) {
	cfg := New()

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile is Load for an explicit config file path. The file must exist.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{ProjectFileName, ".loupe.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	// No config file is fine, defaults apply.
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Source.Path != "" {
		c.Source.Path = other.Source.Path
	}

	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.MaxTopK != 0 {
		c.Search.MaxTopK = other.Search.MaxTopK
	}
	if other.Search.Fusion != "" {
		c.Search.Fusion = other.Search.Fusion
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.LexicalWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.ChunkShare != 0 {
		c.Search.ChunkShare = other.Search.ChunkShare
	}
	if other.Search.MinScore != 0 {
		c.Search.MinScore = other.Search.MinScore
	}
	if other.Search.VectorTimeout != 0 {
		c.Search.VectorTimeout = other.Search.VectorTimeout
	}

	if other.Index.StaleThreshold != 0 {
		c.Index.StaleThreshold = other.Index.StaleThreshold
	}
	if other.Index.CachePath != "" {
		c.Index.CachePath = other.Index.CachePath
	}
	if other.Index.CacheMaxBytes != 0 {
		c.Index.CacheMaxBytes = other.Index.CacheMaxBytes
	}

	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Watch.Enabled {
		c.Watch.Enabled = true
	}
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if len(other.Watch.Extensions) > 0 {
		c.Watch.Extensions = other.Watch.Extensions
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies LOUPE_* environment variable overrides, the
// highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LOUPE_SOURCE_PATH"); v != "" {
		c.Source.Path = v
	}
	if v := os.Getenv("LOUPE_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.TopK = n
		}
	}
	if v := os.Getenv("LOUPE_FUSION"); v != "" {
		c.Search.Fusion = v
	}
	if v := os.Getenv("LOUPE_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("LOUPE_LEXICAL_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.LexicalWeight = f
		}
	}
	if v := os.Getenv("LOUPE_CHUNK_SHARE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.ChunkShare = f
		}
	}
	if v := os.Getenv("LOUPE_MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.MinScore = f
		}
	}
	if v := os.Getenv("LOUPE_VECTOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Search.VectorTimeout = Duration(d)
		}
	}
	if v := os.Getenv("LOUPE_STALE_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Index.StaleThreshold = Duration(d)
		}
	}
	if v := os.Getenv("LOUPE_EMBED_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("LOUPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration as a whole.
func (c *Config) Validate() error {
	if c.Source.Path == "" {
		return fmt.Errorf("source.path is required")
	}

	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	if c.Search.MaxTopK < c.Search.TopK {
		return fmt.Errorf("search.max_top_k (%d) must be at least search.top_k (%d)",
			c.Search.MaxTopK, c.Search.TopK)
	}
	switch strings.ToLower(c.Search.Fusion) {
	case "rrf", "weighted":
	default:
		return fmt.Errorf("search.fusion must be 'rrf' or 'weighted', got %q", c.Search.Fusion)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("search.lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight)
	}
	if c.Search.ChunkShare < 0 || c.Search.ChunkShare > 1 {
		return fmt.Errorf("search.chunk_share must be between 0 and 1, got %f", c.Search.ChunkShare)
	}
	// The three blend shares derive from lexical_weight and chunk_share
	// and must cover the whole unit interval.
	vector := (1 - c.Search.LexicalWeight) * (1 - c.Search.ChunkShare)
	chunk := (1 - c.Search.LexicalWeight) * c.Search.ChunkShare
	if sum := c.Search.LexicalWeight + vector + chunk; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("blend weights must sum to 1.0, got %.4f", sum)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be between 0 and 1, got %f", c.Search.MinScore)
	}
	if c.Search.VectorTimeout <= 0 {
		return fmt.Errorf("search.vector_timeout must be positive, got %s", c.Search.VectorTimeout)
	}

	if c.Index.StaleThreshold <= 0 {
		return fmt.Errorf("index.stale_threshold must be positive, got %s", c.Index.StaleThreshold)
	}
	if c.Index.CacheMaxBytes < 0 {
		return fmt.Errorf("index.cache_max_bytes must be non-negative, got %d", c.Index.CacheMaxBytes)
	}

	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
