package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
)

// ProjectFile is the per-directory configuration file name.
const ProjectFile = ".docindex.yaml"

// Config represents the complete docindex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of openai, openai-compatible (alias generativa), ollama, static.
	Provider   string `yaml:"provider" json:"provider"`
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	APIKey     string `yaml:"api_key" json:"-"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`

	// CacheSize bounds the query embedding cache (0 disables it).
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// Breaker trips after this many consecutive transient failures (0 disables it).
	BreakerFailures int `yaml:"breaker_failures" json:"breaker_failures"`

	// RequestsPerSecond throttles calls to the backend (0 means unlimited).
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// IndexingConfig configures chunking and the indexing pipeline.
type IndexingConfig struct {
	ChunkSize   int `yaml:"chunk_size" json:"chunk_size"`
	Overlap     int `yaml:"overlap" json:"overlap"`
	MinChunk    int `yaml:"min_chunk" json:"min_chunk"`
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// StageLimit caps the chunks embedded in one run (0 = unbounded).
	StageLimit int `yaml:"stage_limit" json:"stage_limit"`

	// PauseBetweenBatches cools the backend between batches (e.g. "200ms").
	PauseBetweenBatches string `yaml:"pause_between_batches" json:"pause_between_batches"`

	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// StoreConfig configures index persistence.
type StoreConfig struct {
	// Path is the default index location. ".db" selects the SQLite backend.
	Path string `yaml:"path" json:"path"`

	// Compression is "none" or "zstd" (file backend only).
	Compression string `yaml:"compression" json:"compression"`
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	TopK        int    `yaml:"top_k" json:"top_k"`
	Metric      string `yaml:"metric" json:"metric"`
	Approximate bool   `yaml:"approximate" json:"approximate"`
}

// ServerConfig configures the MCP server and logging.
type ServerConfig struct {
	LogLevel    string `yaml:"log_level" json:"log_level"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Embeddings: EmbeddingsConfig{
			Provider:        "openai-compatible",
			Endpoint:        "http://localhost:11434/v1",
			Model:           "nomic-embed-text:latest",
			Dimensions:      768,
			BatchSize:       16,
			Timeout:         "30s",
			MaxRetries:      3,
			CacheSize:       1000,
			BreakerFailures: 5,
		},
		Indexing: IndexingConfig{
			ChunkSize:     1000,
			Overlap:       200,
			MinChunk:      20,
			Concurrency:   4,
			WatchDebounce: "500ms",
		},
		Store: StoreConfig{
			Path:        ".docindex/index.didx",
			Compression: "none",
		},
		Search: SearchConfig{
			TopK:   5,
			Metric: "cosine",
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/docindex/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/docindex/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "docindex", "config.yaml")
}

// Load loads configuration for the given directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/docindex/config.yaml)
//  3. Project config (.docindex.yaml in dir)
//  4. Environment variables (DOCINDEX_*), with dir/.env loaded first
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if path := filepath.Join(dir, ProjectFile); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	// .env never overrides variables already set in the environment.
	if path := filepath.Join(dir, ".env"); fileExists(path) {
		if err := godotenv.Load(path); err != nil {
			return nil, apperrors.ConfigError("failed to read "+path, err)
		}
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML decodes path onto c. Keys absent from the file keep their
// current values, which is what makes the layering work.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.ConfigError("failed to read config file "+path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return apperrors.ConfigError("failed to parse config file "+path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCINDEX_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCINDEX_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("DOCINDEX_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCINDEX_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embeddings.APIKey == "" {
		c.Embeddings.APIKey = v
	}
	if n, ok := envInt("DOCINDEX_DIMENSIONS"); ok {
		c.Embeddings.Dimensions = n
	}
	if n, ok := envInt("DOCINDEX_BATCH_SIZE"); ok {
		c.Embeddings.BatchSize = n
	}
	if n, ok := envInt("DOCINDEX_CONCURRENCY"); ok {
		c.Indexing.Concurrency = n
	}
	if v := os.Getenv("DOCINDEX_INDEX_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("DOCINDEX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Embeddings.Provider) {
	case "openai", "openai-compatible", "generativa", "ollama", "static":
	default:
		return invalid("embeddings.provider must be openai, openai-compatible, ollama or static, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return invalid("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize < 1 {
		return invalid("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.RequestsPerSecond < 0 {
		return invalid("embeddings.requests_per_second must be non-negative, got %g", c.Embeddings.RequestsPerSecond)
	}
	if c.Embeddings.MaxRetries < 0 {
		return invalid("embeddings.max_retries must be non-negative, got %d", c.Embeddings.MaxRetries)
	}
	if _, err := parseDuration(c.Embeddings.Timeout); err != nil {
		return invalid("embeddings.timeout: %v", err)
	}

	if c.Indexing.ChunkSize <= 0 {
		return invalid("indexing.chunk_size must be positive, got %d", c.Indexing.ChunkSize)
	}
	if c.Indexing.Overlap < 0 || c.Indexing.Overlap >= c.Indexing.ChunkSize {
		return invalid("indexing.overlap must be in [0, chunk_size), got %d", c.Indexing.Overlap)
	}
	if c.Indexing.MinChunk < 0 {
		return invalid("indexing.min_chunk must be non-negative, got %d", c.Indexing.MinChunk)
	}
	if c.Indexing.Concurrency < 1 {
		return invalid("indexing.concurrency must be positive, got %d", c.Indexing.Concurrency)
	}
	if _, err := parseDuration(c.Indexing.PauseBetweenBatches); err != nil {
		return invalid("indexing.pause_between_batches: %v", err)
	}
	if _, err := parseDuration(c.Indexing.WatchDebounce); err != nil {
		return invalid("indexing.watch_debounce: %v", err)
	}

	switch strings.ToLower(c.Store.Compression) {
	case "", "none", "zstd":
	default:
		return invalid("store.compression must be none or zstd, got %q", c.Store.Compression)
	}

	switch strings.ToLower(c.Search.Metric) {
	case "cosine", "dot", "l2":
	default:
		return invalid("search.metric must be cosine, dot or l2, got %q", c.Search.Metric)
	}
	if c.Search.TopK < 1 {
		return invalid("search.top_k must be positive, got %d", c.Search.TopK)
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("server.log_level must be debug, info, warn or error, got %q", c.Server.LogLevel)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return apperrors.ConfigError(fmt.Sprintf(format, args...), nil)
}

// EmbedTimeout returns the per-call embedding timeout.
func (c *Config) EmbedTimeout() time.Duration {
	d, _ := parseDuration(c.Embeddings.Timeout)
	return d
}

// BatchPause returns the configured pause between batches.
func (c *Config) BatchPause() time.Duration {
	d, _ := parseDuration(c.Indexing.PauseBetweenBatches)
	return d
}

// Debounce returns the watch debounce interval.
func (c *Config) Debounce() time.Duration {
	d, _ := parseDuration(c.Indexing.WatchDebounce)
	return d
}

// parseDuration treats "" and "0" as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	// The file may hold an API key.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
