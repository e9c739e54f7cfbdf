package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
)

// isolate points the user config at an empty temp dir and clears DOCINDEX_* vars.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{
		"DOCINDEX_PROVIDER", "DOCINDEX_ENDPOINT", "DOCINDEX_MODEL", "DOCINDEX_API_KEY",
		"OPENAI_API_KEY", "DOCINDEX_DIMENSIONS", "DOCINDEX_BATCH_SIZE",
		"DOCINDEX_CONCURRENCY", "DOCINDEX_INDEX_PATH", "DOCINDEX_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.Indexing.ChunkSize)
	assert.Equal(t, 200, cfg.Indexing.Overlap)
	assert.Equal(t, 16, cfg.Embeddings.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.EmbedTimeout())
	assert.Equal(t, time.Duration(0), cfg.BatchPause())
}

func TestLoad_NoFiles_ReturnsDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_LayersUserProjectAndEnv(t *testing.T) {
	isolate(t)
	xdg := os.Getenv("XDG_CONFIG_HOME")

	// Given: a user config, a project config and an env override
	userPath := filepath.Join(xdg, "docindex", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte(`
embeddings:
  provider: ollama
  model: user-model
indexing:
  chunk_size: 600
`), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFile), []byte(`
embeddings:
  model: project-model
indexing:
  overlap: 100
`), 0o644))
	t.Setenv("DOCINDEX_CONCURRENCY", "8")

	// When: loading
	cfg, err := Load(dir)

	// Then: each layer contributes and later layers win
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "project-model", cfg.Embeddings.Model)
	assert.Equal(t, 600, cfg.Indexing.ChunkSize)
	assert.Equal(t, 100, cfg.Indexing.Overlap)
	assert.Equal(t, 8, cfg.Indexing.Concurrency)
	assert.Equal(t, 768, cfg.Embeddings.Dimensions)
}

func TestLoad_DotEnvProvidesAPIKey(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DOCINDEX_API_KEY=sk-from-dotenv\n"), 0o600))
	// godotenv skips keys already present, even when empty.
	require.NoError(t, os.Unsetenv("DOCINDEX_API_KEY"))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "sk-from-dotenv", cfg.Embeddings.APIKey)
}

func TestLoad_MalformedYAML_IsConfigError(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFile), []byte("indexing: [not, a, map"), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigInvalid))
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "word2vec" }},
		{"negative dimension", func(c *Config) { c.Embeddings.Dimensions = -1 }},
		{"zero batch", func(c *Config) { c.Embeddings.BatchSize = 0 }},
		{"bad timeout", func(c *Config) { c.Embeddings.Timeout = "soon" }},
		{"overlap >= chunk", func(c *Config) { c.Indexing.Overlap = c.Indexing.ChunkSize }},
		{"zero concurrency", func(c *Config) { c.Indexing.Concurrency = 0 }},
		{"bad compression", func(c *Config) { c.Store.Compression = "lz4" }},
		{"bad metric", func(c *Config) { c.Search.Metric = "jaccard" }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigInvalid))
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Embeddings.Model = "text-embedding-3-small"
	cfg.Indexing.PauseBetweenBatches = "250ms"

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectFile)))
	loaded, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", loaded.Embeddings.Model)
	assert.Equal(t, 250*time.Millisecond, loaded.BatchPause())
}
