// Package embed maps text to fixed-dimension vectors through a configurable
// backend. Backends perform single attempts; New wraps them with retry,
// per-attempt timeouts and an optional circuit breaker.
package embed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	// ProviderOpenAI calls the OpenAI embeddings API.
	ProviderOpenAI ProviderType = "openai"
	// ProviderOpenAICompatible calls any server speaking the OpenAI embeddings
	// protocol at Config.Endpoint.
	ProviderOpenAICompatible ProviderType = "openai-compatible"
	// ProviderGenerativa is an alias of ProviderOpenAICompatible.
	ProviderGenerativa ProviderType = "generativa"
	// ProviderOllama calls Ollama's native /api/embed.
	ProviderOllama ProviderType = "ollama"
	// ProviderStatic hashes tokens locally. Deterministic, offline.
	ProviderStatic ProviderType = "static"
)

// Defaults.
const (
	DefaultBatchSize      = 16
	MaxBatchSize          = 2048
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 200 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
	DefaultOllamaHost     = "http://localhost:11434"
	DefaultOpenAIEndpoint = "https://api.openai.com/v1"
	DefaultStaticDims     = 256
)

// Provider converts batches of text into vectors.
type Provider interface {
	// Embed returns one vector per input, in input order. Failures are
	// ProviderErrors classified as transient or permanent.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length every call produces.
	Dimensions() int

	// Identity names the provider and model behind the vectors.
	Identity() vector.Identity

	Close() error
}

// Config configures a Provider.
type Config struct {
	Provider   ProviderType
	Endpoint   string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int

	// Timeout bounds each attempt, not the whole call.
	Timeout    time.Duration
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// CacheSize enables an LRU of query embeddings when > 0.
	CacheSize int
	// BreakerFailures trips a circuit breaker after that many consecutive
	// failed calls when > 0.
	BreakerFailures int
	// RequestsPerSecond caps backend requests when > 0.
	RequestsPerSecond float64
	// SkipPing skips the best-effort reachability check.
	SkipPing bool
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.Provider == ProviderGenerativa {
		c.Provider = ProviderOpenAICompatible
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	switch c.Provider {
	case ProviderOpenAI:
		if c.Endpoint == "" {
			c.Endpoint = DefaultOpenAIEndpoint
		}
	case ProviderOllama:
		if c.Endpoint == "" {
			c.Endpoint = DefaultOllamaHost
		}
	case ProviderStatic:
		if c.Dimensions == 0 {
			c.Dimensions = DefaultStaticDims
		}
		if c.Model == "" {
			c.Model = fmt.Sprintf("hash-%d", c.Dimensions)
		}
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	return c
}

// Validate reports a ConfigurationError for unusable settings. Remote
// reachability is not checked here.
func (c Config) Validate() error {
	c = c.withDefaults()

	switch c.Provider {
	case ProviderOpenAI, ProviderOpenAICompatible, ProviderOllama, ProviderStatic:
	default:
		return apperrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", c.Provider), nil)
	}
	if c.Dimensions <= 0 {
		return apperrors.ConfigError(fmt.Sprintf("dimension must be positive, got %d", c.Dimensions), nil)
	}
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		return apperrors.ConfigError(fmt.Sprintf("batch size must be in [1, %d], got %d", MaxBatchSize, c.BatchSize), nil)
	}
	if c.Timeout < 0 || c.MaxRetries < 0 || c.RequestsPerSecond < 0 {
		return apperrors.ConfigError("timeout, max retries and request rate must be non-negative", nil)
	}
	if c.Provider == ProviderStatic {
		return nil
	}

	if c.Model == "" {
		return apperrors.ConfigError("model name is required", nil)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.ConfigError(fmt.Sprintf("endpoint must be an absolute http(s) URL, got %q", c.Endpoint), err)
	}
	if c.Provider == ProviderOpenAI && c.APIKey == "" {
		return apperrors.ConfigError("openai provider requires an API key", nil).
			WithSuggestion("set DOCINDEX_API_KEY or OPENAI_API_KEY")
	}
	return nil
}

// checkBatch enforces the batch-size contract shared by all backends.
func checkBatch(texts []string, batchSize int) error {
	if len(texts) > batchSize {
		return apperrors.ConfigError(fmt.Sprintf("batch of %d exceeds batch size %d", len(texts), batchSize), nil)
	}
	return nil
}

// checkVectors verifies count and dimension of a backend response.
func checkVectors(vecs [][]float32, want, dims int) error {
	if len(vecs) != want {
		return apperrors.PermanentProviderError(
			fmt.Sprintf("backend returned %d vectors for %d inputs", len(vecs), want), nil)
	}
	for i, v := range vecs {
		if len(v) != dims {
			return apperrors.PermanentProviderError(
				fmt.Sprintf("vector %d has dimension %d, expected %d", i, len(v), dims), nil)
		}
	}
	return nil
}
