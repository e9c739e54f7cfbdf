package embed

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
)

// New configures a provider: it validates cfg, builds the backend and wraps
// it with retry (and a circuit breaker when cfg.BreakerFailures > 0).
// The query cache is separate; see NewCached.
func New(ctx context.Context, cfg Config) (Provider, error) {
	return NewWithRetryHook(ctx, cfg, nil)
}

// NewWithRetryHook is New with a callback invoked before every retry.
func NewWithRetryHook(ctx context.Context, cfg Config, onRetry func(attempt int, err error)) (Provider, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		backend Provider
		err     error
	)
	switch cfg.Provider {
	case ProviderOpenAI, ProviderOpenAICompatible:
		backend, err = NewOpenAIProvider(cfg)
	case ProviderOllama:
		backend, err = NewOllamaProvider(ctx, cfg)
	case ProviderStatic:
		backend, err = NewStaticProvider(cfg)
	default:
		err = apperrors.ConfigError("unknown embedding provider "+string(cfg.Provider), nil)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond > 0 {
		backend = NewRateLimited(backend, cfg.RequestsPerSecond, int(cfg.RequestsPerSecond))
	}

	var p Provider = NewRetrying(backend, RetryPolicy{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Timeout:        cfg.Timeout,
		OnRetry:        onRetry,
	})
	if cfg.BreakerFailures > 0 {
		p = NewBreaker(p, cfg.BreakerFailures, 30*time.Second)
	}

	slog.Debug("embed_provider_ready",
		slog.String("provider", string(cfg.Provider)),
		slog.String("model", cfg.Model),
		slog.Int("dimensions", cfg.Dimensions),
		slog.Int("batch_size", cfg.BatchSize))
	return p, nil
}

// EffectiveBatchSize returns the batch size after defaults are applied.
func (c Config) EffectiveBatchSize() int {
	return c.withDefaults().BatchSize
}
