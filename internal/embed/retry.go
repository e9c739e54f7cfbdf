package embed

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// RetryPolicy controls Retrying.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Timeout bounds each attempt. Zero means no per-attempt bound.
	Timeout time.Duration
	// OnRetry is called before each wait; attempt counts from 1.
	OnRetry func(attempt int, err error)
}

// Retrying retries transient ProviderErrors with exponential backoff and
// jitter. Permanent errors and caller cancellation return at once.
type Retrying struct {
	inner  Provider
	policy RetryPolicy
}

var _ Provider = (*Retrying)(nil)

// NewRetrying wraps inner with policy.
func NewRetrying(inner Provider, policy RetryPolicy) *Retrying {
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = DefaultInitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = DefaultMaxBackoff
	}
	return &Retrying{inner: inner, policy: policy}
}

func (r *Retrying) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialBackoff
	b.MaxInterval = r.policy.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(r.policy.MaxRetries, 0))), ctx)
}

// Embed calls the inner provider until it succeeds, fails permanently, or
// the retry budget is spent. The last error is returned.
func (r *Retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	attempt := 0

	operation := func() error {
		attempt++
		attemptCtx := ctx
		cancel := func() {}
		if r.policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		}
		defer cancel()

		start := time.Now()
		vecs, err := r.inner.Embed(attemptCtx, texts)
		slog.Debug("embed_attempt",
			slog.Int("attempt", attempt),
			slog.Int("batch_size", len(texts)),
			slog.Duration("elapsed", time.Since(start)),
			slog.Bool("ok", err == nil))
		if err == nil {
			out = vecs
			return nil
		}

		// The caller's context ended; do not wait for another attempt.
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperrors.TransientProviderError("embedding attempt timed out", err)
		}
		if !apperrors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		slog.Warn("embed_retry",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err)
		}
	}

	if err := backoff.RetryNotify(operation, r.newBackOff(ctx), notify); err != nil {
		if apperrors.IsTransient(err) {
			if e, ok := apperrors.As(err); ok {
				e.WithDetail("attempts", strconv.Itoa(attempt))
			}
		}
		return nil, err
	}
	return out, nil
}

// Dimensions delegates to the wrapped provider.
func (r *Retrying) Dimensions() int { return r.inner.Dimensions() }

// Identity delegates to the wrapped provider.
func (r *Retrying) Identity() vector.Identity { return r.inner.Identity() }

// Close closes the wrapped provider.
func (r *Retrying) Close() error { return r.inner.Close() }
