package embed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// Breaker fails fast once a backend has failed repeatedly. Only transient
// failures count; a bad request says nothing about backend health.
type Breaker struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

var _ Provider = (*Breaker)(nil)

// NewBreaker trips after failures consecutive transient failures and lets a trial call
// through after cooldown.
func NewBreaker(inner Provider, failures int, cooldown time.Duration) *Breaker {
	if failures <= 0 {
		failures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        inner.Identity().String(),
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("embed_breaker_state",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Embed runs the call through the breaker. An open breaker yields a
// transient ProviderError without contacting the backend.
func (b *Breaker) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Embed(ctx, texts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.TransientProviderError("embedding backend circuit open", err).
				WithSuggestion("the backend failed repeatedly; check that it is running")
		}
		return nil, err
	}
	return res.([][]float32), nil
}

// State reports the breaker state (closed, half-open, open).
func (b *Breaker) State() string { return b.cb.State().String() }

// Dimensions delegates to the wrapped provider.
func (b *Breaker) Dimensions() int { return b.inner.Dimensions() }

// Identity delegates to the wrapped provider.
func (b *Breaker) Identity() vector.Identity { return b.inner.Identity() }

// Close closes the wrapped provider.
func (b *Breaker) Close() error { return b.inner.Close() }
