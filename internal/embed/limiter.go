package embed

import (
	"context"

	"golang.org/x/time/rate"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// RateLimited spaces backend requests. It sits beneath the retry wrapper so
// retries draw from the same budget as first attempts.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

var _ Provider = (*RateLimited)(nil)

// NewRateLimited allows perSecond requests per second with bursts of burst.
// A burst below 1 is raised to 1.
func NewRateLimited(inner Provider, perSecond float64, burst int) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), max(burst, 1)),
	}
}

// Embed waits for a token, then calls the backend. Cancellation while
// waiting returns the context error; a wait that would outlast the deadline
// fails at once as a transient error.
func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.TransientProviderError("request rate limit leaves no time for this attempt", err)
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimited) Dimensions() int { return r.inner.Dimensions() }

func (r *RateLimited) Identity() vector.Identity { return r.inner.Identity() }

func (r *RateLimited) Close() error { return r.inner.Close() }
