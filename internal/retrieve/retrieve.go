// Package retrieve answers natural-language queries against a vector index
// and resolves hits back to passage text.
package retrieve

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/docindex/internal/embed"
	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/metrics"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// Passage is a search hit with the text it covers.
type Passage struct {
	vector.Hit
	Text string `json:"text,omitempty"`
	// Stale is set when the source changed since indexing, so Text could
	// not be recovered.
	Stale bool `json:"stale,omitempty"`
}

// SourceResolver recovers the text a hit was embedded from.
type SourceResolver interface {
	Resolve(ctx context.Context, hit vector.Hit) (string, error)
}

// Retriever embeds queries and searches one index.
type Retriever struct {
	provider embed.Provider
	index    *vector.Index
	sources  SourceResolver
	metrics  *metrics.Metrics
}

// Config holds Retriever collaborators. Sources and Metrics are optional.
type Config struct {
	Provider embed.Provider
	Index    *vector.Index
	Sources  SourceResolver
	Metrics  *metrics.Metrics
}

// New creates a Retriever. The provider must match the identity the index
// was built with.
func New(cfg Config) (*Retriever, error) {
	if cfg.Provider == nil || cfg.Index == nil {
		return nil, apperrors.ConfigError("retriever requires a provider and an index", nil)
	}
	if id := cfg.Index.Identity(); !id.IsZero() && id != cfg.Provider.Identity() {
		return nil, apperrors.ProviderMismatch("index built with " + id.String() +
			", query provider is " + cfg.Provider.Identity().String())
	}
	return &Retriever{
		provider: cfg.Provider,
		index:    cfg.Index,
		sources:  cfg.Sources,
		metrics:  cfg.Metrics,
	}, nil
}

// Index returns the searched index.
func (r *Retriever) Index() *vector.Index { return r.index }

// Query returns the k passages most similar to query, best first.
func (r *Retriever) Query(ctx context.Context, query string, k int) ([]Passage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.ValidationError("query must not be empty", nil)
	}
	start := time.Now()

	vecs, err := r.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	hits, err := r.index.Search(vecs[0], k)
	if err != nil {
		return nil, err
	}

	out := make([]Passage, len(hits))
	for i, h := range hits {
		out[i] = Passage{Hit: h}
		if r.sources == nil {
			continue
		}
		text, err := r.sources.Resolve(ctx, h)
		switch {
		case err == nil:
			out[i].Text = text
		case apperrors.IsCode(err, apperrors.ErrCodeIndexCorrupt):
			out[i].Stale = true
		default:
			slog.Debug("passage_resolve_failed", slog.String("id", h.ID), slog.String("error", err.Error()))
		}
	}

	d := time.Since(start)
	r.metrics.ObserveSearch(d)
	slog.Debug("search_complete",
		slog.Int("k", k),
		slog.Int("hits", len(out)),
		slog.Int64("duration_ms", d.Milliseconds()))
	return out, nil
}
