package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/docindex/internal/vector"
)

// DefaultCacheSize is the number of query embeddings kept.
const DefaultCacheSize = 1000

// Cached memoizes embeddings per text. Repeated queries skip the backend.
type Cached struct {
	inner Provider
	cache *lru.Cache[string, []float32]
	model string
}

var _ Provider = (*Cached)(nil)

// NewCached wraps inner with an LRU of size entries.
func NewCached(inner Provider, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &Cached{inner: inner, cache: cache, model: inner.Identity().String()}
}

func (c *Cached) key(text string) string {
	h := sha256.Sum256([]byte(text + "\x00" + c.model))
	return hex.EncodeToString(h[:])
}

// Embed serves hits from the cache and sends only misses to the backend,
// preserving input order.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(c.key(t)); ok {
			out[i] = clone(v)
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, v := range vecs {
		c.cache.Add(c.key(missTexts[j]), clone(v))
		out[missIdx[j]] = v
	}
	return out, nil
}

// Len returns the number of cached embeddings.
func (c *Cached) Len() int { return c.cache.Len() }

// Dimensions delegates to the wrapped provider.
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Identity delegates to the wrapped provider.
func (c *Cached) Identity() vector.Identity { return c.inner.Identity() }

// Close purges the cache and closes the wrapped provider.
func (c *Cached) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
