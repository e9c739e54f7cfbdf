package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/Aman-CERP/docindex/internal/vector"
)

// StaticProvider embeds text by feature hashing of lowercase word unigrams
// and bigrams. It needs no network, so it backs offline runs and tests.
// Vectors are unit length; blank text yields the zero vector.
type StaticProvider struct {
	cfg Config
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider returns a hashing provider of cfg.Dimensions.
func NewStaticProvider(cfg Config) (*StaticProvider, error) {
	cfg.Provider = ProviderStatic
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &StaticProvider{cfg: cfg}, nil
}

// Embed hashes each text. It only fails on an oversized batch or a
// cancelled context.
func (p *StaticProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch(texts, p.cfg.BatchSize); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

func (p *StaticProvider) vector(text string) []float32 {
	v := make([]float64, p.cfg.Dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for i, w := range words {
		p.add(v, w, 1)
		if i > 0 {
			p.add(v, words[i-1]+" "+w, 0.5)
		}
	}

	var sum float64
	for _, x := range v {
		sum += x * x
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(x * inv)
	}
	return out
}

func (p *StaticProvider) add(v []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := int(sum % uint64(len(v)))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[bucket] += weight
}

// Dimensions returns the vector length.
func (p *StaticProvider) Dimensions() int { return p.cfg.Dimensions }

// Identity returns the provider and model.
func (p *StaticProvider) Identity() vector.Identity {
	return vector.Identity{Provider: string(ProviderStatic), Model: p.cfg.Model}
}

// Close is a no-op.
func (p *StaticProvider) Close() error { return nil }
