package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"sync"

	"github.com/Aman-CERP/docindex/internal/vector"
)

// hashProvider derives a vector from the sha256 of each text, so distinct
// texts get distinct directions and equal texts equal vectors.
type hashProvider struct {
	dims int
	// hook, when set, runs before each call with the 1-based call number.
	hook func(ctx context.Context, call int) error

	mu     sync.Mutex
	calls  int
	inputs [][]string
}

func (p *hashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.inputs = append(p.inputs, append([]string(nil), texts...))
	p.mu.Unlock()

	if p.hook != nil {
		if err := p.hook(ctx, n); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t, p.dims)
	}
	return out, nil
}

func (p *hashProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *hashProvider) Dimensions() int { return p.dims }

func (p *hashProvider) Identity() vector.Identity {
	return vector.Identity{Provider: "test", Model: "sha256"}
}

func (p *hashProvider) Close() error { return nil }

func hashVector(text string, dims int) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, dims)
	for i := range v {
		b := sum[(i*2)%len(sum):]
		v[i] = float32(int16(binary.LittleEndian.Uint16(b[:2]))) / 32768
	}
	return v
}

// letters returns n pseudo-random lowercase letters: no whitespace or
// punctuation, so the splitter only ever hard-cuts.
func letters(seed int64, n int) string {
	rng := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + rng.Intn(26))
	}
	return string(b)
}
