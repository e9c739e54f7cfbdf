package embed

import (
	"context"
	"sync"

	"github.com/Aman-CERP/docindex/internal/vector"
)

// scriptedProvider returns queued errors before succeeding.
type scriptedProvider struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	inputs [][]string
	dims   int
	block  bool // wait for ctx instead of answering
}

func (p *scriptedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	p.inputs = append(p.inputs, append([]string(nil), texts...))
	var err error
	if len(p.errs) > 0 {
		err = p.errs[0]
		p.errs = p.errs[1:]
	}
	block := p.block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, p.dims)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedProvider) Dimensions() int { return p.dims }

func (p *scriptedProvider) Identity() vector.Identity {
	return vector.Identity{Provider: "scripted", Model: "m"}
}

func (p *scriptedProvider) Close() error { return nil }
