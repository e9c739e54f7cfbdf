package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

const ollamaPingTimeout = 5 * time.Second

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaProvider calls Ollama's native batch endpoint POST /api/embed.
type OllamaProvider struct {
	client    *http.Client
	transport *http.Transport
	cfg       Config
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider builds a provider and, unless cfg.SkipPing is set,
// checks that the server answers and knows the model.
func NewOllamaProvider(ctx context.Context, cfg Config) (*OllamaProvider, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
	}
	p := &OllamaProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
	}

	if !cfg.SkipPing {
		pingCtx, cancel := context.WithTimeout(ctx, ollamaPingTimeout)
		defer cancel()
		if err := p.ping(pingCtx); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
	}
	return p, nil
}

func (p *OllamaProvider) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Endpoint+"/api/tags", nil)
	if err != nil {
		return apperrors.ConfigError("invalid ollama endpoint", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return apperrors.ConfigError("ollama unreachable at "+p.cfg.Endpoint, err).
			WithSuggestion("start ollama with 'ollama serve'")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apperrors.ConfigError(fmt.Sprintf("ollama /api/tags returned status %d", resp.StatusCode), nil)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return apperrors.ConfigError("failed to decode ollama model list", err)
	}
	want := strings.ToLower(p.cfg.Model)
	wantBase, _, _ := strings.Cut(want, ":")
	for _, m := range tags.Models {
		name := strings.ToLower(m.Name)
		base, _, _ := strings.Cut(name, ":")
		if name == want || base == wantBase {
			return nil
		}
	}
	return apperrors.ConfigError("ollama model "+p.cfg.Model+" is not installed", nil).
		WithSuggestion("run 'ollama pull " + p.cfg.Model + "'")
}

// Embed performs one request for the whole batch.
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch(texts, p.cfg.BatchSize); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, apperrors.InternalError("failed to marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.PermanentProviderError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.PermanentProviderError("failed to decode embedding response", err)
	}

	out := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		v := make([]float32, len(e))
		for j, x := range e {
			v[j] = float32(x)
		}
		out[i] = v
	}
	if err := checkVectors(out, len(texts), p.cfg.Dimensions); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the configured vector length.
func (p *OllamaProvider) Dimensions() int { return p.cfg.Dimensions }

// Identity returns the provider and model.
func (p *OllamaProvider) Identity() vector.Identity {
	return vector.Identity{Provider: string(ProviderOllama), Model: p.cfg.Model}
}

// Close releases idle connections.
func (p *OllamaProvider) Close() error {
	p.transport.CloseIdleConnections()
	return nil
}
