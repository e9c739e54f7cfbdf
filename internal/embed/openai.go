package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// OpenAIProvider calls an OpenAI-protocol /embeddings endpoint. It serves
// both the hosted API and compatible servers (LM Studio, vLLM, Ollama's /v1).
type OpenAIProvider struct {
	client *openai.Client
	cfg    Config
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds a provider for cfg.Endpoint.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.Endpoint
	oc.HTTPClient = &http.Client{}

	return &OpenAIProvider{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

// Embed performs one request for the whole batch.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch(texts, p.cfg.BatchSize); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.cfg.Model),
		Input: texts,
	}
	if p.cfg.Provider == ProviderOpenAI {
		// text-embedding-3-* honour an explicit output size.
		req.Dimensions = p.cfg.Dimensions
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, apperrors.PermanentProviderError(
				fmt.Sprintf("response index %d out of range", d.Index), nil)
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		out[d.Index] = v
	}
	if err := checkVectors(out, len(texts), p.cfg.Dimensions); err != nil {
		return nil, err
	}
	return out, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return statusError(reqErr.HTTPStatusCode, reqErr.Error())
	}
	return transportError(err)
}

// Dimensions returns the configured vector length.
func (p *OpenAIProvider) Dimensions() int { return p.cfg.Dimensions }

// Identity returns the provider and model.
func (p *OpenAIProvider) Identity() vector.Identity {
	return vector.Identity{Provider: string(p.cfg.Provider), Model: p.cfg.Model}
}

// Close is a no-op; the HTTP client owns no long-lived resources.
func (p *OpenAIProvider) Close() error { return nil }
