package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"static defaults", Config{Provider: ProviderStatic}, true},
		{"ollama", Config{Provider: ProviderOllama, Model: "nomic-embed-text", Dimensions: 768}, true},
		{"generativa alias", Config{Provider: ProviderGenerativa, Endpoint: "http://localhost:1234/v1", Model: "m", Dimensions: 8}, true},
		{"zero dimension", Config{Provider: ProviderOllama, Model: "m"}, false},
		{"negative dimension", Config{Provider: ProviderStatic, Dimensions: -3}, false},
		{"relative endpoint", Config{Provider: ProviderOpenAICompatible, Endpoint: "localhost/v1", Model: "m", Dimensions: 8}, false},
		{"ftp endpoint", Config{Provider: ProviderOllama, Endpoint: "ftp://host", Model: "m", Dimensions: 8}, false},
		{"batch too large", Config{Provider: ProviderStatic, BatchSize: MaxBatchSize + 1}, false},
		{"openai without key", Config{Provider: ProviderOpenAI, Model: "text-embedding-3-small", Dimensions: 1536}, false},
		{"unknown provider", Config{Provider: "word2vec", Dimensions: 8}, false},
		{"missing model", Config{Provider: ProviderOllama, Dimensions: 8}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigInvalid), err.Error())
		})
	}
}

func TestStaticProvider_DeterministicUnitVectors(t *testing.T) {
	p, err := NewStaticProvider(Config{Dimensions: 64})
	require.NoError(t, err)

	a, err := p.Embed(context.Background(), []string{"The quick brown fox", "   ", "the QUICK brown fox"})
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), []string{"The quick brown fox"})
	require.NoError(t, err)

	require.Len(t, a, 3)
	assert.Len(t, a[0], 64)
	assert.Equal(t, a[0], b[0])
	assert.Equal(t, a[0], a[2], "case-insensitive")
	assert.Equal(t, make([]float32, 64), a[1])
	assert.InDelta(t, 1.0, vector.Cosine(a[0], a[0]), 1e-6)

	var sum float64
	for _, x := range a[0] {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	assert.Equal(t, vector.Identity{Provider: "static", Model: "hash-64"}, p.Identity())
}

func TestStaticProvider_RejectsOversizedBatch(t *testing.T) {
	p, err := NewStaticProvider(Config{Dimensions: 8, BatchSize: 2})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"a", "b", "c"})

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigInvalid))
}

// fakeOllama serves /api/tags and /api/embed.
func fakeOllama(t *testing.T, dims int, status *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"nomic-embed-text:latest"}]}`))
		case "/api/embed":
			if code := status.Load(); code != 0 {
				w.WriteHeader(int(code))
				_, _ = w.Write([]byte(`{"error":"nope"}`))
				return
			}
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			resp := ollamaEmbedResponse{Model: req.Model}
			for i := range req.Input {
				v := make([]float64, dims)
				v[0] = float64(i + 1)
				resp.Embeddings = append(resp.Embeddings, v)
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOllamaProvider_EmbedAndClassify(t *testing.T) {
	var status atomic.Int32
	srv := fakeOllama(t, 4, &status)
	defer srv.Close()

	p, err := NewOllamaProvider(context.Background(), Config{
		Provider: ProviderOllama, Endpoint: srv.URL, Model: "nomic-embed-text", Dimensions: 4,
	})
	require.NoError(t, err)
	defer p.Close()

	// Success preserves order
	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])

	tests := []struct {
		code      int32
		transient bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		status.Store(tt.code)
		_, err := p.Embed(context.Background(), []string{"a"})
		require.Error(t, err)
		assert.Equal(t, tt.transient, apperrors.IsTransient(err), "status %d", tt.code)
		assert.Equal(t, !tt.transient, apperrors.IsPermanent(err), "status %d", tt.code)
	}
}

func TestOllamaProvider_DimensionDisagreementIsPermanent(t *testing.T) {
	var status atomic.Int32
	srv := fakeOllama(t, 3, &status)
	defer srv.Close()

	p, err := NewOllamaProvider(context.Background(), Config{
		Provider: ProviderOllama, Endpoint: srv.URL, Model: "nomic-embed-text", Dimensions: 4,
	})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"a"})

	assert.True(t, apperrors.IsPermanent(err))
}

func TestOllamaProvider_PingFailures(t *testing.T) {
	var status atomic.Int32
	srv := fakeOllama(t, 4, &status)
	defer srv.Close()

	// Unknown model
	_, err := NewOllamaProvider(context.Background(), Config{
		Provider: ProviderOllama, Endpoint: srv.URL, Model: "mxbai-embed-large", Dimensions: 4,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigInvalid))

	// Unreachable server
	_, err = NewOllamaProvider(context.Background(), Config{
		Provider: ProviderOllama, Endpoint: "http://127.0.0.1:1", Model: "m", Dimensions: 4,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigInvalid))

	// Ping skipped
	_, err = NewOllamaProvider(context.Background(), Config{
		Provider: ProviderOllama, Endpoint: "http://127.0.0.1:1", Model: "m", Dimensions: 4, SkipPing: true,
	})
	assert.NoError(t, err)
}

func TestOllamaProvider_UnreachableEmbedIsTransient(t *testing.T) {
	p, err := NewOllamaProvider(context.Background(), Config{
		Provider: ProviderOllama, Endpoint: "http://127.0.0.1:1", Model: "m", Dimensions: 4, SkipPing: true,
	})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"a"})

	assert.True(t, apperrors.IsTransient(err))
}

// fakeOpenAI serves POST /embeddings in the OpenAI wire format.
func fakeOpenAI(t *testing.T, dims int, status *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if code := status.Load(); code != 0 {
			w.WriteHeader(int(code))
			_, _ = w.Write([]byte(`{"error":{"message":"denied","type":"invalid_request_error"}}`))
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		// Answer in reverse order; the provider must reorder by index.
		for i := range req.Input {
			v := make([]float32, dims)
			v[0] = float32(i + 1)
			data[len(req.Input)-1-i] = item{Object: "embedding", Embedding: v, Index: i}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list", "data": data, "model": req.Model,
			"usage": map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestOpenAIProvider_CompatibleEndpoint(t *testing.T) {
	var status atomic.Int32
	srv := fakeOpenAI(t, 3, &status)
	defer srv.Close()

	p, err := NewOpenAIProvider(Config{
		Provider: ProviderOpenAICompatible, Endpoint: srv.URL + "/v1", Model: "nomic-embed-text", Dimensions: 3,
	})
	require.NoError(t, err)

	vecs, err := p.Embed(context.Background(), []string{"x", "y", "z"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vecs[0])
	assert.Equal(t, []float32{3, 0, 0}, vecs[2])
	assert.Equal(t, "openai-compatible/nomic-embed-text", p.Identity().String())

	status.Store(http.StatusUnauthorized)
	_, err = p.Embed(context.Background(), []string{"x"})
	assert.True(t, apperrors.IsPermanent(err))

	status.Store(http.StatusBadGateway)
	_, err = p.Embed(context.Background(), []string{"x"})
	assert.True(t, apperrors.IsTransient(err))
}

func TestNew_WrapsWithRetryAndBreaker(t *testing.T) {
	var status atomic.Int32
	srv := fakeOpenAI(t, 3, &status)
	defer srv.Close()
	status.Store(http.StatusTooManyRequests)

	var retries atomic.Int32
	p, err := NewWithRetryHook(context.Background(), Config{
		Provider: ProviderGenerativa, Endpoint: srv.URL + "/v1", Model: "m", Dimensions: 3,
		MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond,
		BreakerFailures: 3,
	}, func(int, error) { retries.Add(1) })
	require.NoError(t, err)
	_, isBreaker := p.(*Breaker)
	assert.True(t, isBreaker)

	_, err = p.Embed(context.Background(), []string{"x"})

	assert.True(t, apperrors.IsTransient(err))
	assert.Equal(t, int32(2), retries.Load())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ProviderOllama, Model: "m", Dimensions: 0})

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigInvalid))
}
