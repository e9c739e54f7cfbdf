package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/async"
	"github.com/Aman-CERP/docindex/internal/chunk"
	"github.com/Aman-CERP/docindex/internal/embed"
	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/indexer"
	"github.com/Aman-CERP/docindex/internal/retrieve"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/vector"
)

const corpus = `Tide pools hold anemones, crabs and small fish between high tides.

Compilers translate source code into machine instructions in several passes.

Sourdough starters keep wild yeast and lactic bacteria alive with regular feeding.
`

func newTestServer(t *testing.T, progress *async.IndexProgress) *Server {
	t.Helper()
	p, err := embed.NewStaticProvider(embed.Config{Dimensions: 256})
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte(corpus), 0o600))

	ix, err := indexer.New(indexer.Dependencies{Provider: p})
	require.NoError(t, err)
	idx := vector.New(vector.Options{})
	res := ix.Index(context.Background(), "notes", corpus,
		indexer.Params{ChunkSize: 80, Overlap: 10, MinChunk: 20, Concurrency: 1}, idx, nil)
	require.Equal(t, indexer.StatusCompleted, res.Status)

	docs := map[string]store.DocumentInfo{
		"notes": {Source: src, TextHash: chunk.Hash(corpus), Chunks: res.ChunksTotal, IndexedAt: time.Now()},
	}
	r, err := retrieve.New(retrieve.Config{Provider: p, Index: idx, Sources: retrieve.NewFileSources(docs)})
	require.NoError(t, err)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s, err := NewServer(Config{
		Retriever: r,
		IndexPath: filepath.Join(dir, "index.didx"),
		Header:    store.Header{Documents: docs, CreatedAt: created, UpdatedAt: created},
		Progress:  progress,
		TopK:      2,
	})
	require.NoError(t, err)
	return s
}

func TestNewServer_RequiresRetriever(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestServer_ListTools(t *testing.T) {
	s := newTestServer(t, nil)

	names := []string{}
	for _, tool := range s.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}

	assert.Equal(t, []string{"search", "index_status"}, names)
	assert.NotNil(t, s.MCPServer())
}

func TestServer_SearchTool(t *testing.T) {
	// Given: a server over three passages
	s := newTestServer(t, nil)

	// When: calling search with JSON-decoded arguments
	got, err := s.CallTool(context.Background(), "search", map[string]any{
		"query": "wild yeast sourdough starter feeding",
	})

	// Then: the default limit applies and the best passage is resolved
	require.NoError(t, err)
	out := got.(SearchOutput)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "notes", out.Results[0].DocumentID)
	assert.Contains(t, out.Results[0].Text, "yeast")
	assert.Nil(t, out.Indexing)

	got, err = s.CallTool(context.Background(), "search", map[string]any{"query": "crabs", "limit": float64(1)})
	require.NoError(t, err)
	assert.Len(t, got.(SearchOutput).Results, 1)
}

func TestServer_SearchRejectsBlankQuery(t *testing.T) {
	s := newTestServer(t, nil)

	_, err := s.CallTool(context.Background(), "search", map[string]any{"query": "   "})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestServer_SearchDuringIndexing(t *testing.T) {
	progress := async.NewIndexProgress()
	progress.Begin(4)
	progress.DocumentDone()
	s := newTestServer(t, progress)

	out, err := s.Search(context.Background(), SearchInput{Query: "tide pools"})

	require.NoError(t, err)
	require.NotNil(t, out.Indexing)
	assert.Equal(t, 1, out.Indexing.DocsDone)
	assert.Contains(t, FormatSearchResults("tide pools", out), "Indexing in progress: 25.0%")
}

func TestServer_IndexStatus(t *testing.T) {
	s := newTestServer(t, async.NewIndexProgress())

	got, err := s.CallTool(context.Background(), "index_status", nil)

	require.NoError(t, err)
	out := got.(*IndexStatusOutput)
	assert.Equal(t, "static", out.Embeddings.Provider)
	assert.Equal(t, "hash-256", out.Embeddings.Model)
	assert.Equal(t, 256, out.Index.Dimension)
	assert.Equal(t, "cosine", out.Index.Metric)
	assert.Positive(t, out.Index.Records)
	require.Len(t, out.Index.Documents, 1)
	assert.Equal(t, "notes", out.Index.Documents[0].ID)
	assert.Equal(t, "2026-01-02T03:04:05Z", out.Index.CreatedAt)
	assert.False(t, out.Index.Incomplete)
	require.NotNil(t, out.Indexing)
	assert.Equal(t, "idle", out.Indexing.Status)

	s.SetHeader(store.Header{})
	out, err = s.IndexStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out.Index.Documents)
	assert.Empty(t, out.Index.CreatedAt)
}

func TestServer_UnknownTool(t *testing.T) {
	s := newTestServer(t, nil)

	_, err := s.CallTool(context.Background(), "search_code", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"provider", apperrors.TransientProviderError("503", nil), ErrCodeEmbeddingFailed},
		{"validation", apperrors.ValidationError("bad", nil), ErrCodeInvalidParams},
		{"missing index", apperrors.New(apperrors.ErrCodeFileNotFound, "no index", nil), ErrCodeIndexNotFound},
		{"corrupt", apperrors.CorruptionError("crc", nil), ErrCodeIndexCorrupt},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"unknown", os.ErrPermission, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, MapError(tt.err).Code)
		})
	}
	assert.Nil(t, MapError(nil))
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := apperrors.CorruptionError("checksum mismatch", nil)

	got := MapError(err)

	assert.Contains(t, got.Message, "checksum mismatch")
	assert.Contains(t, got.Message, apperrors.SuggestRebuild)
}
