package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/docindex/internal/chunk"
	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/embed"
	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/indexer"
	"github.com/Aman-CERP/docindex/internal/metrics"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// embedConfig maps file configuration onto the provider factory's config.
func embedConfig(c *config.Config) embed.Config {
	e := c.Embeddings
	cfg := embed.Config{
		Provider:        embed.ProviderType(strings.ToLower(e.Provider)),
		Endpoint:        e.Endpoint,
		APIKey:          e.APIKey,
		Model:           e.Model,
		Dimensions:      e.Dimensions,
		BatchSize:       e.BatchSize,
		Timeout:         c.EmbedTimeout(),
		MaxRetries:      e.MaxRetries,
		CacheSize:       e.CacheSize,
		BreakerFailures: e.BreakerFailures,

		RequestsPerSecond: e.RequestsPerSecond,
	}
	// The static hasher names its own model after the dimension.
	if cfg.Provider == embed.ProviderStatic {
		cfg.Model = ""
	}
	return cfg
}

// newProvider builds the configured provider and counts its retries in m.
func newProvider(ctx context.Context, c *config.Config, m *metrics.Metrics) (embed.Provider, embed.Config, error) {
	ecfg := embedConfig(c)
	p, err := embed.NewWithRetryHook(ctx, ecfg, func(attempt int, err error) {
		m.ObserveRetry()
		slog.Debug("embed_retry", slog.Int("attempt", attempt), slog.String("error", err.Error()))
	})
	return p, ecfg, err
}

func indexParams(c *config.Config) indexer.Params {
	return indexer.Params{
		ChunkSize:           c.Indexing.ChunkSize,
		Overlap:             c.Indexing.Overlap,
		MinChunk:            c.Indexing.MinChunk,
		Concurrency:         c.Indexing.Concurrency,
		StageLimit:          c.Indexing.StageLimit,
		PauseBetweenBatches: c.BatchPause(),
	}
}

func vectorOptions(c *config.Config) (vector.Options, error) {
	metric, err := vector.ParseMetric(c.Search.Metric)
	if err != nil {
		return vector.Options{}, apperrors.ConfigError("invalid search.metric", err)
	}
	return vector.Options{Metric: metric, Approximate: c.Search.Approximate}, nil
}

func saveOptions(c *config.Config, override string) ([]store.SaveOption, error) {
	name := c.Store.Compression
	if override != "" {
		name = override
	}
	codec, err := store.ParseCodec(name)
	if err != nil {
		return nil, err
	}
	return []store.SaveOption{store.WithCodec(codec)}, nil
}

// openOrCreate loads the index at path, or returns a fresh one when the
// file does not exist yet.
func openOrCreate(ctx context.Context, c *config.Config, path string) (*vector.Index, store.Header, error) {
	opts, err := vectorOptions(c)
	if err != nil {
		return nil, store.Header{}, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		return vector.New(opts), store.Header{}, nil
	}
	return store.Load(ctx, path, store.WithIndexOptions(opts))
}

// ensureDir creates the directory that will hold path.
func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.IOError("failed to create "+dir, err)
		}
	}
	return nil
}

// document is one input file and the id it is indexed under.
type document struct {
	ID   string
	Path string
}

// documentsFromArgs maps file arguments to documents. docID overrides the
// id of a single file; otherwise the cleaned slash path is used.
func documentsFromArgs(args []string, docID string) ([]document, error) {
	if docID != "" && len(args) != 1 {
		return nil, apperrors.ValidationError("--doc-id requires exactly one file", nil)
	}
	docs := make([]document, 0, len(args))
	seen := make(map[string]string, len(args))
	for _, arg := range args {
		id := docID
		if id == "" {
			id = filepath.ToSlash(filepath.Clean(arg))
		}
		if prev, dup := seen[id]; dup {
			return nil, apperrors.ValidationError(fmt.Sprintf("%s and %s map to the same document id %q", prev, arg, id), nil)
		}
		seen[id] = arg
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, apperrors.IOError("failed to resolve "+arg, err)
		}
		docs = append(docs, document{ID: id, Path: abs})
	}
	return docs, nil
}

// session indexes documents into one in-memory index and tracks the
// per-document header entries that go with it.
type session struct {
	ix     *indexer.Indexer
	params indexer.Params
	idx    *vector.Index
	hdr    store.Header
	ctl    *indexer.Control
}

func newSession(ix *indexer.Indexer, params indexer.Params, idx *vector.Index, hdr store.Header) *session {
	if hdr.Documents == nil {
		hdr.Documents = make(map[string]store.DocumentInfo)
	}
	return &session{ix: ix, params: params, idx: idx, hdr: hdr, ctl: indexer.NewControl()}
}

// indexDocument reads d and indexes it. The header entry is updated whenever
// chunks of the document may be in the index.
func (s *session) indexDocument(ctx context.Context, d document, onProgress indexer.ProgressFunc) indexer.Result {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return indexer.Result{
			Status:     indexer.StatusFailed,
			DocumentID: d.ID,
			Err:        apperrors.IOError("failed to read "+d.Path, err),
		}
	}
	text := string(data)

	res := s.ix.Index(ctx, d.ID, text, s.params, s.idx, onProgress, indexer.WithControl(s.ctl))
	if res.ChunksDone > 0 || res.Status == indexer.StatusCompleted {
		s.hdr.Documents[d.ID] = store.DocumentInfo{
			Source:    d.Path,
			TextHash:  chunk.Hash(text),
			Chunks:    res.ChunksDone,
			IndexedAt: time.Now().UTC(),
		}
	}
	return res
}

// removeDocument drops d from the index and header.
func (s *session) removeDocument(docID string) int {
	n := s.idx.RemoveDocument(docID)
	delete(s.hdr.Documents, docID)
	return n
}

// cloneHeader copies hdr so it can be handed to another goroutine.
func cloneHeader(hdr store.Header) store.Header {
	docs := make(map[string]store.DocumentInfo, len(hdr.Documents))
	for id, d := range hdr.Documents {
		docs[id] = d
	}
	hdr.Documents = docs
	return hdr
}
