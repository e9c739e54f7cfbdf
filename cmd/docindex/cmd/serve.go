package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/async"
	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/embed"
	"github.com/Aman-CERP/docindex/internal/indexer"
	"github.com/Aman-CERP/docindex/internal/mcp"
	"github.com/Aman-CERP/docindex/internal/metrics"
	"github.com/Aman-CERP/docindex/internal/retrieve"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/vector"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		indexPath   string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve [file...]",
		Short: "Serve an index to MCP clients over stdio",
		Long: `Serve exposes the index as MCP tools on stdin/stdout:

  search        semantic search returning passages with scores
  index_status  provider, documents, record count and indexing progress

Files given as arguments are indexed in the background while the server
answers queries; the index is saved when that run finishes. Nothing but
protocol messages is written to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := a.config()
			if err != nil {
				return err
			}
			if indexPath == "" {
				indexPath = cfg.Store.Path
			}
			if metricsAddr == "" {
				metricsAddr = cfg.Server.MetricsAddr
			}
			return runServe(ctx, cfg, indexPath, metricsAddr, args)
		},
	}

	cmd.Flags().StringVarP(&indexPath, "index", "i", "", "Index path (default from config store.path)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address, e.g. :9464")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, indexPath, metricsAddr string, files []string) error {
	docs, err := documentsFromArgs(files, "")
	if err != nil {
		return err
	}
	m := metrics.New()

	if async.HasIncompleteRun(indexPath) {
		slog.Warn("previous_index_run_incomplete",
			slog.String("path", indexPath),
			slog.Bool("reindexing", len(docs) > 0))
	}

	vopts, err := vectorOptions(cfg)
	if err != nil {
		return err
	}
	var (
		idx *vector.Index
		hdr store.Header
	)
	if len(docs) > 0 {
		idx, hdr, err = openOrCreate(ctx, cfg, indexPath)
	} else {
		idx, hdr, err = store.Load(ctx, indexPath, store.WithIndexOptions(vopts))
	}
	if err != nil {
		return err
	}
	m.SetIndexRecords(idx.Len())

	provider, ecfg, err := newProvider(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer func() { _ = provider.Close() }()

	var queryProvider embed.Provider = provider
	if ecfg.CacheSize > 0 {
		queryProvider = embed.NewCached(provider, ecfg.CacheSize)
	}
	sources := retrieve.NewFileSources(hdr.Documents)
	r, err := retrieve.New(retrieve.Config{Provider: queryProvider, Index: idx, Sources: sources, Metrics: m})
	if err != nil {
		return err
	}

	progress := async.NewIndexProgress()
	srv, err := mcp.NewServer(mcp.Config{
		Retriever: r,
		IndexPath: indexPath,
		Header:    cloneHeader(hdr),
		Progress:  progress,
		TopK:      cfg.Search.TopK,
	})
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		stopMetrics, err := serveMetrics(ctx, metricsAddr, m)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	if len(docs) > 0 {
		ix, err := indexer.New(indexer.Dependencies{Provider: provider, BatchSize: ecfg.EffectiveBatchSize(), Metrics: m})
		if err != nil {
			return err
		}
		saveOpts, err := saveOptions(cfg, "")
		if err != nil {
			return err
		}
		sess := newSession(ix, indexParams(cfg), idx, hdr)
		bg := async.NewBackgroundIndexer(indexPath, progress, backgroundIndex(sess, docs, indexPath, saveOpts, sources, srv, m))
		bg.Start(ctx)
		defer bg.Stop()
	}

	return srv.Serve(ctx)
}

// backgroundIndex indexes docs into the served index, publishing each
// document to the resolver and server as soon as it is done.
func backgroundIndex(sess *session, docs []document, path string, saveOpts []store.SaveOption,
	sources *retrieve.FileSources, srv *mcp.Server, m *metrics.Metrics) async.IndexFunc {
	return func(ctx context.Context, p *async.IndexProgress) error {
		p.Begin(len(docs))
		changed := false
		for _, d := range docs {
			p.StartDocument(d.ID)
			res := sess.indexDocument(ctx, d, p.UpdateChunks)
			if info, ok := sess.hdr.Documents[d.ID]; ok {
				sources.Update(d.ID, info)
			}
			srv.SetHeader(cloneHeader(sess.hdr))
			m.SetIndexRecords(sess.idx.Len())
			p.DocumentDone()
			changed = changed || res.Embedded > 0 || res.Removed > 0

			if res.Status == indexer.StatusFailed {
				slog.Error("background_index_failed", slog.String("document", d.ID), slog.String("error", errString(res.Err)))
				return res.Err
			}
			if res.Status == indexer.StatusCancelled {
				break
			}
		}

		if changed || !fileExists(path) {
			p.SetStage(async.StageSaving)
			if err := ensureDir(path); err != nil {
				return err
			}
			if err := store.Save(context.WithoutCancel(ctx), path, sess.idx, sess.hdr, saveOpts...); err != nil {
				return err
			}
			srv.SetHeader(cloneHeader(sess.hdr))
		}
		return ctx.Err()
	}
}

// serveMetrics exposes m on addr until the returned stop is called.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()
	slog.Info("metrics_server_start", slog.String("addr", ln.Addr().String()))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}, nil
}
