package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/embed"
	"github.com/Aman-CERP/docindex/internal/indexer"
	"github.com/Aman-CERP/docindex/internal/metrics"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/watcher"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		out         string
		compression string
	)

	cmd := &cobra.Command{
		Use:   "watch <file>...",
		Short: "Keep an index up to date while files change",
		Long: `Watch indexes the given files, then re-indexes each one whenever it is
saved and removes it from the index when it is deleted. Changes are
debounced (indexing.watch_debounce) and the index is saved after every batch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := a.config()
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.Store.Path
			}
			w, err := newWatchLoop(ctx, cfg, args, out, compression, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return w.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Index path (default from config store.path)")
	cmd.Flags().StringVar(&compression, "compression", "", "File codec: none or zstd")
	return cmd
}

// watchLoop owns the index for the lifetime of a watch.
type watchLoop struct {
	out      io.Writer
	path     string
	saveOpts []store.SaveOption
	provider embed.Provider
	sess     *session
	docs     map[string]document
	watch    *watcher.FileWatcher
}

func newWatchLoop(ctx context.Context, cfg *config.Config, args []string, path, compression string, out io.Writer) (*watchLoop, error) {
	docs, err := documentsFromArgs(args, "")
	if err != nil {
		return nil, err
	}
	saveOpts, err := saveOptions(cfg, compression)
	if err != nil {
		return nil, err
	}
	params := indexParams(cfg)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	provider, ecfg, err := newProvider(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*watchLoop, error) {
		_ = provider.Close()
		return nil, err
	}

	idx, hdr, err := openOrCreate(ctx, cfg, path)
	if err != nil {
		return fail(err)
	}
	ix, err := indexer.New(indexer.Dependencies{
		Provider:  provider,
		BatchSize: ecfg.EffectiveBatchSize(),
		Metrics:   metrics.New(),
	})
	if err != nil {
		return fail(err)
	}

	paths := make([]string, len(docs))
	byPath := make(map[string]document, len(docs))
	for i, d := range docs {
		paths[i] = d.Path
		byPath[d.Path] = d
	}
	fw, err := watcher.New(paths, watcher.Options{DebounceWindow: cfg.Debounce()})
	if err != nil {
		return fail(err)
	}

	return &watchLoop{
		out:      out,
		path:     path,
		saveOpts: saveOpts,
		provider: provider,
		sess:     newSession(ix, params, idx, hdr),
		docs:     byPath,
		watch:    fw,
	}, nil
}

func (l *watchLoop) run(ctx context.Context) error {
	defer func() { _ = l.provider.Close() }()

	initial := make([]watcher.FileEvent, 0, len(l.docs))
	for path := range l.docs {
		if fileExists(path) {
			initial = append(initial, watcher.FileEvent{Path: path, Operation: watcher.OpModify})
		}
	}
	sort.Slice(initial, func(i, j int) bool { return initial[i].Path < initial[j].Path })
	if err := l.apply(ctx, initial); err != nil {
		_ = l.watch.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- l.watch.Run(ctx) }()
	fmt.Fprintf(l.out, "Watching %d files, index %s (Ctrl+C to stop)\n", len(l.docs), l.path)

	for {
		select {
		case batch, ok := <-l.watch.Events():
			if !ok {
				return ignoreCanceled(<-errCh)
			}
			if err := l.apply(ctx, batch); err != nil {
				fmt.Fprintf(l.out, "update failed: %v\n", err)
			}
		case err := <-l.watch.Errors():
			fmt.Fprintf(l.out, "watch error: %v\n", err)
		}
	}
}

// apply re-indexes or removes the documents in batch and saves once.
func (l *watchLoop) apply(ctx context.Context, batch []watcher.FileEvent) error {
	changed := false
	for _, ev := range batch {
		d, ok := l.docs[ev.Path]
		if !ok {
			continue
		}
		if ev.Operation == watcher.OpDelete {
			n := l.sess.removeDocument(d.ID)
			fmt.Fprintf(l.out, "removed %s (%d chunks)\n", d.ID, n)
			changed = true
			continue
		}

		res := l.sess.indexDocument(ctx, d, nil)
		fmt.Fprintf(l.out, "%s: %s\n", d.ID, res.Summary())
		if res.Embedded > 0 || res.Removed > 0 {
			changed = true
		}
		if res.Status == indexer.StatusFailed {
			slog.Warn("watch_reindex_failed", slog.String("document", d.ID), slog.String("error", errString(res.Err)))
		}
		if ctx.Err() != nil {
			break
		}
	}
	if !changed && fileExists(l.path) {
		return nil
	}
	if err := ensureDir(l.path); err != nil {
		return err
	}
	return store.Save(context.WithoutCancel(ctx), l.path, l.sess.idx, l.sess.hdr, l.saveOpts...)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
