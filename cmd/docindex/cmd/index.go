package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/indexer"
	"github.com/Aman-CERP/docindex/internal/metrics"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/ui"
)

type indexFlags struct {
	docID       string
	out         string
	concurrency int
	chunkSize   int
	overlap     int
	minChunk    int
	stageLimit  int
	compression string
	plain       bool
	noColor     bool
}

func newIndexCmd(a *app) *cobra.Command {
	var f indexFlags

	cmd := &cobra.Command{
		Use:   "index <file>...",
		Short: "Chunk, embed and store text files",
		Long: `Index one or more text files into the index at --out.

Files are treated as already-extracted text. Re-indexing an unchanged file
embeds nothing; changed files only embed the chunks whose text changed.
Ctrl+C stops at the next batch boundary and saves what was indexed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, a, args, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.docID, "doc-id", "", "Document id (single file only, default: the file path)")
	fl.StringVarP(&f.out, "out", "o", "", "Index path (default from config store.path; .db selects SQLite)")
	fl.IntVar(&f.concurrency, "concurrency", 0, "Batches embedded in parallel")
	fl.IntVar(&f.chunkSize, "chunk-size", 0, "Maximum chunk length in bytes")
	fl.IntVar(&f.overlap, "overlap", -1, "Bytes shared by consecutive chunks")
	fl.IntVar(&f.minChunk, "min-chunk", -1, "Drop chunks shorter than this after trimming")
	fl.IntVar(&f.stageLimit, "stage-limit", -1, "Embed at most this many chunks per run (0 = unbounded)")
	fl.StringVar(&f.compression, "compression", "", "File codec: none or zstd")
	fl.BoolVar(&f.plain, "plain", false, "Plain text progress instead of the TUI")
	fl.BoolVar(&f.noColor, "no-color", false, "Disable colors")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, a *app, args []string, f indexFlags) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	docs, err := documentsFromArgs(args, f.docID)
	if err != nil {
		return err
	}

	params := indexParams(cfg)
	if f.concurrency > 0 {
		params.Concurrency = f.concurrency
	}
	if f.chunkSize > 0 {
		params.ChunkSize = f.chunkSize
	}
	if f.overlap >= 0 {
		params.Overlap = f.overlap
	}
	if f.minChunk >= 0 {
		params.MinChunk = f.minChunk
	}
	if f.stageLimit >= 0 {
		params.StageLimit = f.stageLimit
	}
	if err := params.Validate(); err != nil {
		return err
	}

	out := f.out
	if out == "" {
		out = cfg.Store.Path
	}
	saveOpts, err := saveOptions(cfg, f.compression)
	if err != nil {
		return err
	}

	provider, ecfg, err := newProvider(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = provider.Close() }()

	idx, hdr, err := openOrCreate(ctx, cfg, out)
	if err != nil {
		return err
	}
	ix, err := indexer.New(indexer.Dependencies{
		Provider:  provider,
		BatchSize: ecfg.EffectiveBatchSize(),
		Metrics:   metrics.New(),
	})
	if err != nil {
		return err
	}
	sess := newSession(ix, params, idx, hdr)

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(f.plain),
		ui.WithNoColor(f.noColor || ui.DetectNoColor()),
		ui.WithTitle("docindex: "+out)))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	// Quitting the TUI cancels like Ctrl+C.
	if tui, ok := renderer.(interface{ Interrupted() <-chan struct{} }); ok {
		go func() {
			select {
			case <-tui.Interrupted():
				sess.ctl.Cancel()
			case <-ctx.Done():
			}
		}()
	}

	start := time.Now()
	stats := ui.CompletionStats{
		Embedder: ui.EmbedderInfo{
			Provider:   provider.Identity().Provider,
			Model:      provider.Identity().Model,
			Dimensions: provider.Dimensions(),
		},
	}
	var failed, interrupted []indexer.Result
	changed := false

	for _, d := range docs {
		if ctx.Err() != nil || sess.ctl.Cancelled() {
			break
		}
		renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageChunking, Document: d.ID})
		res := sess.indexDocument(ctx, d, func(done, total int) {
			renderer.UpdateProgress(ui.ProgressEvent{
				Stage: ui.StageEmbedding, Current: done, Total: total, Document: d.ID,
			})
		})

		stats.Documents++
		stats.Chunks += res.ChunksTotal
		stats.Embedded += res.Embedded
		stats.Skipped += res.Skipped
		if res.Embedded > 0 || res.Removed > 0 {
			changed = true
		}

		switch res.Status {
		case indexer.StatusFailed:
			failed = append(failed, res)
			stats.Errors++
			renderer.AddError(ui.ErrorEvent{Document: d.ID, Err: res.Err})
		case indexer.StatusCancelled, indexer.StatusStaged:
			interrupted = append(interrupted, res)
			stats.Warnings++
			renderer.AddError(ui.ErrorEvent{Document: d.ID, Err: fmt.Errorf("%s", res.Summary()), IsWarn: true})
		}
	}

	if changed || !fileExists(out) {
		renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageSaving, Message: out})
		if err := ensureDir(out); err != nil {
			return err
		}
		// The save itself must not be interrupted by the signal that stopped indexing.
		if err := store.Save(context.WithoutCancel(ctx), out, sess.idx, sess.hdr, saveOpts...); err != nil {
			renderer.AddError(ui.ErrorEvent{Document: out, Err: err})
			return err
		}
	}

	stats.Duration = time.Since(start)
	stats.Outcome = outcome(failed, interrupted)
	renderer.Complete(stats)

	slog.Info("index_command_complete",
		slog.String("path", out),
		slog.Int("documents", stats.Documents),
		slog.Int("embedded", stats.Embedded),
		slog.Int("failed", len(failed)),
		slog.Int64("duration_ms", stats.Duration.Milliseconds()))

	if len(failed) > 0 {
		return failed[0].Err
	}
	return nil
}

func outcome(failed, interrupted []indexer.Result) string {
	switch {
	case len(failed) > 0:
		r := failed[0]
		msg := r.DocumentID + ": " + r.Summary()
		if r.Err != nil {
			if e, ok := apperrors.As(r.Err); ok {
				msg += " (" + e.Message + ")"
			}
		}
		return msg
	case len(interrupted) > 0:
		r := interrupted[0]
		return r.DocumentID + ": " + r.Summary()
	default:
		return "completed"
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
