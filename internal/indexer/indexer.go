package indexer

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docindex/internal/chunk"
	"github.com/Aman-CERP/docindex/internal/embed"
	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/metrics"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// Dependencies holds the collaborators of an Indexer.
type Dependencies struct {
	// Provider embeds chunk text (required).
	Provider embed.Provider
	// BatchSize is the number of chunks per Embed call. Defaults to
	// embed.DefaultBatchSize.
	BatchSize int
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Indexer runs indexing passes. It holds no per-run state and is safe for
// concurrent use on different indexes.
type Indexer struct {
	provider  embed.Provider
	batchSize int
	metrics   *metrics.Metrics
}

// New creates an Indexer.
func New(deps Dependencies) (*Indexer, error) {
	if deps.Provider == nil {
		return nil, apperrors.ConfigError("indexer requires an embedding provider", nil)
	}
	size := deps.BatchSize
	if size == 0 {
		size = embed.DefaultBatchSize
	}
	if size < 1 || size > embed.MaxBatchSize {
		return nil, apperrors.ConfigError("batch size out of range", nil).
			WithDetail("batch_size", strconv.Itoa(size))
	}
	return &Indexer{provider: deps.Provider, batchSize: size, metrics: deps.Metrics}, nil
}

// BatchSize returns the chunks per Embed call.
func (ix *Indexer) BatchSize() int { return ix.batchSize }

// Option adjusts a single run.
type Option func(*runOptions)

type runOptions struct {
	control *Control
}

// WithControl attaches c so the run can be paused, resumed or cancelled.
func WithControl(c *Control) Option {
	return func(o *runOptions) { o.control = c }
}

// Index chunks text, embeds chunks the index does not already hold with the
// same content hash, and adds them to idx one batch at a time.
//
// Cancellation via ctx or a Control is honoured between batches. Batches
// applied before that stay in idx and the result is StatusCancelled with a
// nil Err. A provider error that survives retries abandons the remaining
// batches and yields StatusFailed.
func (ix *Indexer) Index(ctx context.Context, documentID, text string, p Params,
	idx *vector.Index, onProgress ProgressFunc, opts ...Option) Result {
	started := time.Now()
	res := Result{DocumentID: documentID}

	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	fail := func(err error) Result {
		res.Status = StatusFailed
		res.Err = err
		res.Partial = res.ChunksDone > 0
		res.Duration = time.Since(started)
		ix.finish(res)
		return res
	}

	if documentID == "" {
		return fail(apperrors.ValidationError("document id must not be empty", nil))
	}
	if err := p.Validate(); err != nil {
		return fail(err)
	}
	if err := idx.Bind(ix.provider.Identity()); err != nil {
		return fail(err)
	}
	if d := idx.Dimension(); d != 0 && d != ix.provider.Dimensions() {
		return fail(apperrors.DimensionMismatch(d, ix.provider.Dimensions()))
	}

	chunks, err := chunk.Split(documentID, text, p.chunkParams())
	if err != nil {
		return fail(err)
	}
	res.ChunksTotal = len(chunks)
	res.Removed = pruneStale(idx, documentID, chunks)

	pending := make([]chunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if h, ok := idx.ContentHash(c.ID); ok && h == c.Hash {
			continue
		}
		pending = append(pending, c)
	}
	res.Skipped = len(chunks) - len(pending)
	res.ChunksDone = res.Skipped
	ix.metrics.ObserveSkipped(res.Skipped)

	staged := false
	if p.StageLimit > 0 && len(pending) > p.StageLimit {
		pending = pending[:p.StageLimit]
		staged = true
	}

	slog.Debug("index_document_started",
		slog.String("document", documentID),
		slog.Int("chunks", res.ChunksTotal),
		slog.Int("pending", len(pending)),
		slog.Int("skipped", res.Skipped))

	rep := newReporter(onProgress)
	if len(pending) == 0 {
		rep.report(res.ChunksDone, res.ChunksTotal)
		rep.close()
		return ix.complete(res, staged, started)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if o.control != nil {
		detach := o.control.attach(cancel)
		defer detach()
	}

	r := &run{
		ix:     ix,
		idx:    idx,
		rep:    rep,
		runCtx: runCtx,
		total:  res.ChunksTotal,
		done:   res.ChunksDone,
	}
	runErr := r.dispatch(batches(pending, ix.batchSize), p, o.control)
	rep.close()

	res.ChunksDone = r.done
	res.Embedded = r.embedded

	switch {
	case runErr != nil && !(runCtx.Err() != nil && isCancellation(runErr)):
		return fail(runErr)
	case res.ChunksDone-res.Skipped < len(pending):
		res.Status = StatusCancelled
		res.Duration = time.Since(started)
		ix.finish(res)
		return res
	default:
		return ix.complete(res, staged, started)
	}
}

func (ix *Indexer) complete(res Result, staged bool, started time.Time) Result {
	res.Status = StatusCompleted
	if staged {
		res.Status = StatusStaged
	}
	res.Duration = time.Since(started)
	ix.finish(res)
	return res
}

func (ix *Indexer) finish(res Result) {
	ix.metrics.ObserveRun(res.Status.String())
	attrs := []any{
		slog.String("document", res.DocumentID),
		slog.String("status", res.Status.String()),
		slog.Int("chunks_total", res.ChunksTotal),
		slog.Int("chunks_done", res.ChunksDone),
		slog.Int("embedded", res.Embedded),
		slog.Int("skipped", res.Skipped),
		slog.Int("removed", res.Removed),
		slog.Int64("duration_ms", res.Duration.Milliseconds()),
	}
	if res.Err != nil {
		attrs = append(attrs, apperrors.LogAttrs(res.Err)...)
		slog.Warn("index_document_failed", attrs...)
		return
	}
	slog.Info("index_document_complete", attrs...)
}

// run is the mutable state of one Index call.
type run struct {
	ix     *Indexer
	idx    *vector.Index
	rep    *reporter
	runCtx context.Context

	// applyMu orders AddBatch with the done counter so progress is monotonic.
	applyMu  sync.Mutex
	total    int
	done     int
	embedded int
}

func (r *run) dispatch(groups [][]chunk.Chunk, p Params, ctl *Control) error {
	g, gctx := errgroup.WithContext(r.runCtx)
	g.SetLimit(p.Concurrency)

	for i, group := range groups {
		if i > 0 && p.PauseBetweenBatches > 0 {
			t := time.NewTimer(p.PauseBetweenBatches)
			select {
			case <-t.C:
			case <-gctx.Done():
				t.Stop()
			}
		}
		if ctl != nil {
			_ = ctl.wait(gctx)
		}
		if gctx.Err() != nil {
			break
		}

		group := group
		g.Go(func() error {
			// The slot may have been granted after cancellation.
			if gctx.Err() != nil {
				return nil
			}
			return r.embedBatch(gctx, group)
		})
	}
	return g.Wait()
}

func (r *run) embedBatch(ctx context.Context, group []chunk.Chunk) error {
	texts := make([]string, len(group))
	for i, c := range group {
		texts[i] = c.Text
	}

	start := time.Now()
	vecs, err := r.ix.provider.Embed(ctx, texts)
	if err != nil {
		outcome := metrics.BatchFailed
		if ctx.Err() != nil && isCancellation(err) {
			outcome = metrics.BatchDiscarded
		}
		r.ix.metrics.ObserveBatch(outcome, len(group), time.Since(start))
		slog.Debug("embed_batch_"+outcome,
			slog.String("first_chunk", group[0].ID),
			slog.Int("size", len(group)),
			slog.String("error", err.Error()))
		return err
	}

	recs := make([]vector.Record, len(group))
	for i, c := range group {
		recs[i] = vector.Record{
			ID:     c.ID,
			Vector: vecs[i],
			Meta: vector.Meta{
				DocumentID:  c.DocumentID,
				Start:       c.Start,
				End:         c.End,
				ContentHash: c.Hash,
			},
		}
	}

	r.applyMu.Lock()
	defer r.applyMu.Unlock()
	if err := r.idx.AddBatch(recs); err != nil {
		r.ix.metrics.ObserveBatch(metrics.BatchFailed, len(group), time.Since(start))
		return err
	}
	r.done += len(group)
	r.embedded += len(group)
	r.rep.report(r.done, r.total)
	r.ix.metrics.ObserveBatch(metrics.BatchApplied, len(group), time.Since(start))
	return nil
}

// pruneStale removes records of documentID whose ids the current split no
// longer produces, e.g. after the text shrank.
func pruneStale(idx *vector.Index, documentID string, chunks []chunk.Chunk) int {
	keep := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		keep[c.ID] = struct{}{}
	}
	removed := 0
	for _, id := range idx.DocumentIDs(documentID) {
		if _, ok := keep[id]; !ok {
			idx.Remove(id)
			removed++
		}
	}
	return removed
}

func batches(chunks []chunk.Chunk, size int) [][]chunk.Chunk {
	out := make([][]chunk.Chunk, 0, (len(chunks)+size-1)/size)
	for len(chunks) > 0 {
		n := min(size, len(chunks))
		out = append(out, chunks[:n])
		chunks = chunks[n:]
	}
	return out
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
