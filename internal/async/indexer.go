package async

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"
)

// IndexFunc does the actual work, reporting through progress.
type IndexFunc func(ctx context.Context, progress *IndexProgress) error

// MarkerSuffix names the file present while a background run is active.
// A marker left behind means a previous run was interrupted.
const MarkerSuffix = ".indexing"

// BackgroundIndexer runs one IndexFunc in a goroutine.
type BackgroundIndexer struct {
	indexPath string
	progress  *IndexProgress
	fn        IndexFunc

	cancel context.CancelFunc
	doneCh chan struct{}

	mu      sync.Mutex
	started bool
	err     error
}

// NewBackgroundIndexer creates an indexer for the index at indexPath.
func NewBackgroundIndexer(indexPath string, progress *IndexProgress, fn IndexFunc) *BackgroundIndexer {
	if progress == nil {
		progress = NewIndexProgress()
	}
	return &BackgroundIndexer{
		indexPath: indexPath,
		progress:  progress,
		fn:        fn,
		doneCh:    make(chan struct{}),
	}
}

// Progress returns the shared tracker.
func (b *BackgroundIndexer) Progress() *IndexProgress { return b.progress }

// Start launches the run. Later calls are no-ops.
func (b *BackgroundIndexer) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true

	ctx, b.cancel = context.WithCancel(ctx)
	go b.run(ctx)
}

func (b *BackgroundIndexer) run(ctx context.Context) {
	defer close(b.doneCh)

	marker := b.indexPath + MarkerSuffix
	if err := os.WriteFile(marker, []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		slog.Warn("indexing_marker_failed", slog.String("path", marker), slog.String("error", err.Error()))
	}

	err := b.fn(ctx, b.progress)
	switch {
	case err == nil:
		b.progress.SetReady()
	case errors.Is(err, context.Canceled):
		b.progress.SetCancelled()
	default:
		b.progress.SetError(err.Error())
	}

	// An interrupted run keeps its marker.
	if err == nil {
		_ = os.Remove(marker)
	}

	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// Stop cancels the run and waits for it.
func (b *BackgroundIndexer) Stop() {
	b.mu.Lock()
	started, cancel := b.started, b.cancel
	b.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-b.doneCh
}

// Wait blocks until the run ends and returns its error.
func (b *BackgroundIndexer) Wait() error {
	<-b.doneCh
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// HasIncompleteRun reports whether a previous run on indexPath was interrupted.
func HasIncompleteRun(indexPath string) bool {
	_, err := os.Stat(indexPath + MarkerSuffix)
	return err == nil
}
