package async

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestBackgroundIndexer_Success(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Given: a job that reports one document
	path := filepath.Join(t.TempDir(), "index.didx")
	var sawMarker bool
	b := NewBackgroundIndexer(path, nil, func(ctx context.Context, p *IndexProgress) error {
		sawMarker = HasIncompleteRun(path)
		p.Begin(1)
		p.StartDocument("a")
		p.UpdateChunks(3, 3)
		p.DocumentDone()
		return nil
	})

	// When: running it
	b.Start(context.Background())
	b.Start(context.Background())
	err := b.Wait()

	// Then: the run is ready and the marker is gone
	require.NoError(t, err)
	assert.True(t, sawMarker)
	assert.False(t, HasIncompleteRun(path))
	assert.Equal(t, "ready", b.Progress().Snapshot().Status)
}

func TestBackgroundIndexer_FailureKeepsMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.didx")
	boom := errors.New("boom")
	b := NewBackgroundIndexer(path, nil, func(context.Context, *IndexProgress) error { return boom })

	b.Start(context.Background())

	assert.ErrorIs(t, b.Wait(), boom)
	assert.True(t, HasIncompleteRun(path))
	snap := b.Progress().Snapshot()
	assert.Equal(t, "error", snap.Status)
	assert.Equal(t, "boom", snap.ErrorMessage)
}

func TestBackgroundIndexer_StopCancels(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "index.didx")
	started := make(chan struct{})
	b := NewBackgroundIndexer(path, nil, func(ctx context.Context, p *IndexProgress) error {
		p.Begin(1)
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	b.Start(context.Background())
	<-started
	b.Stop()

	assert.ErrorIs(t, b.Wait(), context.Canceled)
	assert.Equal(t, "cancelled", b.Progress().Snapshot().Status)
}

func TestBackgroundIndexer_StopBeforeStartIsNoop(t *testing.T) {
	b := NewBackgroundIndexer(filepath.Join(t.TempDir(), "i"), nil, nil)

	b.Stop()

	_, err := os.Stat(filepath.Join(t.TempDir(), "i"+MarkerSuffix))
	assert.True(t, os.IsNotExist(err))
}
