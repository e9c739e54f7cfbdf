package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
)

const lockRetryDelay = 50 * time.Millisecond

// lockPath serialises writers of path across processes.
func lockPath(path string) string {
	return path + ".lock"
}

// acquire takes the writer lock of path, waiting until ctx ends.
func acquire(ctx context.Context, path string) (release func(), err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.IOError("create index directory", err)
	}
	fl := flock.New(lockPath(path))
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, apperrors.IOError("acquire index lock", err).WithDetail("lock", fl.Path())
	}
	if !ok {
		return nil, apperrors.IOError("index lock not acquired", ctx.Err()).WithDetail("lock", fl.Path())
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("index_unlock_failed", slog.String("lock", fl.Path()), slog.String("error", err.Error()))
		}
	}, nil
}

// writeAtomic writes path through a temp file in the same directory, synced
// and renamed into place. On any failure the temp file is removed and path is
// left as it was.
func writeAtomic(path string, write func(f *os.File) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return apperrors.IOError("create temp file", err).WithDetail("dir", dir)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return apperrors.IOError("sync temp file", err)
	}
	if err = tmp.Close(); err != nil {
		return apperrors.IOError("close temp file", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return apperrors.IOError(fmt.Sprintf("rename %s into place", filepath.Base(tmpPath)), err)
	}
	syncDir(dir)
	return nil
}

// syncDir makes the rename durable where the platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
