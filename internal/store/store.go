package store

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// now is replaced in tests.
var now = time.Now

// Save writes idx and hdr to path. Identity, dimension, metric and record
// count in hdr are taken from idx; CreatedAt is kept when set.
func Save(ctx context.Context, path string, idx *vector.Index, hdr Header, opts ...SaveOption) error {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	release, err := acquire(ctx, path)
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	recs := idx.Records()
	hdr = stamp(idx, hdr, now().UTC())
	hdr.Records = len(recs)

	if isSQLite(path) {
		err = saveSQLite(ctx, path, hdr, recs)
	} else {
		err = saveFile(ctx, path, hdr, recs, o.codec)
	}
	if err != nil {
		return err
	}

	slog.Info("index_saved",
		slog.String("path", path),
		slog.String("backend", Backend(path)),
		slog.Int("records", hdr.Records),
		slog.Int("documents", len(hdr.Documents)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

// Load reads path into a new index. It returns a FormatError when the file
// is not a readable index of this version and a CorruptionError when its
// contents are damaged; either way nothing partial is returned.
func Load(ctx context.Context, path string, opts ...LoadOption) (*vector.Index, Header, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	var (
		hdr  Header
		recs []vector.Record
		err  error
	)
	if isSQLite(path) {
		hdr, recs, err = loadSQLite(ctx, path)
	} else {
		hdr, recs, err = loadFile(ctx, path)
	}
	if err != nil {
		return nil, Header{}, err
	}

	vopts, err := indexOptions(hdr, o.index)
	if err != nil {
		return nil, Header{}, err
	}
	idx := vector.New(vopts)
	if err := idx.AddBatch(recs); err != nil {
		return nil, Header{}, apperrors.CorruptionError("records disagree with header", err)
	}

	slog.Debug("index_loaded",
		slog.String("path", path),
		slog.String("identity", hdr.Identity().String()),
		slog.Int("records", idx.Len()))
	return idx, hdr, nil
}

// Info returns the header of path without reading the records.
func Info(ctx context.Context, path string) (Header, error) {
	if isSQLite(path) {
		return infoSQLite(ctx, path)
	}
	return infoFile(path)
}
