package store

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

func saveFile(ctx context.Context, path string, hdr Header, recs []vector.Record, codec Codec) error {
	return writeAtomic(path, func(f *os.File) error {
		w := bufio.NewWriterSize(f, 1<<16)
		if err := encodeFile(ctx, w, hdr, recs, codec); err != nil {
			if apperrors.GetCode(err) != "" || ctx.Err() != nil {
				return err
			}
			return apperrors.IOError("write index", err)
		}
		if err := w.Flush(); err != nil {
			return apperrors.IOError("write index", err)
		}
		return nil
	})
}

func loadFile(ctx context.Context, path string) (Header, []vector.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, nil, openError(path, err)
	}
	return decodeFile(ctx, data)
}

func infoFile(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, openError(path, err)
	}
	defer func() { _ = f.Close() }()
	hdr, _, err := readHeaderOnly(f)
	return hdr, err
}

func openError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperrors.New(apperrors.ErrCodeFileNotFound, "index not found: "+path, err)
	}
	return apperrors.IOError("read index "+path, err)
}
