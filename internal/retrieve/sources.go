package retrieve

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/Aman-CERP/docindex/internal/chunk"
	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// FileSources resolves hits by reading each document's source file. A file
// whose content hash no longer matches the indexed text is reported as
// stale rather than sliced at outdated offsets.
type FileSources struct {
	docs map[string]store.DocumentInfo

	mu    sync.Mutex
	texts map[string]string
}

var _ SourceResolver = (*FileSources)(nil)

// NewFileSources resolves against a copy of the documents table of an
// index header.
func NewFileSources(docs map[string]store.DocumentInfo) *FileSources {
	own := make(map[string]store.DocumentInfo, len(docs))
	for id, d := range docs {
		own[id] = d
	}
	return &FileSources{docs: own, texts: make(map[string]string)}
}

// Update records that docID was (re)indexed from info, e.g. by a
// background run while queries are being served.
func (s *FileSources) Update(docID string, info store.DocumentInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[docID] = info
	delete(s.texts, docID)
}

// Forget drops docID.
func (s *FileSources) Forget(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, docID)
	delete(s.texts, docID)
}

// Resolve returns the text of hit.
func (s *FileSources) Resolve(_ context.Context, hit vector.Hit) (string, error) {
	text, err := s.document(hit.Meta.DocumentID)
	if err != nil {
		return "", err
	}
	if hit.Meta.Start < 0 || hit.Meta.End > len(text) || hit.Meta.Start > hit.Meta.End {
		return "", apperrors.CorruptionError(fmt.Sprintf("offsets [%d,%d) outside document", hit.Meta.Start, hit.Meta.End), nil)
	}
	passage := text[hit.Meta.Start:hit.Meta.End]
	if hit.Meta.ContentHash != "" && chunk.Hash(passage) != hit.Meta.ContentHash {
		return "", apperrors.CorruptionError("passage changed since indexing", nil).WithDetail("id", hit.ID)
	}
	return passage, nil
}

func (s *FileSources) document(docID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text, ok := s.texts[docID]; ok {
		return text, nil
	}

	info, ok := s.docs[docID]
	if !ok || info.Source == "" {
		return "", apperrors.New(apperrors.ErrCodeFileNotFound, "no source recorded for "+docID, nil)
	}
	data, err := os.ReadFile(info.Source)
	if err != nil {
		return "", apperrors.IOError("read source "+info.Source, err)
	}
	text := string(data)
	if info.TextHash != "" && chunk.Hash(text) != info.TextHash {
		return "", apperrors.CorruptionError("source changed since indexing", nil).WithDetail("source", info.Source)
	}
	s.texts[docID] = text
	return text, nil
}
