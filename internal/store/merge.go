package store

import (
	"fmt"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/vector"
)

// Merge unions snapshots into a new index. All inputs must share provider,
// model, dimension and metric; otherwise a ProviderMismatch error is returned
// and nothing is merged.
//
// Records are unioned by id and later snapshots win. When a later snapshot
// tracks a document with a different text hash, records of that document it
// does not contain are dropped, so a re-indexed document never keeps chunks of
// its old text.
func Merge(snaps []Snapshot) (*vector.Index, Header, error) {
	if len(snaps) == 0 {
		return nil, Header{}, apperrors.ValidationError("nothing to merge", nil)
	}

	ref := -1
	for i, s := range snaps {
		if s.Index == nil {
			return nil, Header{}, apperrors.ValidationError(fmt.Sprintf("snapshot %d has no index", i), nil)
		}
		if s.Index.Identity().IsZero() && s.Index.Len() == 0 {
			continue
		}
		if ref < 0 {
			ref = i
			continue
		}
		if err := compatible(snaps[ref].Index, s.Index); err != nil {
			return nil, Header{}, err.WithDetail("input", fmt.Sprint(i))
		}
	}
	if ref < 0 {
		ref = 0
	}

	base := snaps[ref].Index
	out := vector.New(vector.Options{
		Identity:  base.Identity(),
		Dimension: base.Dimension(),
		Metric:    base.Metric(),
	})

	hdr := Header{Documents: make(map[string]DocumentInfo)}
	for _, s := range snaps {
		for doc, info := range s.Header.Documents {
			if prev, ok := hdr.Documents[doc]; ok && prev.TextHash != info.TextHash {
				dropSuperseded(out, s.Index, doc)
			}
			hdr.Documents[doc] = info
		}
		if err := out.AddBatch(s.Index.Records()); err != nil {
			return nil, Header{}, err
		}
		if c := s.Header.CreatedAt; !c.IsZero() && (hdr.CreatedAt.IsZero() || c.Before(hdr.CreatedAt)) {
			hdr.CreatedAt = c
		}
	}

	return out, stamp(out, hdr, now().UTC()), nil
}

func compatible(a, b *vector.Index) *apperrors.Error {
	if a.Identity() != b.Identity() {
		return apperrors.ProviderMismatch(fmt.Sprintf("cannot merge %s with %s", a.Identity(), b.Identity()))
	}
	if a.Dimension() != b.Dimension() && a.Dimension() != 0 && b.Dimension() != 0 {
		return apperrors.ProviderMismatch(fmt.Sprintf("cannot merge dimension %d with %d", a.Dimension(), b.Dimension()))
	}
	if a.Metric() != b.Metric() {
		return apperrors.ProviderMismatch(fmt.Sprintf("cannot merge metric %s with %s", a.Metric(), b.Metric()))
	}
	return nil
}

func dropSuperseded(out, newer *vector.Index, doc string) {
	for _, id := range out.DocumentIDs(doc) {
		if _, ok := newer.Lookup(id); !ok {
			out.Remove(id)
		}
	}
}
